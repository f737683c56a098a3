package app

import (
	"strings"

	"github.com/google/uuid"
)

// Stream ids carry the aggregate family as a prefix so the three logical
// stores share one physical log without colliding.
const (
	accountPrefix  = "account/"
	commandPrefix  = "command/"
	transferPrefix = "transfer/"
)

func accountStream(id uuid.UUID) string  { return accountPrefix + id.String() }
func commandStream(id uuid.UUID) string  { return commandPrefix + id.String() }
func transferStream(id uuid.UUID) string { return transferPrefix + id.String() }

func transferIDFromStream(streamID string) (uuid.UUID, bool) {
	raw, ok := strings.CutPrefix(streamID, transferPrefix)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	return id, err == nil
}
