// Package eventstore provides the append-only stream store behind the
// account, command, and transfer saga aggregates. Every implementation
// offers durable append with an optimistic version check, ordered per-stream
// reads, a globally ordered feed for process managers, and durable consumer
// offsets.
package eventstore

import (
	"context"
	"errors"
	"time"

	"github.com/gowebpki/jcs"

	"bankaccounts/internal/domain"
)

var (
	// ErrConcurrencyConflict is returned when the expected stream version
	// does not match the current one. Callers re-read and re-apply.
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	ErrNotFound = errors.New("not found")
)

// Record is one committed event as stored. Seq is the global commit order
// across all streams; Version is the position within the record's stream.
type Record struct {
	Seq        int64
	StreamID   string
	Version    int64
	Type       string
	Payload    []byte
	RecordedAt time.Time
}

// Decode returns the domain event carried by the record.
func (r Record) Decode() (domain.Event, error) {
	return domain.DecodeEvent(r.Type, r.Payload)
}

type Store interface {
	// Load returns the decoded stream in version order and its current
	// version. A missing stream is ErrNotFound.
	Load(ctx context.Context, streamID string) ([]domain.Event, int64, error)

	// Append commits events to a stream iff its current version equals
	// expectedVersion (0 creates the stream). Returns the new version.
	Append(ctx context.Context, streamID string, expectedVersion int64, events ...domain.Event) (int64, error)

	// ReadAll returns up to limit records with Seq > afterSeq in commit
	// order. An empty result means the feed is caught up. Implementations
	// must make sequence numbers visible gap-free: once a record is
	// readable, every lower Seq is readable too, so consumers may commit
	// their offset to any Seq they have seen without skipping events.
	ReadAll(ctx context.Context, afterSeq int64, limit int) ([]Record, error)

	// Offset returns the last committed sequence for a consumer, 0 if the
	// consumer has never committed.
	Offset(ctx context.Context, consumer string) (int64, error)

	// CommitOffset durably records that the consumer handled everything up
	// to and including seq.
	CommitOffset(ctx context.Context, consumer string, seq int64) error
}

// encodeCanonical marshals an event and canonicalizes the JSON per RFC 8785
// so stored payloads are byte-stable regardless of marshaling order.
func encodeCanonical(ev domain.Event) (eventType string, payload []byte, err error) {
	eventType, raw, err := domain.EncodeEvent(ev)
	if err != nil {
		return "", nil, err
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return "", nil, err
	}
	return eventType, canon, nil
}
