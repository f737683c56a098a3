package domain

import (
	"fmt"

	"github.com/google/uuid"
)

type CommandStatus string

const (
	StatusPending   CommandStatus = "PENDING"
	StatusSucceeded CommandStatus = "SUCCEEDED"
	StatusFailed    CommandStatus = "FAILED"
)

// Command is the durable record of one client-issued intent. It is created
// before any account is touched so the client always holds a receipt, and
// it reaches exactly one terminal status.
type Command struct {
	ID            uuid.UUID
	Kind          CommandKind
	AccountID     uuid.UUID
	DestinationID uuid.UUID
	AmountCents   int64
	Status        CommandStatus
	Reason        string
	Version       int64
}

// CreateCommand decides the creation event for a new command stream.
// DestinationID is only meaningful for transfers.
func CreateCommand(id uuid.UUID, kind CommandKind, accountID, destinationID uuid.UUID, amountCents int64) (CommandCreated, error) {
	if id == uuid.Nil || accountID == uuid.Nil {
		return CommandCreated{}, fmt.Errorf("%w: nil id", ErrValidation)
	}
	if amountCents <= 0 {
		return CommandCreated{}, fmt.Errorf("%w: amount must be > 0", ErrValidation)
	}
	switch kind {
	case KindDeposit, KindWithdraw:
		if destinationID != uuid.Nil {
			return CommandCreated{}, fmt.Errorf("%w: destination not allowed for %s", ErrValidation, kind)
		}
	case KindTransfer:
		if destinationID == uuid.Nil {
			return CommandCreated{}, fmt.Errorf("%w: transfer requires a destination", ErrValidation)
		}
		if destinationID == accountID {
			return CommandCreated{}, fmt.Errorf("%w: transfer source and destination must differ", ErrValidation)
		}
	default:
		return CommandCreated{}, fmt.Errorf("%w: unknown command kind %q", ErrValidation, kind)
	}
	return CommandCreated{
		CommandID:     id,
		Kind:          kind,
		AccountID:     accountID,
		DestinationID: destinationID,
		AmountCents:   amountCents,
	}, nil
}

// NewCommand replays a command stream.
func NewCommand(events []Event) (*Command, error) {
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: empty command stream", ErrValidation)
	}
	created, ok := events[0].(CommandCreated)
	if !ok {
		return nil, fmt.Errorf("%w: command stream does not start with COMMAND_CREATED", ErrValidation)
	}
	c := &Command{
		ID:            created.CommandID,
		Kind:          created.Kind,
		AccountID:     created.AccountID,
		DestinationID: created.DestinationID,
		AmountCents:   created.AmountCents,
		Status:        StatusPending,
		Version:       1,
	}
	for _, ev := range events[1:] {
		switch e := ev.(type) {
		case CommandSucceeded:
			c.Status = StatusSucceeded
		case CommandFailed:
			c.Status = StatusFailed
			c.Reason = e.Reason
		default:
			return nil, fmt.Errorf("%w: unexpected event %q in command stream", ErrValidation, ev.EventType())
		}
		c.Version++
	}
	return c, nil
}

// MarkSucceeded decides the success transition. Repeating it is a no-op
// (ok=false); a prior conflicting failure is ErrInvalidStateTransition.
func (c *Command) MarkSucceeded() (CommandSucceeded, bool, error) {
	switch c.Status {
	case StatusSucceeded:
		return CommandSucceeded{}, false, nil
	case StatusFailed:
		return CommandSucceeded{}, false, fmt.Errorf("%w: command already failed", ErrInvalidStateTransition)
	}
	return CommandSucceeded{CommandID: c.ID}, true, nil
}

// MarkFailed decides the failure transition, mirroring MarkSucceeded.
func (c *Command) MarkFailed(reason string) (CommandFailed, bool, error) {
	switch c.Status {
	case StatusFailed:
		return CommandFailed{}, false, nil
	case StatusSucceeded:
		return CommandFailed{}, false, fmt.Errorf("%w: command already succeeded", ErrInvalidStateTransition)
	}
	return CommandFailed{CommandID: c.ID, Reason: reason}, true, nil
}
