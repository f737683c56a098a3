package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"bankaccounts/internal/domain"
	"bankaccounts/internal/eventstore"
)

// CommandService creates command aggregates and reads their status. Creation
// is synchronous so the caller holds a durable receipt before any account is
// touched; the outcome arrives later through the process managers.
type CommandService struct {
	store eventstore.Store
	log   *slog.Logger
}

func NewCommandService(store eventstore.Store, log *slog.Logger) *CommandService {
	return &CommandService{store: store, log: log}
}

func (s *CommandService) Deposit(ctx context.Context, accountID uuid.UUID, amountCents int64) (uuid.UUID, error) {
	id := uuid.New()
	return id, s.Submit(ctx, id, domain.KindDeposit, accountID, uuid.Nil, amountCents)
}

func (s *CommandService) Withdraw(ctx context.Context, accountID uuid.UUID, amountCents int64) (uuid.UUID, error) {
	id := uuid.New()
	return id, s.Submit(ctx, id, domain.KindWithdraw, accountID, uuid.Nil, amountCents)
}

func (s *CommandService) Transfer(ctx context.Context, sourceID, destinationID uuid.UUID, amountCents int64) (uuid.UUID, error) {
	id := uuid.New()
	return id, s.Submit(ctx, id, domain.KindTransfer, sourceID, destinationID, amountCents)
}

// Submit creates the command stream for id. Resubmitting the same id with
// the same payload is a no-op; a different payload is ErrIdempotencyConflict.
func (s *CommandService) Submit(ctx context.Context, id uuid.UUID, kind domain.CommandKind, accountID, destinationID uuid.UUID, amountCents int64) error {
	ev, err := domain.CreateCommand(id, kind, accountID, destinationID, amountCents)
	if err != nil {
		return err
	}
	_, err = s.store.Append(ctx, commandStream(id), 0, ev)
	if err == nil {
		commandsSubmitted.WithLabelValues(string(kind)).Inc()
		return nil
	}
	if !errors.Is(err, eventstore.ErrConcurrencyConflict) {
		return err
	}

	existing, lerr := s.Get(ctx, id)
	if lerr != nil {
		return lerr
	}
	if existing.Kind != kind ||
		existing.AccountID != accountID ||
		existing.DestinationID != destinationID ||
		existing.AmountCents != amountCents {
		return fmt.Errorf("%w: command %s", ErrIdempotencyConflict, id)
	}
	return nil
}

// Get returns the command's current projected state.
func (s *CommandService) Get(ctx context.Context, id uuid.UUID) (*domain.Command, error) {
	events, _, err := s.store.Load(ctx, commandStream(id))
	if err != nil {
		return nil, err
	}
	return domain.NewCommand(events)
}

// markSucceeded records the terminal success transition. Safe under
// redelivery: a repeat is a no-op, a conflicting prior failure surfaces as
// ErrInvalidStateTransition.
func (s *CommandService) markSucceeded(ctx context.Context, id uuid.UUID) error {
	return s.mark(ctx, id, func(c *domain.Command) (domain.Event, bool, error) {
		return c.MarkSucceeded()
	}, domain.StatusSucceeded)
}

func (s *CommandService) markFailed(ctx context.Context, id uuid.UUID, reason string) error {
	return s.mark(ctx, id, func(c *domain.Command) (domain.Event, bool, error) {
		return c.MarkFailed(reason)
	}, domain.StatusFailed)
}

func (s *CommandService) mark(ctx context.Context, id uuid.UUID, decide func(*domain.Command) (domain.Event, bool, error), outcome domain.CommandStatus) error {
	stream := commandStream(id)
	// Only the saga layer writes command streams, so a conflict means a
	// concurrent redelivery already advanced it; one reload settles it.
	for {
		events, version, err := s.store.Load(ctx, stream)
		if err != nil {
			return err
		}
		cmd, err := domain.NewCommand(events)
		if err != nil {
			return err
		}
		ev, emit, err := decide(cmd)
		if err != nil {
			return err
		}
		if !emit {
			return nil
		}
		_, err = s.store.Append(ctx, stream, version, ev)
		if err == nil {
			commandsResolved.WithLabelValues(string(cmd.Kind), string(outcome)).Inc()
			return nil
		}
		if !errors.Is(err, eventstore.ErrConcurrencyConflict) {
			return err
		}
	}
}
