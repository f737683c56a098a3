package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"bankaccounts/internal/domain"
	"bankaccounts/internal/eventstore"
)

// TransferManager is the process manager for two-account transfers. Funds
// cannot move in one atomic cross-stream transaction, so the saga commits
// one step at a time (debit, then credit) and persists its phase after
// each step. A crash or redelivery resumes from the last durable phase; a
// refused credit is compensated by re-crediting the source, so a committed
// debit is never left unmatched.
type TransferManager struct {
	store    eventstore.Store
	accounts *AccountService
	commands *CommandService
	log      *slog.Logger

	// Incremental TRANSFER_STUCK index over the feed. STUCK is terminal, so
	// ids only ever accumulate; each ListStuck call scans just the records
	// committed since the previous call.
	mu       sync.Mutex
	stuckPos int64
	stuckIDs []uuid.UUID
}

func NewTransferManager(store eventstore.Store, accounts *AccountService, commands *CommandService, log *slog.Logger) *TransferManager {
	return &TransferManager{store: store, accounts: accounts, commands: commands, log: log}
}

// Handle is the pipeline entry point: it creates the saga stream for a
// transfer command (transfer id = command id, so creation is idempotent)
// and drives it forward.
func (m *TransferManager) Handle(ctx context.Context, _ eventstore.Record, ev domain.Event) error {
	created, ok := ev.(domain.CommandCreated)
	if !ok || created.Kind != domain.KindTransfer {
		return nil
	}
	if err := m.ensureSaga(ctx, created); err != nil {
		return err
	}
	return m.Advance(ctx, created.CommandID)
}

func (m *TransferManager) ensureSaga(ctx context.Context, created domain.CommandCreated) error {
	_, _, err := m.store.Load(ctx, transferStream(created.CommandID))
	if err == nil {
		return nil
	}
	if !errors.Is(err, eventstore.ErrNotFound) {
		return err
	}
	started, err := domain.StartTransfer(created.CommandID, created.AccountID, created.DestinationID, created.AmountCents)
	if err != nil {
		return err
	}
	_, err = m.store.Append(ctx, transferStream(created.CommandID), 0, started)
	if errors.Is(err, eventstore.ErrConcurrencyConflict) {
		// A concurrent redelivery created it first.
		return nil
	}
	return err
}

// Get returns the saga's current projected state.
func (m *TransferManager) Get(ctx context.Context, id uuid.UUID) (*domain.Transfer, error) {
	saga, _, err := m.load(ctx, id)
	return saga, err
}

func (m *TransferManager) load(ctx context.Context, id uuid.UUID) (*domain.Transfer, int64, error) {
	events, version, err := m.store.Load(ctx, transferStream(id))
	if err != nil {
		return nil, 0, err
	}
	saga, err := domain.NewTransfer(events)
	if err != nil {
		return nil, 0, err
	}
	return saga, version, nil
}

// Advance drives the saga from its durable phase until it is terminal or a
// transient failure interrupts it. Every account step carries the saga id
// and a step tag, so re-running a step after a crash never double-applies.
// Both the pipeline handler and the reconciliation sweep call this.
func (m *TransferManager) Advance(ctx context.Context, id uuid.UUID) error {
	for {
		saga, version, err := m.load(ctx, id)
		if err != nil {
			return err
		}

		switch saga.Phase {
		case domain.PhaseStarted:
			err := m.accounts.appendTransaction(ctx, saga.SourceID, -saga.AmountCents, saga.ID, domain.StepDebit)
			switch {
			case err == nil:
				ev, derr := saga.RecordDebited()
				if derr != nil {
					return derr
				}
				if err := m.appendSaga(ctx, saga, version, ev); err != nil {
					return err
				}
			case isTerminalStepFailure(err):
				ev, derr := saga.RecordFailed(stepReason(err))
				if derr != nil {
					return derr
				}
				if err := m.appendSaga(ctx, saga, version, ev); err != nil {
					return err
				}
				transferOutcomes.WithLabelValues("failed").Inc()
			default:
				return err
			}

		case domain.PhaseDebited:
			err := m.accounts.appendTransaction(ctx, saga.DestinationID, saga.AmountCents, saga.ID, domain.StepCredit)
			switch {
			case err == nil:
				ev, derr := saga.RecordCredited()
				if derr != nil {
					return derr
				}
				if err := m.appendSaga(ctx, saga, version, ev); err != nil {
					return err
				}
			case isTerminalStepFailure(err):
				if err := m.compensate(ctx, saga, version, err); err != nil {
					return err
				}
			default:
				return err
			}

		case domain.PhaseCredited:
			ev, derr := saga.RecordCompleted()
			if derr != nil {
				return derr
			}
			if err := m.appendSaga(ctx, saga, version, ev); err != nil {
				return err
			}
			transferOutcomes.WithLabelValues("completed").Inc()

		case domain.PhaseCompensated:
			ev, derr := saga.RecordFailed(saga.Reason)
			if derr != nil {
				return derr
			}
			if err := m.appendSaga(ctx, saga, version, ev); err != nil {
				return err
			}
			transferOutcomes.WithLabelValues("failed").Inc()

		case domain.PhaseCompleted:
			return m.commands.markSucceeded(ctx, id)

		case domain.PhaseFailed:
			return m.commands.markFailed(ctx, id, saga.Reason)

		case domain.PhaseStuck:
			// Automatic recovery ends here. The command stays Pending and
			// the saga remains visible until an operator steps in.
			m.log.Error("transfer stuck: compensation failed, operator intervention required",
				"transfer", saga.ID, "reason", saga.Reason)
			return nil

		default:
			return fmt.Errorf("%w: unknown phase %s", domain.ErrValidation, saga.Phase)
		}
	}
}

// compensate re-credits the source with the debited amount after the
// destination refused the credit. A compensation that itself fails for a
// business reason parks the saga at STUCK rather than guessing.
func (m *TransferManager) compensate(ctx context.Context, saga *domain.Transfer, version int64, creditErr error) error {
	err := m.accounts.appendTransaction(ctx, saga.SourceID, saga.AmountCents, saga.ID, domain.StepRefund)
	switch {
	case err == nil:
		ev, derr := saga.RecordCompensated(stepReason(creditErr))
		if derr != nil {
			return derr
		}
		return m.appendSaga(ctx, saga, version, ev)
	case isTerminalStepFailure(err):
		reason := fmt.Sprintf("credit failed: %s; compensation failed: %s", stepReason(creditErr), stepReason(err))
		ev, derr := saga.RecordStuck(reason)
		if derr != nil {
			return derr
		}
		if aerr := m.appendSaga(ctx, saga, version, ev); aerr != nil {
			return aerr
		}
		transferOutcomes.WithLabelValues("stuck").Inc()
		return nil
	default:
		return err
	}
}

// appendSaga persists one phase transition. A version conflict means a
// concurrent deliverer already advanced the saga; the Advance loop reloads
// and continues from the durable phase, so the conflict is swallowed.
func (m *TransferManager) appendSaga(ctx context.Context, saga *domain.Transfer, version int64, ev domain.Event) error {
	_, err := m.store.Append(ctx, transferStream(saga.ID), version, ev)
	if errors.Is(err, eventstore.ErrConcurrencyConflict) {
		return nil
	}
	return err
}

// ListStuck returns every saga that reached STUCK, for the operator API.
// STUCK is never garbage-collected.
func (m *TransferManager) ListStuck(ctx context.Context) ([]*domain.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for {
		recs, err := m.store.ReadAll(ctx, m.stuckPos, 256)
		if err != nil {
			return nil, err
		}
		if len(recs) == 0 {
			break
		}
		for _, rec := range recs {
			m.stuckPos = rec.Seq
			if rec.Type != "TRANSFER_STUCK" {
				continue
			}
			if id, ok := transferIDFromStream(rec.StreamID); ok {
				m.stuckIDs = append(m.stuckIDs, id)
			}
		}
	}

	out := make([]*domain.Transfer, 0, len(m.stuckIDs))
	for _, id := range m.stuckIDs {
		saga, err := m.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, saga)
	}
	return out, nil
}

// isTerminalStepFailure classifies an account-step error as business-final:
// the step can never succeed, so the saga must fail or compensate instead of
// retrying.
func isTerminalStepFailure(err error) bool {
	return domain.IsBusinessError(err) || errors.Is(err, eventstore.ErrNotFound)
}

func stepReason(err error) string {
	if errors.Is(err, eventstore.ErrNotFound) {
		return "account not found"
	}
	return err.Error()
}
