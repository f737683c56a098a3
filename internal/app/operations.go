package app

import (
	"context"
	"errors"
	"log/slog"

	"bankaccounts/internal/domain"
	"bankaccounts/internal/eventstore"
)

// OperationManager is the process manager for single-account commands. It
// reacts to CommandCreated events for deposits and withdrawals, applies the
// signed amount to the target account, and records the outcome on the
// command.
type OperationManager struct {
	accounts *AccountService
	commands *CommandService
	log      *slog.Logger
}

func NewOperationManager(accounts *AccountService, commands *CommandService, log *slog.Logger) *OperationManager {
	return &OperationManager{accounts: accounts, commands: commands, log: log}
}

// Handle is the pipeline entry point. Delivery is at-least-once, so the
// handler first checks whether the command already resolved and relies on
// the account-level (transaction, step) tags for the mutation itself.
func (m *OperationManager) Handle(ctx context.Context, _ eventstore.Record, ev domain.Event) error {
	created, ok := ev.(domain.CommandCreated)
	if !ok {
		return nil
	}

	var amount int64
	var step domain.Step
	switch created.Kind {
	case domain.KindDeposit:
		amount, step = created.AmountCents, domain.StepDeposit
	case domain.KindWithdraw:
		amount, step = -created.AmountCents, domain.StepWithdraw
	default:
		return nil
	}

	cmd, err := m.commands.Get(ctx, created.CommandID)
	if err != nil {
		return err
	}
	if cmd.Status != domain.StatusPending {
		return nil
	}

	err = m.accounts.appendTransaction(ctx, created.AccountID, amount, created.CommandID, step)
	switch {
	case err == nil:
		return m.commands.markSucceeded(ctx, created.CommandID)
	case domain.IsBusinessError(err):
		m.log.Info("command refused",
			"command", created.CommandID, "kind", created.Kind, "reason", err)
		return m.commands.markFailed(ctx, created.CommandID, err.Error())
	case errors.Is(err, eventstore.ErrNotFound):
		// Unknown target account. The intent can never apply.
		return m.commands.markFailed(ctx, created.CommandID, "account not found")
	default:
		// Transient (conflict retries exhausted, store unavailable). Leave
		// the command Pending; redelivery retries the whole cycle.
		return err
	}
}
