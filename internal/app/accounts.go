package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"bankaccounts/internal/backoff"
	"bankaccounts/internal/domain"
	"bankaccounts/internal/eventstore"
)

// RetryPolicy bounds the read-apply-append cycle under version conflicts.
type RetryPolicy struct {
	MaxAttempts int
	Base        time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, Base: 25 * time.Millisecond}
}

// AccountService owns all writes to account streams. Contention between
// writers is resolved by the store's version check plus bounded jittered
// retry; there is no lock across accounts.
type AccountService struct {
	store eventstore.Store
	log   *slog.Logger
	retry RetryPolicy
}

func NewAccountService(store eventstore.Store, log *slog.Logger, retry RetryPolicy) *AccountService {
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetryPolicy()
	}
	return &AccountService{store: store, log: log, retry: retry}
}

// Open creates the account stream. Reusing an id is ErrAlreadyExists.
func (s *AccountService) Open(ctx context.Context, id uuid.UUID, overdraftLimitCents int64) error {
	ev, err := domain.OpenAccount(id, overdraftLimitCents)
	if err != nil {
		return err
	}
	_, err = s.store.Append(ctx, accountStream(id), 0, ev)
	if errors.Is(err, eventstore.ErrConcurrencyConflict) {
		return fmt.Errorf("%w: account %s", domain.ErrAlreadyExists, id)
	}
	return err
}

// Get returns the account's current projected state.
func (s *AccountService) Get(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	events, _, err := s.store.Load(ctx, accountStream(id))
	if err != nil {
		return nil, err
	}
	return domain.NewAccount(events)
}

// Balance reads the projected balance in minor units.
func (s *AccountService) Balance(ctx context.Context, id uuid.UUID) (int64, error) {
	acct, err := s.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	return acct.BalanceCents, nil
}

// Close irreversibly closes the account.
func (s *AccountService) Close(ctx context.Context, id uuid.UUID) error {
	return s.mutate(ctx, id, func(acct *domain.Account) (domain.Event, bool, error) {
		ev, err := acct.Close()
		return ev, err == nil, err
	})
}

// SetOverdraftLimit changes the overdraft limit; tightening is refused when
// the current balance already violates the new limit.
func (s *AccountService) SetOverdraftLimit(ctx context.Context, id uuid.UUID, limitCents int64) error {
	return s.mutate(ctx, id, func(acct *domain.Account) (domain.Event, bool, error) {
		ev, err := acct.SetOverdraftLimit(limitCents)
		return ev, err == nil, err
	})
}

// appendTransaction applies a signed delta tagged with (transactionID, step).
// Re-applying an already-recorded pair succeeds without a new event, which
// is what makes saga sub-steps safe under redelivery.
func (s *AccountService) appendTransaction(ctx context.Context, id uuid.UUID, amountCents int64, transactionID uuid.UUID, step domain.Step) error {
	return s.mutate(ctx, id, func(acct *domain.Account) (domain.Event, bool, error) {
		return acct.AppendTransaction(amountCents, transactionID, step)
	})
}

// mutate runs one read-decide-append cycle with bounded conflict retry.
// decide returns (event, emit, err): emit=false with nil err is an
// idempotent no-op.
func (s *AccountService) mutate(ctx context.Context, id uuid.UUID, decide func(*domain.Account) (domain.Event, bool, error)) error {
	stream := accountStream(id)
	for attempt := 0; attempt < s.retry.MaxAttempts; attempt++ {
		events, version, err := s.store.Load(ctx, stream)
		if err != nil {
			return err
		}
		acct, err := domain.NewAccount(events)
		if err != nil {
			return err
		}
		ev, emit, err := decide(acct)
		if err != nil {
			return err
		}
		if !emit {
			return nil
		}
		_, err = s.store.Append(ctx, stream, version, ev)
		if err == nil {
			return nil
		}
		if !errors.Is(err, eventstore.ErrConcurrencyConflict) {
			return err
		}
		conflictRetries.Inc()
		s.log.Debug("account version conflict, retrying",
			"account", id, "attempt", attempt+1)
		if serr := backoff.Sleep(ctx, backoff.Delay(s.retry.Base, attempt)); serr != nil {
			return serr
		}
	}
	return fmt.Errorf("%w: account %s contended for %d attempts", ErrRetryExhausted, id, s.retry.MaxAttempts)
}
