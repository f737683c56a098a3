package domain

import (
	"fmt"

	"github.com/google/uuid"
)

type txKey struct {
	TransactionID uuid.UUID
	Step          Step
}

// Account is the event-sourced bank account aggregate. State is rebuilt by
// replaying the account's own event stream; all mutation goes through a
// decide method that returns the event to append, never by assigning fields.
type Account struct {
	ID                  uuid.UUID
	BalanceCents        int64
	OverdraftLimitCents int64
	Closed              bool
	Version             int64

	applied map[txKey]struct{}
}

// OpenAccount decides the creation event for a new account stream.
func OpenAccount(id uuid.UUID, overdraftLimitCents int64) (AccountOpened, error) {
	if id == uuid.Nil {
		return AccountOpened{}, fmt.Errorf("%w: nil account id", ErrValidation)
	}
	if overdraftLimitCents < 0 {
		return AccountOpened{}, fmt.Errorf("%w: overdraft limit must be >= 0", ErrValidation)
	}
	return AccountOpened{AccountID: id, OverdraftLimitCents: overdraftLimitCents}, nil
}

// NewAccount replays a stream into an Account. The first event must be
// AccountOpened.
func NewAccount(events []Event) (*Account, error) {
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: empty account stream", ErrValidation)
	}
	opened, ok := events[0].(AccountOpened)
	if !ok {
		return nil, fmt.Errorf("%w: account stream does not start with ACCOUNT_OPENED", ErrValidation)
	}
	a := &Account{
		ID:                  opened.AccountID,
		OverdraftLimitCents: opened.OverdraftLimitCents,
		Version:             1,
		applied:             make(map[txKey]struct{}),
	}
	for _, ev := range events[1:] {
		if err := a.apply(ev); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Account) apply(ev Event) error {
	switch e := ev.(type) {
	case TransactionAppended:
		a.BalanceCents += e.AmountCents
		a.applied[txKey{e.TransactionID, e.Step}] = struct{}{}
	case OverdraftLimitSet:
		a.OverdraftLimitCents = e.OverdraftLimitCents
	case AccountClosed:
		a.Closed = true
	default:
		return fmt.Errorf("%w: unexpected event %q in account stream", ErrValidation, ev.EventType())
	}
	a.Version++
	return nil
}

// Applied reports whether the (transactionID, step) pair has already been
// recorded on this account. Used by callers to skip redelivered work.
func (a *Account) Applied(transactionID uuid.UUID, step Step) bool {
	_, ok := a.applied[txKey{transactionID, step}]
	return ok
}

// AppendTransaction decides a signed balance delta. Deposits and credits are
// positive, withdrawals and debits negative. A repeat of an already-applied
// (transactionID, step) pair returns ok=false with no event and no error.
func (a *Account) AppendTransaction(amountCents int64, transactionID uuid.UUID, step Step) (TransactionAppended, bool, error) {
	if a.Applied(transactionID, step) {
		return TransactionAppended{}, false, nil
	}
	if a.Closed {
		return TransactionAppended{}, false, ErrAccountClosed
	}
	if amountCents == 0 {
		return TransactionAppended{}, false, fmt.Errorf("%w: zero amount", ErrValidation)
	}
	if a.BalanceCents+amountCents < -a.OverdraftLimitCents {
		return TransactionAppended{}, false, ErrInsufficientFunds
	}
	ev := TransactionAppended{
		AccountID:     a.ID,
		AmountCents:   amountCents,
		TransactionID: transactionID,
		Step:          step,
	}
	return ev, true, nil
}

// SetOverdraftLimit decides a new overdraft limit. Tightening the limit is
// only allowed when the current balance already satisfies it.
func (a *Account) SetOverdraftLimit(limitCents int64) (OverdraftLimitSet, error) {
	if a.Closed {
		return OverdraftLimitSet{}, ErrAccountClosed
	}
	if limitCents < 0 {
		return OverdraftLimitSet{}, fmt.Errorf("%w: overdraft limit must be >= 0", ErrValidation)
	}
	if a.BalanceCents < -limitCents {
		return OverdraftLimitSet{}, ErrConstraintViolation
	}
	return OverdraftLimitSet{AccountID: a.ID, OverdraftLimitCents: limitCents}, nil
}

// Close decides the irreversible closing event.
func (a *Account) Close() (AccountClosed, error) {
	if a.Closed {
		return AccountClosed{}, ErrAccountClosed
	}
	return AccountClosed{AccountID: a.ID}, nil
}
