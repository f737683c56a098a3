package domain

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func replayAccount(t *testing.T, events ...Event) *Account {
	t.Helper()
	a, err := NewAccount(events)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestOpenAccountValidation(t *testing.T) {
	if _, err := OpenAccount(uuid.Nil, 0); !errors.Is(err, ErrValidation) {
		t.Fatalf("nil id: got %v want ErrValidation", err)
	}
	if _, err := OpenAccount(uuid.New(), -1); !errors.Is(err, ErrValidation) {
		t.Fatalf("negative limit: got %v want ErrValidation", err)
	}
	id := uuid.New()
	ev, err := OpenAccount(id, 5000)
	if err != nil {
		t.Fatal(err)
	}
	if ev.AccountID != id || ev.OverdraftLimitCents != 5000 {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestAccountReplay(t *testing.T) {
	id := uuid.New()
	tx := uuid.New()
	a := replayAccount(t,
		AccountOpened{AccountID: id, OverdraftLimitCents: 1000},
		TransactionAppended{AccountID: id, AmountCents: 10000, TransactionID: tx, Step: StepDeposit},
		TransactionAppended{AccountID: id, AmountCents: -2500, TransactionID: uuid.New(), Step: StepWithdraw},
	)
	if a.BalanceCents != 7500 {
		t.Fatalf("balance = %d, want 7500", a.BalanceCents)
	}
	if a.Version != 3 {
		t.Fatalf("version = %d, want 3", a.Version)
	}
	if !a.Applied(tx, StepDeposit) {
		t.Fatal("deposit transaction not tracked as applied")
	}
	if a.Applied(tx, StepWithdraw) {
		t.Fatal("same transaction id with a different step must not count as applied")
	}
}

func TestAccountReplayRejectsForeignStream(t *testing.T) {
	if _, err := NewAccount(nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty stream: got %v", err)
	}
	if _, err := NewAccount([]Event{CommandCreated{}}); !errors.Is(err, ErrValidation) {
		t.Fatalf("wrong first event: got %v", err)
	}
	_, err := NewAccount([]Event{
		AccountOpened{AccountID: uuid.New()},
		TransferStarted{},
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("foreign event mid-stream: got %v", err)
	}
}

func TestAppendTransaction(t *testing.T) {
	id := uuid.New()

	cases := []struct {
		name    string
		history []Event
		amount  int64
		wantErr error
	}{
		{"deposit", []Event{AccountOpened{AccountID: id}}, 5000, nil},
		{"withdraw within balance", []Event{
			AccountOpened{AccountID: id},
			TransactionAppended{AmountCents: 5000, TransactionID: uuid.New(), Step: StepDeposit},
		}, -5000, nil},
		{"withdraw into overdraft", []Event{
			AccountOpened{AccountID: id, OverdraftLimitCents: 1000},
		}, -1000, nil},
		{"overdraft exceeded", []Event{
			AccountOpened{AccountID: id, OverdraftLimitCents: 1000},
		}, -1001, ErrInsufficientFunds},
		{"insufficient funds", []Event{AccountOpened{AccountID: id}}, -1, ErrInsufficientFunds},
		{"zero amount", []Event{AccountOpened{AccountID: id}}, 0, ErrValidation},
		{"closed account", []Event{
			AccountOpened{AccountID: id},
			AccountClosed{AccountID: id},
		}, 5000, ErrAccountClosed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := replayAccount(t, tc.history...)
			ev, ok, err := a.AppendTransaction(tc.amount, uuid.New(), StepDeposit)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("got err %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil || !ok {
				t.Fatalf("got ok=%v err=%v", ok, err)
			}
			if ev.AmountCents != tc.amount {
				t.Fatalf("event amount = %d, want %d", ev.AmountCents, tc.amount)
			}
		})
	}
}

func TestAppendTransactionIdempotent(t *testing.T) {
	id := uuid.New()
	tx := uuid.New()
	a := replayAccount(t,
		AccountOpened{AccountID: id},
		TransactionAppended{AccountID: id, AmountCents: 5000, TransactionID: tx, Step: StepDeposit},
	)
	_, ok, err := a.AppendTransaction(5000, tx, StepDeposit)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("redelivered (transaction, step) pair must be a no-op")
	}
	// Even on a closed account: the dedup check runs first.
	closed := replayAccount(t,
		AccountOpened{AccountID: id},
		TransactionAppended{AccountID: id, AmountCents: 5000, TransactionID: tx, Step: StepDeposit},
		AccountClosed{AccountID: id},
	)
	if _, ok, err := closed.AppendTransaction(5000, tx, StepDeposit); ok || err != nil {
		t.Fatalf("redelivery to closed account: got ok=%v err=%v", ok, err)
	}
}

func TestSetOverdraftLimit(t *testing.T) {
	id := uuid.New()
	a := replayAccount(t,
		AccountOpened{AccountID: id, OverdraftLimitCents: 5000},
		TransactionAppended{AccountID: id, AmountCents: -3000, TransactionID: uuid.New(), Step: StepWithdraw},
	)
	// Balance is -3000: loosening and matching limits are fine, tightening
	// below the current balance is not.
	if _, err := a.SetOverdraftLimit(3000); err != nil {
		t.Fatalf("limit 3000: %v", err)
	}
	if _, err := a.SetOverdraftLimit(2999); !errors.Is(err, ErrConstraintViolation) {
		t.Fatalf("limit 2999: got %v want ErrConstraintViolation", err)
	}
	if _, err := a.SetOverdraftLimit(-1); !errors.Is(err, ErrValidation) {
		t.Fatalf("negative limit: got %v want ErrValidation", err)
	}
}

func TestClose(t *testing.T) {
	id := uuid.New()
	a := replayAccount(t, AccountOpened{AccountID: id})
	if _, err := a.Close(); err != nil {
		t.Fatal(err)
	}
	closed := replayAccount(t, AccountOpened{AccountID: id}, AccountClosed{AccountID: id})
	if _, err := closed.Close(); !errors.Is(err, ErrAccountClosed) {
		t.Fatalf("double close: got %v want ErrAccountClosed", err)
	}
	if _, err := closed.SetOverdraftLimit(100); !errors.Is(err, ErrAccountClosed) {
		t.Fatalf("overdraft on closed: got %v want ErrAccountClosed", err)
	}
}
