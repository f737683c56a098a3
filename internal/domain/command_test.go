package domain

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestCreateCommandValidation(t *testing.T) {
	src := uuid.New()
	dst := uuid.New()

	cases := []struct {
		name string
		kind CommandKind
		dest uuid.UUID
		amt  int64
		ok   bool
	}{
		{"deposit", KindDeposit, uuid.Nil, 100, true},
		{"withdraw", KindWithdraw, uuid.Nil, 100, true},
		{"transfer", KindTransfer, dst, 100, true},
		{"deposit with destination", KindDeposit, dst, 100, false},
		{"transfer without destination", KindTransfer, uuid.Nil, 100, false},
		{"transfer to self", KindTransfer, src, 100, false},
		{"zero amount", KindDeposit, uuid.Nil, 0, false},
		{"negative amount", KindDeposit, uuid.Nil, -100, false},
		{"unknown kind", CommandKind("MINT"), uuid.Nil, 100, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := CreateCommand(uuid.New(), tc.kind, src, tc.dest, tc.amt)
			if tc.ok && err != nil {
				t.Fatal(err)
			}
			if !tc.ok && !errors.Is(err, ErrValidation) {
				t.Fatalf("got %v, want ErrValidation", err)
			}
		})
	}
}

func TestCommandTransitions(t *testing.T) {
	id := uuid.New()
	created := CommandCreated{CommandID: id, Kind: KindDeposit, AccountID: uuid.New(), AmountCents: 100}

	pending, err := NewCommand([]Event{created})
	if err != nil {
		t.Fatal(err)
	}
	if pending.Status != StatusPending {
		t.Fatalf("status = %s, want PENDING", pending.Status)
	}

	if _, ok, err := pending.MarkSucceeded(); !ok || err != nil {
		t.Fatalf("pending -> succeeded: ok=%v err=%v", ok, err)
	}

	succeeded, err := NewCommand([]Event{created, CommandSucceeded{CommandID: id}})
	if err != nil {
		t.Fatal(err)
	}
	// Repeat is a silent no-op, the opposite terminal is a conflict.
	if _, ok, err := succeeded.MarkSucceeded(); ok || err != nil {
		t.Fatalf("repeat succeeded: ok=%v err=%v", ok, err)
	}
	if _, _, err := succeeded.MarkFailed("x"); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("succeeded -> failed: got %v", err)
	}

	failed, err := NewCommand([]Event{created, CommandFailed{CommandID: id, Reason: "InsufficientFunds"}})
	if err != nil {
		t.Fatal(err)
	}
	if failed.Status != StatusFailed || failed.Reason != "InsufficientFunds" {
		t.Fatalf("failed replay: %+v", failed)
	}
	if _, ok, err := failed.MarkFailed("again"); ok || err != nil {
		t.Fatalf("repeat failed: ok=%v err=%v", ok, err)
	}
	if _, _, err := failed.MarkSucceeded(); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("failed -> succeeded: got %v", err)
	}
}
