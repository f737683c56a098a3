package domain

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func startedTransfer(t *testing.T, extra ...Event) *Transfer {
	t.Helper()
	id := uuid.New()
	events := append([]Event{TransferStarted{
		TransferID:    id,
		SourceID:      uuid.New(),
		DestinationID: uuid.New(),
		AmountCents:   4000,
	}}, extra...)
	tr, err := NewTransfer(events)
	if err != nil {
		t.Fatal(err)
	}
	return tr
}

func TestStartTransferValidation(t *testing.T) {
	src := uuid.New()
	if _, err := StartTransfer(uuid.New(), src, src, 100); !errors.Is(err, ErrValidation) {
		t.Fatalf("self transfer: got %v", err)
	}
	if _, err := StartTransfer(uuid.New(), src, uuid.New(), 0); !errors.Is(err, ErrValidation) {
		t.Fatalf("zero amount: got %v", err)
	}
	if _, err := StartTransfer(uuid.Nil, src, uuid.New(), 100); !errors.Is(err, ErrValidation) {
		t.Fatalf("nil id: got %v", err)
	}
}

func TestTransferSuccessPath(t *testing.T) {
	tr := startedTransfer(t)
	if tr.Phase != PhaseStarted {
		t.Fatalf("phase = %s, want STARTED", tr.Phase)
	}

	id := tr.ID
	tr = startedTransferWith(t, id, TransferDebited{TransferID: id})
	if _, err := tr.RecordCredited(); err != nil {
		t.Fatal(err)
	}

	tr = startedTransferWith(t, id, TransferDebited{TransferID: id}, TransferCredited{TransferID: id})
	if _, err := tr.RecordCompleted(); err != nil {
		t.Fatal(err)
	}

	done := startedTransferWith(t, id,
		TransferDebited{TransferID: id},
		TransferCredited{TransferID: id},
		TransferCompleted{TransferID: id},
	)
	if !done.Phase.Terminal() {
		t.Fatal("COMPLETED must be terminal")
	}
}

func startedTransferWith(t *testing.T, id uuid.UUID, extra ...Event) *Transfer {
	t.Helper()
	events := append([]Event{TransferStarted{
		TransferID:    id,
		SourceID:      uuid.New(),
		DestinationID: uuid.New(),
		AmountCents:   4000,
	}}, extra...)
	tr, err := NewTransfer(events)
	if err != nil {
		t.Fatal(err)
	}
	return tr
}

func TestTransferCompensationPath(t *testing.T) {
	id := uuid.New()
	deb := startedTransferWith(t, id, TransferDebited{TransferID: id})

	comp, err := deb.RecordCompensated("AccountClosed")
	if err != nil {
		t.Fatal(err)
	}
	if comp.Reason != "AccountClosed" {
		t.Fatalf("reason = %q", comp.Reason)
	}

	// Reason survives replay of the COMPENSATED phase so FAILED can carry it
	// after a restart.
	tr := startedTransferWith(t, id, TransferDebited{TransferID: id}, comp)
	if tr.Phase != PhaseCompensated || tr.Reason != "AccountClosed" {
		t.Fatalf("replayed saga: phase=%s reason=%q", tr.Phase, tr.Reason)
	}
	if _, err := tr.RecordFailed(tr.Reason); err != nil {
		t.Fatal(err)
	}
}

func TestTransferStuck(t *testing.T) {
	id := uuid.New()
	deb := startedTransferWith(t, id, TransferDebited{TransferID: id})
	ev, err := deb.RecordStuck("credit: AccountClosed; refund: AccountClosed")
	if err != nil {
		t.Fatal(err)
	}
	tr := startedTransferWith(t, id, TransferDebited{TransferID: id}, ev)
	if tr.Phase != PhaseStuck || !tr.Phase.Terminal() {
		t.Fatalf("phase = %s, want terminal STUCK", tr.Phase)
	}
}

func TestTransferIllegalTransitions(t *testing.T) {
	id := uuid.New()

	cases := []struct {
		name string
		tr   func(t *testing.T) *Transfer
		step func(tr *Transfer) error
	}{
		{"credit before debit", func(t *testing.T) *Transfer {
			return startedTransferWith(t, id)
		}, func(tr *Transfer) error { _, err := tr.RecordCredited(); return err }},
		{"complete before credit", func(t *testing.T) *Transfer {
			return startedTransferWith(t, id, TransferDebited{TransferID: id})
		}, func(tr *Transfer) error { _, err := tr.RecordCompleted(); return err }},
		{"fail after debit", func(t *testing.T) *Transfer {
			return startedTransferWith(t, id, TransferDebited{TransferID: id})
		}, func(tr *Transfer) error { _, err := tr.RecordFailed("x"); return err }},
		{"debit twice", func(t *testing.T) *Transfer {
			return startedTransferWith(t, id, TransferDebited{TransferID: id})
		}, func(tr *Transfer) error { _, err := tr.RecordDebited(); return err }},
		{"compensate from started", func(t *testing.T) *Transfer {
			return startedTransferWith(t, id)
		}, func(tr *Transfer) error { _, err := tr.RecordCompensated("x"); return err }},
		{"stuck from credited", func(t *testing.T) *Transfer {
			return startedTransferWith(t, id, TransferDebited{TransferID: id}, TransferCredited{TransferID: id})
		}, func(tr *Transfer) error { _, err := tr.RecordStuck("x"); return err }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.step(tc.tr(t)); !errors.Is(err, ErrInvalidStateTransition) {
				t.Fatalf("got %v, want ErrInvalidStateTransition", err)
			}
		})
	}
}
