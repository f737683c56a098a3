package domain

import (
	"fmt"

	"github.com/google/uuid"
)

type TransferPhase string

const (
	PhaseStarted     TransferPhase = "STARTED"
	PhaseDebited     TransferPhase = "DEBITED"
	PhaseCredited    TransferPhase = "CREDITED"
	PhaseCompleted   TransferPhase = "COMPLETED"
	PhaseCompensated TransferPhase = "COMPENSATED"
	PhaseFailed      TransferPhase = "FAILED"
	PhaseStuck       TransferPhase = "STUCK"
)

// Terminal reports whether no further automatic progress is possible.
// STUCK is terminal for automation but stays visible to operators.
func (p TransferPhase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed || p == PhaseStuck
}

// Transfer is the saga aggregate coordinating a two-account move. The saga
// owns the decision of what happens next; it never holds balances. Its phase
// is persisted after every sub-step so a crash mid-transfer resumes from the
// last durable phase.
//
// Success path: STARTED -> DEBITED -> CREDITED -> COMPLETED.
// Credit failure after a committed debit: DEBITED -> COMPENSATED -> FAILED.
// A failed compensating re-credit parks the saga at STUCK.
type Transfer struct {
	ID            uuid.UUID
	SourceID      uuid.UUID
	DestinationID uuid.UUID
	AmountCents   int64
	Phase         TransferPhase
	Reason        string
	Version       int64
}

// StartTransfer decides the creation event for a new saga stream. The
// transfer id equals the command id that spawned it, which makes saga
// creation idempotent under redelivery.
func StartTransfer(id, sourceID, destinationID uuid.UUID, amountCents int64) (TransferStarted, error) {
	if id == uuid.Nil || sourceID == uuid.Nil || destinationID == uuid.Nil {
		return TransferStarted{}, fmt.Errorf("%w: nil id", ErrValidation)
	}
	if sourceID == destinationID {
		return TransferStarted{}, fmt.Errorf("%w: source and destination must differ", ErrValidation)
	}
	if amountCents <= 0 {
		return TransferStarted{}, fmt.Errorf("%w: amount must be > 0", ErrValidation)
	}
	return TransferStarted{
		TransferID:    id,
		SourceID:      sourceID,
		DestinationID: destinationID,
		AmountCents:   amountCents,
	}, nil
}

// NewTransfer replays a saga stream.
func NewTransfer(events []Event) (*Transfer, error) {
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: empty transfer stream", ErrValidation)
	}
	started, ok := events[0].(TransferStarted)
	if !ok {
		return nil, fmt.Errorf("%w: transfer stream does not start with TRANSFER_STARTED", ErrValidation)
	}
	t := &Transfer{
		ID:            started.TransferID,
		SourceID:      started.SourceID,
		DestinationID: started.DestinationID,
		AmountCents:   started.AmountCents,
		Phase:         PhaseStarted,
		Version:       1,
	}
	for _, ev := range events[1:] {
		switch e := ev.(type) {
		case TransferDebited:
			t.Phase = PhaseDebited
		case TransferCredited:
			t.Phase = PhaseCredited
		case TransferCompleted:
			t.Phase = PhaseCompleted
		case TransferCompensated:
			t.Phase = PhaseCompensated
			t.Reason = e.Reason
		case TransferFailed:
			t.Phase = PhaseFailed
			t.Reason = e.Reason
		case TransferStuck:
			t.Phase = PhaseStuck
			t.Reason = e.Reason
		default:
			return nil, fmt.Errorf("%w: unexpected event %q in transfer stream", ErrValidation, ev.EventType())
		}
		t.Version++
	}
	return t, nil
}

func (t *Transfer) transition(from TransferPhase, to string) error {
	if t.Phase != from {
		return fmt.Errorf("%w: %s requires phase %s, saga is %s", ErrInvalidStateTransition, to, from, t.Phase)
	}
	return nil
}

// RecordDebited follows a committed debit of the source account.
func (t *Transfer) RecordDebited() (TransferDebited, error) {
	if err := t.transition(PhaseStarted, "DEBITED"); err != nil {
		return TransferDebited{}, err
	}
	return TransferDebited{TransferID: t.ID}, nil
}

// RecordCredited follows a committed credit of the destination account.
func (t *Transfer) RecordCredited() (TransferCredited, error) {
	if err := t.transition(PhaseDebited, "CREDITED"); err != nil {
		return TransferCredited{}, err
	}
	return TransferCredited{TransferID: t.ID}, nil
}

// RecordCompleted terminates the success path.
func (t *Transfer) RecordCompleted() (TransferCompleted, error) {
	if err := t.transition(PhaseCredited, "COMPLETED"); err != nil {
		return TransferCompleted{}, err
	}
	return TransferCompleted{TransferID: t.ID}, nil
}

// RecordCompensated follows the committed re-credit of the source after the
// destination credit failed. The reason records why the credit was refused
// so it survives a crash before the final FAILED transition.
func (t *Transfer) RecordCompensated(reason string) (TransferCompensated, error) {
	if err := t.transition(PhaseDebited, "COMPENSATED"); err != nil {
		return TransferCompensated{}, err
	}
	return TransferCompensated{TransferID: t.ID, Reason: reason}, nil
}

// RecordFailed terminates the saga. Legal from STARTED (debit refused) and
// from COMPENSATED (debit reversed after a credit failure).
func (t *Transfer) RecordFailed(reason string) (TransferFailed, error) {
	if t.Phase != PhaseStarted && t.Phase != PhaseCompensated {
		return TransferFailed{}, fmt.Errorf("%w: FAILED requires phase STARTED or COMPENSATED, saga is %s", ErrInvalidStateTransition, t.Phase)
	}
	return TransferFailed{TransferID: t.ID, Reason: reason}, nil
}

// RecordStuck parks the saga after the compensating re-credit itself failed.
// Automatic recovery stops here; the saga stays visible until an operator
// resolves it.
func (t *Transfer) RecordStuck(reason string) (TransferStuck, error) {
	if err := t.transition(PhaseDebited, "STUCK"); err != nil {
		return TransferStuck{}, err
	}
	return TransferStuck{TransferID: t.ID, Reason: reason}, nil
}
