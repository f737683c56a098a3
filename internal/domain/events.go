package domain

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Event is a domain event appended to exactly one aggregate stream.
type Event interface {
	EventType() string
}

// Step identifies which saga sub-step produced a TransactionAppended event.
// Together with the transaction id it makes account mutations idempotent:
// re-applying the same (transaction_id, step) pair is a no-op.
type Step string

const (
	StepDeposit  Step = "DEPOSIT"
	StepWithdraw Step = "WITHDRAW"
	StepDebit    Step = "DEBIT"
	StepCredit   Step = "CREDIT"
	StepRefund   Step = "REFUND"
)

// Account stream events.

type AccountOpened struct {
	AccountID           uuid.UUID `json:"account_id"`
	OverdraftLimitCents int64     `json:"overdraft_limit_cents"`
}

type TransactionAppended struct {
	AccountID     uuid.UUID `json:"account_id"`
	AmountCents   int64     `json:"amount_cents"`
	TransactionID uuid.UUID `json:"transaction_id"`
	Step          Step      `json:"step"`
}

type OverdraftLimitSet struct {
	AccountID           uuid.UUID `json:"account_id"`
	OverdraftLimitCents int64     `json:"overdraft_limit_cents"`
}

type AccountClosed struct {
	AccountID uuid.UUID `json:"account_id"`
}

func (AccountOpened) EventType() string       { return "ACCOUNT_OPENED" }
func (TransactionAppended) EventType() string { return "TRANSACTION_APPENDED" }
func (OverdraftLimitSet) EventType() string   { return "OVERDRAFT_LIMIT_SET" }
func (AccountClosed) EventType() string       { return "ACCOUNT_CLOSED" }

// Command stream events.

type CommandKind string

const (
	KindDeposit  CommandKind = "DEPOSIT"
	KindWithdraw CommandKind = "WITHDRAW"
	KindTransfer CommandKind = "TRANSFER"
)

type CommandCreated struct {
	CommandID     uuid.UUID   `json:"command_id"`
	Kind          CommandKind `json:"kind"`
	AccountID     uuid.UUID   `json:"account_id"`
	DestinationID uuid.UUID   `json:"destination_id,omitempty"`
	AmountCents   int64       `json:"amount_cents"`
}

type CommandSucceeded struct {
	CommandID uuid.UUID `json:"command_id"`
}

type CommandFailed struct {
	CommandID uuid.UUID `json:"command_id"`
	Reason    string    `json:"reason"`
}

func (CommandCreated) EventType() string   { return "COMMAND_CREATED" }
func (CommandSucceeded) EventType() string { return "COMMAND_SUCCEEDED" }
func (CommandFailed) EventType() string    { return "COMMAND_FAILED" }

// Transfer saga stream events.

type TransferStarted struct {
	TransferID    uuid.UUID `json:"transfer_id"`
	SourceID      uuid.UUID `json:"source_id"`
	DestinationID uuid.UUID `json:"destination_id"`
	AmountCents   int64     `json:"amount_cents"`
}

type TransferDebited struct {
	TransferID uuid.UUID `json:"transfer_id"`
}

type TransferCredited struct {
	TransferID uuid.UUID `json:"transfer_id"`
}

type TransferCompleted struct {
	TransferID uuid.UUID `json:"transfer_id"`
}

type TransferCompensated struct {
	TransferID uuid.UUID `json:"transfer_id"`
	Reason     string    `json:"reason"`
}

type TransferFailed struct {
	TransferID uuid.UUID `json:"transfer_id"`
	Reason     string    `json:"reason"`
}

type TransferStuck struct {
	TransferID uuid.UUID `json:"transfer_id"`
	Reason     string    `json:"reason"`
}

func (TransferStarted) EventType() string     { return "TRANSFER_STARTED" }
func (TransferDebited) EventType() string     { return "TRANSFER_DEBITED" }
func (TransferCredited) EventType() string    { return "TRANSFER_CREDITED" }
func (TransferCompleted) EventType() string   { return "TRANSFER_COMPLETED" }
func (TransferCompensated) EventType() string { return "TRANSFER_COMPENSATED" }
func (TransferFailed) EventType() string      { return "TRANSFER_FAILED" }
func (TransferStuck) EventType() string       { return "TRANSFER_STUCK" }

// EncodeEvent marshals a domain event for storage.
func EncodeEvent(ev Event) (eventType string, payload []byte, err error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return "", nil, err
	}
	return ev.EventType(), b, nil
}

func decode[T Event](payload []byte) (Event, error) {
	var ev T
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// DecodeEvent is the inverse of EncodeEvent. Events decode to their value
// form, so consumers type-switch on value types.
func DecodeEvent(eventType string, payload []byte) (Event, error) {
	switch eventType {
	case "ACCOUNT_OPENED":
		return decode[AccountOpened](payload)
	case "TRANSACTION_APPENDED":
		return decode[TransactionAppended](payload)
	case "OVERDRAFT_LIMIT_SET":
		return decode[OverdraftLimitSet](payload)
	case "ACCOUNT_CLOSED":
		return decode[AccountClosed](payload)
	case "COMMAND_CREATED":
		return decode[CommandCreated](payload)
	case "COMMAND_SUCCEEDED":
		return decode[CommandSucceeded](payload)
	case "COMMAND_FAILED":
		return decode[CommandFailed](payload)
	case "TRANSFER_STARTED":
		return decode[TransferStarted](payload)
	case "TRANSFER_DEBITED":
		return decode[TransferDebited](payload)
	case "TRANSFER_CREDITED":
		return decode[TransferCredited](payload)
	case "TRANSFER_COMPLETED":
		return decode[TransferCompleted](payload)
	case "TRANSFER_COMPENSATED":
		return decode[TransferCompensated](payload)
	case "TRANSFER_FAILED":
		return decode[TransferFailed](payload)
	case "TRANSFER_STUCK":
		return decode[TransferStuck](payload)
	default:
		return nil, fmt.Errorf("%w: unknown event type %q", ErrValidation, eventType)
	}
}
