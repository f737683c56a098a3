package httpapi

import "github.com/google/uuid"

type OpenAccountRequest struct {
	OverdraftLimit string `json:"overdraft_limit,omitempty"`
}

type OpenAccountResponse struct {
	AccountID uuid.UUID `json:"account_id"`
}

type BalanceResponse struct {
	AccountID uuid.UUID `json:"account_id"`
	Balance   string    `json:"balance"`
	Closed    bool      `json:"closed,omitempty"`
}

type OverdraftRequest struct {
	Limit string `json:"limit"`
}

type AdjustmentRequest struct {
	AccountID uuid.UUID `json:"account_id"`
	Amount    string    `json:"amount"`
}

type TransferRequest struct {
	SourceID      uuid.UUID `json:"source_id"`
	DestinationID uuid.UUID `json:"destination_id"`
	Amount        string    `json:"amount"`
}

type CommandResponse struct {
	CommandID uuid.UUID `json:"command_id"`
}

type CommandStatusResponse struct {
	CommandID uuid.UUID `json:"command_id"`
	Kind      string    `json:"kind"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
}

type TransferStatusResponse struct {
	TransferID    uuid.UUID `json:"transfer_id"`
	SourceID      uuid.UUID `json:"source_id"`
	DestinationID uuid.UUID `json:"destination_id"`
	Amount        string    `json:"amount"`
	Phase         string    `json:"phase"`
	Reason        string    `json:"reason,omitempty"`
}
