package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"bankaccounts/internal/app"
	"bankaccounts/internal/domain"
	"bankaccounts/internal/eventstore"
	"bankaccounts/internal/money"
)

type Handlers struct {
	accounts  *app.AccountService
	commands  *app.CommandService
	transfers *app.TransferManager
}

func NewHandlers(accounts *app.AccountService, commands *app.CommandService, transfers *app.TransferManager) *Handlers {
	return &Handlers{accounts: accounts, commands: commands, transfers: transfers}
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

func httpStatusForErr(err error) int {
	switch {
	case err == nil:
		return http.StatusOK

	// Domain / store semantic errors
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, eventstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, app.ErrIdempotencyConflict),
		errors.Is(err, domain.ErrInvalidStateTransition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrAccountClosed),
		errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrConstraintViolation):
		return http.StatusUnprocessableEntity

	// Context / timeouts
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout

	default:
		return http.StatusInternalServerError
	}
}

func publicErrMessage(code int, err error) string {
	// Don't leak internals on 5xx.
	if code >= 500 {
		return "internal error"
	}
	return err.Error()
}

func fail(w http.ResponseWriter, err error) {
	code := httpStatusForErr(err)
	writeErr(w, code, publicErrMessage(code, err))
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, name))
}

func reqCtx(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), 5*time.Second)
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (h *Handlers) OpenAccount(w http.ResponseWriter, r *http.Request) {
	var req OpenAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	var limit int64
	if req.OverdraftLimit != "" {
		var err error
		if limit, err = money.ParseCents(req.OverdraftLimit); err != nil {
			writeErr(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	ctx, cancel := reqCtx(r)
	defer cancel()

	id := uuid.New()
	if err := h.accounts.Open(ctx, id, limit); err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, OpenAccountResponse{AccountID: id})
}

func (h *Handlers) GetBalance(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid account id")
		return
	}

	ctx, cancel := reqCtx(r)
	defer cancel()

	acct, err := h.accounts.Get(ctx, id)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{
		AccountID: id,
		Balance:   money.FormatCents(acct.BalanceCents),
		Closed:    acct.Closed,
	})
}

func (h *Handlers) CloseAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid account id")
		return
	}

	ctx, cancel := reqCtx(r)
	defer cancel()

	if err := h.accounts.Close(ctx, id); err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

func (h *Handlers) SetOverdraft(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid account id")
		return
	}
	var req OverdraftRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	limit, err := money.ParseCents(req.Limit)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := reqCtx(r)
	defer cancel()

	if err := h.accounts.SetOverdraftLimit(ctx, id, limit); err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// submitAdjustment backs both deposit and withdraw: the command is durably
// created and 202 returned immediately; the outcome is observed via the
// command status endpoint.
func (h *Handlers) submitAdjustment(w http.ResponseWriter, r *http.Request, submit func(ctx context.Context, account uuid.UUID, cents int64) (uuid.UUID, error)) {
	var req AdjustmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	cents, err := money.ParseCents(req.Amount)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := reqCtx(r)
	defer cancel()

	id, err := submit(ctx, req.AccountID, cents)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, CommandResponse{CommandID: id})
}

func (h *Handlers) Deposit(w http.ResponseWriter, r *http.Request) {
	h.submitAdjustment(w, r, h.commands.Deposit)
}

func (h *Handlers) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.submitAdjustment(w, r, h.commands.Withdraw)
}

func (h *Handlers) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	cents, err := money.ParseCents(req.Amount)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := reqCtx(r)
	defer cancel()

	id, err := h.commands.Transfer(ctx, req.SourceID, req.DestinationID, cents)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, CommandResponse{CommandID: id})
}

func (h *Handlers) GetCommand(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid command id")
		return
	}

	ctx, cancel := reqCtx(r)
	defer cancel()

	cmd, err := h.commands.Get(ctx, id)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CommandStatusResponse{
		CommandID: cmd.ID,
		Kind:      string(cmd.Kind),
		Status:    string(cmd.Status),
		Reason:    cmd.Reason,
	})
}

func transferStatus(t *domain.Transfer) TransferStatusResponse {
	return TransferStatusResponse{
		TransferID:    t.ID,
		SourceID:      t.SourceID,
		DestinationID: t.DestinationID,
		Amount:        money.FormatCents(t.AmountCents),
		Phase:         string(t.Phase),
		Reason:        t.Reason,
	}
}

func (h *Handlers) GetTransfer(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid transfer id")
		return
	}

	ctx, cancel := reqCtx(r)
	defer cancel()

	saga, err := h.transfers.Get(ctx, id)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transferStatus(saga))
}

func (h *Handlers) ListStuckTransfers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := reqCtx(r)
	defer cancel()

	sagas, err := h.transfers.ListStuck(ctx)
	if err != nil {
		fail(w, err)
		return
	}
	out := make([]TransferStatusResponse, 0, len(sagas))
	for _, t := range sagas {
		out = append(out, transferStatus(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"stuck": out})
}
