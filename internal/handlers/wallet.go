package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"credits/internal/receipt"
	"credits/internal/services"
)

type spendRequest struct {
	Amount        int64  `json:"amount"`
	Action        string `json:"action"`
	ReferenceType string `json:"reference_type"`
	ReferenceID   string `json:"reference_id"`
}

type rechargeRequest struct {
	Amount      int64  `json:"amount"`
	Source      string `json:"source"`
	ReferenceID string `json:"reference_id"`
}

// The idempotency key travels as a header, separate from the body, so
// intermediary layers can deduplicate at the transport level too.
const idempotencyHeader = "Idempotency-Key"

func (h *Handler) Spend(w http.ResponseWriter, r *http.Request) {
	var req spendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "InvalidRequest", "invalid payload")
		return
	}
	if req.Action == "" {
		respondError(w, http.StatusBadRequest, "InvalidRequest", "action is required")
		return
	}
	result, err := h.service.Spend(r.Context(), services.SpendRequest{
		AccountID:      chi.URLParam(r, "id"),
		Amount:         req.Amount,
		Action:         req.Action,
		ReferenceType:  req.ReferenceType,
		ReferenceID:    req.ReferenceID,
		IdempotencyKey: r.Header.Get(idempotencyHeader),
	})
	if err != nil {
		respondWalletError(w, err)
		return
	}
	respondResult(w, result)
}

func (h *Handler) Recharge(w http.ResponseWriter, r *http.Request) {
	var req rechargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "InvalidRequest", "invalid payload")
		return
	}
	result, err := h.service.Recharge(r.Context(), services.RechargeRequest{
		AccountID:      chi.URLParam(r, "id"),
		Amount:         req.Amount,
		Source:         req.Source,
		ReferenceID:    req.ReferenceID,
		IdempotencyKey: r.Header.Get(idempotencyHeader),
	})
	if err != nil {
		respondWalletError(w, err)
		return
	}
	// Recharge responses carry a rendered receipt; replays re-render the
	// original entry, which is pure and yields the same document.
	respondJSON(w, resultStatus(result), map[string]any{
		"ok":          true,
		"transaction": result.Entry,
		"balance":     result.Account.Balance,
		"duplicate":   result.Duplicate,
		"receipt":     receipt.Render(result.Account, result.Entry, h.cfg.CreditUnitPrice, h.cfg.PriceCurrency),
	})
}

func resultStatus(result services.Result) int {
	if result.Duplicate {
		return http.StatusOK
	}
	return http.StatusCreated
}

func respondResult(w http.ResponseWriter, result services.Result) {
	respondJSON(w, resultStatus(result), map[string]any{
		"ok":          true,
		"transaction": result.Entry,
		"balance":     result.Account.Balance,
		"duplicate":   result.Duplicate,
	})
}
