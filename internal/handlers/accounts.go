package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"credits/internal/store"
)

type createAccountRequest struct {
	OwnerID             string        `json:"owner_id"`
	OwnerKind           string        `json:"owner_kind"`
	Currency            string        `json:"currency"`
	LowBalanceThreshold int64         `json:"low_balance_threshold"`
	DailyLimit          int64         `json:"daily_limit"`
	Rules               store.RuleSet `json:"rules"`
}

// CreateAccount is the onboarding seam. Accounts open at zero and are
// funded through the recharge engine, so the balance always has a ledger
// trail; after creation they are mutated only through the wallet engines.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "InvalidRequest", "invalid payload")
		return
	}
	if req.OwnerID == "" {
		respondError(w, http.StatusBadRequest, "InvalidRequest", "owner_id is required")
		return
	}
	if req.OwnerKind == "" {
		req.OwnerKind = "provider"
	}
	if req.Currency == "" {
		req.Currency = "credits"
	}
	if req.Rules == nil {
		req.Rules = store.RuleSet{}
	}
	now := store.NewTimestamp(time.Now())
	account := store.Account{
		ID:                  uuid.NewString(),
		OwnerID:             req.OwnerID,
		OwnerKind:           req.OwnerKind,
		Balance:             0,
		Currency:            req.Currency,
		LowBalanceThreshold: req.LowBalanceThreshold,
		DailyLimit:          req.DailyLimit,
		Rules:               req.Rules,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := h.accounts.Create(r.Context(), account); err != nil {
		h.log.Error().Err(err).Str("owner_id", req.OwnerID).Msg("account create failed")
		respondError(w, http.StatusServiceUnavailable, "PersistenceFailure", nil)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"ok": true, "account": account})
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")
	if snap, ok := h.projector.Snapshot(accountID); ok {
		respondJSON(w, http.StatusOK, map[string]any{"ok": true, "snapshot": snap})
		return
	}
	account, err := h.accounts.GetByID(r.Context(), accountID)
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusNotFound, "AccountNotFound", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "PersistenceFailure", nil)
		return
	}
	entries, err := h.ledger.Recent(r.Context(), accountID, h.cfg.SnapshotEntries)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "PersistenceFailure", nil)
		return
	}
	h.projector.Prime(account, entries)
	snap, _ := h.projector.Snapshot(accountID)
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "snapshot": snap})
}

func (h *Handler) ListLedger(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")
	query := r.URL.Query()
	filter := store.ListFilter{
		ReferenceType: query.Get("reference_type"),
		ReferenceID:   query.Get("reference_id"),
		Limit:         parseInt(query.Get("limit"), 50),
		Offset:        parseInt(query.Get("offset"), 0),
	}
	if raw := query.Get("day"); raw != "" {
		day, err := time.Parse("2006-01-02", raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "InvalidRequest", "day must be YYYY-MM-DD")
			return
		}
		filter.Day = &day
	}
	entries, err := h.ledger.List(r.Context(), accountID, filter)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "PersistenceFailure", nil)
		return
	}
	if entries == nil {
		entries = []store.LedgerEntry{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "entries": entries})
}

func parseInt(raw string, fallback int) int {
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
