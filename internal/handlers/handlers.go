package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"credits/internal/policy"
	"credits/internal/services"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorBody struct {
	Kind string `json:"kind"`
	Meta any    `json:"meta,omitempty"`
}

func respondError(w http.ResponseWriter, status int, kind string, meta any) {
	respondJSON(w, status, map[string]any{
		"ok":    false,
		"error": errorBody{Kind: kind, Meta: meta},
	})
}

// respondWalletError maps the engine taxonomy onto the wire. Business
// denials are 4xx with distinct kinds; only PersistenceFailure signals a
// retryable fault.
func respondWalletError(w http.ResponseWriter, err error) {
	var limitErr *policy.DailyLimitError
	switch {
	case errors.Is(err, policy.ErrInvalidAmount):
		respondError(w, http.StatusBadRequest, "InvalidAmount", nil)
	case errors.As(err, &limitErr):
		respondError(w, http.StatusUnprocessableEntity, "DailyLimitExceeded", map[string]int64{
			"dailyLimit": limitErr.DailyLimit,
			"spentToday": limitErr.SpentToday,
		})
	case errors.Is(err, policy.ErrRuleDisabled):
		respondError(w, http.StatusUnprocessableEntity, "RuleDisabled", nil)
	case errors.Is(err, policy.ErrInsufficientBalance):
		respondError(w, http.StatusUnprocessableEntity, "InsufficientBalance", nil)
	case errors.Is(err, services.ErrAccountNotFound):
		respondError(w, http.StatusNotFound, "AccountNotFound", nil)
	case errors.Is(err, services.ErrPersistenceFailure):
		respondError(w, http.StatusServiceUnavailable, "PersistenceFailure", nil)
	default:
		respondError(w, http.StatusInternalServerError, "InternalError", nil)
	}
}
