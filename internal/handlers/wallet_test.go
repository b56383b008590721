package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"credits/internal/config"
	"credits/internal/receipt"
	"credits/internal/policy"
	"credits/internal/services"
	"credits/internal/snapshot"
	"credits/internal/store"
	"credits/internal/websocket"
)

type stubWalletService struct {
	spendFn    func(ctx context.Context, req services.SpendRequest) (services.Result, error)
	rechargeFn func(ctx context.Context, req services.RechargeRequest) (services.Result, error)
}

func (s stubWalletService) Spend(ctx context.Context, req services.SpendRequest) (services.Result, error) {
	return s.spendFn(ctx, req)
}

func (s stubWalletService) Recharge(ctx context.Context, req services.RechargeRequest) (services.Result, error) {
	return s.rechargeFn(ctx, req)
}

type stubAccountStore struct {
	createFn  func(ctx context.Context, account store.Account) error
	getByIDFn func(ctx context.Context, accountID string) (store.Account, error)
}

func (s stubAccountStore) Create(ctx context.Context, account store.Account) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, account)
}

func (s stubAccountStore) GetByID(ctx context.Context, accountID string) (store.Account, error) {
	if s.getByIDFn == nil {
		return store.Account{}, sql.ErrNoRows
	}
	return s.getByIDFn(ctx, accountID)
}

type stubLedgerStore struct {
	listFn   func(ctx context.Context, accountID string, filter store.ListFilter) ([]store.LedgerEntry, error)
	recentFn func(ctx context.Context, accountID string, limit int) ([]store.LedgerEntry, error)
}

func (s stubLedgerStore) List(ctx context.Context, accountID string, filter store.ListFilter) ([]store.LedgerEntry, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, accountID, filter)
}

func (s stubLedgerStore) Recent(ctx context.Context, accountID string, limit int) ([]store.LedgerEntry, error) {
	if s.recentFn == nil {
		return nil, nil
	}
	return s.recentFn(ctx, accountID, limit)
}

func newTestHandler(service WalletService, accounts AccountStore, ledger LedgerStore, projector SnapshotSource) http.Handler {
	if projector == nil {
		projector = snapshot.New(20)
	}
	h := New(config.Config{
		AllowedOrigins:  "*",
		SnapshotEntries: 20,
		CreditUnitPrice: decimal.RequireFromString("0.10"),
		PriceCurrency:   "EUR",
	}, zerolog.Nop(), service, accounts, ledger, projector, websocket.NewHub())
	return h.Routes()
}

type envelope struct {
	OK          bool               `json:"ok"`
	Transaction *store.LedgerEntry `json:"transaction"`
	Balance     int64              `json:"balance"`
	Duplicate   bool               `json:"duplicate"`
	Receipt     *receipt.Receipt   `json:"receipt"`
	Error       *struct {
		Kind string          `json:"kind"`
		Meta json.RawMessage `json:"meta"`
	} `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return env
}

func TestSpendSuccess(t *testing.T) {
	var captured services.SpendRequest
	action := "boost_24h"
	service := stubWalletService{
		spendFn: func(_ context.Context, req services.SpendRequest) (services.Result, error) {
			captured = req
			return services.Result{
				Entry:   store.LedgerEntry{ID: "e1", AccountID: req.AccountID, Kind: store.KindDebit, Amount: req.Amount, BalanceAfter: 90, Action: &action},
				Account: store.Account{ID: req.AccountID, Balance: 90},
			}, nil
		},
	}
	router := newTestHandler(service, stubAccountStore{}, stubLedgerStore{}, nil)

	body := `{"amount": 10, "action": "boost_24h", "reference_type": "listing", "reference_id": "lst-1"}`
	req := httptest.NewRequest(http.MethodPost, "/accounts/acc-1/spend", strings.NewReader(body))
	req.Header.Set("Idempotency-Key", "key-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	if captured.AccountID != "acc-1" || captured.Amount != 10 || captured.Action != "boost_24h" {
		t.Fatalf("unexpected request to service: %+v", captured)
	}
	if captured.IdempotencyKey != "key-1" {
		t.Fatalf("idempotency key not forwarded: %q", captured.IdempotencyKey)
	}
	env := decode(t, rec)
	if !env.OK || env.Balance != 90 || env.Duplicate {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if env.Transaction == nil || env.Transaction.ID != "e1" {
		t.Fatalf("unexpected transaction: %+v", env.Transaction)
	}
}

func TestSpendDuplicateReplaysWith200(t *testing.T) {
	service := stubWalletService{
		spendFn: func(_ context.Context, req services.SpendRequest) (services.Result, error) {
			return services.Result{
				Entry:     store.LedgerEntry{ID: "e1", AccountID: req.AccountID},
				Account:   store.Account{ID: req.AccountID, Balance: 90},
				Duplicate: true,
			}, nil
		},
	}
	router := newTestHandler(service, stubAccountStore{}, stubLedgerStore{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/accounts/acc-1/spend", strings.NewReader(`{"amount": 10, "action": "boost_24h"}`))
	req.Header.Set("Idempotency-Key", "key-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for replay", rec.Code)
	}
	env := decode(t, rec)
	if !env.Duplicate {
		t.Fatal("duplicate flag not set")
	}
}

func TestSpendDailyLimitExceeded(t *testing.T) {
	service := stubWalletService{
		spendFn: func(_ context.Context, _ services.SpendRequest) (services.Result, error) {
			return services.Result{}, &policy.DailyLimitError{DailyLimit: 50, SpentToday: 45}
		},
	}
	router := newTestHandler(service, stubAccountStore{}, stubLedgerStore{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/accounts/acc-1/spend", strings.NewReader(`{"amount": 10, "action": "boost_24h"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	env := decode(t, rec)
	if env.OK || env.Error == nil || env.Error.Kind != "DailyLimitExceeded" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	var meta struct {
		DailyLimit int64 `json:"dailyLimit"`
		SpentToday int64 `json:"spentToday"`
	}
	if err := json.Unmarshal(env.Error.Meta, &meta); err != nil {
		t.Fatalf("decode meta: %v", err)
	}
	if meta.DailyLimit != 50 || meta.SpentToday != 45 {
		t.Fatalf("unexpected meta: %+v", meta)
	}
}

func TestSpendErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"invalid amount", policy.ErrInvalidAmount, http.StatusBadRequest, "InvalidAmount"},
		{"rule disabled", policy.ErrRuleDisabled, http.StatusUnprocessableEntity, "RuleDisabled"},
		{"insufficient balance", policy.ErrInsufficientBalance, http.StatusUnprocessableEntity, "InsufficientBalance"},
		{"account missing", services.ErrAccountNotFound, http.StatusNotFound, "AccountNotFound"},
		{"storage down", services.ErrPersistenceFailure, http.StatusServiceUnavailable, "PersistenceFailure"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			service := stubWalletService{
				spendFn: func(_ context.Context, _ services.SpendRequest) (services.Result, error) {
					return services.Result{}, tc.err
				},
			}
			router := newTestHandler(service, stubAccountStore{}, stubLedgerStore{}, nil)

			req := httptest.NewRequest(http.MethodPost, "/accounts/acc-1/spend", strings.NewReader(`{"amount": 10, "action": "boost_24h"}`))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			env := decode(t, rec)
			if env.Error == nil || env.Error.Kind != tc.kind {
				t.Fatalf("unexpected error body: %+v", env.Error)
			}
		})
	}
}

func TestSpendRejectsMissingAction(t *testing.T) {
	service := stubWalletService{
		spendFn: func(_ context.Context, _ services.SpendRequest) (services.Result, error) {
			t.Fatal("service reached without an action")
			return services.Result{}, nil
		},
	}
	router := newTestHandler(service, stubAccountStore{}, stubLedgerStore{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/accounts/acc-1/spend", strings.NewReader(`{"amount": 10}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRechargeSuccess(t *testing.T) {
	var captured services.RechargeRequest
	issued := store.NewTimestamp(time.Date(2025, 6, 15, 9, 30, 0, 0, time.UTC))
	service := stubWalletService{
		rechargeFn: func(_ context.Context, req services.RechargeRequest) (services.Result, error) {
			captured = req
			return services.Result{
				Entry: store.LedgerEntry{
					ID: "c1d2e3f4-0000-0000-0000-000000000000", AccountID: req.AccountID,
					Kind: store.KindCredit, Amount: req.Amount, BalanceAfter: 150, CreatedAt: issued,
				},
				Account: store.Account{ID: req.AccountID, OwnerID: "owner-1", Balance: 150},
			}, nil
		},
	}
	router := newTestHandler(service, stubAccountStore{}, stubLedgerStore{}, nil)

	body := `{"amount": 50, "source": "stripe", "reference_id": "pay-9"}`
	req := httptest.NewRequest(http.MethodPost, "/accounts/acc-1/recharge", strings.NewReader(body))
	req.Header.Set("Idempotency-Key", "pay-9")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	if captured.Source != "stripe" || captured.IdempotencyKey != "pay-9" {
		t.Fatalf("unexpected request: %+v", captured)
	}
	env := decode(t, rec)
	if env.Balance != 150 {
		t.Fatalf("balance = %d, want 150", env.Balance)
	}
	if env.Receipt == nil {
		t.Fatal("recharge response missing receipt")
	}
	if env.Receipt.Number != "RCP-20250615-c1d2e3f4" {
		t.Fatalf("receipt number = %q", env.Receipt.Number)
	}
	// 50 credits at 0.10 EUR each.
	if env.Receipt.Total != "5.00" || env.Receipt.UnitPrice != "0.10" || env.Receipt.Currency != "EUR" {
		t.Fatalf("unexpected receipt: %+v", env.Receipt)
	}
	if env.Receipt.Credits != 50 || env.Receipt.OwnerID != "owner-1" {
		t.Fatalf("unexpected receipt: %+v", env.Receipt)
	}
}
