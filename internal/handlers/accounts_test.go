package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"credits/internal/snapshot"
	"credits/internal/store"
)

func TestCreateAccountOpensAtZero(t *testing.T) {
	var created store.Account
	accounts := stubAccountStore{
		createFn: func(_ context.Context, account store.Account) error {
			created = account
			return nil
		},
	}
	router := newTestHandler(stubWalletService{}, accounts, stubLedgerStore{}, nil)

	body := `{"owner_id": "owner-1", "daily_limit": 50, "rules": {"boost_24h": {"enabled": true}}}`
	req := httptest.NewRequest(http.MethodPost, "/accounts", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	if created.Balance != 0 {
		t.Fatalf("balance = %d, new accounts must open at zero", created.Balance)
	}
	if created.OwnerKind != "provider" || created.Currency != "credits" {
		t.Fatalf("defaults not applied: %+v", created)
	}
	if created.ID == "" || created.DailyLimit != 50 {
		t.Fatalf("unexpected account: %+v", created)
	}
	if !created.Rules["boost_24h"].Enabled {
		t.Fatalf("rules not carried: %+v", created.Rules)
	}
}

func TestCreateAccountRequiresOwner(t *testing.T) {
	router := newTestHandler(stubWalletService{}, stubAccountStore{}, stubLedgerStore{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/accounts", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetAccountServesMemoizedSnapshot(t *testing.T) {
	projector := snapshot.New(20)
	projector.Prime(store.Account{ID: "acc-1", Balance: 90}, nil)

	accounts := stubAccountStore{
		getByIDFn: func(context.Context, string) (store.Account, error) {
			t.Fatal("store hit despite a warm projector")
			return store.Account{}, nil
		},
	}
	router := newTestHandler(stubWalletService{}, accounts, stubLedgerStore{}, projector)

	req := httptest.NewRequest(http.MethodGet, "/accounts/acc-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var payload struct {
		OK       bool              `json:"ok"`
		Snapshot snapshot.Snapshot `json:"snapshot"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Snapshot.Account.Balance != 90 {
		t.Fatalf("unexpected snapshot: %+v", payload.Snapshot)
	}
}

func TestGetAccountColdStartPrimesProjector(t *testing.T) {
	projector := snapshot.New(20)
	accounts := stubAccountStore{
		getByIDFn: func(_ context.Context, accountID string) (store.Account, error) {
			return store.Account{ID: accountID, Balance: 75}, nil
		},
	}
	ledger := stubLedgerStore{
		recentFn: func(_ context.Context, accountID string, limit int) ([]store.LedgerEntry, error) {
			return []store.LedgerEntry{{ID: "e1", AccountID: accountID}}, nil
		},
	}
	router := newTestHandler(stubWalletService{}, accounts, ledger, projector)

	req := httptest.NewRequest(http.MethodGet, "/accounts/acc-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	snap, ok := projector.Snapshot("acc-1")
	if !ok {
		t.Fatal("projector not primed")
	}
	if snap.Account.Balance != 75 || len(snap.RecentEntries) != 1 {
		t.Fatalf("unexpected primed snapshot: %+v", snap)
	}
}

func TestGetAccountNotFound(t *testing.T) {
	router := newTestHandler(stubWalletService{}, stubAccountStore{}, stubLedgerStore{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/accounts/ghost", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestListLedgerParsesFilters(t *testing.T) {
	var captured store.ListFilter
	ledger := stubLedgerStore{
		listFn: func(_ context.Context, _ string, filter store.ListFilter) ([]store.LedgerEntry, error) {
			captured = filter
			return nil, nil
		},
	}
	router := newTestHandler(stubWalletService{}, stubAccountStore{}, ledger, nil)

	req := httptest.NewRequest(http.MethodGet, "/accounts/acc-1/ledger?day=2025-06-15&reference_type=listing&reference_id=lst-1&limit=10&offset=5", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if captured.Day == nil || !captured.Day.Equal(time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("day filter not parsed: %v", captured.Day)
	}
	if captured.ReferenceType != "listing" || captured.ReferenceID != "lst-1" {
		t.Fatalf("reference filter not parsed: %+v", captured)
	}
	if captured.Limit != 10 || captured.Offset != 5 {
		t.Fatalf("pagination not parsed: %+v", captured)
	}

	var payload struct {
		Entries []store.LedgerEntry `json:"entries"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Entries == nil {
		t.Fatal("entries should encode as an empty array, not null")
	}
}

func TestListLedgerRejectsBadDay(t *testing.T) {
	router := newTestHandler(stubWalletService{}, stubAccountStore{}, stubLedgerStore{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/accounts/acc-1/ledger?day=15-06-2025", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
