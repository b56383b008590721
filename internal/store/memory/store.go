// Package memory is an in-process implementation of the account and ledger
// stores plus a transaction runner. It backs engine tests and DB-less local
// runs with the same semantics as the SQL stores: serialized transactions,
// rollback on error, append-only entries returned by copy.
package memory

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"credits/internal/store"
)

type Store struct {
	mu       sync.Mutex
	txMu     sync.Mutex
	accounts map[string]store.Account
	entries  []store.LedgerEntry
	byKey    map[string]int
}

func NewStore() *Store {
	return &Store{
		accounts: make(map[string]store.Account),
		byKey:    make(map[string]int),
	}
}

// WithTx serializes callers and restores the pre-transaction state when fn
// fails, so a partial mutation is never observable. The *sqlx.Tx handed to
// fn is nil; the memory store methods ignore their tx parameters.
func (s *Store) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	snap := s.capture()
	if err := fn(nil); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type memSnapshot struct {
	accounts map[string]store.Account
	entries  []store.LedgerEntry
	byKey    map[string]int
}

func (s *Store) capture() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	accounts := make(map[string]store.Account, len(s.accounts))
	for id, account := range s.accounts {
		accounts[id] = cloneAccount(account)
	}
	entries := make([]store.LedgerEntry, len(s.entries))
	copy(entries, s.entries)
	byKey := make(map[string]int, len(s.byKey))
	for k, v := range s.byKey {
		byKey[k] = v
	}
	return memSnapshot{accounts: accounts, entries: entries, byKey: byKey}
}

func (s *Store) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = snap.accounts
	s.entries = snap.entries
	s.byKey = snap.byKey
}

func (s *Store) Create(ctx context.Context, account store.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.ID] = cloneAccount(account)
	return nil
}

func (s *Store) GetByID(ctx context.Context, accountID string) (store.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[accountID]
	if !ok {
		return store.Account{}, sql.ErrNoRows
	}
	return cloneAccount(account), nil
}

func (s *Store) GetForUpdate(ctx context.Context, _ store.Getter, accountID string) (store.Account, error) {
	return s.GetByID(ctx, accountID)
}

func (s *Store) UpdateBalance(ctx context.Context, _ store.Execer, accountID string, balance int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[accountID]
	if !ok {
		return sql.ErrNoRows
	}
	account.Balance = balance
	account.UpdatedAt = store.NewTimestamp(at)
	s.accounts[accountID] = account
	return nil
}

func (s *Store) ListIDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.accounts))
	for id := range s.accounts {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Store) Insert(ctx context.Context, _ store.Execer, entry store.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	if entry.IdempotencyKey != nil {
		s.byKey[dedupKey(entry.AccountID, *entry.IdempotencyKey)] = len(s.entries) - 1
	}
	return nil
}

func (s *Store) GetByIdempotencyKey(ctx context.Context, _ store.Getter, accountID, key string) (store.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.byKey[dedupKey(accountID, key)]
	if !ok {
		return store.LedgerEntry{}, sql.ErrNoRows
	}
	return s.entries[idx], nil
}

func (s *Store) DaySpend(ctx context.Context, _ store.Getter, accountID, action string, from, to time.Time) (store.DaySpend, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var spend store.DaySpend
	for _, entry := range s.entries {
		if entry.AccountID != accountID || entry.Kind != store.KindDebit {
			continue
		}
		at := entry.CreatedAt.Time
		if at.Before(from) || !at.Before(to) {
			continue
		}
		spend.Total += entry.Amount
		if entry.Action != nil && *entry.Action == action {
			spend.ForAction += entry.Amount
		}
	}
	return spend, nil
}

func (s *Store) NetSum(ctx context.Context, accountID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum int64
	for _, entry := range s.entries {
		if entry.AccountID != accountID {
			continue
		}
		if entry.Kind == store.KindCredit {
			sum += entry.Amount
		} else {
			sum -= entry.Amount
		}
	}
	return sum, nil
}

func (s *Store) List(ctx context.Context, accountID string, filter store.ListFilter) ([]store.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []store.LedgerEntry
	for i := len(s.entries) - 1; i >= 0; i-- {
		entry := s.entries[i]
		if entry.AccountID != accountID {
			continue
		}
		if filter.Day != nil {
			dayStart := filter.Day.UTC().Truncate(24 * time.Hour)
			at := entry.CreatedAt.Time
			if at.Before(dayStart) || !at.Before(dayStart.Add(24*time.Hour)) {
				continue
			}
		}
		if filter.ReferenceType != "" {
			if entry.ReferenceType == nil || *entry.ReferenceType != filter.ReferenceType {
				continue
			}
			if entry.ReferenceID == nil || *entry.ReferenceID != filter.ReferenceID {
				continue
			}
		}
		matched = append(matched, entry)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *Store) Recent(ctx context.Context, accountID string, limit int) ([]store.LedgerEntry, error) {
	return s.List(ctx, accountID, store.ListFilter{Limit: limit})
}

func cloneAccount(account store.Account) store.Account {
	rules := make(store.RuleSet, len(account.Rules))
	for action, rule := range account.Rules {
		if rule.DailyCap != nil {
			capped := *rule.DailyCap
			rule.DailyCap = &capped
		}
		rules[action] = rule
	}
	account.Rules = rules
	return account
}

func dedupKey(accountID, key string) string {
	return accountID + "\x00" + key
}
