package store

import (
	"context"
	"strconv"
	"time"
)

type LedgerStore struct {
	db DB
}

func NewLedgerStore(db DB) *LedgerStore {
	return &LedgerStore{db: db}
}

const entryColumns = `id, account_id, kind, amount, balance_after, action, description, reference_type, reference_id, idempotency_key, created_at`

// Insert appends one entry. There is no update or delete path: the table is
// the audit trail.
func (s *LedgerStore) Insert(ctx context.Context, tx Execer, entry LedgerEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (`+entryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, entry.ID, entry.AccountID, entry.Kind, entry.Amount, entry.BalanceAfter, entry.Action,
		entry.Description, entry.ReferenceType, entry.ReferenceID, entry.IdempotencyKey, entry.CreatedAt)
	return err
}

// GetByIdempotencyKey answers the dedup lookup through the partial unique
// index on (account_id, idempotency_key). Returns sql.ErrNoRows when the
// key has not been seen for this account.
func (s *LedgerStore) GetByIdempotencyKey(ctx context.Context, q Getter, accountID, key string) (LedgerEntry, error) {
	var row LedgerEntry
	err := q.GetContext(ctx, &row, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE account_id = $1 AND idempotency_key = $2
	`, accountID, key)
	if err != nil {
		return LedgerEntry{}, err
	}
	return row, nil
}

// DaySpend sums the debits recorded for the account inside [from, to), both
// in total and for one action. Runs tx-scoped so the daily-cap check sees
// every entry the lock holder could conflict with.
func (s *LedgerStore) DaySpend(ctx context.Context, q Getter, accountID, action string, from, to time.Time) (DaySpend, error) {
	var row DaySpend
	err := q.GetContext(ctx, &row, `
		SELECT COALESCE(SUM(amount), 0) AS total,
		       COALESCE(SUM(amount) FILTER (WHERE action = $2), 0) AS for_action
		FROM ledger_entries
		WHERE account_id = $1 AND kind = 'debit' AND created_at >= $3 AND created_at < $4
	`, accountID, action, from, to)
	if err != nil {
		return DaySpend{}, err
	}
	return row, nil
}

// NetSum is credits minus debits over the full ledger, used by the
// reconciliation job to cross-check the cached account balance.
func (s *LedgerStore) NetSum(ctx context.Context, accountID string) (int64, error) {
	var sum int64
	err := s.db.GetContext(ctx, &sum, `
		SELECT COALESCE(SUM(CASE WHEN kind = 'credit' THEN amount ELSE -amount END), 0)
		FROM ledger_entries
		WHERE account_id = $1
	`, accountID)
	return sum, err
}

// ListFilter narrows List to one UTC calendar day and/or one reference.
type ListFilter struct {
	Day           *time.Time
	ReferenceType string
	ReferenceID   string
	Limit         int
	Offset        int
}

func (s *LedgerStore) List(ctx context.Context, accountID string, filter ListFilter) ([]LedgerEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE account_id = $1`
	args := []any{accountID}
	if filter.Day != nil {
		dayStart := filter.Day.UTC().Truncate(24 * time.Hour)
		args = append(args, dayStart, dayStart.Add(24*time.Hour))
		query += ` AND created_at >= $2 AND created_at < $3`
	}
	if filter.ReferenceType != "" {
		args = append(args, filter.ReferenceType, filter.ReferenceID)
		query += ` AND reference_type = $` + strconv.Itoa(len(args)-1) + ` AND reference_id = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC, id DESC`
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)
	query += ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	var rows []LedgerEntry
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

// Recent returns the newest entries for an account, newest first.
func (s *LedgerStore) Recent(ctx context.Context, accountID string, limit int) ([]LedgerEntry, error) {
	var rows []LedgerEntry
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

