package store

import (
	"context"
	"time"
)

type AccountStore struct {
	db DB
}

func NewAccountStore(db DB) *AccountStore {
	return &AccountStore{db: db}
}

func (s *AccountStore) Create(ctx context.Context, account Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, owner_id, owner_kind, balance, currency, low_balance_threshold, daily_limit, rules, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, account.ID, account.OwnerID, account.OwnerKind, account.Balance, account.Currency,
		account.LowBalanceThreshold, account.DailyLimit, account.Rules, account.CreatedAt, account.UpdatedAt)
	return err
}

func (s *AccountStore) GetByID(ctx context.Context, accountID string) (Account, error) {
	var row Account
	err := s.db.GetContext(ctx, &row, `
		SELECT id, owner_id, owner_kind, balance, currency, low_balance_threshold, daily_limit, rules, created_at, updated_at
		FROM accounts
		WHERE id = $1
	`, accountID)
	if err != nil {
		return Account{}, err
	}
	return row, nil
}

// GetForUpdate locks the account row for the rest of the transaction so the
// balance check and the paired ledger append act on one consistent state.
func (s *AccountStore) GetForUpdate(ctx context.Context, tx Getter, accountID string) (Account, error) {
	var row Account
	err := tx.GetContext(ctx, &row, `
		SELECT id, owner_id, owner_kind, balance, currency, low_balance_threshold, daily_limit, rules, created_at, updated_at
		FROM accounts
		WHERE id = $1
		FOR UPDATE
	`, accountID)
	if err != nil {
		return Account{}, err
	}
	return row, nil
}

func (s *AccountStore) UpdateBalance(ctx context.Context, tx Execer, accountID string, balance int64, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = $1, updated_at = $2
		WHERE id = $3
	`, balance, at, accountID)
	return err
}

func (s *AccountStore) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `
		SELECT id FROM accounts ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	return ids, nil
}
