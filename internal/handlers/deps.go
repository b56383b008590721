package handlers

import (
	"context"

	"credits/internal/services"
	"credits/internal/snapshot"
	"credits/internal/store"
)

type WalletService interface {
	Spend(ctx context.Context, req services.SpendRequest) (services.Result, error)
	Recharge(ctx context.Context, req services.RechargeRequest) (services.Result, error)
}

type AccountStore interface {
	Create(ctx context.Context, account store.Account) error
	GetByID(ctx context.Context, accountID string) (store.Account, error)
}

type LedgerStore interface {
	List(ctx context.Context, accountID string, filter store.ListFilter) ([]store.LedgerEntry, error)
	Recent(ctx context.Context, accountID string, limit int) ([]store.LedgerEntry, error)
}

type SnapshotSource interface {
	Snapshot(accountID string) (*snapshot.Snapshot, bool)
	Prime(account store.Account, entries []store.LedgerEntry)
}
