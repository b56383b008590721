// Package events defines the best-effort sink invoked after a ledger entry
// commits. Sinks never participate in the transactional boundary: a failed
// publish is logged by the caller and never rolls back the entry.
package events

import (
	"context"

	"credits/internal/store"
)

// EntryCommitted is emitted once per committed ledger entry.
type EntryCommitted struct {
	Entry        store.LedgerEntry `json:"entry"`
	OwnerID      string            `json:"owner_id"`
	BalanceAfter int64             `json:"balance_after"`
	LowBalance   bool              `json:"low_balance"`
}

type Publisher interface {
	PublishEntry(ctx context.Context, event EntryCommitted) error
}

// Nop is used when no broker is configured.
type Nop struct{}

func (Nop) PublishEntry(context.Context, EntryCommitted) error { return nil }
