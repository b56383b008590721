// Package snapshot maintains memoized, change-detectable views of account
// plus recent ledger state. Subscribers get a stable, pointer-equal
// snapshot as long as the underlying account and ledger have not moved, so
// downstream consumers can dirty-check with a single comparison.
package snapshot

import (
	"sync"

	"credits/internal/store"
)

type Snapshot struct {
	Account       store.Account       `json:"account"`
	RecentEntries []store.LedgerEntry `json:"recent_entries"`
	LowBalance    bool                `json:"low_balance"`
}

type Subscriber func(*Snapshot)

type accountState struct {
	account store.Account
	entries []store.LedgerEntry // newest first
	snap    *Snapshot
	dirty   bool
}

type Projector struct {
	mu     sync.Mutex
	keep   int
	states map[string]*accountState
	subs   []Subscriber
}

func New(keep int) *Projector {
	if keep <= 0 {
		keep = 20
	}
	return &Projector{
		keep:   keep,
		states: make(map[string]*accountState),
	}
}

// Subscribe registers a synchronous observer of committed changes.
// Subscribers run on the caller's goroutine, after commit, in registration
// order; there is no batching.
func (p *Projector) Subscribe(fn Subscriber) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs = append(p.subs, fn)
}

// Prime seeds the projector with state read from the stores. It does not
// publish: nothing changed, the projector merely learned about it.
func (p *Projector) Prime(account store.Account, entries []store.LedgerEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(entries) > p.keep {
		entries = entries[:p.keep]
	}
	p.states[account.ID] = &accountState{
		account: account,
		entries: entries,
		dirty:   true,
	}
}

// Record folds one committed mutation into the projection and publishes the
// rebuilt snapshot to every subscriber.
func (p *Projector) Record(account store.Account, entry store.LedgerEntry) {
	p.mu.Lock()
	st, ok := p.states[account.ID]
	if !ok {
		st = &accountState{}
		p.states[account.ID] = st
	}
	st.account = account
	st.entries = append([]store.LedgerEntry{entry}, st.entries...)
	if len(st.entries) > p.keep {
		st.entries = st.entries[:p.keep]
	}
	st.dirty = true
	snap := p.rebuildLocked(st)
	subs := make([]Subscriber, len(p.subs))
	copy(subs, p.subs)
	p.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

// Snapshot returns the memoized view for an account. The same pointer comes
// back until the next Record or Prime touches the account.
func (p *Projector) Snapshot(accountID string) (*Snapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.states[accountID]
	if !ok {
		return nil, false
	}
	return p.rebuildLocked(st), true
}

func (p *Projector) rebuildLocked(st *accountState) *Snapshot {
	if !st.dirty && st.snap != nil {
		return st.snap
	}
	entries := make([]store.LedgerEntry, len(st.entries))
	copy(entries, st.entries)
	st.snap = &Snapshot{
		Account:       st.account,
		RecentEntries: entries,
		LowBalance:    st.account.Balance < st.account.LowBalanceThreshold,
	}
	st.dirty = false
	return st.snap
}
