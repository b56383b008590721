package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

const (
	KindDebit  = "debit"
	KindCredit = "credit"
)

// timeLayout is RFC 3339 with fixed millisecond precision, so a persisted
// timestamp decodes back to the exact same instant.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// Timestamp is a time.Time that serializes with millisecond precision in
// both JSON and SQL round trips.
type Timestamp struct {
	time.Time
}

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{t.UTC().Truncate(time.Millisecond)}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(timeLayout))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := time.Parse(timeLayout, raw)
	if err != nil {
		// Tolerate plain RFC 3339 from older rows.
		parsed, err = time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return err
		}
	}
	t.Time = parsed.UTC().Truncate(time.Millisecond)
	return nil
}

func (t Timestamp) Value() (driver.Value, error) {
	return t.UTC().Truncate(time.Millisecond), nil
}

func (t *Timestamp) Scan(value any) error {
	switch v := value.(type) {
	case time.Time:
		t.Time = v.UTC().Truncate(time.Millisecond)
		return nil
	case []byte:
		return t.scanString(string(v))
	case string:
		return t.scanString(v)
	default:
		return fmt.Errorf("cannot scan %T into Timestamp", value)
	}
}

func (t *Timestamp) scanString(raw string) error {
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return err
	}
	t.Time = parsed.UTC().Truncate(time.Millisecond)
	return nil
}

// Rule is the per-action spend policy on an account. A missing rule means
// the action is not permitted at all.
type Rule struct {
	Enabled  bool   `json:"enabled"`
	DailyCap *int64 `json:"daily_cap,omitempty"`
}

// RuleSet maps an action identifier (boost_24h, unlock_lead, ...) to its
// rule. Stored as a jsonb column.
type RuleSet map[string]Rule

func (r RuleSet) Value() (driver.Value, error) {
	if r == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(r)
}

func (r *RuleSet) Scan(value any) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*r = RuleSet{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into RuleSet", value)
	}
	return json.Unmarshal(data, r)
}

type Account struct {
	ID                  string    `db:"id" json:"id"`
	OwnerID             string    `db:"owner_id" json:"owner_id"`
	OwnerKind           string    `db:"owner_kind" json:"owner_kind"`
	Balance             int64     `db:"balance" json:"balance"`
	Currency            string    `db:"currency" json:"currency"`
	LowBalanceThreshold int64     `db:"low_balance_threshold" json:"low_balance_threshold"`
	DailyLimit          int64     `db:"daily_limit" json:"daily_limit"`
	Rules               RuleSet   `db:"rules" json:"rules"`
	CreatedAt           Timestamp `db:"created_at" json:"created_at"`
	UpdatedAt           Timestamp `db:"updated_at" json:"updated_at"`
}

// LedgerEntry is one immutable balance-affecting event. Entries are only
// ever appended; the account balance is a cached projection of them.
type LedgerEntry struct {
	ID             string    `db:"id" json:"id"`
	AccountID      string    `db:"account_id" json:"account_id"`
	Kind           string    `db:"kind" json:"kind"`
	Amount         int64     `db:"amount" json:"amount"`
	BalanceAfter   int64     `db:"balance_after" json:"balance_after"`
	Action         *string   `db:"action" json:"action,omitempty"`
	Description    string    `db:"description" json:"description"`
	ReferenceType  *string   `db:"reference_type" json:"reference_type,omitempty"`
	ReferenceID    *string   `db:"reference_id" json:"reference_id,omitempty"`
	IdempotencyKey *string   `db:"idempotency_key" json:"idempotency_key,omitempty"`
	CreatedAt      Timestamp `db:"created_at" json:"created_at"`
}

// DaySpend aggregates the debits already recorded for one account inside a
// single UTC calendar day.
type DaySpend struct {
	Total     int64 `db:"total"`
	ForAction int64 `db:"for_action"`
}
