// Package policy decides whether a requested debit is permitted before any
// mutation happens. Checks run in a fixed order and stop at the first
// failure, so callers always see the most fundamental reason.
package policy

import (
	"errors"
	"fmt"

	"credits/internal/store"
)

var (
	ErrInvalidAmount       = errors.New("amount must be a positive integer")
	ErrRuleDisabled        = errors.New("action is not enabled for this account")
	ErrDailyLimitExceeded  = errors.New("daily spend limit exceeded")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// DailyLimitError carries the numbers the caller needs to render the
// limit-exceeded dialog. Matches ErrDailyLimitExceeded via errors.Is.
type DailyLimitError struct {
	DailyLimit int64 `json:"daily_limit"`
	SpentToday int64 `json:"spent_today"`
}

func (e *DailyLimitError) Error() string {
	return fmt.Sprintf("daily spend limit exceeded: limit %d, spent today %d", e.DailyLimit, e.SpentToday)
}

func (e *DailyLimitError) Is(target error) bool {
	return target == ErrDailyLimitExceeded
}

type Evaluator struct{}

func NewEvaluator() Evaluator {
	return Evaluator{}
}

// Evaluate runs the debit checks against an account and the debits already
// recorded for the current UTC day. A daily_limit of zero means the account
// has no account-wide cap; a rule without a daily_cap has no per-action cap.
func (Evaluator) Evaluate(account store.Account, spend store.DaySpend, amount int64, action string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	rule, ok := account.Rules[action]
	if !ok || !rule.Enabled {
		return ErrRuleDisabled
	}
	if account.DailyLimit > 0 && spend.Total+amount > account.DailyLimit {
		return &DailyLimitError{DailyLimit: account.DailyLimit, SpentToday: spend.Total}
	}
	if rule.DailyCap != nil && spend.ForAction+amount > *rule.DailyCap {
		return &DailyLimitError{DailyLimit: *rule.DailyCap, SpentToday: spend.ForAction}
	}
	if account.Balance < amount {
		return ErrInsufficientBalance
	}
	return nil
}
