package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"credits/internal/db"
	"credits/internal/events"
	"credits/internal/policy"
	"credits/internal/receipt"
	"credits/internal/store"
)

var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrPersistenceFailure = errors.New("persistence failure")
)

type AccountStore interface {
	GetByID(ctx context.Context, accountID string) (store.Account, error)
	GetForUpdate(ctx context.Context, tx store.Getter, accountID string) (store.Account, error)
	UpdateBalance(ctx context.Context, tx store.Execer, accountID string, balance int64, at time.Time) error
}

type LedgerStore interface {
	Insert(ctx context.Context, tx store.Execer, entry store.LedgerEntry) error
	GetByIdempotencyKey(ctx context.Context, q store.Getter, accountID, key string) (store.LedgerEntry, error)
	DaySpend(ctx context.Context, q store.Getter, accountID, action string, from, to time.Time) (store.DaySpend, error)
}

type PolicyEvaluator interface {
	Evaluate(account store.Account, spend store.DaySpend, amount int64, action string) error
}

type Projector interface {
	Record(account store.Account, entry store.LedgerEntry)
}

type LowBalanceNotifier interface {
	NotifyLowBalance(ctx context.Context, account store.Account)
}

type NotifierFunc func(ctx context.Context, account store.Account)

func (f NotifierFunc) NotifyLowBalance(ctx context.Context, account store.Account) { f(ctx, account) }

// WalletService runs the two balance-mutating flows: Spend (debit) and
// Recharge (credit). Every mutation pairs the balance write with the ledger
// append inside one serializable transaction; observers run only after
// commit and never affect the outcome.
type WalletService struct {
	txRunner  db.TxRunner
	accounts  AccountStore
	ledger    LedgerStore
	policy    PolicyEvaluator
	projector Projector
	notifier  LowBalanceNotifier
	events    events.Publisher
	log       zerolog.Logger
	now       func() time.Time
}

func NewWalletService(txRunner db.TxRunner, accounts AccountStore, ledger LedgerStore, evaluator PolicyEvaluator, projector Projector, notifier LowBalanceNotifier, publisher events.Publisher, log zerolog.Logger) *WalletService {
	return &WalletService{
		txRunner:  txRunner,
		accounts:  accounts,
		ledger:    ledger,
		policy:    evaluator,
		projector: projector,
		notifier:  notifier,
		events:    publisher,
		log:       log,
		now:       time.Now,
	}
}

type SpendRequest struct {
	AccountID      string
	Amount         int64
	Action         string
	ReferenceType  string
	ReferenceID    string
	IdempotencyKey string
}

type RechargeRequest struct {
	AccountID      string
	Amount         int64
	Source         string
	ReferenceID    string
	IdempotencyKey string
}

// Result is a committed (or replayed) mutation. Duplicate marks an
// idempotent replay: the entry is the original one and nothing was
// re-applied.
type Result struct {
	Entry     store.LedgerEntry
	Account   store.Account
	Duplicate bool
}

// Spend debits an account for a gated action. The idempotency lookup runs
// before policy: a replayed request returns the original entry without
// re-evaluating anything. All checks and both writes happen inside one
// transaction, after the account row lock, so the balance and daily sums
// cannot move between validation and commit.
func (s *WalletService) Spend(ctx context.Context, req SpendRequest) (Result, error) {
	var res Result
	now := store.NewTimestamp(s.now())
	dayStart, dayEnd := dayBounds(now.Time)
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if prior, ok, err := s.replay(ctx, tx, req.AccountID, req.IdempotencyKey); err != nil {
			return err
		} else if ok {
			res = prior
			return nil
		}
		account, err := s.lockAccount(ctx, tx, req.AccountID)
		if err != nil {
			return err
		}
		spend, err := s.ledger.DaySpend(ctx, tx, req.AccountID, req.Action, dayStart, dayEnd)
		if err != nil {
			return err
		}
		if err := s.policy.Evaluate(account, spend, req.Amount, req.Action); err != nil {
			return err
		}
		newBalance := account.Balance - req.Amount
		entry := store.LedgerEntry{
			ID:             uuid.NewString(),
			AccountID:      account.ID,
			Kind:           store.KindDebit,
			Amount:         req.Amount,
			BalanceAfter:   newBalance,
			Action:         optional(req.Action),
			Description:    receipt.DescribeSpend(req.Action, req.ReferenceType, req.ReferenceID),
			ReferenceType:  optional(req.ReferenceType),
			ReferenceID:    optional(req.ReferenceID),
			IdempotencyKey: optional(req.IdempotencyKey),
			CreatedAt:      now,
		}
		if err := s.accounts.UpdateBalance(ctx, tx, account.ID, newBalance, now.Time); err != nil {
			return err
		}
		if err := s.ledger.Insert(ctx, tx, entry); err != nil {
			return err
		}
		account.Balance = newBalance
		account.UpdatedAt = now
		res = Result{Entry: entry, Account: account}
		return nil
	})
	if err != nil {
		return Result{}, s.classify(err)
	}
	s.publish(ctx, res)
	return res, nil
}

// Recharge credits an account. There is no balance precondition; the
// idempotency protocol is identical to Spend because upstream payment
// notifiers may deliver the same confirmation more than once.
func (s *WalletService) Recharge(ctx context.Context, req RechargeRequest) (Result, error) {
	var res Result
	now := store.NewTimestamp(s.now())
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if prior, ok, err := s.replay(ctx, tx, req.AccountID, req.IdempotencyKey); err != nil {
			return err
		} else if ok {
			res = prior
			return nil
		}
		if req.Amount <= 0 {
			return policy.ErrInvalidAmount
		}
		account, err := s.lockAccount(ctx, tx, req.AccountID)
		if err != nil {
			return err
		}
		newBalance := account.Balance + req.Amount
		entry := store.LedgerEntry{
			ID:             uuid.NewString(),
			AccountID:      account.ID,
			Kind:           store.KindCredit,
			Amount:         req.Amount,
			BalanceAfter:   newBalance,
			Description:    receipt.DescribeRecharge(req.Source, req.Amount),
			ReferenceType:  optional(rechargeReferenceType(req)),
			ReferenceID:    optional(req.ReferenceID),
			IdempotencyKey: optional(req.IdempotencyKey),
			CreatedAt:      now,
		}
		if err := s.accounts.UpdateBalance(ctx, tx, account.ID, newBalance, now.Time); err != nil {
			return err
		}
		if err := s.ledger.Insert(ctx, tx, entry); err != nil {
			return err
		}
		account.Balance = newBalance
		account.UpdatedAt = now
		res = Result{Entry: entry, Account: account}
		return nil
	})
	if err != nil {
		return Result{}, s.classify(err)
	}
	s.publish(ctx, res)
	return res, nil
}

func (s *WalletService) replay(ctx context.Context, tx store.Getter, accountID, key string) (Result, bool, error) {
	if key == "" {
		return Result{}, false, nil
	}
	prior, err := s.ledger.GetByIdempotencyKey(ctx, tx, accountID, key)
	if errors.Is(err, sql.ErrNoRows) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, err
	}
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return Result{}, false, err
	}
	return Result{Entry: prior, Account: account, Duplicate: true}, true, nil
}

func (s *WalletService) lockAccount(ctx context.Context, tx store.Getter, accountID string) (store.Account, error) {
	account, err := s.accounts.GetForUpdate(ctx, tx, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Account{}, ErrAccountNotFound
	}
	return account, err
}

// publish notifies read-only observers strictly after commit. Their
// failures are logged, never propagated into the transaction result.
func (s *WalletService) publish(ctx context.Context, res Result) {
	if res.Duplicate {
		return
	}
	if s.projector != nil {
		s.projector.Record(res.Account, res.Entry)
	}
	low := res.Account.Balance < res.Account.LowBalanceThreshold
	if low && res.Entry.Kind == store.KindDebit && s.notifier != nil {
		s.notifier.NotifyLowBalance(ctx, res.Account)
	}
	if s.events != nil {
		if err := s.events.PublishEntry(ctx, events.EntryCommitted{
			Entry:        res.Entry,
			OwnerID:      res.Account.OwnerID,
			BalanceAfter: res.Account.Balance,
			LowBalance:   low,
		}); err != nil {
			s.log.Warn().Err(err).Str("entry_id", res.Entry.ID).Msg("entry event publish failed")
		}
	}
}

// classify keeps policy denials as-is and folds everything else into
// ErrPersistenceFailure, the only class a caller may retry (safely, given
// the same idempotency key).
func (s *WalletService) classify(err error) error {
	switch {
	case errors.Is(err, policy.ErrInvalidAmount),
		errors.Is(err, policy.ErrRuleDisabled),
		errors.Is(err, policy.ErrDailyLimitExceeded),
		errors.Is(err, policy.ErrInsufficientBalance),
		errors.Is(err, ErrAccountNotFound):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
}

// dayBounds returns the UTC calendar day containing now. UTC midnight is
// the boundary regardless of client locale.
func dayBounds(now time.Time) (time.Time, time.Time) {
	start := now.UTC().Truncate(24 * time.Hour)
	return start, start.Add(24 * time.Hour)
}

func rechargeReferenceType(req RechargeRequest) string {
	if req.ReferenceID == "" {
		return ""
	}
	if req.Source != "" {
		return req.Source
	}
	return "recharge"
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
