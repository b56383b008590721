// Package jobs runs the periodic reconciliation sweep: the cached account
// balance must always equal the net of its ledger entries. A mismatch
// means a bug or manual data surgery; it is logged, never auto-corrected.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"credits/internal/store"
)

type AccountSource interface {
	ListIDs(ctx context.Context) ([]string, error)
	GetByID(ctx context.Context, accountID string) (store.Account, error)
}

type LedgerSource interface {
	NetSum(ctx context.Context, accountID string) (int64, error)
}

type Scheduler struct {
	cron     *cron.Cron
	log      zerolog.Logger
	accounts AccountSource
	ledger   LedgerSource
}

func NewScheduler(log zerolog.Logger, accounts AccountSource, ledger LedgerSource) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		log:      log,
		accounts: accounts,
		ledger:   ledger,
	}
}

func (s *Scheduler) Start(spec string) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := s.Reconcile(ctx); err != nil {
			s.log.Error().Err(err).Msg("reconciliation sweep failed")
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Reconcile checks every account's stored balance against its ledger net.
func (s *Scheduler) Reconcile(ctx context.Context) error {
	ids, err := s.accounts.ListIDs(ctx)
	if err != nil {
		return err
	}
	mismatches := 0
	for _, id := range ids {
		account, err := s.accounts.GetByID(ctx, id)
		if err != nil {
			s.log.Error().Err(err).Str("account_id", id).Msg("reconcile: account read failed")
			continue
		}
		net, err := s.ledger.NetSum(ctx, id)
		if err != nil {
			s.log.Error().Err(err).Str("account_id", id).Msg("reconcile: ledger sum failed")
			continue
		}
		if account.Balance != net {
			mismatches++
			s.log.Warn().
				Str("account_id", id).
				Int64("stored_balance", account.Balance).
				Int64("ledger_net", net).
				Int64("difference", account.Balance-net).
				Msg("balance discrepancy detected")
		}
	}
	s.log.Info().Int("accounts", len(ids)).Int("mismatches", mismatches).Msg("reconciliation sweep complete")
	return nil
}
