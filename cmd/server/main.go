package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"credits/internal/config"
	"credits/internal/db"
	"credits/internal/events"
	kafkaevents "credits/internal/events/kafka"
	"credits/internal/handlers"
	"credits/internal/jobs"
	"credits/internal/logger"
	"credits/internal/policy"
	"credits/internal/services"
	"credits/internal/snapshot"
	"credits/internal/store"
	"credits/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logger.New(true)
		boot.Fatal().Err(err).Msg("failed to load config")
	}
	log := logger.New(cfg.Development())

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}
	defer database.Close()

	accounts := store.NewAccountStore(database)
	ledger := store.NewLedgerStore(database)
	txRunner := db.NewTxRunner(database)

	projector := snapshot.New(cfg.SnapshotEntries)
	hub := websocket.NewHub()
	projector.Subscribe(hub.BroadcastSnapshot)

	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher := kafkaevents.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
	}

	notifier := services.NotifierFunc(func(ctx context.Context, account store.Account) {
		log.Info().
			Str("account_id", account.ID).
			Str("owner_id", account.OwnerID).
			Int64("balance", account.Balance).
			Int64("threshold", account.LowBalanceThreshold).
			Msg("account balance below threshold")
	})

	service := services.NewWalletService(txRunner, accounts, ledger, policy.NewEvaluator(), projector, notifier, publisher, log)

	scheduler := jobs.NewScheduler(log, accounts, ledger)
	if err := scheduler.Start(cfg.ReconcileCron); err != nil {
		log.Fatal().Err(err).Msg("failed to start reconciliation scheduler")
	}
	defer scheduler.Stop()

	handler := handlers.New(cfg, log, service, accounts, ledger, projector, hub)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("credits API listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("shutdown error")
	}
}
