package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/moritzWa/pickup-sub004/internal/application/broadcaster"
	"github.com/moritzWa/pickup-sub004/internal/application/eligibility"
	"github.com/moritzWa/pickup-sub004/internal/application/reconciler"
	"github.com/moritzWa/pickup-sub004/internal/application/withdrawalservice"
	"github.com/moritzWa/pickup-sub004/internal/infrastructure/alerts"
	"github.com/moritzWa/pickup-sub004/internal/infrastructure/clients"
	"github.com/moritzWa/pickup-sub004/internal/infrastructure/database"
	"github.com/moritzWa/pickup-sub004/internal/infrastructure/metrics"
	"github.com/moritzWa/pickup-sub004/internal/infrastructure/queue"
	"github.com/moritzWa/pickup-sub004/internal/infrastructure/rpc"
	"github.com/moritzWa/pickup-sub004/internal/repositories/withdrawalrepo"
	"github.com/moritzWa/pickup-sub004/internal/server"
	"github.com/moritzWa/pickup-sub004/internal/server/websocket"
	"github.com/moritzWa/pickup-sub004/pkg/config"
	"github.com/moritzWa/pickup-sub004/pkg/gate"
	"github.com/moritzWa/pickup-sub004/pkg/logger"
)

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log = logger.NewWithConfig(logger.Config(cfg.Logger))

	db, err := database.New(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.ShutDown()

	jobQueue := queue.NewRedisQueue(&cfg.Redis, log)
	defer jobQueue.Close()
	if err := jobQueue.Ping(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to redis")
	}

	withdrawalRepo := withdrawalrepo.New(db.Db, log)
	ledger := rpc.NewSolanaClient(&cfg.Solana, log)
	priceOracle := clients.NewPriceAPIClient(&cfg.PriceAPI, log)
	portfolio := clients.NewPortfolioClient(&cfg.Portfolio, log)
	alertSink := alerts.NewWebhookAlertClient(&cfg.Alerts, log)

	submitGate := gate.New(cfg.Gate.Permits, cfg.Gate.MaxAcquireWait, log)
	registry := prometheus.NewRegistry()
	m := metrics.New(registry, submitGate)

	wsHub := websocket.NewHub(log)
	go wsHub.Run()

	guard := eligibility.New(withdrawalRepo, priceOracle, portfolio, cfg.Eligibility, log)
	bc := broadcaster.New(ledger, &cfg.Solana, log)
	rec := reconciler.New(withdrawalRepo, ledger, m, wsHub, cfg.Reconciler, log)

	withdrawalSvc := withdrawalservice.New(
		guard,
		bc,
		rec,
		withdrawalRepo,
		ledger,
		submitGate,
		jobQueue,
		m,
		alertSink,
		log,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i := 0; i < cfg.Reconciler.Workers; i++ {
		go jobQueue.Consume(ctx, rec.HandleJob)
	}
	go func() {
		if err := rec.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Reconciliation sweep exited")
		}
	}()

	srv := server.New(cfg, withdrawalSvc, log, wsHub, registry)
	srv.Start()
}
