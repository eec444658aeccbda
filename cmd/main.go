package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/stakevine/stakevine_core/internal/api/handlers"
	"github.com/stakevine/stakevine_core/internal/api/routes"
	"github.com/stakevine/stakevine_core/internal/domain/services/batchcollect"
	"github.com/stakevine/stakevine_core/internal/domain/services/deposit"
	"github.com/stakevine/stakevine_core/internal/domain/services/ledger"
	"github.com/stakevine/stakevine_core/internal/domain/services/network"
	"github.com/stakevine/stakevine_core/internal/domain/services/notify"
	"github.com/stakevine/stakevine_core/internal/domain/services/pricing"
	"github.com/stakevine/stakevine_core/internal/domain/services/rank"
	"github.com/stakevine/stakevine_core/internal/domain/services/tokens"
	"github.com/stakevine/stakevine_core/internal/domain/services/wallet"
	"github.com/stakevine/stakevine_core/internal/domain/services/withdrawal"
	infrachain "github.com/stakevine/stakevine_core/internal/infrastructure/chain"
	"github.com/stakevine/stakevine_core/internal/infrastructure/cache"
	"github.com/stakevine/stakevine_core/internal/infrastructure/config"
	"github.com/stakevine/stakevine_core/internal/infrastructure/database"
	"github.com/stakevine/stakevine_core/internal/infrastructure/repositories"
	"github.com/stakevine/stakevine_core/internal/scheduler"
	"github.com/stakevine/stakevine_core/pkg/logger"
	"github.com/stakevine/stakevine_core/pkg/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel, cfg.Environment)
	defer log.Sync()

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		log.Fatal("failed to connect to database", "error", err)
	}
	defer db.Close()

	if err := database.RunMigrations(cfg.Database.URL); err != nil {
		log.Fatal("failed to run migrations", "error", err)
	}

	redisClient, err := cache.NewClient(cfg.Redis)
	if err != nil {
		log.Fatal("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	go samplePoolStats(db)

	// Repositories
	zapLog := log.Zap()
	accountRepo := repositories.NewAccountRepository(db, zapLog)
	balanceRepo := repositories.NewBalanceRepository(db, zapLog)
	transactionRepo := repositories.NewTransactionRepository(db, zapLog)
	commissionRepo := repositories.NewCommissionRepository(db, zapLog)
	withdrawalRepo := repositories.NewWithdrawalRepository(db, zapLog)
	addressRepo := repositories.NewCustodialAddressRepository(db, zapLog)
	batchCollectRepo := repositories.NewBatchCollectRepository(db, zapLog)
	statsRepo := repositories.NewMonthlyStatsRepository(db, zapLog)

	// Chain gateway behind a circuit breaker
	httpGateway := infrachain.NewHTTPGateway(cfg.Chain, log)
	gateway := infrachain.NewBreakerGateway(httpGateway, log)

	// Domain services
	registry := tokens.NewRegistry(cfg.Chain)
	oracle := pricing.NewPeggedOracle(registry, nil, log)
	notifier := notify.NewLogNotifier(log)

	ledgerSvc := ledger.NewService(balanceRepo, transactionRepo, log)
	walletSvc := wallet.NewService(addressRepo, httpGateway, httpGateway, cfg.Security.KeyEncryptionSecret, log)
	rankSvc := rank.NewService(accountRepo, statsRepo, cfg.Rank, notifier, log)
	depositSvc := deposit.NewService(
		accountRepo, transactionRepo, balanceRepo, walletSvc,
		registry, oracle, rankSvc, notifier,
		config.MustDecimal(cfg.Activation.ThresholdUSD), log,
	)
	networkSvc, err := network.NewService(accountRepo, commissionRepo, balanceRepo, registry, log)
	if err != nil {
		log.Fatal("failed to build commission engine", "error", err)
	}

	sched := scheduler.New(redisClient, cfg.Scheduler.ManualWaitSecs, log)
	if err := scheduler.RegisterCoreJobs(sched, cfg.Scheduler, networkSvc, rankSvc); err != nil {
		log.Fatal("failed to register jobs", "error", err)
	}

	withdrawalSvc := withdrawal.NewService(
		accountRepo, withdrawalRepo, balanceRepo, transactionRepo,
		gateway, registry, sched, notifier,
		cfg.Withdrawal, cfg.Rank, cfg.Chain, log,
	)
	batchCollectSvc := batchcollect.NewService(
		addressRepo, batchCollectRepo, transactionRepo,
		gateway, registry, walletSvc, redisClient, cfg.Chain, log,
	)

	// HTTP layer
	webhookHandlers := handlers.NewWebhookHandlers(depositSvc, cfg.Webhook, log)
	defer webhookHandlers.Close()

	router := routes.SetupRoutes(routes.Handlers{
		Webhooks:     webhookHandlers,
		Accounts:     handlers.NewAccountHandlers(ledgerSvc, networkSvc, walletSvc, log),
		Withdrawals:  handlers.NewWithdrawalHandlers(withdrawalSvc, log),
		BatchCollect: handlers.NewBatchCollectHandlers(batchCollectSvc, log),
		System:       handlers.NewSystemHandlers(db, redisClient, sched, log),
	}, log)

	sched.Start()

	// Repair chain-watch registrations that failed before the last restart
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := walletSvc.ResumeWatches(ctx); err != nil {
			log.Warn("failed to resume chain watches", "error", err)
		}
	}()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.Server.Port, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("server shutdown failed", "error", err)
	}
	if err := sched.Stop(ctx); err != nil {
		log.Error("scheduler shutdown failed", "error", err)
	}

	log.Info("shutdown complete")
}

// samplePoolStats exports connection pool gauges every 15s
func samplePoolStats(db *sqlx.DB) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		stats := db.Stats()
		metrics.DatabaseConnectionsGauge.WithLabelValues("open").Set(float64(stats.OpenConnections))
		metrics.DatabaseConnectionsGauge.WithLabelValues("in_use").Set(float64(stats.InUse))
		metrics.DatabaseConnectionsGauge.WithLabelValues("idle").Set(float64(stats.Idle))
	}
}
