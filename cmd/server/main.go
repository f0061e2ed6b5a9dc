package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace/internal/config"
	"marketplace/internal/db"
	"marketplace/internal/handlers"
	"marketplace/internal/logger"
	"marketplace/internal/metrics"
	"marketplace/internal/money"
	"marketplace/internal/notify"
	"marketplace/internal/redis"
	"marketplace/internal/services"
	"marketplace/internal/store"
	"marketplace/internal/websocket"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const serviceName = "marketplace-api"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		logg.Error(ctx, "failed to load config", err)
		os.Exit(1)
	}
	logg = logger.New(logger.Options{ServiceName: serviceName, Level: logger.ParseLevel(cfg.App.LogLevel)})
	ctx = logg.WithField(ctx, "env", cfg.App.Env)

	commissionRate, err := money.ParseRate(cfg.Payout.CommissionRate)
	requireResource(ctx, logg, "commission rate", err)
	minimumWithdrawal, err := money.ParsePositiveMinor(cfg.Payout.MinimumWithdrawal)
	requireResource(ctx, logg, "minimum withdrawal", err)
	sealKey, err := cfg.Payout.SealKey(cfg.App.Env)
	requireResource(ctx, logg, "bank details key", err)

	database, err := db.Connect(ctx, cfg.DB)
	requireResource(ctx, logg, "database", err)
	defer database.Close()
	if cfg.App.AutoMigrate {
		requireResource(ctx, logg, "migrations", db.Migrate(ctx, database.DB, "up"))
	}

	redisClient, err := redis.New(ctx, cfg.Redis)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	payoutMetrics := metrics.NewPayoutMetrics(registry)

	wallets := store.NewWalletStore(database)
	ledgerEntries := store.NewLedgerStore(database)
	payoutStore := store.NewPayoutStore(database)
	shops := store.NewShopStore(database)
	orders := store.NewOrderStore(database)
	audit := store.NewAuditStore(database)
	admins := store.NewAdminStore(database)
	txRunner := db.NewTxRunner(database).WithRetryHook(func(attempt int, err error) {
		logg.Warn(logg.WithFields(ctx, map[string]any{"attempt": attempt, "error": err.Error()}), "retrying serializable transaction")
	})
	hub := websocket.NewHub()
	notifier := notify.NewBestEffort(notify.NewQueueNotifier(redisClient), logg)

	ledger := services.NewLedgerService(services.LedgerParams{
		TxRunner:          txRunner,
		Wallets:           wallets,
		Ledger:            ledgerEntries,
		Shops:             shops,
		Orders:            orders,
		Audit:             audit,
		Hub:               hub,
		Notifier:          notifier,
		Metrics:           payoutMetrics,
		Logger:            logg,
		CommissionRate:    commissionRate,
		MinimumWithdrawal: minimumWithdrawal,
		SettlementWindow:  cfg.Settlement.Window,
	})
	payouts := services.NewPayoutWorkflow(services.PayoutParams{
		TxRunner: txRunner,
		Ledger:   ledger,
		Payouts:  payoutStore,
		Shops:    shops,
		Orders:   orders,
		Audit:    audit,
		Notifier: notifier,
		Metrics:  payoutMetrics,
		Logger:   logg,
	})
	exit := services.NewVendorExitWorkflow(services.ExitParams{
		TxRunner: txRunner,
		Ledger:   ledger,
		Payouts:  payouts,
		Shops:    shops,
		Audit:    audit,
		Notifier: notifier,
		Logger:   logg,
	})
	adminService := services.NewAdminService(txRunner, admins, audit)
	if created, err := adminService.Bootstrap(ctx, cfg.Auth.BootstrapAdmin); err != nil {
		logg.Error(ctx, "failed to bootstrap admin", err)
	} else if created {
		logg.Info(logg.WithField(ctx, "user_id", cfg.Auth.BootstrapAdmin), "bootstrap super admin created")
	}

	handler := handlers.New(handlers.Params{
		Config:   *cfg,
		Logger:   logg,
		Ledger:   ledger,
		Payouts:  payouts,
		Exit:     exit,
		Bank:     services.NewBankDetailsService(txRunner, shops, audit, services.NewSealer(sealKey)),
		Shops:    services.NewShopService(txRunner, shops),
		Reports:  services.NewReportService(wallets, ledgerEntries, payoutStore),
		Admins:   adminService,
		Audit:    audit,
		AdminDB:  admins,
		Owners:   shops,
		Hub:      hub,
		Gatherer: registry,
	})
	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logg.Info(logg.WithField(ctx, "addr", server.Addr), "marketplace API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "server error", err)
			os.Exit(1)
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(ctx, "shutdown error", err)
	}
	notifier.Close()
	logg.Info(ctx, "marketplace API stopped")
}

func requireResource(ctx context.Context, logg *logger.Logger, name string, err error) {
	if err == nil {
		return
	}
	logg.Error(logg.WithField(ctx, "resource", name), "failed to initialize", err)
	os.Exit(1)
}
