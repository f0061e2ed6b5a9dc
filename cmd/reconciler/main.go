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
	"marketplace/internal/cron"
	"marketplace/internal/db"
	"marketplace/internal/logger"
	"marketplace/internal/metrics"
	"marketplace/internal/money"
	"marketplace/internal/notify"
	"marketplace/internal/redis"
	"marketplace/internal/services"
	"marketplace/internal/store"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	serviceName = "marketplace-reconciler"
	metricsAddr = ":9102"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	logg = logger.New(logger.Options{ServiceName: serviceName, Level: logger.ParseLevel(cfg.App.LogLevel)})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"interval": cfg.Settlement.ReconcileInterval.String(),
	})

	database, err := db.Connect(ctx, cfg.DB)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer database.Close()

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	minimumWithdrawal, err := money.ParsePositiveMinor(cfg.Payout.MinimumWithdrawal)
	if err != nil {
		logg.Error(ctx, "invalid minimum withdrawal", err)
		os.Exit(1)
	}
	commissionRate, err := money.ParseRate(cfg.Payout.CommissionRate)
	if err != nil {
		logg.Error(ctx, "invalid commission rate", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	notifier := notify.NewBestEffort(notify.NewQueueNotifier(redisClient), logg)
	ledger := services.NewLedgerService(services.LedgerParams{
		TxRunner:          db.NewTxRunner(database),
		Wallets:           store.NewWalletStore(database),
		Ledger:            store.NewLedgerStore(database),
		Shops:             store.NewShopStore(database),
		Orders:            store.NewOrderStore(database),
		Audit:             store.NewAuditStore(database),
		Notifier:          notifier,
		Metrics:           metrics.NewPayoutMetrics(registry),
		Logger:            logg,
		CommissionRate:    commissionRate,
		MinimumWithdrawal: minimumWithdrawal,
		SettlementWindow:  cfg.Settlement.Window,
	})

	job, err := cron.NewReconcileJob(logg, ledger)
	if err != nil {
		logg.Error(ctx, "failed to create reconcile job", err)
		os.Exit(1)
	}
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(cron.ReconcileJobName), cfg.Settlement.ReconcileInterval)
	if err != nil {
		logg.Error(ctx, "failed to create reconcile lock", err)
		os.Exit(1)
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(job),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(registry),
		Interval: cfg.Settlement.ReconcileInterval,
	})
	if err != nil {
		logg.Error(ctx, "failed to create cron service", err)
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:              metricsAddr,
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "metrics server error", err)
		}
	}()

	logg.Info(ctx, "starting reconciler")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "reconciler stopped unexpectedly", err)
		os.Exit(1)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
	notifier.Close()
	logg.Info(ctx, "reconciler shutting down gracefully")
}
