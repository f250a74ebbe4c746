package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/orderledger/internal/app"
	"github.com/angelmondragon/orderledger/internal/cron"
	"github.com/angelmondragon/orderledger/pkg/config"
	"github.com/angelmondragon/orderledger/pkg/db"
	"github.com/angelmondragon/orderledger/pkg/instance"
	"github.com/angelmondragon/orderledger/pkg/logger"
	"github.com/angelmondragon/orderledger/pkg/metrics"
	"github.com/angelmondragon/orderledger/pkg/migrate"
	"github.com/angelmondragon/orderledger/pkg/redis"
)

const serviceName = "cron-worker"

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

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	services, err := app.NewServices(cfg, logg, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	registry, err := buildRegistry(cfg, logg, dbClient, services)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(serviceName), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"interval": cfg.Cron.Interval.String(),
		"jobs":     len(registry.Jobs()),
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting cron worker")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return service.Run(groupCtx) })
	group.Go(func() error { return metrics.Serve(groupCtx, cfg.Metrics.Addr, prometheus.DefaultGatherer, logg) })

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, services *app.Services) (*cron.Registry, error) {
	expiry, err := cron.NewCashbackExpiryJob(logg, services.Cashback)
	if err != nil {
		return nil, fmt.Errorf("cashback expiry job: %w", err)
	}
	reconcile, err := cron.NewWalletReconcileJob(logg, services.Wallet)
	if err != nil {
		return nil, fmt.Errorf("wallet reconcile job: %w", err)
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:      logg,
		DB:          dbClient,
		Repository:  services.OutboxRepo,
		MaxAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("outbox retention job: %w", err)
	}
	return cron.NewRegistry(expiry, reconcile, retention), nil
}
