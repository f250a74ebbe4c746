package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/orderledger/internal/app"
	"github.com/angelmondragon/orderledger/internal/dispatch"
	"github.com/angelmondragon/orderledger/pkg/config"
	"github.com/angelmondragon/orderledger/pkg/db"
	"github.com/angelmondragon/orderledger/pkg/instance"
	"github.com/angelmondragon/orderledger/pkg/logger"
	"github.com/angelmondragon/orderledger/pkg/metrics"
	"github.com/angelmondragon/orderledger/pkg/migrate"
	"github.com/angelmondragon/orderledger/pkg/outbox/idempotency"
	"github.com/angelmondragon/orderledger/pkg/pubsub"
	"github.com/angelmondragon/orderledger/pkg/redis"
)

const serviceName = "outbox-dispatcher"

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

	services, err := app.NewServices(cfg, logg, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	params := dispatch.ServiceParams{
		Config:     cfg.Outbox,
		Logger:     logg,
		DB:         dbClient,
		Repository: services.OutboxRepo,
		Delivered:  services.Delivery,
		Metrics:    metrics.NewDispatchMetrics(prometheus.DefaultRegisterer),
	}

	if cfg.PubSub.Enabled(cfg.GCP) {
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

		pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub client", err)
			}
		}()

		forwarder, err := dispatch.NewPubSubForwarder(pubsubClient.OrdersPublisher())
		if err != nil {
			logg.Error(context.Background(), "failed to create pubsub forwarder", err)
			os.Exit(1)
		}
		defer forwarder.Stop()

		claimer, err := idempotency.NewManager(redisClient, cfg.Eventing.IdempotencyTTL)
		if err != nil {
			logg.Error(context.Background(), "failed to create idempotency manager", err)
			os.Exit(1)
		}
		params.Forwarder = forwarder
		params.Claimer = claimer
	}

	service, err := dispatch.NewService(params)
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox dispatcher", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":        cfg.App.Env,
		"forwarding": params.Forwarder != nil,
		"instance":   instance.GetID(),
	})
	logg.Info(ctx, "starting outbox dispatcher")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return service.Run(groupCtx) })
	group.Go(func() error { return metrics.Serve(groupCtx, cfg.Metrics.Addr, prometheus.DefaultGatherer, logg) })

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox dispatcher stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "outbox dispatcher shutting down gracefully")
}
