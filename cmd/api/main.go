package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/orderledger/api/controllers"
	"github.com/angelmondragon/orderledger/api/routes"
	"github.com/angelmondragon/orderledger/internal/app"
	"github.com/angelmondragon/orderledger/pkg/config"
	"github.com/angelmondragon/orderledger/pkg/db"
	"github.com/angelmondragon/orderledger/pkg/instance"
	"github.com/angelmondragon/orderledger/pkg/logger"
	"github.com/angelmondragon/orderledger/pkg/migrate"
	"github.com/angelmondragon/orderledger/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":             cfg.App.Env,
		"addr":            addr,
		"inline_delivery": cfg.FeatureFlags.InlineDelivery,
		"instance":        instance.GetID(),
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:      cfg,
			Logger:      logg,
			Idempotency: redisClient,
			Readiness: []controllers.Dependency{
				{Name: "database", Pinger: dbClient},
				{Name: "redis", Pinger: redisClient},
			},
			Pricing:     services.Pricing,
			Orders:      services.Orders,
			Wallet:      services.Wallet,
			Cashback:    services.Cashback,
			Settlements: services.Settlements,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
		logg.Info(ctx, "api server shutting down gracefully")
	}
}
