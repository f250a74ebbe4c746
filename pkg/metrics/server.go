package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/orderledger/pkg/logger"
)

// Handler serves the gatherer in the prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return mux
}

// Serve exposes /metrics on addr until ctx is cancelled. An empty addr is a
// no-op so workers can call it unconditionally.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, logg *logger.Logger) error {
	if addr == "" {
		return nil
	}
	server := &http.Server{Addr: addr, Handler: Handler(g), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if logg != nil {
		logg.Info(logg.WithField(ctx, "addr", addr), "serving metrics")
	}
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
