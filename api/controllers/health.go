package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/orderledger/api/responses"
	"github.com/angelmondragon/orderledger/pkg/config"
	pkgerrors "github.com/angelmondragon/orderledger/pkg/errors"
	"github.com/angelmondragon/orderledger/pkg/logger"
)

const readinessTimeout = 2 * time.Second

// Pinger is anything readiness should probe.
type Pinger interface {
	Ping(context.Context) error
}

// Dependency names a readiness probe.
type Dependency struct {
	Name   string
	Pinger Pinger
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-OrderLedger-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady probes every dependency and reports DEPENDENCY_ERROR with the
// failing names when any probe fails.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps ...Dependency) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-OrderLedger-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		checks := make(map[string]string, len(deps))
		var failed []string
		for _, dep := range deps {
			if dep.Pinger == nil {
				continue
			}
			if err := dep.Pinger.Ping(ctx); err != nil {
				checks[dep.Name] = "down"
				failed = append(failed, dep.Name)
				continue
			}
			checks[dep.Name] = "ok"
		}

		if len(failed) > 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "dependencies unavailable").
				WithDetails(map[string]any{"checks": checks, "failed": failed}))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
