package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/orderledger/pkg/config"
	"github.com/angelmondragon/orderledger/pkg/db"
	"github.com/angelmondragon/orderledger/pkg/logger"
)

// MaybeRunDev applies pending migrations on boot, only in dev with
// ORDERLEDGER_AUTO_MIGRATE set.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if cfg == nil || !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	if client == nil {
		return fmt.Errorf("db client is required for auto-migrate")
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	if err := ValidateDir(DefaultDir); err != nil {
		return fmt.Errorf("validating migrations: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "dir": DefaultDir})
	logg.Info(ctx, "applying migrations (dev auto-run)")

	if err := Run(ctx, sqlDB, DefaultDir, "up"); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}

	logg.Info(ctx, "migrations applied")
	return nil
}
