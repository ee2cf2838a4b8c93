package migrate

import (
	"context"
	"fmt"

	"github.com/medimart/storefront/pkg/config"
	"github.com/medimart/storefront/pkg/db"
	"github.com/medimart/storefront/pkg/db/models"
	"github.com/medimart/storefront/pkg/logger"
)

// Models lists every table owned by the API, in dependency order.
func Models() []any {
	return []any{
		&models.Identity{},
		&models.User{},
		&models.Medicine{},
		&models.CartRecord{},
		&models.CartItem{},
		&models.Payment{},
		&models.PaymentItem{},
		&models.Invoice{},
	}
}

// MaybeRunDev executes migrations automatically when the app is running in dev mode and
// the feature flag is enabled. SQLite databases are always brought up to date from the
// models since goose's SQL files target Postgres.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if client.Dialect() == "sqlite" {
		ctx = logg.WithField(ctx, "dialect", "sqlite")
		logg.Info(ctx, "auto-migrating sqlite schema from models")
		return AutoMigrateModels(ctx, client)
	}

	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	sqlDB, err := client.SQL()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "dir": DefaultDir})
	logg.Info(ctx, "running goose migrations (dev auto-run)")

	if err := Run(ctx, sqlDB, DefaultDir, "up"); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}

	logg.Info(ctx, "goose migrations completed")
	return nil
}

// AutoMigrateModels creates or updates tables straight from the GORM models.
func AutoMigrateModels(ctx context.Context, client *db.Client) error {
	if err := client.DB().WithContext(ctx).AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto-migrate models: %w", err)
	}
	return nil
}
