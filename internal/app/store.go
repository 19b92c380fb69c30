package app

import (
	"context"
	"log/slog"

	"hotreload/internal/config"
	"hotreload/internal/database"
	dbconfig "hotreload/pkg/database"
)

func pkgDatabaseConfig(cfg *config.Config) *dbconfig.Config {
	dbConfig := dbconfig.DefaultConfig()
	dbConfig.DatabasePath = cfg.Database.Path
	return dbConfig
}

// SetDebug persists the developer flag.
func SetDebug(ctx context.Context, cfg *config.Config, enabled bool, logger *slog.Logger) error {
	store, err := OpenStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	return database.SetDebug(ctx, store, enabled)
}

// DebugStatus reads the developer flag.
func DebugStatus(ctx context.Context, cfg *config.Config, logger *slog.Logger) (bool, error) {
	store, err := OpenStore(cfg, logger)
	if err != nil {
		return false, err
	}
	defer store.Close()
	return database.DebugEnabled(ctx, store), nil
}

// ResetDebug removes the developer flag so it falls back to off.
func ResetDebug(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, err := OpenStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	return database.ResetDebug(ctx, store)
}
