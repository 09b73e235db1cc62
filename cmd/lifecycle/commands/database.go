package commands

import (
	"context"
	"database/sql"
	"os"

	"github.com/spf13/cobra"

	"github.com/prisonops/lifecycle/am"
	"github.com/prisonops/lifecycle/app"
	"github.com/prisonops/lifecycle/db"
	"github.com/prisonops/lifecycle/errors"
	"github.com/prisonops/lifecycle/logger"
)

// loadConfig reads --config when given, the configuration cascade otherwise.
// DB_PATH overrides the database path either way.
func loadConfig(cmd *cobra.Command) (*am.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	var cfg *am.Config
	var err error
	if path != "" {
		cfg, err = am.LoadFromFile(path)
	} else {
		cfg, err = am.Load()
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}

	if dbPath := os.Getenv("DB_PATH"); dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "lifecycle.db"
	}
	return cfg, nil
}

// openDatabase opens and migrates the configured database.
func openDatabase(cmd *cobra.Command) (*sql.DB, *am.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	database, err := db.OpenWithMigrations(cfg.Database.Path, logger.Logger)
	if err != nil {
		return nil, nil, err
	}
	return database, cfg, nil
}

// openApp builds the whole service without starting workers or the scheduler.
// Close it when done.
func openApp(ctx context.Context, cmd *cobra.Command) (*app.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return app.Open(ctx, cfg, logger.Logger)
}
