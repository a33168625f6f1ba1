package commands

import (
	"database/sql"

	"github.com/spf13/cobra"

	"github.com/waitline/waitline/config"
	"github.com/waitline/waitline/db"
	"github.com/waitline/waitline/errors"
	"github.com/waitline/waitline/logger"
)

// loadConfig resolves configuration, honoring the --config flag.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// openDatabase opens and migrates the database at the configured path.
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	database, err := db.OpenWithMigrations(cfg.Database.Path, logger.Logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", cfg.Database.Path)
	}
	return database, nil
}
