// Package commands implements the CLI subcommands.
package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"supply-chain-risk/config"
	"supply-chain-risk/database"
	"supply-chain-risk/logger"
)

// env is what every subcommand needs once flags are parsed.
type env struct {
	cfg    *config.Config
	db     *gorm.DB
	logger *slog.Logger
}

func (e *env) close() {
	if e.db != nil {
		_ = database.Close(e.db)
	}
}

// setup loads the config named by the root --config flag, installs the
// logger and opens the store.
func setup(cmd *cobra.Command) (*env, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	l := logger.Init(cfg.LogLevel)

	db, err := database.Open(cfg.Database, gormlogger.Warn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return &env{cfg: cfg, db: db, logger: l}, nil
}
