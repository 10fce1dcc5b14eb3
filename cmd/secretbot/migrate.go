package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	corecmd "github.com/m3rciful/secretbot/core/cmd"
	coredatabase "github.com/m3rciful/secretbot/core/database"
	"github.com/m3rciful/secretbot/core/logger"
	"github.com/m3rciful/secretbot/internal/app"
)

var migrateTimeout time.Duration

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	Long: `Apply the embedded schema migrations to the configured PostgreSQL database.

Only the database section of the configuration is needed; LINE credentials
may be absent.`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().DurationVar(&migrateTimeout, "timeout", 2*time.Minute, "give up after this long")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = corecmd.ConfigPath("CONFIG_PATH", defaultConfigPath)
	}
	cfg, err := app.LoadDatabaseConfig(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logger.InitLogger(&cfg.Config); err != nil {
		return err
	}
	defer func() { _ = logger.Shutdown() }()

	ctx := cmd.Context()
	if migrateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, migrateTimeout)
		defer cancel()
	}
	if err := coredatabase.RunMigrations(ctx, cfg.Database); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
	return nil
}
