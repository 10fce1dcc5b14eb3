package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	corecmd "github.com/m3rciful/secretbot/core/cmd"
	"github.com/m3rciful/secretbot/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the webhook until interrupted",
	Long: `Serve GET / and POST /callback on server.listen:server.port.

The users table is created on the first GET / unless database.migrate_on_start
is set. SIGINT or SIGTERM drains in-flight requests and exits.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if configPath != "" {
		if err := os.Setenv("CONFIG_PATH", configPath); err != nil {
			return err
		}
	}
	return corecmd.Run(corecmd.Options{
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: defaultConfigPath,
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return app.LoadConfig(path)
		},
		Bootstrap: func(ctx context.Context, cfg corecmd.ConfigCarrier) (corecmd.HTTPApp, error) {
			return app.Bootstrap(ctx, cfg)
		},
	})
}
