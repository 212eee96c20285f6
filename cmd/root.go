// Package cmd defines the CLI commands for the menud executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/cafeteria-menu/internal/config"
	"github.com/JakeFAU/cafeteria-menu/internal/ingest"
	"github.com/JakeFAU/cafeteria-menu/internal/logging"
	"github.com/JakeFAU/cafeteria-menu/internal/server"
)

type contextKey string

const configKey contextKey = "config"

// App is the application surface commands use. Tests inject a fake through
// newApp.
type App interface {
	Serve(ctx context.Context) error
	RunOnce(ctx context.Context) ingest.Report
	Close()
}

var newApp = func(ctx context.Context, cfg config.Config) (App, error) {
	return server.Build(ctx, cfg)
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "menud",
		Short: "Cafeteria menu ingestion service",
		Long: `menud fetches the daily menu pages of the campus cafeterias, extracts
breakfast, lunch and dinner items, and keeps the meal store in sync with
what the pages currently publish.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Runs before every subcommand so each one sees a validated config.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newParseCmd())
	cmd.AddCommand(newMigrateCmd())
	return cmd
}

func resolveConfig(ctx context.Context) (config.Config, error) {
	cfg, ok := ctx.Value(configKey).(config.Config)
	if !ok {
		return config.Config{}, errors.New("configuration not loaded")
	}
	return cfg, nil
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		logger, lerr := logging.New(logging.Config{})
		if lerr != nil {
			fmt.Fprintf(os.Stderr, "command failed: %v\n", err)
			os.Exit(1)
		}
		logger.Fatal("command execution failed", zap.Error(err))
	}
}
