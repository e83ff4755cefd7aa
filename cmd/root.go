// Package cmd defines and implements the CLI commands for the cbcr-finder executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/cbcr-finder/internal/app"
	"github.com/JakeFAU/cbcr-finder/internal/config"
	"github.com/JakeFAU/cbcr-finder/internal/logging"
	"github.com/JakeFAU/cbcr-finder/internal/runs"
	"github.com/JakeFAU/cbcr-finder/internal/storage"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the services that commands use.
type App interface {
	Close()
	Config() config.Config
	Logger() *zap.Logger
	Store() storage.Store
	LedgerPath(scope string) string
	BlacklistPath() string
	Manager(ctx context.Context) (*runs.Manager, error)
}

// newApp is the application factory.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

type rootOptions struct {
	configFile string
	envFile    string
}

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "cbcr-finder",
		Short: "Finds published country-by-country tax reports and files them in a blob store.",
		Long: `cbcr-finder searches the web for PDF reports of a list of organizations,
downloads them into a blob store (local disk, GCS or Dropbox), and records
every attempt in a CSV ledger so re-runs skip what was already fetched.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadEnvFile(opts.envFile); err != nil {
				return err
			}
			cfg, err := config.Load(opts.configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
				_ = appInstance.Logger().Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (yaml, json or toml)")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "dotenv file with secrets (default ./.env when present)")

	cmd.AddCommand(newFindCmd())
	cmd.AddCommand(newBlacklistCmd())
	cmd.AddCommand(newLedgerCmd())
	cmd.AddCommand(newPagesCmd())
	cmd.AddCommand(newServeCmd())
	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}
