// Package cmd defines and implements the CLI commands for the legisnotice executable.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/legisnotice/internal/app"
	"github.com/JakeFAU/legisnotice/internal/config"
	"github.com/JakeFAU/legisnotice/internal/legislation"
	"github.com/JakeFAU/legisnotice/internal/logging"
)

var (
	cfgFile string
	envFile string
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// Pipeline is the notice pipeline surface the commands drive.
type Pipeline interface {
	GetBySource(ctx context.Context, source legislation.Source) ([]legislation.StoredRecord, bool, error)
	RefreshSource(ctx context.Context, source legislation.Source) (int, error)
	RefreshAll(ctx context.Context) (legislation.RefreshResult, error)
	Sweep(ctx context.Context, olderThan time.Duration) (int, error)
	Search(ctx context.Context, keyword string, source legislation.Source) ([]legislation.StoredRecord, error)
	Stats(ctx context.Context) (legislation.Stats, error)
}

// App defines the application interface that commands will use.
// This allows us to inject a mock app during tests.
type App interface {
	Close()
	GetConfig() config.Config
	GetLogger() *zap.Logger
	GetClock() legislation.Clock
	GetIDs() legislation.IDGenerator
	GetNotifier() legislation.Notifier
	GetPipeline() Pipeline
}

// containerApp adapts *app.App, whose orchestrator accessor returns the concrete type.
type containerApp struct {
	*app.App
}

func (c containerApp) GetPipeline() Pipeline {
	return c.GetOrchestrator()
}

// newApp is the application factory. It's a variable so we can
// replace it with a mock factory in our tests.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	a, err := app.NewApp(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return containerApp{App: a}, nil
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "legisnotice",
		Short: "Collects Korean legislative notices and serves them over HTTP.",
		Long: `legisnotice gathers the legislative notices whose public comment period
opens today from the National Assembly and the executive lawmaking portal,
stores them in PostgreSQL and serves them through a small REST API.`,
		SilenceUsage: true,

		// Config is loaded here so every subcommand sees the same App.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadEnvFile(envFile); err != nil {
				return err
			}
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				_ = logger.Sync()
				return fmt.Errorf("failed to initialize application services: %w", err)
			}

			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (environment variables use the LEGIS_ prefix)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file exported before the config is read")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSweepCmd())

	return cmd
}

// resolveApp returns the App stored by PersistentPreRunE. Callers own it and
// must Close it; cobra skips post-run hooks when RunE fails.
func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the command context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
