// Package cli implements the blocsheet command line: an HTTP server plus
// operator commands that work on the configured store directly.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mmynk/blocsheet/internal/config"
	"github.com/mmynk/blocsheet/internal/metrics"
	"github.com/mmynk/blocsheet/internal/service"
	"github.com/mmynk/blocsheet/internal/storage"
	"github.com/mmynk/blocsheet/internal/storage/memory"
	"github.com/mmynk/blocsheet/internal/storage/mongo"
	"github.com/mmynk/blocsheet/internal/storage/postgres"
	"github.com/mmynk/blocsheet/internal/storage/sqlite"
	"github.com/mmynk/blocsheet/internal/structure"
	"github.com/mmynk/blocsheet/pkg/logging"
)

// Version is overridden with -ldflags at release time.
var Version = "0.0.0-dev"

// App is the blocsheet command-line application.
type App struct {
	rootCmd *cobra.Command
	out     io.Writer

	cfg     *config.Config
	store   storage.Store
	metrics *metrics.Metrics
}

// NewApp builds the command tree. Output of the operator commands goes to
// out; logs go to stderr.
func NewApp(out io.Writer) *App {
	app := &App{out: out}

	rootCmd := &cobra.Command{
		Use:               "blocsheet",
		Short:             "Monthly maintenance sheets for homeowner associations",
		Version:           Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: app.setup,
	}
	rootCmd.SetOut(out)
	rootCmd.PersistentFlags().StringP("operator", "o", os.Getenv("USER"), "Operator recorded on publishes and payments")

	rootCmd.AddCommand(
		app.serveCommand(),
		app.initCommand(),
		app.sheetsCommand(),
		app.expenseCommand(),
		app.tableCommand(),
		app.validateCommand(),
		app.publishCommand(),
		app.payCommand(),
		app.balanceCommand(),
	)

	app.rootCmd = rootCmd
	return app
}

// Execute runs the CLI with the process arguments.
func (app *App) Execute(ctx context.Context) error {
	return app.execute(ctx)
}

// Run runs the CLI with explicit arguments.
func (app *App) Run(ctx context.Context, args ...string) error {
	app.rootCmd.SetArgs(args)
	return app.execute(ctx)
}

func (app *App) execute(ctx context.Context) error {
	err := app.rootCmd.ExecuteContext(ctx)
	if app.store != nil {
		if cerr := app.store.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close store: %w", cerr)
		}
		app.store = nil
	}
	return err
}

func (app *App) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.SetupWith(cfg.LogFormat, logging.ParseLevel(cfg.LogLevel))

	store, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	slog.Debug("Storage initialized", "store", cfg.Store)

	app.cfg = cfg
	app.store = store
	app.metrics = metrics.New()
	return nil
}

// service wires a sheet service over the open store. Operator commands
// that never create sheets pass structure.NoSource{}.
func (app *App) service(provider structure.Provider) *service.SheetService {
	return service.NewSheetService(app.store, provider,
		service.WithMetrics(app.metrics),
		service.WithPenalty(app.cfg.Penalty()),
	)
}

func (app *App) operator(cmd *cobra.Command) string {
	op, _ := cmd.Flags().GetString("operator")
	return op
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		s, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StorePostgres:
		s, err := postgres.New(ctx, cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StoreMongo:
		s, err := mongo.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StoreMemory:
		return memory.New(), nil
	}
	return nil, fmt.Errorf("unknown store %q", cfg.Store)
}
