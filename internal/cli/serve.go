package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"bankaccounts/internal/app"
	"bankaccounts/internal/config"
	"bankaccounts/internal/eventstore"
	"bankaccounts/internal/httpapi"
	"bankaccounts/internal/pipeline"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("config", "c", "", "Path to TOML config file")

	rootCmd.AddCommand(sweepCmd)
	sweepCmd.Flags().StringP("config", "c", "", "Path to TOML config file")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server and process managers",
	RunE:  runServe,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one reconciliation sweep and exit",
	Long: `Scan for transfer sagas that are past their deadline without reaching a
terminal phase, re-drive them, and report sagas stuck on a failed
compensation.`,
	RunE: runSweep,
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

// openStore builds the configured event store backend. The returned close
// function is a no-op for the memory backend.
func openStore(ctx context.Context, cfg config.StoreConfig, log *slog.Logger) (eventstore.Store, func(), error) {
	switch cfg.Backend {
	case "memory":
		log.Warn("memory store configured: events do not survive a restart")
		return eventstore.NewMemory(), func() {}, nil

	case "sqlite":
		st, err := eventstore.OpenSQLite(ctx, cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { st.Close() }, nil

	case "postgres":
		pc, err := pgxpool.ParseConfig(cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("parse dsn: %w", err)
		}
		pc.HealthCheckPeriod = 10 * time.Second
		pool, err := pgxpool.NewWithConfig(ctx, pc)
		if err != nil {
			return nil, nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("db ping: %w", err)
		}
		if cfg.Migrate {
			if err := eventstore.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, nil, err
			}
		}
		return eventstore.NewPostgres(pool), pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

type system struct {
	store      eventstore.Store
	accounts   *app.AccountService
	commands   *app.CommandService
	transfers  *app.TransferManager
	pipe       *pipeline.Pipeline
	reconciler *app.Reconciler
}

// buildSystem wires the aggregates, process managers, pipeline, and
// reconciler on top of a store.
func buildSystem(cfg config.Config, store eventstore.Store, log *slog.Logger) *system {
	retry := app.RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Base:        cfg.Retry.Base.Std(),
	}
	accounts := app.NewAccountService(store, log, retry)
	commands := app.NewCommandService(store, log)
	transfers := app.NewTransferManager(store, accounts, commands, log)
	operations := app.NewOperationManager(accounts, commands, log)

	pipe := pipeline.New(store, log,
		pipeline.WithPollInterval(cfg.Pipeline.PollInterval.Std()),
		pipeline.WithBatchSize(cfg.Pipeline.BatchSize),
		pipeline.WithRetryBase(cfg.Retry.Base.Std()),
	)
	pipe.Register("operations", operations.Handle)
	pipe.Register("transfers", transfers.Handle)

	reconciler := app.NewReconciler(store, transfers, log,
		cfg.Reconciler.Interval.Std(), cfg.Reconciler.TransferDeadline.Std())

	return &system{
		store:      store,
		accounts:   accounts,
		commands:   commands,
		transfers:  transfers,
		pipe:       pipe,
		reconciler: reconciler,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg.Store, log)
	if err != nil {
		return err
	}
	defer closeStore()

	sys := buildSystem(cfg, store, log)
	go sys.pipe.Run(ctx)
	go sys.reconciler.Run(ctx)

	h := httpapi.NewHandlers(sys.accounts, sys.commands, sys.transfers)
	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: httpapi.Router(h, cfg.Server.MaxInflight),

		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	log.Info("bankd listening", "addr", cfg.Server.Addr, "store", cfg.Store.Backend)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info("bankd stopped")
	return nil
}

func runSweep(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg.Store, log)
	if err != nil {
		return err
	}
	defer closeStore()

	sys := buildSystem(cfg, store, log)
	n, err := sys.reconciler.Sweep(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "re-drove %d transfer(s)\n", n)
	return nil
}
