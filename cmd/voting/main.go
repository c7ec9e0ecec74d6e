package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/example/campus-voting/internal/config"
	"github.com/example/campus-voting/internal/logging"
	"github.com/example/campus-voting/internal/persistence/sqlite"
	"github.com/example/campus-voting/internal/persistence/sqlite/migration"
	"github.com/example/campus-voting/internal/seed"
	"github.com/example/campus-voting/internal/wiring"
)

const janitorInterval = time.Hour

type options struct {
	envFile     string
	addr        string
	seedFile    string
	migrateOnly bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "voting: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, out io.Writer) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("voting", pflag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	fs.StringVar(&opts.addr, "addr", "", "listen address, overrides VOTING_HTTP_PORT")
	fs.StringVar(&opts.seedFile, "seed", "", "YAML seed file applied at startup, overrides VOTING_SEED_FILE")
	fs.BoolVar(&opts.migrateOnly, "migrate-only", false, "apply database migrations and exit")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, nil
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	opts, err := parseFlags(args, stdout)
	if err != nil {
		return err
	}

	if err := config.LoadEnvFile(opts.envFile); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if opts.seedFile != "" {
		cfg.SeedFile = opts.seedFile
	}
	logger := logging.New(cfg.LogFormat, cfg.LogLevel, stdout)

	storage, err := sqlite.Open(migration.DefaultSQLiteConfig(cfg.SQLiteDSN))
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if cerr := storage.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	applied, err := storage.Migrate(ctx, logger)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	logger.Info("database ready", "path", cfg.SQLiteDSN, "migrations_applied", applied)
	if opts.migrateOnly {
		return nil
	}

	app, err := wiring.Build(ctx, cfg, storage, wiring.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(); cerr != nil {
			logger.Error("failed to release application resources", "error", cerr)
		}
	}()

	if cfg.SeedFile != "" {
		if err := applySeed(ctx, app, cfg.SeedFile, logger); err != nil {
			return err
		}
	}

	go app.Hub.RunJanitor(ctx, janitorInterval, cfg.EventRetention)

	addr := opts.addr
	if addr == "" {
		addr = fmt.Sprintf(":%d", cfg.HTTPPort)
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           app.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("voting API listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	logger.Info("voting API stopped")
	return nil
}

func applySeed(ctx context.Context, app *wiring.App, path string, logger *slog.Logger) error {
	file, err := seed.Load(path)
	if err != nil {
		return fmt.Errorf("load seed: %w", err)
	}
	result, err := app.Seed(ctx, file)
	if err != nil {
		return fmt.Errorf("apply seed: %w", err)
	}
	logger.Info("seed applied",
		"path", path,
		"admins_created", result.AdminsCreated,
		"teams_created", result.TeamsCreated,
		"whitelist_added", result.WhitelistAdded,
		"config_updated", result.ConfigUpdated,
	)
	return nil
}
