// Package main runs the dispatch server: the agent command queue API, the
// background worker that executes confirmed commands, and MemOS context
// enrichment.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/phrazzld/dispatch/internal/config"
	"github.com/phrazzld/dispatch/internal/platform/logger"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "dispatch: %v\n", err)
		os.Exit(1)
	}
}

// options are the flags handled here rather than by config.Load.
type options struct {
	configFile  string
	envFile     string
	migrateOnly bool
}

func parseFlags(args []string) (options, *pflag.FlagSet, error) {
	var opts options
	fs := pflag.NewFlagSet("dispatch", pflag.ContinueOnError)
	fs.StringVar(&opts.configFile, "config", "", "optional YAML, TOML or JSON config file")
	fs.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before configuration; <file>.local overrides it")
	fs.BoolVar(&opts.migrateOnly, "migrate-only", false, "apply database migrations and exit")
	config.RegisterFlags(fs)

	if err := fs.Parse(args); err != nil {
		return opts, nil, err
	}
	return opts, fs, nil
}

// loadEnvFiles reads path without overriding the shell, then path.local
// overriding both.
func loadEnvFiles(path string) error {
	if path == "" {
		return nil
	}
	if _, err := config.LoadDotEnv(path, false); err != nil {
		return err
	}
	_, err := config.LoadDotEnv(path+".local", true)
	return err
}

func run(ctx context.Context, args []string) error {
	opts, fs, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if err := loadEnvFiles(opts.envFile); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}

	cfg, err := config.LoadWithOptions(config.LoadOptions{ConfigFile: opts.configFile, Flags: fs})
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, closer, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}
	defer func() { _ = closer.Close() }()

	log.Info("server configuration loaded",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Server.LogLevel),
		slog.Bool("database_url_present", cfg.Database.URL != ""),
		slog.Bool("worker_enabled", cfg.Worker.Enabled),
		slog.String("runner", cfg.Worker.Runner))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.cleanup()

	if opts.migrateOnly {
		if !app.storage.Durable() {
			return fmt.Errorf("cannot migrate: %s", app.storage.Reason)
		}
		log.Info("migrations applied", slog.String("store_mode", string(app.storage.Mode)))
		return nil
	}

	return app.run(ctx)
}
