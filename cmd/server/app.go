package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/dispatch/internal/config"
	"github.com/phrazzld/dispatch/internal/memos"
	"github.com/phrazzld/dispatch/internal/platform/storage"
	"github.com/phrazzld/dispatch/internal/runner"
	"github.com/phrazzld/dispatch/internal/service"
	"github.com/phrazzld/dispatch/internal/worker"
	"golang.org/x/sync/errgroup"
)

// application holds the long-lived components of the server.
type application struct {
	config   *config.Config
	logger   *slog.Logger
	storage  *storage.Setup
	memos    *memos.Provider
	commands service.CommandService
	worker   *worker.Worker
}

// newApplication wires the store, the runner, MemOS and the worker. It only
// fails on invalid runner or service setup; an unusable database degrades
// to memory inside storage.Open.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	setup := storage.Open(ctx, cfg.Database, logger)

	r, err := runner.New(ctx, cfg, logger)
	if err != nil {
		_ = setup.Close()
		return nil, fmt.Errorf("failed to create %s runner: %w", cfg.Worker.Runner, err)
	}

	provider := memos.NewProvider(cfg.Memos, nil, logger)

	commands, err := service.NewCommandService(setup.Store, provider, logger)
	if err != nil {
		_ = setup.Close()
		return nil, fmt.Errorf("failed to create command service: %w", err)
	}

	status := provider.Status()
	logger.Info("application initialized",
		slog.String("store_mode", string(setup.Mode)),
		slog.String("store_reason", setup.Reason),
		slog.String("runner", r.Name()),
		slog.Bool("memos_enabled", status.Enabled),
		slog.String("memos_reason", status.Reason))

	return &application{
		config:   cfg,
		logger:   logger,
		storage:  setup,
		memos:    provider,
		commands: commands,
		worker:   worker.New(setup.Store, r, worker.ConfigFrom(cfg.Worker, string(setup.Mode)), logger),
	}, nil
}

// run serves HTTP and runs the worker until ctx is cancelled or the server
// fails, then shuts both down.
func (app *application) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.worker.Start(gctx)
		<-gctx.Done()
		app.worker.Stop()
		return nil
	})

	g.Go(func() error {
		return app.serveHTTP(gctx, app.setupRouter())
	})

	return g.Wait()
}

// cleanup releases resources held by the application.
func (app *application) cleanup() {
	if err := app.storage.Close(); err != nil {
		app.logger.Error("failed to close command store", slog.String("error", err.Error()))
	}
}
