// Package storage selects the command store backend at startup.
//
// A configured database URL selects the durable SQL store; anything that
// goes wrong while connecting or migrating degrades to the in-memory store
// with a recorded reason, so the server always starts.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/phrazzld/dispatch/internal/config"
	"github.com/phrazzld/dispatch/internal/platform/memory"
	"github.com/phrazzld/dispatch/internal/platform/sqlstore"
	"github.com/phrazzld/dispatch/internal/redact"
	"github.com/phrazzld/dispatch/internal/store"
)

// Mode names the active backend.
type Mode string

// Backend modes.
const (
	ModePostgres Mode = "postgres"
	ModeSQLite   Mode = "sqlite"
	ModeMemory   Mode = "memory"
)

// ReasonNoURL is the degraded-mode reason when no database is configured.
const ReasonNoURL = "database URL is not set; using in-memory storage"

// retryInterval is the first delay between connection attempts.
var retryInterval = 500 * time.Millisecond

// ExternalDependencyError reports a backing service that could not be used.
type ExternalDependencyError struct {
	Dependency string
	Err        error
}

func (e *ExternalDependencyError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Dependency, e.Err)
}

func (e *ExternalDependencyError) Unwrap() error {
	return e.Err
}

// Setup is the store chosen at startup.
type Setup struct {
	Store store.CommandStore
	Mode  Mode
	// Reason explains why the in-memory store is active. Empty when durable.
	Reason string

	db *sql.DB
}

// Durable reports whether commands survive a restart.
func (s *Setup) Durable() bool {
	return s.db != nil
}

// Ping checks the database connection. It always succeeds in memory mode.
func (s *Setup) Ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.PingContext(ctx)
}

// Close releases the database connection, if any.
func (s *Setup) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Open builds the command store for cfg. It never fails: without a URL, or
// when the durable backend cannot be opened and migrated, it returns the
// in-memory store and says why in Reason.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) *Setup {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "storage"))

	if cfg.URL == "" {
		logger.WarnContext(ctx, "using in-memory command store", slog.String("reason", ReasonNoURL))
		return memorySetup(logger, ReasonNoURL)
	}

	setup, err := openDurable(ctx, cfg, logger)
	if err != nil {
		dependency := "database"
		var depErr *ExternalDependencyError
		if errors.As(err, &depErr) {
			dependency = depErr.Dependency
			err = depErr.Err
		}
		reason := fmt.Sprintf("failed to initialize %s store: %s", dependency, redact.Error(err))
		logger.ErrorContext(ctx, "durable command store unavailable, falling back to memory",
			slog.String("reason", reason))
		return memorySetup(logger, reason)
	}
	return setup
}

func memorySetup(logger *slog.Logger, reason string) *Setup {
	return &Setup{
		Store:  memory.NewCommandStore(logger),
		Mode:   ModeMemory,
		Reason: reason,
	}
}

func openDurable(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*Setup, error) {
	target, err := sqlstore.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	fail := func(err error) error {
		return &ExternalDependencyError{Dependency: string(target.Dialect), Err: err}
	}

	pool := sqlstore.DefaultPoolConfig()
	if cfg.MaxOpenConns > 0 {
		pool.MaxOpenConns = cfg.MaxOpenConns
	}
	if cfg.ConnectTimeout > 0 {
		pool.PingTimeout = cfg.ConnectTimeout
	}
	attempts := cfg.ConnectAttempts
	if attempts < 1 {
		attempts = 1
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryInterval

	attempt := 0
	db, err := backoff.Retry(ctx, func() (*sql.DB, error) {
		attempt++
		db, err := sqlstore.Open(ctx, target, pool)
		if err != nil {
			logger.WarnContext(ctx, "database connection attempt failed",
				slog.String("dialect", string(target.Dialect)),
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", attempts),
				slog.String("error", redact.Error(err)))
			return nil, err
		}
		return db, nil
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(uint(attempts)))
	if err != nil {
		return nil, fail(err)
	}

	applied, err := sqlstore.Migrate(ctx, db, target.Dialect, logger)
	if err != nil {
		_ = db.Close()
		return nil, fail(err)
	}

	logger.InfoContext(ctx, "durable command store ready",
		slog.String("dialect", string(target.Dialect)),
		slog.Int("migrations_applied", applied))

	return &Setup{
		Store: sqlstore.NewCommandStore(db, target.Dialect, logger),
		Mode:  Mode(target.Dialect),
		db:    db,
	}, nil
}
