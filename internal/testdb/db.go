package testdb

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/phrazzld/dispatch/internal/platform/sqlstore"
	"github.com/stretchr/testify/require"
)

// TestTimeout defines a default timeout for test database operations.
const TestTimeout = 5 * time.Second

// IsIntegrationTestEnvironment returns true if a PostgreSQL test database
// is configured.
func IsIntegrationTestEnvironment() bool {
	return GetTestDatabaseURL() != ""
}

// GetTestDatabaseURL returns DATABASE_URL, falling back to
// DISPATCH_TEST_DB_URL.
func GetTestDatabaseURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}
	return os.Getenv("DISPATCH_TEST_DB_URL")
}

// OpenSQLite returns a migrated in-memory SQLite database closed at the end
// of the test.
func OpenSQLite(t *testing.T) *sql.DB {
	t.Helper()
	return open(t, "sqlite://:memory:")
}

// OpenPostgres returns the migrated integration database with an empty
// agent_commands table. The test is skipped when no database is configured.
func OpenPostgres(t *testing.T) *sql.DB {
	t.Helper()
	if !IsIntegrationTestEnvironment() {
		t.Skip("DATABASE_URL not set, skipping PostgreSQL integration test")
	}
	db := open(t, GetTestDatabaseURL())
	ResetCommands(t, db)
	return db
}

// ResetCommands deletes every command row.
func ResetCommands(t *testing.T, db *sql.DB) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()
	_, err := db.ExecContext(ctx, "DELETE FROM agent_commands")
	require.NoError(t, err, "failed to reset agent_commands")
}

func open(t *testing.T, url string) *sql.DB {
	t.Helper()

	target, err := sqlstore.ParseURL(url)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()

	db, err := sqlstore.Open(ctx, target, sqlstore.DefaultPoolConfig())
	require.NoError(t, err, "failed to open test database")
	t.Cleanup(func() {
		_ = db.Close()
	})

	_, err = sqlstore.Migrate(ctx, db, target.Dialect, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err, "failed to migrate test database")
	return db
}

// Dialect returns the dialect of the integration database URL.
func Dialect(t *testing.T) sqlstore.Dialect {
	t.Helper()
	target, err := sqlstore.ParseURL(GetTestDatabaseURL())
	require.NoError(t, err)
	return target.Dialect
}
