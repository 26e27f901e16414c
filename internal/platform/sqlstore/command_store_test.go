package sqlstore_test

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/phrazzld/dispatch/internal/domain"
	"github.com/phrazzld/dispatch/internal/platform/sqlstore"
	"github.com/phrazzld/dispatch/internal/store"
	"github.com/phrazzld/dispatch/internal/store/storetest"
	"github.com/phrazzld/dispatch/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSQLiteCommandStoreContract(t *testing.T) {
	t.Parallel()

	storetest.RunCommandStoreTests(t, func(t *testing.T) store.CommandStore {
		return sqlstore.NewCommandStore(testdb.OpenSQLite(t), sqlstore.DialectSQLite, discardLogger())
	})
}

func TestSQLiteCommandStoreRoundTripsAllFields(t *testing.T) {
	t.Parallel()

	s := sqlstore.NewCommandStore(testdb.OpenSQLite(t), sqlstore.DialectSQLite, discardLogger())
	ctx := context.Background()

	created, err := s.Create(ctx, domain.CreateCommandInput{
		Source:               "dashboard",
		Title:                "Рассчитать зарплату",
		Details:              "March payroll",
		RequiresConfirmation: true,
		ConfirmationPrompt:   "Run payroll?",
		MemosQuery:           "payroll",
		MemosContext:         "MemOS auto-context",
		CreatedBy:            "operator",
	})
	require.NoError(t, err)

	stored := storetest.Find(t, s, created.ID)
	assert.Equal(t, created, stored)
	assert.Equal(t, "Рассчитать зарплату", stored.Title)
	assert.Equal(t, time.UTC, stored.CreatedAt.Location())
	assert.True(t, stored.ConfirmedAt.IsZero())

	confirmed, err := s.Confirm(ctx, created.ID, "operator")
	require.NoError(t, err)
	assert.False(t, confirmed.ConfirmedAt.IsZero())
	assert.Equal(t, confirmed, storetest.Find(t, s, created.ID))
}

func TestParseURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		url     string
		dialect sqlstore.Dialect
		driver  string
		wantErr bool
	}{
		{name: "postgres", url: "postgres://u:p@localhost:5432/db", dialect: sqlstore.DialectPostgres, driver: "pgx"},
		{name: "postgresql", url: " postgresql://localhost/db ", dialect: sqlstore.DialectPostgres, driver: "pgx"},
		{name: "sqlite memory", url: "sqlite://:memory:", dialect: sqlstore.DialectSQLite, driver: "sqlite"},
		{name: "sqlite file", url: "sqlite://data/commands.db", dialect: sqlstore.DialectSQLite, driver: "sqlite"},
		{name: "sqlite without path", url: "sqlite://", wantErr: true},
		{name: "mysql", url: "mysql://localhost/db", wantErr: true},
		{name: "empty", url: "", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			target, err := sqlstore.ParseURL(tc.url)
			if tc.wantErr {
				assert.ErrorIs(t, err, sqlstore.ErrUnsupportedURL)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.dialect, target.Dialect)
			assert.Equal(t, tc.driver, target.Driver)
		})
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	t.Parallel()

	db := testdb.OpenSQLite(t)

	applied, err := sqlstore.Migrate(context.Background(), db, sqlstore.DialectSQLite, discardLogger())
	require.NoError(t, err)
	assert.Zero(t, applied, "second run must find nothing pending")
}

func TestMapError(t *testing.T) {
	t.Parallel()

	assert.NoError(t, sqlstore.MapError(nil))
	assert.ErrorIs(t, sqlstore.MapError(sql.ErrNoRows), store.ErrNotFound)

	db := testdb.OpenSQLite(t)
	_, err := db.Exec(`INSERT INTO agent_commands (id, created_at, updated_at, title, status)
		VALUES ('x', 1, 1, 'title', 'paused')`)
	require.Error(t, err)
	assert.ErrorIs(t, sqlstore.MapError(err), store.ErrInvalidEntity)
}
