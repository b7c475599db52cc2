package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"
)

const testMigrationsDir = "../../db/migrations"

func openTestDB(t *testing.T) (*sql.DB, context.Context) {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("BIDLINE_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("BIDLINE_TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	db, err := Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`)
	require.NoError(t, err, "reset schema")
	return db, ctx
}

func TestMigrationsRoundTripPostgres(t *testing.T) {
	db, ctx := openTestDB(t)
	dir := filepath.FromSlash(testMigrationsDir)

	applied, err := ApplyMigrations(ctx, db, dir)
	require.NoError(t, err, "apply up migrations (pass 1)")
	require.NotEmpty(t, applied)

	again, err := ApplyMigrations(ctx, db, dir)
	require.NoError(t, err)
	require.Empty(t, again, "second apply should be a no-op")

	rolledBack, err := RollbackMigrations(ctx, db, dir, 0)
	require.NoError(t, err, "apply down migrations")
	require.Len(t, rolledBack, len(applied))

	var exists bool
	require.NoError(t, db.QueryRowContext(ctx, `SELECT to_regclass('public.proposals') IS NOT NULL`).Scan(&exists))
	require.False(t, exists, "proposals table should be dropped")

	applied, err = ApplyMigrations(ctx, db, dir)
	require.NoError(t, err, "apply up migrations (pass 2)")
	require.NotEmpty(t, applied)
}
