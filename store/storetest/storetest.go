// Package storetest runs ledger tests against every store implementation.
//
// The Postgres store is included only when STOCKLEDGER_TEST_POSTGRES_DSN is
// set. Each test gets its own schema, dropped on cleanup.
package storetest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/stockledger/ledger"
	"github.com/rustyeddy/stockledger/pkg/id"
	"github.com/rustyeddy/stockledger/store"
)

// PostgresDSNEnv names the variable holding the test database DSN.
const PostgresDSNEnv = "STOCKLEDGER_TEST_POSTGRES_DSN"

// Each runs fn in a parallel subtest per store.
func Each(t *testing.T, fn func(t *testing.T, s ledger.Store)) {
	t.Helper()

	t.Run("memory", func(t *testing.T) {
		t.Parallel()
		fn(t, store.NewMemory())
	})
	t.Run("sqlite", func(t *testing.T) {
		t.Parallel()
		fn(t, SQLite(t))
	})
	t.Run("postgres", func(t *testing.T) {
		t.Parallel()
		fn(t, Postgres(t))
	})
}

// SQLite opens a store in t.TempDir().
func SQLite(t *testing.T) *store.SQLite {
	t.Helper()

	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "ledger.db"), 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// Postgres opens a store in a fresh schema, or skips t when no test database
// is configured.
func Postgres(t *testing.T) *store.Postgres {
	t.Helper()

	dsn := PostgresDSN(t)
	ctx := context.Background()
	schema := "ledger_test_" + strings.ToLower(id.New())

	conn, err := pgx.Connect(ctx, dsn)
	require.NoError(t, err)
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, "CREATE SCHEMA "+pgx.Identifier{schema}.Sanitize())
	require.NoError(t, err)
	t.Cleanup(func() {
		c, err := pgx.Connect(context.Background(), dsn)
		if err != nil {
			return
		}
		defer c.Close(context.Background())
		_, _ = c.Exec(context.Background(), "DROP SCHEMA "+pgx.Identifier{schema}.Sanitize()+" CASCADE")
	})

	s, err := store.NewPostgres(ctx, WithSearchPath(dsn, schema), 16)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// PostgresDSN returns the configured test DSN or skips t.
func PostgresDSN(t *testing.T) string {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv(PostgresDSNEnv))
	if dsn == "" {
		t.Skipf("%s not set", PostgresDSNEnv)
	}
	return dsn
}

// WithSearchPath adds a search_path runtime parameter to a URL or
// keyword/value DSN.
func WithSearchPath(dsn, schema string) string {
	if strings.Contains(dsn, "://") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		return dsn + sep + "search_path=" + schema
	}
	return dsn + " search_path=" + schema
}
