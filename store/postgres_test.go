package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/stockledger/ledger"
	"github.com/rustyeddy/stockledger/pkg/id"
)

// newTestPostgres opens a Postgres store in a throwaway schema, or skips when
// STOCKLEDGER_TEST_POSTGRES_DSN is unset.
func newTestPostgres(t *testing.T) *Postgres {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("STOCKLEDGER_TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("STOCKLEDGER_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	schema := pgx.Identifier{"ledger_test_" + strings.ToLower(id.New())}.Sanitize()

	conn, err := pgx.Connect(ctx, dsn)
	require.NoError(t, err)
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)
	t.Cleanup(func() {
		c, err := pgx.Connect(context.Background(), dsn)
		if err != nil {
			return
		}
		defer c.Close(context.Background())
		_, _ = c.Exec(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
	})

	sep := " "
	if strings.Contains(dsn, "://") {
		sep = "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
	}
	s, err := NewPostgres(ctx, dsn+sep+"search_path="+strings.Trim(schema, `"`), 16)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestClassifyPostgres(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"serialization", &pgconn.PgError{Code: "40001"}, ledger.ErrConflict},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, ledger.ErrConflict},
		{"lock timeout", &pgconn.PgError{Code: "55P03"}, ledger.ErrConflict},
		{"connection failure", &pgconn.PgError{Code: "08006"}, ledger.ErrUnavailable},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, ledger.ErrUnavailable},
		{"business passes through", fmt.Errorf("buy: %w", ledger.ErrInsufficientFunds), ledger.ErrInsufficientFunds},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.ErrorIs(t, classifyPostgres("op", tt.err), tt.want)
		})
	}

	plain := errors.New("syntax error")
	assert.Equal(t, plain, classifyPostgres("op", plain))
	assert.NoError(t, classifyPostgres("op", nil))

	unique := &pgconn.PgError{Code: "23505"}
	got := classifyPostgres("op", unique)
	assert.False(t, errors.Is(got, ledger.ErrConflict))
	assert.False(t, errors.Is(got, ledger.ErrUnavailable))
}

func TestNewPostgresRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := NewPostgres(context.Background(), "", 0)
	assert.Error(t, err)
}

func TestPostgresConcurrentFirstDeposits(t *testing.T) {
	t.Parallel()

	s := newTestPostgres(t)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				err := s.Update(ctx, func(tx ledger.Tx) error {
					w, err := tx.LockWallet(ctx, "u1")
					if errors.Is(err, ledger.ErrWalletNotFound) {
						_, err = tx.CreateWallet(ctx, "u1", d("10"))
						return err
					}
					if err != nil {
						return err
					}
					return tx.SetWalletBalance(ctx, "u1", w.Balance.Add(d("10")))
				})
				if !errors.Is(err, ledger.ErrConflict) {
					errs[i] = err
					return
				}
			}
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.NoError(t, s.View(ctx, func(r ledger.Reader) error {
		w, err := r.GetWallet(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, w.Balance.Equal(d("80")), "balance %s", w.Balance)
		return nil
	}))
}
