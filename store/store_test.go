package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/stockledger/ledger"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var errAbort = errors.New("abort")

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "ledger.db")
	s, err := NewSQLite(path, 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

// stores runs fn against every store. Postgres runs only when
// STOCKLEDGER_TEST_POSTGRES_DSN is set.
func stores(t *testing.T, fn func(t *testing.T, s ledger.Store)) {
	t.Helper()

	t.Run("memory", func(t *testing.T) {
		t.Parallel()
		fn(t, NewMemory())
	})
	t.Run("sqlite", func(t *testing.T) {
		t.Parallel()
		s, _ := newTestSQLite(t)
		fn(t, s)
	})
	t.Run("postgres", func(t *testing.T) {
		t.Parallel()
		fn(t, newTestPostgres(t))
	})
}

func mustWallet(t *testing.T, s ledger.Store, user string, balance string) {
	t.Helper()
	err := s.Update(context.Background(), func(tx ledger.Tx) error {
		_, err := tx.CreateWallet(context.Background(), user, d(balance))
		return err
	})
	require.NoError(t, err)
}

func TestStoreCommitIsVisible(t *testing.T) {
	t.Parallel()

	stores(t, func(t *testing.T, s ledger.Store) {
		ctx := context.Background()
		mustWallet(t, s, "u1", "1000.00")

		created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
		err := s.Update(ctx, func(tx ledger.Tx) error {
			st, err := tx.GetOrCreateStock(ctx, "AAPL", "Apple Inc.")
			if err != nil {
				return err
			}
			assert.Equal(t, "AAPL", st.Symbol)

			w, err := tx.LockWallet(ctx, "u1")
			if err != nil {
				return err
			}
			if err := tx.SetWalletBalance(ctx, "u1", w.Balance.Sub(d("500.00"))); err != nil {
				return err
			}
			if err := tx.InsertOrder(ctx, ledger.Order{
				ID: "01A", UserID: "u1", Symbol: "AAPL", Side: ledger.Buy,
				Quantity: 10, Price: d("50.00"), TotalAmount: d("500.00"),
				Status: ledger.StatusCompleted, CreatedAt: created,
			}); err != nil {
				return err
			}
			return tx.PutHolding(ctx, ledger.Holding{UserID: "u1", Symbol: "AAPL", Quantity: 10, AveragePrice: d("50.00")})
		})
		require.NoError(t, err)

		err = s.View(ctx, func(r ledger.Reader) error {
			w, err := r.GetWallet(ctx, "u1")
			require.NoError(t, err)
			assert.True(t, w.Balance.Equal(d("500")), "balance %s", w.Balance)

			h, err := r.GetHolding(ctx, "u1", "AAPL")
			require.NoError(t, err)
			assert.Equal(t, int64(10), h.Quantity)
			assert.True(t, h.AveragePrice.Equal(d("50")))

			orders, err := r.ListOrders(ctx, "u1", 0)
			require.NoError(t, err)
			require.Len(t, orders, 1)
			assert.Equal(t, "01A", orders[0].ID)
			assert.Equal(t, ledger.Buy, orders[0].Side)
			assert.True(t, orders[0].CreatedAt.Equal(created))
			assert.True(t, orders[0].TotalAmount.Equal(d("500")))

			st, err := r.GetStock(ctx, "AAPL")
			require.NoError(t, err)
			assert.Equal(t, "Apple Inc.", st.Name)
			return nil
		})
		require.NoError(t, err)
	})
}

func TestStoreRollbackLeavesNoTrace(t *testing.T) {
	t.Parallel()

	stores(t, func(t *testing.T, s ledger.Store) {
		ctx := context.Background()
		mustWallet(t, s, "u1", "100")

		err := s.Update(ctx, func(tx ledger.Tx) error {
			if _, err := tx.GetOrCreateStock(ctx, "TSLA", ""); err != nil {
				return err
			}
			if err := tx.SetWalletBalance(ctx, "u1", d("0")); err != nil {
				return err
			}
			if err := tx.InsertOrder(ctx, ledger.Order{
				ID: "01X", UserID: "u1", Symbol: "TSLA", Side: ledger.Buy,
				Quantity: 1, Price: d("100"), TotalAmount: d("100"),
				Status: ledger.StatusCompleted, CreatedAt: time.Now(),
			}); err != nil {
				return err
			}
			return errAbort
		})
		assert.ErrorIs(t, err, errAbort)

		err = s.View(ctx, func(r ledger.Reader) error {
			w, err := r.GetWallet(ctx, "u1")
			require.NoError(t, err)
			assert.True(t, w.Balance.Equal(d("100")))

			orders, err := r.ListOrders(ctx, "u1", 0)
			require.NoError(t, err)
			assert.Empty(t, orders)

			_, err = r.GetStock(ctx, "TSLA")
			assert.ErrorIs(t, err, ledger.ErrSymbolNotFound)
			return nil
		})
		require.NoError(t, err)
	})
}

func TestStoreHoldingLifecycle(t *testing.T) {
	t.Parallel()

	stores(t, func(t *testing.T, s ledger.Store) {
		ctx := context.Background()
		require.NoError(t, Seed(ctx, s, []ledger.Stock{{Symbol: "msft", Name: "Microsoft Corp."}}))

		put := func(qty int64) {
			require.NoError(t, s.Update(ctx, func(tx ledger.Tx) error {
				return tx.PutHolding(ctx, ledger.Holding{UserID: "u1", Symbol: "MSFT", Quantity: qty, AveragePrice: d("380.75")})
			}))
		}
		put(5)
		put(7)

		require.NoError(t, s.View(ctx, func(r ledger.Reader) error {
			hs, err := r.ListHoldings(ctx, "u1")
			require.NoError(t, err)
			require.Len(t, hs, 1)
			assert.Equal(t, int64(7), hs[0].Quantity)
			return nil
		}))

		require.NoError(t, s.Update(ctx, func(tx ledger.Tx) error {
			return tx.DeleteHolding(ctx, "u1", "MSFT")
		}))

		require.NoError(t, s.View(ctx, func(r ledger.Reader) error {
			_, err := r.GetHolding(ctx, "u1", "MSFT")
			assert.ErrorIs(t, err, ledger.ErrNotFound)
			hs, err := r.ListHoldings(ctx, "u1")
			require.NoError(t, err)
			assert.Empty(t, hs)
			return nil
		}))

		err := s.Update(ctx, func(tx ledger.Tx) error {
			return tx.PutHolding(ctx, ledger.Holding{UserID: "u1", Symbol: "MSFT", Quantity: 0, AveragePrice: d("1")})
		})
		assert.Error(t, err)
	})
}

func TestStoreOrdersNewestFirst(t *testing.T) {
	t.Parallel()

	stores(t, func(t *testing.T, s ledger.Store) {
		ctx := context.Background()
		base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

		for i, id := range []string{"01A", "01B", "01C"} {
			o := ledger.Order{
				ID: id, UserID: "u1", Symbol: "NVDA", Side: ledger.Buy,
				Quantity: 1, Price: d("720.45"), TotalAmount: d("720.45"),
				Status: ledger.StatusCompleted, CreatedAt: base.Add(time.Duration(i) * time.Minute),
			}
			require.NoError(t, s.Update(ctx, func(tx ledger.Tx) error {
				if _, err := tx.GetOrCreateStock(ctx, "NVDA", ""); err != nil {
					return err
				}
				return tx.InsertOrder(ctx, o)
			}))
		}

		require.NoError(t, s.View(ctx, func(r ledger.Reader) error {
			all, err := r.ListOrders(ctx, "u1", 0)
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, []string{"01C", "01B", "01A"}, []string{all[0].ID, all[1].ID, all[2].ID})

			two, err := r.ListOrders(ctx, "u1", 2)
			require.NoError(t, err)
			require.Len(t, two, 2)
			assert.Equal(t, "01C", two[0].ID)

			none, err := r.ListOrders(ctx, "nobody", 0)
			require.NoError(t, err)
			assert.Empty(t, none)
			return nil
		}))
	})
}

func TestStoreWalletNotFound(t *testing.T) {
	t.Parallel()

	stores(t, func(t *testing.T, s ledger.Store) {
		ctx := context.Background()
		err := s.Update(ctx, func(tx ledger.Tx) error {
			_, err := tx.LockWallet(ctx, "ghost")
			return err
		})
		assert.ErrorIs(t, err, ledger.ErrWalletNotFound)

		err = s.Update(ctx, func(tx ledger.Tx) error {
			return tx.SetWalletBalance(ctx, "ghost", d("1"))
		})
		assert.ErrorIs(t, err, ledger.ErrWalletNotFound)
	})
}

// Concurrent read-modify-write units on one wallet must serialize: every
// increment lands.
func TestStoreSerializesWalletUpdates(t *testing.T) {
	t.Parallel()

	stores(t, func(t *testing.T, s ledger.Store) {
		ctx := context.Background()
		mustWallet(t, s, "u1", "0")

		const n = 20
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- s.Update(ctx, func(tx ledger.Tx) error {
					w, err := tx.LockWallet(ctx, "u1")
					if err != nil {
						return err
					}
					return tx.SetWalletBalance(ctx, "u1", w.Balance.Add(d("1.25")))
				})
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		require.NoError(t, s.View(ctx, func(r ledger.Reader) error {
			w, err := r.GetWallet(ctx, "u1")
			require.NoError(t, err)
			assert.True(t, w.Balance.Equal(d("25")), "balance %s", w.Balance)
			return nil
		}))
	})
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	s, _ := newTestSQLite(t)

	rows, err := s.DB().Query(`SELECT name FROM sqlite_master WHERE type='table' AND name IN ('stocks','wallets','holdings','orders')`)
	require.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	require.NoError(t, rows.Err())

	for _, table := range []string{"stocks", "wallets", "holdings", "orders"} {
		assert.True(t, found[table], table)
	}
}

func TestSQLiteKeepsDecimalText(t *testing.T) {
	t.Parallel()

	s, _ := newTestSQLite(t)
	mustWallet(t, s, "u1", "0.10")

	var raw string
	require.NoError(t, s.DB().QueryRow(`SELECT balance FROM wallets WHERE user_id = 'u1'`).Scan(&raw))
	assert.Equal(t, "0.1", raw)
}

func TestOpen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	m, err := Open(ctx, Options{Kind: KindMemory})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, m)

	sq, err := Open(ctx, Options{Kind: KindSQLite, Path: filepath.Join(t.TempDir(), "x.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, sq)
	require.NoError(t, sq.Close())

	_, err = Open(ctx, Options{Kind: "mongo"})
	assert.Error(t, err)
}

func TestMemoryReset(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, Seed(ctx, m, []ledger.Stock{{Symbol: "aapl", Name: "Apple Inc."}}))
	mustWallet(t, m, "u1", "10")

	m.Reset()

	err := m.View(ctx, func(r ledger.Reader) error {
		stocks, err := r.ListStocks(ctx)
		require.NoError(t, err)
		assert.Empty(t, stocks)
		_, err = r.GetWallet(ctx, "u1")
		assert.ErrorIs(t, err, ledger.ErrWalletNotFound)
		return nil
	})
	require.NoError(t, err)
}
