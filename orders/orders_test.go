package orders

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/stockledger/ledger"
	"github.com/rustyeddy/stockledger/store"
	"github.com/rustyeddy/stockledger/trade"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func seeded(t *testing.T) (*Query, []ledger.Order) {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.Update(ctx, func(tx ledger.Tx) error {
		_, err := tx.CreateWallet(ctx, "u1", d("100000"))
		return err
	}))
	e := trade.NewExecutor(mem, nil, nil)

	var placed []ledger.Order
	steps := []struct {
		side ledger.Side
		sym  string
		qty  int64
	}{
		{ledger.Buy, "AAPL", 10},
		{ledger.Buy, "MSFT", 5},
		{ledger.Sell, "AAPL", 3},
		{ledger.Buy, "AAPL", 1},
		{ledger.Sell, "MSFT", 5},
	}
	for _, s := range steps {
		o, err := e.Execute(ctx, ledger.TradeRequest{UserID: "u1", Symbol: s.sym, Side: s.side, Quantity: s.qty, Price: d("10")})
		require.NoError(t, err)
		placed = append(placed, o)
	}
	return NewQuery(mem), placed
}

func ids(os []ledger.Order) []string {
	out := make([]string, len(os))
	for i, o := range os {
		out[i] = o.ID
	}
	return out
}

func TestListOrders(t *testing.T) {
	t.Parallel()

	q, placed := seeded(t)
	ctx := context.Background()

	tests := []struct {
		name string
		f    Filter
		want []int
	}{
		{"all newest first", Filter{}, []int{4, 3, 2, 1, 0}},
		{"limit", Filter{Limit: 2}, []int{4, 3}},
		{"symbol", Filter{Symbol: "aapl"}, []int{3, 2, 0}},
		{"side", Filter{Side: ledger.Sell}, []int{4, 2}},
		{"symbol and side", Filter{Symbol: "AAPL", Side: ledger.Buy}, []int{3, 0}},
		{"filtered limit", Filter{Symbol: "AAPL", Limit: 1}, []int{3}},
		{"no match", Filter{Symbol: "TSLA"}, []int{}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := q.ListOrders(ctx, "u1", tt.f)
			require.NoError(t, err)

			want := make([]string, len(tt.want))
			for i, idx := range tt.want {
				want[i] = placed[idx].ID
			}
			assert.Equal(t, want, ids(got))
		})
	}
}

func TestListOrdersRejectsBadFilter(t *testing.T) {
	t.Parallel()

	q, _ := seeded(t)
	_, err := q.ListOrders(context.Background(), "u1", Filter{Side: "HOLD"})
	assert.True(t, ledger.IsValidation(err))
	_, err = q.ListOrders(context.Background(), "u1", Filter{Limit: -1})
	assert.True(t, ledger.IsValidation(err))
}

func TestListTradesAndTransactions(t *testing.T) {
	t.Parallel()

	q, placed := seeded(t)
	ctx := context.Background()

	trades, err := q.ListTrades(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, trades, len(placed))

	txs, err := q.Transactions(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, ids(trades), ids(txs))

	none, err := q.ListTrades(ctx, "someone-else")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestTransactionsCappedAtFifty(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.Update(ctx, func(tx ledger.Tx) error {
		_, err := tx.CreateWallet(ctx, "u1", d("1000"))
		return err
	}))
	e := trade.NewExecutor(mem, nil, nil)
	for i := 0; i < TransactionLimit+5; i++ {
		_, err := e.ExecuteBuy(ctx, "u1", "AAPL", 1, d("1"))
		require.NoError(t, err)
	}

	txs, err := NewQuery(mem).Transactions(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, txs, TransactionLimit)
}
