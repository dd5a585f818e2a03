// Package orders lists committed orders. Nothing here writes to the ledger.
package orders

import (
	"context"

	"github.com/rustyeddy/stockledger/ledger"
)

// TransactionLimit caps the wallet transaction log.
const TransactionLimit = 50

// Filter narrows a listing. Zero values match everything.
type Filter struct {
	Symbol string
	Side   ledger.Side
	Limit  int
}

func (f Filter) match(o ledger.Order) bool {
	if f.Symbol != "" && o.Symbol != f.Symbol {
		return false
	}
	if f.Side != "" && o.Side != f.Side {
		return false
	}
	return true
}

// Query reads a user's order history.
type Query struct {
	store ledger.Store
}

func NewQuery(s ledger.Store) *Query {
	return &Query{store: s}
}

// ListOrders returns the user's orders newest first.
func (q *Query) ListOrders(ctx context.Context, userID string, f Filter) ([]ledger.Order, error) {
	f.Symbol = ledger.NormalizeSymbol(f.Symbol)
	if f.Side != "" && !f.Side.Valid() {
		return nil, &ledger.ValidationError{Field: "side", Reason: "must be BUY or SELL"}
	}
	if f.Limit < 0 {
		return nil, &ledger.ValidationError{Field: "limit", Reason: "must not be negative"}
	}

	// Without a filter the store can apply the limit itself.
	storeLimit := f.Limit
	if f.Symbol != "" || f.Side != "" {
		storeLimit = 0
	}

	var all []ledger.Order
	err := q.store.View(ctx, func(r ledger.Reader) error {
		var err error
		all, err = r.ListOrders(ctx, userID, storeLimit)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]ledger.Order, 0, len(all))
	for _, o := range all {
		if !f.match(o) {
			continue
		}
		out = append(out, o)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

// ListTrades is ListOrders without a filter; every order is a completed trade.
func (q *Query) ListTrades(ctx context.Context, userID string) ([]ledger.Order, error) {
	return q.ListOrders(ctx, userID, Filter{})
}

// Transactions returns the newest TransactionLimit orders as the wallet's
// transaction log.
func (q *Query) Transactions(ctx context.Context, userID string) ([]ledger.Order, error) {
	return q.ListOrders(ctx, userID, Filter{Limit: TransactionLimit})
}
