// Package market holds reference prices. Prices only value portfolios and
// fill market orders; nothing here touches the ledger.
package market

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/stockledger/ledger"
)

var ErrPriceNotFound = errors.New("price not found")

// Quote is the latest reference price for a symbol.
type Quote struct {
	Symbol        string          `json:"symbol"`
	Price         decimal.Decimal `json:"price"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"changePercent"`
	Time          time.Time       `json:"time"`
}

// PriceSource returns the current reference price for a symbol.
type PriceSource interface {
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// PriceLookup reports the current price for a symbol, if one is known.
type PriceLookup func(symbol string) (decimal.Decimal, bool)

// MapLookup builds a PriceLookup over a fixed map.
func MapLookup(m map[string]decimal.Decimal) PriceLookup {
	return func(symbol string) (decimal.Decimal, bool) {
		p, ok := m[ledger.NormalizeSymbol(symbol)]
		return p, ok
	}
}

// PriceStore keeps the latest quote per symbol.
type PriceStore struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

func NewPriceStore() *PriceStore {
	return &PriceStore{quotes: make(map[string]Quote)}
}

// Set records q, filling Change from the previous quote when the caller left
// it zero.
func (ps *PriceStore) Set(q Quote) Quote {
	q.Symbol = ledger.NormalizeSymbol(q.Symbol)
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if prev, ok := ps.quotes[q.Symbol]; ok && q.Change.IsZero() && prev.Price.IsPositive() {
		q.Change = q.Price.Sub(prev.Price)
		q.ChangePercent = q.Change.Div(prev.Price).Mul(decimal.NewFromInt(100)).Round(4)
	}
	ps.quotes[q.Symbol] = q
	return q
}

func (ps *PriceStore) Get(symbol string) (Quote, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	q, ok := ps.quotes[ledger.NormalizeSymbol(symbol)]
	if !ok {
		return Quote{}, ErrPriceNotFound
	}
	return q, nil
}

func (ps *PriceStore) GetPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	q, err := ps.Get(symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return q.Price, nil
}

// Snapshot returns every quote sorted by symbol.
func (ps *PriceStore) Snapshot() []Quote {
	ps.mu.RLock()
	out := make([]Quote, 0, len(ps.quotes))
	for _, q := range ps.quotes {
		out = append(out, q)
	}
	ps.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Lookup returns a PriceLookup reading the store's current quotes.
func (ps *PriceStore) Lookup() PriceLookup {
	return func(symbol string) (decimal.Decimal, bool) {
		q, err := ps.Get(symbol)
		if err != nil {
			return decimal.Zero, false
		}
		return q.Price, true
	}
}
