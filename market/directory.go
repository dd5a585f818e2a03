package market

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/rustyeddy/stockledger/ledger"
)

const listKey = "stocks:*"

// Directory serves stock reference rows from a ristretto cache in front of the
// ledger. Stocks are append-only, so a cached row never goes stale; only the
// full listing is bounded by the TTL.
type Directory struct {
	store ledger.Store
	cache *ristretto.Cache
	ttl   time.Duration
}

func NewDirectory(store ledger.Store, maxCost int64, ttl time.Duration) (*Directory, error) {
	if maxCost <= 0 {
		maxCost = 1 << 20
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Directory{store: store, cache: c, ttl: ttl}, nil
}

// Get returns the stock for symbol or ledger.ErrSymbolNotFound.
func (d *Directory) Get(ctx context.Context, symbol string) (ledger.Stock, error) {
	symbol = ledger.NormalizeSymbol(symbol)
	if v, ok := d.cache.Get("stock:" + symbol); ok {
		return v.(ledger.Stock), nil
	}

	var st ledger.Stock
	err := d.store.View(ctx, func(r ledger.Reader) error {
		var err error
		st, err = r.GetStock(ctx, symbol)
		return err
	})
	if err != nil {
		return ledger.Stock{}, err
	}
	d.cache.Set("stock:"+symbol, st, 1)
	return st, nil
}

// List returns every stock sorted by symbol.
func (d *Directory) List(ctx context.Context) ([]ledger.Stock, error) {
	if v, ok := d.cache.Get(listKey); ok {
		return v.([]ledger.Stock), nil
	}

	var out []ledger.Stock
	err := d.store.View(ctx, func(r ledger.Reader) error {
		var err error
		out, err = r.ListStocks(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	d.cache.SetWithTTL(listKey, out, int64(len(out))+1, d.ttl)
	for _, st := range out {
		d.cache.Set("stock:"+st.Symbol, st, 1)
	}
	return out, nil
}

// Invalidate drops the cached listing, e.g. after a stock was created.
func (d *Directory) Invalidate() { d.cache.Del(listKey) }

// Wait blocks until pending cache writes are applied.
func (d *Directory) Wait() { d.cache.Wait() }

func (d *Directory) Close() { d.cache.Close() }
