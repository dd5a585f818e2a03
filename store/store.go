// Package store provides the in-memory, SQLite and PostgreSQL implementations
// of ledger.Store.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rustyeddy/stockledger/ledger"
)

// Kinds accepted by Open.
const (
	KindMemory   = "memory"
	KindSQLite   = "sqlite"
	KindPostgres = "postgres"
)

var now = func() time.Time { return time.Now().UTC() }

// Options selects and configures a store.
type Options struct {
	Kind        string
	Path        string // sqlite file
	DSN         string // postgres connection string
	BusyTimeout time.Duration
	MaxConns    int32
}

// Open builds the store described by opts.
func Open(ctx context.Context, opts Options) (ledger.Store, error) {
	switch opts.Kind {
	case KindMemory, "":
		return NewMemory(), nil
	case KindSQLite:
		return NewSQLite(opts.Path, opts.BusyTimeout)
	case KindPostgres:
		return NewPostgres(ctx, opts.DSN, opts.MaxConns)
	default:
		return nil, fmt.Errorf("unknown store kind %q (want memory|sqlite|postgres)", opts.Kind)
	}
}

// Seed creates the given stocks if they do not exist yet.
func Seed(ctx context.Context, s ledger.Store, stocks []ledger.Stock) error {
	return s.Update(ctx, func(tx ledger.Tx) error {
		for _, st := range stocks {
			if _, err := tx.GetOrCreateStock(ctx, ledger.NormalizeSymbol(st.Symbol), st.Name); err != nil {
				return fmt.Errorf("seed %s: %w", st.Symbol, err)
			}
		}
		return nil
	})
}
