package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// Store is the transactional ledger. Update runs fn as one atomic unit: when
// fn returns nil every write is committed, otherwise none is. Two Update units
// touching the same wallet or holding are serialized, or one of them fails
// with ErrConflict.
type Store interface {
	Update(ctx context.Context, fn func(Tx) error) error
	View(ctx context.Context, fn func(Reader) error) error
	Close() error
}

// Reader is a consistent read of committed state.
type Reader interface {
	// GetStock returns ErrSymbolNotFound for unknown symbols.
	GetStock(ctx context.Context, symbol string) (Stock, error)
	ListStocks(ctx context.Context) ([]Stock, error)

	// GetWallet returns ErrWalletNotFound when the user has no wallet.
	GetWallet(ctx context.Context, userID string) (Wallet, error)

	// GetHolding returns ErrNotFound when the user holds no shares of symbol.
	GetHolding(ctx context.Context, userID, symbol string) (Holding, error)
	ListHoldings(ctx context.Context, userID string) ([]Holding, error)

	// ListOrders returns orders newest first. limit <= 0 means no limit.
	ListOrders(ctx context.Context, userID string, limit int) ([]Order, error)
}

// Tx is the read-write view handed to an Update unit. The Lock* reads take
// the row lock (or its equivalent) so the value cannot change before commit.
type Tx interface {
	Reader

	GetOrCreateStock(ctx context.Context, symbol, name string) (Stock, error)

	// CreateWallet returns ErrConflict when a concurrent unit created the
	// wallet first and balance was not applied.
	CreateWallet(ctx context.Context, userID string, balance decimal.Decimal) (Wallet, error)
	LockWallet(ctx context.Context, userID string) (Wallet, error)
	SetWalletBalance(ctx context.Context, userID string, balance decimal.Decimal) error

	LockHolding(ctx context.Context, userID, symbol string) (Holding, error)
	PutHolding(ctx context.Context, h Holding) error
	DeleteHolding(ctx context.Context, userID, symbol string) error

	InsertOrder(ctx context.Context, o Order) error
}
