package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/rustyeddy/stockledger/ledger"
)

// Compile-time check that SQLite implements ledger.Store
var _ ledger.Store = (*SQLite)(nil)

// timeLayout is fixed width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLite is a ledger.Store backed by a single SQLite file. Update units begin
// with BEGIN IMMEDIATE, which takes the database write lock up front, so two
// writers never both read a balance before either commits.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (and migrates) the database at path.
func NewSQLite(path string, busyTimeout time.Duration) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}
	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}

	q := url.Values{}
	q.Set("_txlock", "immediate")
	q.Set("_busy_timeout", fmt.Sprint(busyTimeout.Milliseconds()))
	q.Set("_journal_mode", "WAL")
	q.Set("_foreign_keys", "on")
	dsn := "file:" + path + "?" + q.Encode()

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(SQLiteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// DB exposes the handle for tests and tooling.
func (s *SQLite) DB() *sql.DB { return s.db }

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Update(ctx context.Context, fn func(ledger.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classifySQLite("begin", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&sqliteTx{sqliteReader{q: tx}}); err != nil {
		_ = tx.Rollback()
		return classifySQLite("update", err)
	}

	if err := tx.Commit(); err != nil {
		return classifySQLite("commit", err)
	}
	return nil
}

// View reads inside a deferred transaction on a dedicated connection so it
// does not queue behind the IMMEDIATE write lock.
func (s *SQLite) View(ctx context.Context, fn func(ledger.Reader) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return classifySQLite("view", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN DEFERRED"); err != nil {
		return classifySQLite("view begin", err)
	}
	defer func() { _, _ = conn.ExecContext(context.Background(), "ROLLBACK") }()

	return classifySQLite("view", fn(sqliteReader{q: conn}))
}

// classifySQLite maps lock contention to ledger.ErrConflict. Ledger errors
// pass through unchanged.
func classifySQLite(op string, err error) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return fmt.Errorf("sqlite %s: %w: %v", op, ledger.ErrConflict, err)
		case sqlite3.ErrCantOpen, sqlite3.ErrIoErr, sqlite3.ErrCorrupt, sqlite3.ErrFull, sqlite3.ErrNotADB:
			return fmt.Errorf("sqlite %s: %w: %v", op, ledger.ErrUnavailable, err)
		}
	}
	return err
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqliteReader struct {
	q queryer
}

func (r sqliteReader) GetStock(ctx context.Context, symbol string) (ledger.Stock, error) {
	var st ledger.Stock
	err := r.q.QueryRowContext(ctx,
		`SELECT id, symbol, name FROM stocks WHERE symbol = ?`, symbol,
	).Scan(&st.ID, &st.Symbol, &st.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Stock{}, fmt.Errorf("get stock %q: %w", symbol, ledger.ErrSymbolNotFound)
		}
		return ledger.Stock{}, err
	}
	return st, nil
}

func (r sqliteReader) ListStocks(ctx context.Context) ([]ledger.Stock, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT id, symbol, name FROM stocks ORDER BY symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Stock
	for rows.Next() {
		var st ledger.Stock
		if err := rows.Scan(&st.ID, &st.Symbol, &st.Name); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (r sqliteReader) GetWallet(ctx context.Context, userID string) (ledger.Wallet, error) {
	var (
		w       ledger.Wallet
		updated string
	)
	err := r.q.QueryRowContext(ctx,
		`SELECT user_id, balance, updated_at FROM wallets WHERE user_id = ?`, userID,
	).Scan(&w.UserID, &w.Balance, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Wallet{}, fmt.Errorf("get wallet %q: %w", userID, ledger.ErrWalletNotFound)
		}
		return ledger.Wallet{}, err
	}
	w.UpdatedAt, err = parseTime(updated)
	return w, err
}

func (r sqliteReader) GetHolding(ctx context.Context, userID, symbol string) (ledger.Holding, error) {
	var (
		h       ledger.Holding
		updated string
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT user_id, symbol, quantity, average_price, updated_at
		FROM holdings
		WHERE user_id = ? AND symbol = ?`, userID, symbol,
	).Scan(&h.UserID, &h.Symbol, &h.Quantity, &h.AveragePrice, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Holding{}, fmt.Errorf("get holding %s/%s: %w", userID, symbol, ledger.ErrNotFound)
		}
		return ledger.Holding{}, err
	}
	h.UpdatedAt, err = parseTime(updated)
	return h, err
}

func (r sqliteReader) ListHoldings(ctx context.Context, userID string) ([]ledger.Holding, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT user_id, symbol, quantity, average_price, updated_at
		FROM holdings
		WHERE user_id = ?
		ORDER BY symbol`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Holding
	for rows.Next() {
		var (
			h       ledger.Holding
			updated string
		)
		if err := rows.Scan(&h.UserID, &h.Symbol, &h.Quantity, &h.AveragePrice, &updated); err != nil {
			return nil, err
		}
		if h.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r sqliteReader) ListOrders(ctx context.Context, userID string, limit int) ([]ledger.Order, error) {
	query := `
		SELECT id, user_id, symbol, side, quantity, price, total_amount, status, created_at
		FROM orders
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Order
	for rows.Next() {
		var (
			o       ledger.Order
			created string
		)
		if err := rows.Scan(
			&o.ID,
			&o.UserID,
			&o.Symbol,
			&o.Side,
			&o.Quantity,
			&o.Price,
			&o.TotalAmount,
			&o.Status,
			&created,
		); err != nil {
			return nil, err
		}
		if o.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

type sqliteTx struct {
	sqliteReader
}

func (tx *sqliteTx) GetOrCreateStock(ctx context.Context, symbol, name string) (ledger.Stock, error) {
	if name == "" {
		name = symbol
	}
	if _, err := tx.q.ExecContext(ctx,
		`INSERT INTO stocks (symbol, name) VALUES (?, ?) ON CONFLICT(symbol) DO NOTHING`,
		symbol, name,
	); err != nil {
		return ledger.Stock{}, err
	}
	return tx.GetStock(ctx, symbol)
}

func (tx *sqliteTx) CreateWallet(ctx context.Context, userID string, balance decimal.Decimal) (ledger.Wallet, error) {
	if _, err := tx.q.ExecContext(ctx,
		`INSERT INTO wallets (user_id, balance, updated_at) VALUES (?, ?, ?) ON CONFLICT(user_id) DO NOTHING`,
		userID, balance.String(), formatTime(now()),
	); err != nil {
		return ledger.Wallet{}, err
	}
	return tx.GetWallet(ctx, userID)
}

// LockWallet needs no extra locking: the IMMEDIATE transaction already holds
// the database write lock.
func (tx *sqliteTx) LockWallet(ctx context.Context, userID string) (ledger.Wallet, error) {
	return tx.GetWallet(ctx, userID)
}

func (tx *sqliteTx) SetWalletBalance(ctx context.Context, userID string, balance decimal.Decimal) error {
	res, err := tx.q.ExecContext(ctx,
		`UPDATE wallets SET balance = ?, updated_at = ? WHERE user_id = ?`,
		balance.String(), formatTime(now()), userID,
	)
	if err != nil {
		return err
	}
	return expectOneRow(res, fmt.Errorf("set balance %q: %w", userID, ledger.ErrWalletNotFound))
}

func (tx *sqliteTx) LockHolding(ctx context.Context, userID, symbol string) (ledger.Holding, error) {
	return tx.GetHolding(ctx, userID, symbol)
}

func (tx *sqliteTx) PutHolding(ctx context.Context, h ledger.Holding) error {
	if h.Quantity <= 0 {
		return fmt.Errorf("put holding %s/%s: quantity %d must be positive", h.UserID, h.Symbol, h.Quantity)
	}
	_, err := tx.q.ExecContext(ctx, `
		INSERT INTO holdings (user_id, symbol, quantity, average_price, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, symbol) DO UPDATE SET
			quantity = excluded.quantity,
			average_price = excluded.average_price,
			updated_at = excluded.updated_at`,
		h.UserID, h.Symbol, h.Quantity, h.AveragePrice.String(), formatTime(now()),
	)
	return err
}

func (tx *sqliteTx) DeleteHolding(ctx context.Context, userID, symbol string) error {
	_, err := tx.q.ExecContext(ctx,
		`DELETE FROM holdings WHERE user_id = ? AND symbol = ?`, userID, symbol)
	return err
}

func (tx *sqliteTx) InsertOrder(ctx context.Context, o ledger.Order) error {
	_, err := tx.q.ExecContext(ctx, `
		INSERT INTO orders
		(id, user_id, symbol, side, quantity, price, total_amount, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.UserID, o.Symbol, string(o.Side), o.Quantity,
		o.Price.String(), o.TotalAmount.String(), string(o.Status), formatTime(o.CreatedAt),
	)
	return err
}

func expectOneRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
