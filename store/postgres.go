package store

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/rustyeddy/stockledger/ledger"
)

// Compile-time check that Postgres implements ledger.Store
var _ ledger.Store = (*Postgres)(nil)

// Postgres is a ledger.Store on a pgx pool. Update units run at READ COMMITTED
// and take row locks with SELECT ... FOR UPDATE on the wallet and holding they
// change.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects, pings and migrates.
func NewPostgres(ctx context.Context, dsn string, maxConns int32) (*Postgres, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres: dsn is required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, classifyPostgres("connect", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, classifyPostgres("ping", err)
	}
	if _, err := pool.Exec(ctx, PostgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func (p *Postgres) Update(ctx context.Context, fn func(ledger.Tx) error) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return classifyPostgres("begin", err)
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback(context.Background())
			panic(r)
		}
	}()

	if err := fn(&pgTx{pgReader{q: tx}}); err != nil {
		_ = tx.Rollback(context.Background())
		return classifyPostgres("update", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return classifyPostgres("commit", err)
	}
	return nil
}

func (p *Postgres) View(ctx context.Context, fn func(ledger.Reader) error) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return classifyPostgres("view begin", err)
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	return classifyPostgres("view", fn(pgReader{q: tx}))
}

// SQLSTATEs that mean "someone else got there first, try again".
var pgConflictCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
}

func classifyPostgres(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ledger.ErrConflict) || errors.Is(err, ledger.ErrUnavailable) || ledger.IsBusiness(err) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgConflictCodes[pgErr.Code] {
			return fmt.Errorf("postgres %s: %w: %v", op, ledger.ErrConflict, err)
		}
		// Class 08: connection exception, 57P: operator intervention.
		if len(pgErr.Code) == 5 && (pgErr.Code[:2] == "08" || pgErr.Code[:3] == "57P") {
			return fmt.Errorf("postgres %s: %w: %v", op, ledger.ErrUnavailable, err)
		}
		return err
	}

	var netErr net.Error
	var connectErr *pgconn.ConnectError
	if errors.As(err, &netErr) || errors.As(err, &connectErr) || pgconn.SafeToRetry(err) {
		return fmt.Errorf("postgres %s: %w: %v", op, ledger.ErrUnavailable, err)
	}
	return err
}

type pgQueryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgReader struct {
	q pgQueryer
}

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	return d, nil
}

func (r pgReader) GetStock(ctx context.Context, symbol string) (ledger.Stock, error) {
	var st ledger.Stock
	err := r.q.QueryRow(ctx,
		`SELECT id, symbol, name FROM stocks WHERE symbol = $1`, symbol,
	).Scan(&st.ID, &st.Symbol, &st.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.Stock{}, fmt.Errorf("get stock %q: %w", symbol, ledger.ErrSymbolNotFound)
		}
		return ledger.Stock{}, err
	}
	return st, nil
}

func (r pgReader) ListStocks(ctx context.Context) ([]ledger.Stock, error) {
	rows, err := r.q.Query(ctx, `SELECT id, symbol, name FROM stocks ORDER BY symbol`)
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

func (r pgReader) wallet(ctx context.Context, userID string, forUpdate bool) (ledger.Wallet, error) {
	query := `SELECT user_id, balance::text, updated_at FROM wallets WHERE user_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var (
		w       ledger.Wallet
		balance string
	)
	err := r.q.QueryRow(ctx, query, userID).Scan(&w.UserID, &balance, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.Wallet{}, fmt.Errorf("get wallet %q: %w", userID, ledger.ErrWalletNotFound)
		}
		return ledger.Wallet{}, err
	}
	w.Balance, err = parseDecimal(balance)
	return w, err
}

func (r pgReader) GetWallet(ctx context.Context, userID string) (ledger.Wallet, error) {
	return r.wallet(ctx, userID, false)
}

func (r pgReader) holding(ctx context.Context, userID, symbol string, forUpdate bool) (ledger.Holding, error) {
	query := `
		SELECT user_id, symbol, quantity, average_price::text, updated_at
		FROM holdings
		WHERE user_id = $1 AND symbol = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var (
		h   ledger.Holding
		avg string
	)
	err := r.q.QueryRow(ctx, query, userID, symbol).Scan(&h.UserID, &h.Symbol, &h.Quantity, &avg, &h.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.Holding{}, fmt.Errorf("get holding %s/%s: %w", userID, symbol, ledger.ErrNotFound)
		}
		return ledger.Holding{}, err
	}
	h.AveragePrice, err = parseDecimal(avg)
	return h, err
}

func (r pgReader) GetHolding(ctx context.Context, userID, symbol string) (ledger.Holding, error) {
	return r.holding(ctx, userID, symbol, false)
}

func (r pgReader) ListHoldings(ctx context.Context, userID string) ([]ledger.Holding, error) {
	rows, err := r.q.Query(ctx, `
		SELECT user_id, symbol, quantity, average_price::text, updated_at
		FROM holdings
		WHERE user_id = $1
		ORDER BY symbol`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Holding
	for rows.Next() {
		var (
			h   ledger.Holding
			avg string
		)
		if err := rows.Scan(&h.UserID, &h.Symbol, &h.Quantity, &avg, &h.UpdatedAt); err != nil {
			return nil, err
		}
		if h.AveragePrice, err = parseDecimal(avg); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r pgReader) ListOrders(ctx context.Context, userID string, limit int) ([]ledger.Order, error) {
	query := `
		SELECT id, user_id, symbol, side, quantity, price::text, total_amount::text, status, created_at
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Order
	for rows.Next() {
		var (
			o            ledger.Order
			side, status string
			price, total string
		)
		if err := rows.Scan(&o.ID, &o.UserID, &o.Symbol, &side, &o.Quantity, &price, &total, &status, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.Side = ledger.Side(side)
		o.Status = ledger.Status(status)
		if o.Price, err = parseDecimal(price); err != nil {
			return nil, err
		}
		if o.TotalAmount, err = parseDecimal(total); err != nil {
			return nil, err
		}
		o.CreatedAt = o.CreatedAt.UTC()
		out = append(out, o)
	}
	return out, rows.Err()
}

type pgTx struct {
	pgReader
}

func (tx *pgTx) GetOrCreateStock(ctx context.Context, symbol, name string) (ledger.Stock, error) {
	if name == "" {
		name = symbol
	}
	if _, err := tx.q.Exec(ctx,
		`INSERT INTO stocks (symbol, name) VALUES ($1, $2) ON CONFLICT (symbol) DO NOTHING`,
		symbol, name,
	); err != nil {
		return ledger.Stock{}, err
	}
	return tx.GetStock(ctx, symbol)
}

func (tx *pgTx) CreateWallet(ctx context.Context, userID string, balance decimal.Decimal) (ledger.Wallet, error) {
	tag, err := tx.q.Exec(ctx,
		`INSERT INTO wallets (user_id, balance, updated_at) VALUES ($1, $2::numeric, $3) ON CONFLICT (user_id) DO NOTHING`,
		userID, balance.String(), now(),
	)
	if err != nil {
		return ledger.Wallet{}, err
	}
	// Another unit created the wallet after our LockWallet saw none. The
	// caller's balance was not applied, so the unit must run again.
	if tag.RowsAffected() == 0 {
		return ledger.Wallet{}, fmt.Errorf("create wallet %q: %w", userID, ledger.ErrConflict)
	}
	return tx.wallet(ctx, userID, true)
}

func (tx *pgTx) LockWallet(ctx context.Context, userID string) (ledger.Wallet, error) {
	return tx.wallet(ctx, userID, true)
}

func (tx *pgTx) SetWalletBalance(ctx context.Context, userID string, balance decimal.Decimal) error {
	tag, err := tx.q.Exec(ctx,
		`UPDATE wallets SET balance = $2::numeric, updated_at = $3 WHERE user_id = $1`,
		userID, balance.String(), now(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set balance %q: %w", userID, ledger.ErrWalletNotFound)
	}
	return nil
}

func (tx *pgTx) LockHolding(ctx context.Context, userID, symbol string) (ledger.Holding, error) {
	return tx.holding(ctx, userID, symbol, true)
}

func (tx *pgTx) PutHolding(ctx context.Context, h ledger.Holding) error {
	if h.Quantity <= 0 {
		return fmt.Errorf("put holding %s/%s: quantity %d must be positive", h.UserID, h.Symbol, h.Quantity)
	}
	_, err := tx.q.Exec(ctx, `
		INSERT INTO holdings (user_id, symbol, quantity, average_price, updated_at)
		VALUES ($1, $2, $3, $4::numeric, $5)
		ON CONFLICT (user_id, symbol) DO UPDATE SET
			quantity = EXCLUDED.quantity,
			average_price = EXCLUDED.average_price,
			updated_at = EXCLUDED.updated_at`,
		h.UserID, h.Symbol, h.Quantity, h.AveragePrice.String(), now(),
	)
	return err
}

func (tx *pgTx) DeleteHolding(ctx context.Context, userID, symbol string) error {
	_, err := tx.q.Exec(ctx, `DELETE FROM holdings WHERE user_id = $1 AND symbol = $2`, userID, symbol)
	return err
}

func (tx *pgTx) InsertOrder(ctx context.Context, o ledger.Order) error {
	_, err := tx.q.Exec(ctx, `
		INSERT INTO orders
		(id, user_id, symbol, side, quantity, price, total_amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8, $9)`,
		o.ID, o.UserID, o.Symbol, string(o.Side), o.Quantity,
		o.Price.String(), o.TotalAmount.String(), string(o.Status), o.CreatedAt,
	)
	return err
}
