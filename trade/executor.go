// Package trade executes market orders against the ledger. Each order is one
// atomic store unit covering the wallet, the holding and the order record.
package trade

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rustyeddy/stockledger/events"
	"github.com/rustyeddy/stockledger/ledger"
	"github.com/rustyeddy/stockledger/market"
	"github.com/rustyeddy/stockledger/pkg/id"
	"github.com/rustyeddy/stockledger/pkg/retry"
)

const publishTimeout = 5 * time.Second

// Executor turns trade requests into committed orders and publishes them.
type Executor struct {
	store ledger.Store
	pub   events.Publisher
	log   *zap.Logger

	// Retry bounds how often a unit that failed with ledger.ErrConflict is
	// re-run from scratch.
	Retry retry.Config

	IDs *id.Generator
	Now func() time.Time

	// NameOf names stocks created lazily by a BUY.
	NameOf func(symbol string) string
}

// NewExecutor returns an executor on s. pub and log may be nil.
func NewExecutor(s ledger.Store, pub events.Publisher, log *zap.Logger) *Executor {
	if pub == nil {
		pub = events.Discard{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{
		store:  s,
		pub:    pub,
		log:    log,
		Retry:  retry.DefaultConfig(),
		IDs:    id.NewGenerator(nil),
		Now:    func() time.Time { return time.Now().UTC() },
		NameOf: market.NameOf,
	}
}

// ExecuteBuy buys quantity shares of symbol at price for userID.
func (e *Executor) ExecuteBuy(ctx context.Context, userID, symbol string, quantity int64, price decimal.Decimal) (ledger.Order, error) {
	return e.Execute(ctx, ledger.TradeRequest{
		UserID: userID, Symbol: symbol, Side: ledger.Buy, Quantity: quantity, Price: price,
	})
}

// ExecuteSell sells quantity shares of symbol at price for userID.
func (e *Executor) ExecuteSell(ctx context.Context, userID, symbol string, quantity int64, price decimal.Decimal) (ledger.Order, error) {
	return e.Execute(ctx, ledger.TradeRequest{
		UserID: userID, Symbol: symbol, Side: ledger.Sell, Quantity: quantity, Price: price,
	})
}

// Execute validates req and applies it as one atomic unit. Validation errors
// are returned before the store is touched.
func (e *Executor) Execute(ctx context.Context, req ledger.TradeRequest) (ledger.Order, error) {
	if err := req.Validate(); err != nil {
		return ledger.Order{}, err
	}

	apply := e.buy
	if req.Side == ledger.Sell {
		apply = e.sell
	}
	orderID := e.IDs.New()

	order, err := retry.Do(ctx, e.Retry,
		func(err error) bool { return errors.Is(err, ledger.ErrConflict) },
		func(attempt int, err error, backoff time.Duration) {
			e.log.Warn("store conflict, retrying order",
				zap.String("user", req.UserID),
				zap.String("symbol", req.Symbol),
				zap.String("side", req.Side.String()),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(err))
		},
		func() (ledger.Order, error) {
			var o ledger.Order
			err := e.store.Update(ctx, func(tx ledger.Tx) error {
				var err error
				o, err = apply(ctx, tx, req, orderID)
				return err
			})
			return o, err
		})
	if err != nil {
		if ledger.IsBusiness(err) {
			e.log.Info("order rejected",
				zap.String("user", req.UserID),
				zap.String("symbol", req.Symbol),
				zap.String("side", req.Side.String()),
				zap.Error(err))
		} else {
			e.log.Error("order failed",
				zap.String("user", req.UserID),
				zap.String("symbol", req.Symbol),
				zap.String("side", req.Side.String()),
				zap.Error(err))
		}
		return ledger.Order{}, err
	}

	e.log.Info("order executed",
		zap.String("id", order.ID),
		zap.String("user", order.UserID),
		zap.String("symbol", order.Symbol),
		zap.String("side", order.Side.String()),
		zap.Int64("quantity", order.Quantity),
		zap.String("price", order.Price.String()),
		zap.String("total", order.TotalAmount.String()))

	e.publish(ctx, order)
	return order, nil
}

// publish runs after commit, so a failure is logged and never undoes the order.
func (e *Executor) publish(ctx context.Context, o ledger.Order) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := e.pub.PublishOrder(pctx, events.OrderExecuted{Order: o}); err != nil {
		e.log.Warn("publish order event", zap.String("id", o.ID), zap.Error(err))
	}
}

// The wallet row is always locked before the holding row so concurrent BUY
// and SELL units for one user take their locks in the same order.

func (e *Executor) buy(ctx context.Context, tx ledger.Tx, req ledger.TradeRequest, orderID string) (ledger.Order, error) {
	stock, err := tx.GetOrCreateStock(ctx, req.Symbol, e.NameOf(req.Symbol))
	if err != nil {
		return ledger.Order{}, fmt.Errorf("buy %s: %w", req.Symbol, err)
	}

	w, err := tx.LockWallet(ctx, req.UserID)
	if err != nil {
		return ledger.Order{}, fmt.Errorf("buy %s: %w", req.Symbol, err)
	}

	cost := ledger.Notional(req.Quantity, req.Price)
	if w.Balance.LessThan(cost) {
		return ledger.Order{}, fmt.Errorf("buy %d %s: %w: cost %s, balance %s",
			req.Quantity, req.Symbol, ledger.ErrInsufficientFunds, cost, w.Balance)
	}

	if err := tx.SetWalletBalance(ctx, req.UserID, w.Balance.Sub(cost)); err != nil {
		return ledger.Order{}, fmt.Errorf("buy %s: debit: %w", req.Symbol, err)
	}

	now := e.Now()
	o := ledger.Order{
		ID:          orderID,
		UserID:      req.UserID,
		Symbol:      stock.Symbol,
		Side:        ledger.Buy,
		Quantity:    req.Quantity,
		Price:       req.Price,
		TotalAmount: cost,
		Status:      ledger.StatusCompleted,
		CreatedAt:   now,
	}
	if err := tx.InsertOrder(ctx, o); err != nil {
		return ledger.Order{}, fmt.Errorf("buy %s: record order: %w", req.Symbol, err)
	}

	h, err := tx.LockHolding(ctx, req.UserID, stock.Symbol)
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		h = ledger.Holding{
			UserID:       req.UserID,
			Symbol:       stock.Symbol,
			Quantity:     req.Quantity,
			AveragePrice: req.Price,
		}
	case err != nil:
		return ledger.Order{}, fmt.Errorf("buy %s: %w", req.Symbol, err)
	default:
		if h.Quantity, h.AveragePrice, err = ledger.Reaverage(h, req.Quantity, req.Price); err != nil {
			return ledger.Order{}, fmt.Errorf("buy %s: %w", req.Symbol, err)
		}
	}
	h.UpdatedAt = now

	if err := tx.PutHolding(ctx, h); err != nil {
		return ledger.Order{}, fmt.Errorf("buy %s: update holding: %w", req.Symbol, err)
	}
	return o, nil
}

func (e *Executor) sell(ctx context.Context, tx ledger.Tx, req ledger.TradeRequest, orderID string) (ledger.Order, error) {
	stock, err := tx.GetStock(ctx, req.Symbol)
	if err != nil {
		return ledger.Order{}, fmt.Errorf("sell %s: %w", req.Symbol, err)
	}

	w, err := tx.LockWallet(ctx, req.UserID)
	if err != nil {
		return ledger.Order{}, fmt.Errorf("sell %s: %w", req.Symbol, err)
	}

	h, err := tx.LockHolding(ctx, req.UserID, stock.Symbol)
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return ledger.Order{}, fmt.Errorf("sell %d %s: %w: holding 0",
			req.Quantity, req.Symbol, ledger.ErrInsufficientHoldings)
	case err != nil:
		return ledger.Order{}, fmt.Errorf("sell %s: %w", req.Symbol, err)
	case h.Quantity < req.Quantity:
		return ledger.Order{}, fmt.Errorf("sell %d %s: %w: holding %d",
			req.Quantity, req.Symbol, ledger.ErrInsufficientHoldings, h.Quantity)
	}

	proceeds := ledger.Notional(req.Quantity, req.Price)
	if err := tx.SetWalletBalance(ctx, req.UserID, w.Balance.Add(proceeds)); err != nil {
		return ledger.Order{}, fmt.Errorf("sell %s: credit: %w", req.Symbol, err)
	}

	now := e.Now()
	o := ledger.Order{
		ID:          orderID,
		UserID:      req.UserID,
		Symbol:      stock.Symbol,
		Side:        ledger.Sell,
		Quantity:    req.Quantity,
		Price:       req.Price,
		TotalAmount: proceeds,
		Status:      ledger.StatusCompleted,
		CreatedAt:   now,
	}
	if err := tx.InsertOrder(ctx, o); err != nil {
		return ledger.Order{}, fmt.Errorf("sell %s: record order: %w", req.Symbol, err)
	}

	if remaining := h.Quantity - req.Quantity; remaining == 0 {
		err = tx.DeleteHolding(ctx, req.UserID, stock.Symbol)
	} else {
		h.Quantity = remaining
		h.UpdatedAt = now
		err = tx.PutHolding(ctx, h)
	}
	if err != nil {
		return ledger.Order{}, fmt.Errorf("sell %s: update holding: %w", req.Symbol, err)
	}
	return o, nil
}
