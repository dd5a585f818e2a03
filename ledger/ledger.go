// Package ledger holds the wallet, holding, order and stock records of the
// trading ledger, the errors trade execution can fail with, and the store
// ports the executor runs its atomic units against.
package ledger

import (
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AveragePriceScale is the number of fractional digits kept when a holding is
// re-averaged.
const AveragePriceScale = 8

// Side is the direction of an order.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

func (s Side) String() string { return string(s) }

func (s Side) Valid() bool { return s == Buy || s == Sell }

// ParseSide accepts "buy"/"sell" in any case.
func ParseSide(s string) (Side, bool) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case Buy:
		return Buy, true
	case Sell:
		return Sell, true
	default:
		return "", false
	}
}

// Status of an order. Orders execute immediately, so every stored order is
// StatusCompleted.
type Status string

const StatusCompleted Status = "completed"

// Wallet is the cash balance of a user.
type Wallet struct {
	UserID    string          `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Holding is the position of a user in one symbol. A holding with a
// non-positive quantity is never stored.
type Holding struct {
	UserID       string          `json:"user_id"`
	Symbol       string          `json:"symbol"`
	Quantity     int64           `json:"quantity"`
	AveragePrice decimal.Decimal `json:"average_price"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// CostBasis is Quantity * AveragePrice.
func (h Holding) CostBasis() decimal.Decimal {
	return h.AveragePrice.Mul(decimal.NewFromInt(h.Quantity))
}

// Order is the immutable record of an executed trade.
type Order struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Symbol      string          `json:"symbol"`
	Side        Side            `json:"side"`
	Quantity    int64           `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Status      Status          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Stock is reference data for a tradable symbol.
type Stock struct {
	ID     int64  `json:"id"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// NormalizeSymbol trims and upper-cases a ticker.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Notional returns quantity * price.
func Notional(quantity int64, price decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(quantity))
}

// Reaverage returns the volume-weighted average price after buying quantity
// more shares at price on top of h. A total share count past math.MaxInt64 is
// a *ValidationError.
func Reaverage(h Holding, quantity int64, price decimal.Decimal) (int64, decimal.Decimal, error) {
	if quantity > math.MaxInt64-h.Quantity {
		return 0, decimal.Decimal{}, invalid("quantity", "holding would exceed the maximum share count")
	}
	newQty := h.Quantity + quantity
	total := h.CostBasis().Add(Notional(quantity, price))
	avg := total.DivRound(decimal.NewFromInt(newQty), AveragePriceScale)
	return newQty, avg, nil
}
