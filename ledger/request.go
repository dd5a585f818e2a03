package ledger

import (
	"github.com/shopspring/decimal"
)

// TradeRequest is a validated-on-demand BUY or SELL intent.
type TradeRequest struct {
	UserID   string
	Symbol   string
	Side     Side
	Quantity int64
	Price    decimal.Decimal
}

// Validate checks the request shape and normalizes the symbol in place. It
// never touches a store.
func (r *TradeRequest) Validate() error {
	if r.UserID == "" {
		return invalid("user_id", "is required")
	}
	r.Symbol = NormalizeSymbol(r.Symbol)
	if r.Symbol == "" {
		return invalid("symbol", "is required")
	}
	if !r.Side.Valid() {
		return invalid("side", "must be BUY or SELL")
	}
	if r.Quantity <= 0 {
		return invalid("quantity", "must be a positive integer")
	}
	if !r.Price.IsPositive() {
		return invalid("price", "must be positive")
	}
	return nil
}

// ValidateAmount checks a deposit or withdrawal amount.
func ValidateAmount(userID string, amount decimal.Decimal) error {
	if userID == "" {
		return invalid("user_id", "is required")
	}
	if !amount.IsPositive() {
		return invalid("amount", "must be positive")
	}
	return nil
}
