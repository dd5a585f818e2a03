// Package journal keeps a human-readable trail of executed orders next to the
// ledger: an append-only CSV file and Org-mode reports.
package journal

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"github.com/rustyeddy/stockledger/ledger"
)

// Journal records executed orders.
type Journal interface {
	RecordOrder(ledger.Order) error
	Close() error
}

// Currency used for money display.
const Currency = money.USD

// FormatMoney renders amount in the journal currency, e.g. "$1,234.50".
// Amounts are rounded to the currency's minor unit for display only.
func FormatMoney(amount decimal.Decimal) string {
	cur := money.New(0, Currency).Currency()
	minor := amount.Shift(int32(cur.Fraction)).Round(0)
	return cur.Formatter().Format(minor.IntPart())
}
