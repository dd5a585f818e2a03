// Package portfolio values a user's holdings against current prices. It only
// reads committed ledger state.
package portfolio

import (
	"context"
	"errors"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/stockledger/ledger"
	"github.com/rustyeddy/stockledger/market"
)

// PercentScale is the number of fractional digits kept in P&L percentages.
const PercentScale = 4

var hundred = decimal.NewFromInt(100)

// Position is one holding valued at the current reference price.
type Position struct {
	Symbol              string          `json:"symbol"`
	Name                string          `json:"name"`
	Quantity            int64           `json:"quantity"`
	AveragePrice        decimal.Decimal `json:"averagePrice"`
	CurrentPrice        decimal.Decimal `json:"currentPrice"`
	MarketValue         decimal.Decimal `json:"marketValue"`
	UnrealizedPL        decimal.Decimal `json:"unrealizedPL"`
	UnrealizedPLPercent decimal.Decimal `json:"unrealizedPLPercent"`

	// Priced is false when no current price was known and CurrentPrice fell
	// back to AveragePrice.
	Priced bool `json:"priced"`
}

// CostBasis returns Quantity * AveragePrice.
func (p Position) CostBasis() decimal.Decimal {
	return ledger.Notional(p.Quantity, p.AveragePrice)
}

// Summary totals a user's cash and positions.
type Summary struct {
	Cash                decimal.Decimal `json:"cash"`
	MarketValue         decimal.Decimal `json:"marketValue"`
	CostBasis           decimal.Decimal `json:"costBasis"`
	UnrealizedPL        decimal.Decimal `json:"unrealizedPL"`
	UnrealizedPLPercent decimal.Decimal `json:"unrealizedPLPercent"`
	Equity              decimal.Decimal `json:"equity"`
	Positions           int             `json:"positions"`
}

// Projector reads holdings and wallets to value a user's portfolio.
type Projector struct {
	store ledger.Store
}

func NewProjector(s ledger.Store) *Projector {
	return &Projector{store: s}
}

// Portfolio returns the user's positions sorted by symbol. lookup may be nil.
func (p *Projector) Portfolio(ctx context.Context, userID string, lookup market.PriceLookup) ([]Position, error) {
	positions, _, err := p.read(ctx, userID, lookup, false)
	return positions, err
}

// Summary returns the positions together with account totals. A user without
// a wallet has zero cash.
func (p *Projector) Summary(ctx context.Context, userID string, lookup market.PriceLookup) ([]Position, Summary, error) {
	return p.read(ctx, userID, lookup, true)
}

func (p *Projector) read(ctx context.Context, userID string, lookup market.PriceLookup, withCash bool) ([]Position, Summary, error) {
	var (
		holdings []ledger.Holding
		names    = map[string]string{}
		cash     = decimal.Zero
	)
	err := p.store.View(ctx, func(r ledger.Reader) error {
		var err error
		if holdings, err = r.ListHoldings(ctx, userID); err != nil {
			return err
		}
		for _, h := range holdings {
			st, err := r.GetStock(ctx, h.Symbol)
			if err != nil && !errors.Is(err, ledger.ErrSymbolNotFound) {
				return err
			}
			names[h.Symbol] = st.Name
		}
		if !withCash {
			return nil
		}
		w, err := r.GetWallet(ctx, userID)
		switch {
		case errors.Is(err, ledger.ErrWalletNotFound):
		case err != nil:
			return err
		default:
			cash = w.Balance
		}
		return nil
	})
	if err != nil {
		return nil, Summary{}, err
	}

	positions := make([]Position, 0, len(holdings))
	for _, h := range holdings {
		pos := Value(h, lookup)
		pos.Name = names[h.Symbol]
		if pos.Name == "" {
			pos.Name = h.Symbol
		}
		positions = append(positions, pos)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })

	return positions, Summarize(cash, positions), nil
}

// Value projects one holding at the price reported by lookup.
func Value(h ledger.Holding, lookup market.PriceLookup) Position {
	pos := Position{
		Symbol:       h.Symbol,
		Quantity:     h.Quantity,
		AveragePrice: h.AveragePrice,
		CurrentPrice: h.AveragePrice,
	}
	if lookup != nil {
		if price, ok := lookup(h.Symbol); ok && price.IsPositive() {
			pos.CurrentPrice = price
			pos.Priced = true
		}
	}

	cost := pos.CostBasis()
	pos.MarketValue = ledger.Notional(h.Quantity, pos.CurrentPrice)
	pos.UnrealizedPL = pos.MarketValue.Sub(cost)
	pos.UnrealizedPLPercent = percent(pos.UnrealizedPL, cost)
	return pos
}

// Summarize totals positions on top of a cash balance.
func Summarize(cash decimal.Decimal, positions []Position) Summary {
	s := Summary{
		Cash:        cash,
		MarketValue: decimal.Zero,
		CostBasis:   decimal.Zero,
		Positions:   len(positions),
	}
	for _, p := range positions {
		s.MarketValue = s.MarketValue.Add(p.MarketValue)
		s.CostBasis = s.CostBasis.Add(p.CostBasis())
	}
	s.UnrealizedPL = s.MarketValue.Sub(s.CostBasis)
	s.UnrealizedPLPercent = percent(s.UnrealizedPL, s.CostBasis)
	s.Equity = cash.Add(s.MarketValue)
	return s
}

func percent(pl, cost decimal.Decimal) decimal.Decimal {
	if cost.IsZero() {
		return decimal.Zero
	}
	return pl.Div(cost).Mul(hundred).Round(PercentScale)
}
