package market

import (
	"github.com/shopspring/decimal"

	"github.com/rustyeddy/stockledger/ledger"
)

// StockMeta describes a listed stock and its opening reference price.
type StockMeta struct {
	Symbol string
	Name   string
	Open   decimal.Decimal
}

var Stocks = []StockMeta{
	{Symbol: "AAPL", Name: "Apple Inc.", Open: decimal.RequireFromString("175.50")},
	{Symbol: "GOOGL", Name: "Alphabet Inc.", Open: decimal.RequireFromString("140.25")},
	{Symbol: "MSFT", Name: "Microsoft Corporation", Open: decimal.RequireFromString("380.75")},
	{Symbol: "AMZN", Name: "Amazon.com Inc.", Open: decimal.RequireFromString("155.60")},
	{Symbol: "TSLA", Name: "Tesla Inc.", Open: decimal.RequireFromString("245.30")},
	{Symbol: "META", Name: "Meta Platforms Inc.", Open: decimal.RequireFromString("485.90")},
	{Symbol: "NVDA", Name: "NVIDIA Corporation", Open: decimal.RequireFromString("720.45")},
	{Symbol: "NFLX", Name: "Netflix Inc.", Open: decimal.RequireFromString("625.80")},
}

// SeedStocks returns the listed stocks as ledger reference rows.
func SeedStocks() []ledger.Stock {
	out := make([]ledger.Stock, 0, len(Stocks))
	for _, s := range Stocks {
		out = append(out, ledger.Stock{Symbol: s.Symbol, Name: s.Name})
	}
	return out
}

// NameOf returns the listed name of symbol, or the symbol itself.
func NameOf(symbol string) string {
	symbol = ledger.NormalizeSymbol(symbol)
	for _, s := range Stocks {
		if s.Symbol == symbol {
			return s.Name
		}
	}
	return symbol
}

// OpeningPrices returns the opening reference prices keyed by symbol.
func OpeningPrices() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(Stocks))
	for _, s := range Stocks {
		out[s.Symbol] = s.Open
	}
	return out
}
