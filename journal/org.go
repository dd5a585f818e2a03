package journal

import (
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/stockledger/ledger"
	"github.com/rustyeddy/stockledger/portfolio"
)

// FormatOrderOrg renders an order as an Org-mode block suitable for pasting
// into a journal. Structured facts go in the PROPERTIES drawer; the Thesis
// and Review headings are left for notes.
func FormatOrderOrg(o ledger.Order) string {
	heading := fmt.Sprintf("** %s %d %s @ %s (%s)",
		o.Side, o.Quantity, o.Symbol, FormatMoney(o.Price), shortID(o.ID))

	var b strings.Builder
	b.WriteString(heading)
	b.WriteString("\n")
	b.WriteString(":PROPERTIES:\n")
	b.WriteString(fmt.Sprintf(":ORDER_ID: %s\n", o.ID))
	b.WriteString(fmt.Sprintf(":ID: %s\n", o.ID))
	b.WriteString(fmt.Sprintf(":USER: %s\n", o.UserID))
	b.WriteString(fmt.Sprintf(":SYMBOL: %s\n", o.Symbol))
	b.WriteString(fmt.Sprintf(":SIDE: %s\n", o.Side))
	b.WriteString(fmt.Sprintf(":QUANTITY: %d\n", o.Quantity))
	b.WriteString(fmt.Sprintf(":PRICE: %s\n", o.Price))
	b.WriteString(fmt.Sprintf(":TOTAL: %s\n", FormatMoney(o.TotalAmount)))
	b.WriteString(fmt.Sprintf(":STATUS: %s\n", o.Status))
	b.WriteString(fmt.Sprintf(":CREATED_AT: %s\n", o.CreatedAt.UTC().Format(time.RFC3339)))
	b.WriteString(":END:\n")
	b.WriteString("\n")
	b.WriteString("*** Thesis\n- \n\n")
	b.WriteString("*** Review\n- \n")

	return b.String()
}

// FormatOrdersOrg renders multiple orders separated by blank lines.
func FormatOrdersOrg(orders []ledger.Order) string {
	var b strings.Builder
	for i, o := range orders {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(FormatOrderOrg(o))
	}
	return b.String()
}

// FormatPortfolioOrg renders positions and totals as an Org table.
func FormatPortfolioOrg(positions []portfolio.Position, sum portfolio.Summary) string {
	var b strings.Builder
	b.WriteString("** Portfolio\n")
	b.WriteString("| Symbol | Qty | Avg | Price | Value | P&L | P&L % |\n")
	b.WriteString("|--------+-----+-----+-------+-------+-----+-------|\n")
	for _, p := range positions {
		price := FormatMoney(p.CurrentPrice)
		if !p.Priced {
			price += "*"
		}
		b.WriteString(fmt.Sprintf("| %s | %d | %s | %s | %s | %s | %s |\n",
			p.Symbol, p.Quantity, FormatMoney(p.AveragePrice), price,
			FormatMoney(p.MarketValue), FormatMoney(p.UnrealizedPL), p.UnrealizedPLPercent.StringFixed(2)))
	}
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("- Cash: %s\n", FormatMoney(sum.Cash)))
	b.WriteString(fmt.Sprintf("- Market value: %s\n", FormatMoney(sum.MarketValue)))
	b.WriteString(fmt.Sprintf("- Unrealized P&L: %s (%s%%)\n", FormatMoney(sum.UnrealizedPL), sum.UnrealizedPLPercent.StringFixed(2)))
	b.WriteString(fmt.Sprintf("- Equity: %s\n", FormatMoney(sum.Equity)))
	return b.String()
}

func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[:8]
}
