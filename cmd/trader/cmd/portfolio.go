package cmd

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/stockledger/journal"
	"github.com/rustyeddy/stockledger/ledger"
	"github.com/rustyeddy/stockledger/market"
	"github.com/rustyeddy/stockledger/portfolio"
)

var portfolioCmd = &cobra.Command{
	Use:   "portfolio",
	Short: "Show positions and unrealized P&L",
	Long: `Value a user's holdings and print them as an Org-mode table.

Current prices come from --price, then the listed opening reference prices.
Positions with no known price are valued at their average price and marked *.

Example:
  trader portfolio --user alice --price AAPL=182.10 --price MSFT=377`,
	Args: cobra.NoArgs,
	RunE: runPortfolio,
}

var portfolioPrices map[string]string

func init() {
	rootCmd.AddCommand(portfolioCmd)

	portfolioCmd.Flags().StringVarP(&userID, "user", "u", "", "user id (required)")
	portfolioCmd.Flags().StringToStringVar(&portfolioPrices, "price", nil, "current price as SYMBOL=PRICE (repeatable)")
	portfolioCmd.MarkFlagRequired("user")
}

func runPortfolio(cmd *cobra.Command, args []string) error {
	lookup, err := priceLookup(portfolioPrices)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	positions, sum, err := portfolio.NewProjector(a.store).Summary(ctx, userID, lookup)
	if err != nil {
		return fmt.Errorf("portfolio %s: %w", userID, err)
	}
	fmt.Fprint(cmd.OutOrStdout(), journal.FormatPortfolioOrg(positions, sum))
	return nil
}

// priceLookup layers explicit prices over the opening reference prices.
func priceLookup(explicit map[string]string) (market.PriceLookup, error) {
	prices := market.OpeningPrices()
	for sym, v := range explicit {
		p, err := decimal.NewFromString(v)
		if err != nil || !p.IsPositive() {
			return nil, fmt.Errorf("price for %s: %q is not a positive number", sym, v)
		}
		prices[ledger.NormalizeSymbol(sym)] = p
	}
	return market.MapLookup(prices), nil
}
