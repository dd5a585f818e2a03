package cmd

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/stockledger/journal"
	"github.com/rustyeddy/stockledger/ledger"
	"github.com/rustyeddy/stockledger/market"
)

var buyCmd = &cobra.Command{
	Use:   "buy <symbol> <quantity> [price]",
	Short: "Buy shares at market",
	Long: `Buy whole shares, debiting the user's wallet.

The price defaults to the listed opening reference price.

Examples:
  trader buy --user alice AAPL 10
  trader buy --user alice AAPL 10 175.25`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runTrade(ledger.Buy),
}

var sellCmd = &cobra.Command{
	Use:   "sell <symbol> <quantity> [price]",
	Short: "Sell held shares at market",
	Long: `Sell whole shares the user holds, crediting the wallet.

Example:
  trader sell --user alice AAPL 4 180`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runTrade(ledger.Sell),
}

var userID string

func init() {
	rootCmd.AddCommand(buyCmd)
	rootCmd.AddCommand(sellCmd)

	for _, c := range []*cobra.Command{buyCmd, sellCmd} {
		c.Flags().StringVarP(&userID, "user", "u", "", "user id (required)")
		c.MarkFlagRequired("user")
	}
}

func runTrade(side ledger.Side) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		req, err := parseTradeArgs(side, args)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		exec, err := a.executor()
		if err != nil {
			return err
		}
		o, err := exec.Execute(ctx, req)
		if err != nil {
			return fmt.Errorf("%s %s: %w", side, req.Symbol, err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "✓ %s %d %s @ %s = %s\n",
			o.Side, o.Quantity, o.Symbol, journal.FormatMoney(o.Price), journal.FormatMoney(o.TotalAmount))
		fmt.Fprintf(out, "  order %s\n", o.ID)
		return nil
	}
}

func parseTradeArgs(side ledger.Side, args []string) (ledger.TradeRequest, error) {
	req := ledger.TradeRequest{
		UserID: userID,
		Symbol: ledger.NormalizeSymbol(args[0]),
		Side:   side,
	}

	qty, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return req, fmt.Errorf("quantity %q: must be a whole number", args[1])
	}
	req.Quantity = qty

	if len(args) == 3 {
		price, err := decimal.NewFromString(args[2])
		if err != nil {
			return req, fmt.Errorf("price %q: %w", args[2], err)
		}
		req.Price = price
	} else {
		price, ok := market.OpeningPrices()[req.Symbol]
		if !ok {
			return req, fmt.Errorf("no reference price for %s; pass a price", req.Symbol)
		}
		req.Price = price
	}
	return req, nil
}
