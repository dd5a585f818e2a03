package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/stockledger/journal"
	"github.com/rustyeddy/stockledger/ledger"
	"github.com/rustyeddy/stockledger/orders"
)

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "List or export order history",
	Long: `Query the executed orders of a user, newest first.

Subcommands:
  list   - Print orders as Org-mode entries
  export - Write orders as CSV or Org-mode

Examples:
  trader orders list --user alice --symbol AAPL
  trader orders export --user alice --format csv -o alice.csv`,
}

var ordersListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print orders",
	Args:  cobra.NoArgs,
	RunE:  runOrdersList,
}

var ordersExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export orders as CSV or Org-mode",
	Args:  cobra.NoArgs,
	RunE:  runOrdersExport,
}

var (
	ordersSymbol string
	ordersSide   string
	ordersLimit  int
	exportFormat string
	exportOutput string
)

func init() {
	rootCmd.AddCommand(ordersCmd)
	ordersCmd.AddCommand(ordersListCmd)
	ordersCmd.AddCommand(ordersExportCmd)

	ordersCmd.PersistentFlags().StringVarP(&userID, "user", "u", "", "user id (required)")
	ordersCmd.PersistentFlags().StringVar(&ordersSymbol, "symbol", "", "only this symbol")
	ordersCmd.PersistentFlags().StringVar(&ordersSide, "side", "", "only buy or sell")
	ordersCmd.PersistentFlags().IntVar(&ordersLimit, "limit", 0, "at most this many orders (0 = all)")
	ordersCmd.MarkPersistentFlagRequired("user")

	ordersExportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "csv or org")
	ordersExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default stdout)")
}

func queryOrders(cmd *cobra.Command) ([]ledger.Order, error) {
	f := orders.Filter{Symbol: ordersSymbol, Limit: ordersLimit}
	if ordersSide != "" {
		side, ok := ledger.ParseSide(ordersSide)
		if !ok {
			return nil, fmt.Errorf("side %q: use buy or sell", ordersSide)
		}
		f.Side = side
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	return orders.NewQuery(a.store).ListOrders(ctx, userID, f)
}

func runOrdersList(cmd *cobra.Command, args []string) error {
	rows, err := queryOrders(cmd)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no orders")
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatOrdersOrg(rows))
	return nil
}

func runOrdersExport(cmd *cobra.Command, args []string) error {
	if exportFormat != "csv" && exportFormat != "org" {
		return fmt.Errorf("format %q: use csv or org", exportFormat)
	}
	rows, err := queryOrders(cmd)
	if err != nil {
		return err
	}

	var out io.Writer = cmd.OutOrStdout()
	if exportOutput != "" {
		f, err := os.Create(exportOutput)
		if err != nil {
			return fmt.Errorf("create %s: %w", exportOutput, err)
		}
		defer f.Close()
		out = f
	}

	if exportFormat == "org" {
		_, err = io.WriteString(out, journal.FormatOrdersOrg(rows)+"\n")
	} else {
		err = journal.WriteOrdersCSV(out, rows)
	}
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if exportOutput != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Exported %d orders to %s\n", len(rows), exportOutput)
	}
	return nil
}
