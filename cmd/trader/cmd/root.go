package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "trader",
	Short: "A stock trading ledger with wallets, market orders and portfolios",
	Long: `Trader runs a stock trading ledger: users fund a cash wallet, buy and sell
shares at market prices, and see their portfolio valued against a live
reference price feed.

It provides tools for:
  - Serving the HTTP API and websocket price stream
  - Placing buy and sell orders from the command line
  - Managing wallets and viewing portfolios
  - Exporting order history as CSV or Org-mode
  - Generating and validating configuration files`,
	SilenceUsage: true,
}

var (
	cfgFile  string
	dbPath   string
	logLevel string
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML or JSON); defaults apply when omitted")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite ledger file (selects the sqlite store)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
}
