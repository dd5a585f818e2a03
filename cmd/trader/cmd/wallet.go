package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/stockledger/journal"
	"github.com/rustyeddy/stockledger/ledger"
)

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Show or fund a user's wallet",
	Long: `Manage the cash wallet of a user.

Subcommands:
  show     - Print the balance
  deposit  - Add funds, opening the wallet on first use
  withdraw - Take funds out

Examples:
  trader wallet show --user alice
  trader wallet deposit --user alice 10000`,
}

var walletShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the wallet balance",
	Args:  cobra.NoArgs,
	RunE:  runWalletShow,
}

var walletDepositCmd = &cobra.Command{
	Use:   "deposit <amount>",
	Short: "Add funds to the wallet",
	Args:  cobra.ExactArgs(1),
	RunE:  runWalletMove(true),
}

var walletWithdrawCmd = &cobra.Command{
	Use:   "withdraw <amount>",
	Short: "Withdraw funds from the wallet",
	Args:  cobra.ExactArgs(1),
	RunE:  runWalletMove(false),
}

func init() {
	rootCmd.AddCommand(walletCmd)
	walletCmd.AddCommand(walletShowCmd)
	walletCmd.AddCommand(walletDepositCmd)
	walletCmd.AddCommand(walletWithdrawCmd)

	walletCmd.PersistentFlags().StringVarP(&userID, "user", "u", "", "user id (required)")
	walletCmd.MarkPersistentFlagRequired("user")
}

func runWalletShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	w, err := a.wallets().Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("wallet %s: %w", userID, err)
	}
	printWallet(cmd.OutOrStdout(), w)
	return nil
}

func runWalletMove(deposit bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		amount, err := decimal.NewFromString(args[0])
		if err != nil {
			return fmt.Errorf("amount %q: %w", args[0], err)
		}

		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		svc := a.wallets()
		var w ledger.Wallet
		if deposit {
			w, err = svc.Deposit(ctx, userID, amount)
		} else {
			w, err = svc.Withdraw(ctx, userID, amount)
		}
		if err != nil {
			return err
		}
		printWallet(cmd.OutOrStdout(), w)
		return nil
	}
}

func printWallet(out io.Writer, w ledger.Wallet) {
	fmt.Fprintf(out, "Wallet %s: %s\n", w.UserID, journal.FormatMoney(w.Balance))
	if !w.UpdatedAt.IsZero() {
		fmt.Fprintf(out, "  updated %s\n", w.UpdatedAt.UTC().Format(time.RFC3339))
	}
}
