package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tracewire/tracewire/internal/ledger"
)

var (
	creditsAmount      int64
	creditsActor       string
	creditsDescription string
	creditsLimit       int
)

var creditsCmd = &cobra.Command{
	Use:   "credits",
	Short: "Manage user credit balances",
}

var creditsBalanceCmd = &cobra.Command{
	Use:   "balance <user-id>",
	Short: "Show a user's credit balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		balance, err := ledger.New(st).Balance(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%d\n", balance)
		return nil
	},
}

var creditsAddCmd = &cobra.Command{
	Use:   "add <user-id>",
	Short: "Add credits to a user's balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		txn, err := ledger.New(st).Credit(cmd.Context(), args[0], creditsAmount, creditsActor, creditsDescription)
		if err != nil {
			return err
		}
		fmt.Printf("credited %d, balance %d\n", txn.Amount, txn.BalanceAfter)
		return nil
	},
}

var creditsHistoryCmd = &cobra.Command{
	Use:   "history <user-id>",
	Short: "Show a user's recent credit transactions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		txns, err := ledger.New(st).History(cmd.Context(), args[0], creditsLimit)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(txns)
	},
}

func init() {
	creditsAddCmd.Flags().Int64Var(&creditsAmount, "amount", 0, "credits to add (required)")
	creditsAddCmd.Flags().StringVar(&creditsActor, "actor", "", "admin user id performing the top-up (required)")
	creditsAddCmd.Flags().StringVar(&creditsDescription, "description", "manual top-up", "transaction description")
	creditsAddCmd.MarkFlagRequired("amount") //nolint:errcheck
	creditsAddCmd.MarkFlagRequired("actor")  //nolint:errcheck

	creditsHistoryCmd.Flags().IntVar(&creditsLimit, "limit", 20, "maximum transactions to show")

	creditsCmd.AddCommand(creditsBalanceCmd, creditsAddCmd, creditsHistoryCmd)
	rootCmd.AddCommand(creditsCmd)
}
