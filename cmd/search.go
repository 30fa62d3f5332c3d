package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tracewire/tracewire/internal/model"
	"github.com/tracewire/tracewire/internal/tracker"
)

var (
	searchUser       string
	searchCase       string
	searchType       string
	searchModules    []string
	searchDisclaimer bool
)

var searchCmd = &cobra.Command{
	Use:   "search <value>",
	Short: "Run a lookup against the bot network",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initTracker(ctx, "search")
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Tracker.Run(ctx, tracker.SubmitRequest{
			UserID:             searchUser,
			CaseID:             searchCase,
			Type:               model.SearchType(searchType),
			Value:              args[0],
			Modules:            searchModules,
			DisclaimerAccepted: searchDisclaimer,
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchUser, "user", "", "user id to bill (required)")
	searchCmd.Flags().StringVar(&searchCase, "case", "", "case id to group searches under")
	searchCmd.Flags().StringVar(&searchType, "type", "phone", "search type: phone or email")
	searchCmd.Flags().StringSliceVar(&searchModules, "modules", []string{model.ModuleIdentity}, "modules to query")
	searchCmd.Flags().BoolVar(&searchDisclaimer, "accept-disclaimer", false, "accept the sensitive-module disclaimer")
	searchCmd.MarkFlagRequired("user") //nolint:errcheck
	rootCmd.AddCommand(searchCmd)
}
