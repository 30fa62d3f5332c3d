package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tracewire/tracewire/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "tracewire",
	Short: "Intelligence lookups over capability-bot chat networks",
	Long:  "Relays phone and email lookups to capability bots on an external chat network, parses their free-text replies into structured records, and settles credits per successful module.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
