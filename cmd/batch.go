package main

import (
	"bufio"
	"encoding/json"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tracewire/tracewire/internal/model"
	"github.com/tracewire/tracewire/internal/tracker"
)

var (
	batchUser        string
	batchCase        string
	batchType        string
	batchModules     []string
	batchDisclaimer  bool
	batchConcurrency int
)

// batchOutcome is one line of the batch report.
type batchOutcome struct {
	Value    string `json:"value"`
	SearchID string `json:"search_id,omitempty"`
	Status   string `json:"status"`
	Credits  int64  `json:"credits_used"`
	Error    string `json:"error,omitempty"`
}

var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Run lookups for every value in a file, one per line",
	Long:  "Reads lookup values from a file and runs each as its own search. Queries to one bot always serialize regardless of concurrency, so parallelism only helps when modules spread across bots.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		values, err := readValues(args[0])
		if err != nil {
			return err
		}

		env, err := initTracker(ctx, "search")
		if err != nil {
			return err
		}
		defer env.Close()

		outcomes := make([]batchOutcome, len(values))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(batchConcurrency)
		for i, value := range values {
			i, value := i, value
			g.Go(func() error {
				result, err := env.Tracker.Run(gctx, tracker.SubmitRequest{
					UserID:             batchUser,
					CaseID:             batchCase,
					Type:               model.SearchType(batchType),
					Value:              value,
					Modules:            batchModules,
					DisclaimerAccepted: batchDisclaimer,
				})
				if err != nil {
					// One bad value must not abort the batch.
					outcomes[i] = batchOutcome{Value: value, Status: "error", Error: err.Error()}
					zap.L().Warn("batch search failed", zap.String("value", value), zap.Error(err))
					return nil
				}
				outcomes[i] = batchOutcome{
					Value:    value,
					SearchID: result.Search.ID,
					Status:   string(result.Search.Status),
					Credits:  result.CreditsUsed,
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(outcomes)
	},
}

func readValues(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var values []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		values = append(values, line)
	}
	return values, scanner.Err()
}

func init() {
	batchCmd.Flags().StringVar(&batchUser, "user", "", "user id to bill (required)")
	batchCmd.Flags().StringVar(&batchCase, "case", "", "case id to group searches under")
	batchCmd.Flags().StringVar(&batchType, "type", "phone", "search type: phone or email")
	batchCmd.Flags().StringSliceVar(&batchModules, "modules", []string{model.ModuleIdentity}, "modules to query per value")
	batchCmd.Flags().BoolVar(&batchDisclaimer, "accept-disclaimer", false, "accept the sensitive-module disclaimer")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 3, "concurrent searches")
	batchCmd.MarkFlagRequired("user") //nolint:errcheck
	rootCmd.AddCommand(batchCmd)
}
