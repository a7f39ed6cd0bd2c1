package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/job-catalog/internal/db"
	"github.com/jonathan/job-catalog/internal/syncer"
)

func newSyncCmd(opts *rootOptions) *cobra.Command {
	var (
		maxPages   int
		timeBudget time.Duration
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one catalog sync now",
		Long: `Fetch the listing pages, enrich every listing with its detail record and upsert the results.
Prints the run summary as JSON. Exits non-zero when the listing fetch failed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := opts.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			orch := a.newOrchestrator(logProgress)
			res, err := orch.Run(ctx, syncer.Request{
				Trigger:    db.TriggerCLI,
				MaxPages:   maxPages,
				TimeBudget: timeBudget,
			})
			if res != nil {
				out, jsonErr := json.MarshalIndent(summaryOf(res), "", "  ")
				if jsonErr != nil {
					return fmt.Errorf("failed to encode summary: %w", jsonErr)
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			}
			return err
		},
	}

	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "Stop after this many listing pages (0 fetches all)")
	cmd.Flags().DurationVar(&timeBudget, "time-budget", 0, "Stop before the next item once this much time has passed (0 disables)")
	return cmd
}

// runSummary is the CLI view of a finished run.
type runSummary struct {
	RunID     string `json:"runId"`
	Status    string `json:"status"`
	Pages     int    `json:"pages"`
	Processed int    `json:"processed"`
	Saved     int    `json:"saved"`
	Errors    int    `json:"errors"`
	Skipped   int    `json:"skipped"`
	Duration  string `json:"duration"`
	Error     string `json:"error,omitempty"`
}

func summaryOf(res *syncer.RunResult) runSummary {
	return runSummary{
		RunID:     res.RunID.String(),
		Status:    res.Status,
		Pages:     res.Pages,
		Processed: res.Processed,
		Saved:     res.Saved,
		Errors:    res.Errors(),
		Skipped:   res.Skipped,
		Duration:  res.Duration.Round(time.Millisecond).String(),
		Error:     res.Error,
	}
}
