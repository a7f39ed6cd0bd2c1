package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/job-catalog/internal/syncer"
)

func newRunsCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent sync runs",
		Long:  `Print the most recent sync runs and, when REDIS_URL is set, the summary last published by any instance.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := opts.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			runs, err := a.store.ListSyncRuns(ctx, limit)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}

			out := map[string]any{"runs": runs}
			if a.redis != nil {
				last, err := syncer.NewRedisLocker(a.redis).LastSummary(ctx)
				if err != nil {
					return fmt.Errorf("failed to read last summary: %w", err)
				}
				if last != nil {
					out["last"] = last
				}
			}

			data, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode runs: %w", err)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Number of runs to show")
	return cmd
}
