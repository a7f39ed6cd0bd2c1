// Package main provides the entry point for the job catalog service and its operator commands.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jonathan/job-catalog/internal/config"
)

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	memory     bool
	lookup     config.LookupFunc
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "catalog_agent",
		Short: "Job catalog sync and contact lookup service",
		Long: `catalog_agent mirrors the public job search API into a local catalog on a schedule and
extracts employer contact details from job detail pages on demand.

Configuration is read from built-in defaults, an optional JSON file (--config) and environment variables, in that order.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to config.json file (environment variables override file values)")
	rootCmd.PersistentFlags().BoolVar(&opts.memory, "memory", false, "Keep the catalog in memory instead of PostgreSQL")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newSyncCmd(opts),
		newContactCmd(opts),
		newRunsCmd(opts),
		newMigrateCmd(opts),
		newTokenCmd(opts),
	)
	return rootCmd
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCmd(&rootOptions{lookup: os.LookupEnv}).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
