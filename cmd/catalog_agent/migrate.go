package main

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/jonathan/job-catalog/internal/db"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.memory {
				return fmt.Errorf("migrate needs DATABASE_URL, not --memory")
			}
			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			return migrateStore(cmd.Context(), a)
		},
	}
}

// migrateStore applies migrations when the app runs on PostgreSQL.
func migrateStore(ctx context.Context, a *app) error {
	database, ok := a.store.(*db.DB)
	if !ok {
		return nil
	}
	if err := database.Migrate(ctx); err != nil {
		return err
	}
	log.Println("[migrate] Database is up to date")
	return nil
}
