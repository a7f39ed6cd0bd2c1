package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/job-catalog/internal/scheduler"
	"github.com/jonathan/job-catalog/internal/server"
	"github.com/jonathan/job-catalog/internal/server/ratelimit"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		port    int
		noCron  bool
		migrate bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the sync scheduler",
		Long: `Start an HTTP server exposing the contact lookup, manual sync and catalog endpoints,
and run the scheduled catalog sync in the same process.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := opts.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if port > 0 {
				a.cfg.Port = port
			}
			if migrate {
				if err := migrateStore(ctx, a); err != nil {
					return err
				}
			}
			return runServe(ctx, a, opts, !noCron)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "Port to listen on (overrides PORT)")
	cmd.Flags().BoolVar(&noCron, "no-cron", false, "Do not run the scheduled sync in this process")
	cmd.Flags().BoolVar(&migrate, "migrate", false, "Apply database migrations before serving")
	return cmd
}

func runServe(ctx context.Context, a *app, opts *rootOptions, withCron bool) error {
	orch := a.newOrchestrator(logProgress)

	contacts, err := a.newLookupService(ctx)
	if err != nil {
		return fmt.Errorf("contact lookup unavailable: %w", err)
	}

	var jwtService *server.JWTService
	if err := a.cfg.RequireJWT(); err != nil {
		log.Printf("[serve] Operator endpoints disabled: %v", err)
	} else {
		jwtService = server.NewJWTService(&a.cfg.JWT)
	}

	if withCron {
		sched := scheduler.New(orch, scheduler.Options{
			Spec:       a.cfg.Sync.Cron,
			TimeBudget: a.cfg.Sync.TimeBudget.Std(),
			RunOnStart: a.cfg.Sync.RunOnStart,
		})
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer sched.Stop()
		log.Printf("[serve] Next scheduled sync at %s", sched.Next().Format("2006-01-02 15:04 MST"))
	}

	srv := server.New(server.Config{
		Port:           a.cfg.Port,
		ManualMaxPages: a.cfg.Sync.ManualMaxPages,
	}, server.Deps{
		Catalog:  a.store,
		Sync:     orch,
		Runs:     a.store,
		Contacts: contacts,
		Limiter:  ratelimit.NewLimiter(ratelimit.LoadConfig(ratelimit.LookupFunc(opts.lookup))),
		JWT:      jwtService,
	})
	return srv.Start(ctx)
}
