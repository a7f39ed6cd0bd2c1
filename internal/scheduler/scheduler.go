// Package scheduler wires up the cron job that triggers the periodic catalog sync.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
	_ "time/tzdata" // CRON_TZ in slim images

	"github.com/robfig/cron/v3"

	"github.com/jonathan/job-catalog/internal/db"
	"github.com/jonathan/job-catalog/internal/syncer"
)

// DefaultSpec fires once a day at 03:00 Berlin time.
const DefaultSpec = "CRON_TZ=Europe/Berlin 0 3 * * *"

// Runner executes one sync run.
type Runner interface {
	Run(ctx context.Context, req syncer.Request) (*syncer.RunResult, error)
}

// Options configures a Scheduler.
type Options struct {
	Spec       string        // standard 5-field cron spec or a descriptor like "@daily"
	TimeBudget time.Duration // wall-clock ceiling of a scheduled run
	RunOnStart bool
}

// Scheduler wraps robfig/cron and triggers scheduled sync runs.
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	opts   Options

	startRun sync.WaitGroup
}

// New creates a Scheduler.
func New(runner Runner, opts Options) *Scheduler {
	if opts.Spec == "" {
		opts.Spec = DefaultSpec
	}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cron.DefaultLogger),
			cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
		),
		runner: runner,
		opts:   opts,
	}
}

// Start registers the job and starts the scheduler. With RunOnStart one sync
// is started immediately without waiting for the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.opts.Spec, func() {
		s.runSync(ctx)
	})
	if err != nil {
		return fmt.Errorf("invalid sync schedule %q: %w", s.opts.Spec, err)
	}

	s.cron.Start()
	log.Printf("[scheduler] Cron started, spec: %s", s.opts.Spec)

	if s.opts.RunOnStart {
		s.startRun.Add(1)
		go func() {
			defer s.startRun.Done()
			s.runSync(ctx)
		}()
	}
	return nil
}

// Stop stops the scheduler and waits for running syncs to return, including
// the one started by RunOnStart.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.startRun.Wait()
	log.Println("[scheduler] Cron stopped")
}

// Next returns the next scheduled fire time, or the zero time before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Scheduler) runSync(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	log.Println("[scheduler] Scheduled sync started")

	res, err := s.runner.Run(ctx, syncer.Request{
		Trigger:    db.TriggerScheduled,
		TimeBudget: s.opts.TimeBudget,
	})
	switch {
	case errors.Is(err, syncer.ErrRunInProgress):
		log.Println("[scheduler] Another sync is running, skipping this tick")
	case err != nil:
		log.Printf("[scheduler] Scheduled sync failed: %v", err)
	default:
		log.Printf("[scheduler] Scheduled sync %s: processed=%d saved=%d errors=%d",
			res.Status, res.Processed, res.Saved, res.Errors())
	}
}
