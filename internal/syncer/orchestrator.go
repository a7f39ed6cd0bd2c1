// Package syncer runs one catalog sync pass: fetch every listing page, enrich
// each listing with its detail record and upsert it into the catalog.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/job-catalog/internal/catalog"
	"github.com/jonathan/job-catalog/internal/db"
	"github.com/jonathan/job-catalog/internal/jobsapi"
)

// State is a phase of a sync run.
type State string

// Run states
const (
	StateIdle      State = "idle"
	StateFetching  State = "fetching"
	StateEnriching State = "enriching-and-upserting"
	StateDone      State = "done"
	StateFailed    State = "failed"
)

// ListingFetcher walks the listing search endpoint.
type ListingFetcher interface {
	FetchAll(ctx context.Context, maxPages int) (*jobsapi.FetchResult, error)
}

// ListingEnricher turns a stub into a detail record and never fails.
type ListingEnricher interface {
	Enrich(ctx context.Context, stub catalog.ListingStub) (*catalog.JobDetailRecord, bool)
}

// EntryUpserter stores a detail record.
type EntryUpserter interface {
	Upsert(ctx context.Context, rec *catalog.JobDetailRecord) (*catalog.CatalogEntry, error)
}

// RunRecorder persists run bookkeeping.
type RunRecorder interface {
	CreateSyncRun(ctx context.Context, run *db.SyncRun) error
	CompleteSyncRun(ctx context.Context, run *db.SyncRun) error
}

// SummaryPublisher mirrors the result of a finished run somewhere other
// processes can read it.
type SummaryPublisher interface {
	PublishSummary(ctx context.Context, res *RunResult) error
}

// ProgressEvent is emitted on every state change and after every item.
type ProgressEvent struct {
	RunID   uuid.UUID `json:"run_id"`
	State   State     `json:"state"`
	Index   int       `json:"index,omitempty"`
	Total   int       `json:"total,omitempty"`
	RefNr   string    `json:"refnr,omitempty"`
	Message string    `json:"message,omitempty"`
}

// ProgressCallback is called when run progress occurs.
type ProgressCallback func(event ProgressEvent)

// Request describes one run.
type Request struct {
	Trigger    string        // db.TriggerScheduled, db.TriggerManual or db.TriggerCLI
	MaxPages   int           // 0 fetches every page
	TimeBudget time.Duration // 0 means no ceiling
}

// RunResult holds the counters of a finished run.
// Processed always equals Saved + Failed. Degraded items are saved with
// listing data only and are counted in Saved as well.
type RunResult struct {
	RunID         uuid.UUID     `json:"runId"`
	Trigger       string        `json:"trigger"`
	Status        string        `json:"status"`
	TotalReported int           `json:"totalReported"`
	Pages         int           `json:"pages"`
	Processed     int           `json:"processed"`
	Saved         int           `json:"saved"`
	Failed        int           `json:"failed"`
	Degraded      int           `json:"degraded"`
	Skipped       int           `json:"skipped"`
	Error         string        `json:"error,omitempty"`
	StartedAt     time.Time     `json:"startedAt"`
	Duration      time.Duration `json:"duration"`
}

// Errors is the error count reported to callers.
func (r *RunResult) Errors() int {
	return r.Failed + r.Degraded
}

// Options configures an Orchestrator. Every field is optional.
type Options struct {
	Recorder   RunRecorder
	Locker     Locker
	Summaries  SummaryPublisher
	OnProgress ProgressCallback
	LockTTL    time.Duration
}

// ErrTimeBudgetExceeded is returned when the listing fetch used up the whole time budget.
var ErrTimeBudgetExceeded = errors.New("time budget used up while fetching")

// DefaultLockTTL bounds how long a crashed run can block the next one.
const DefaultLockTTL = 2 * time.Hour

// Orchestrator runs sync passes one at a time.
type Orchestrator struct {
	fetcher  ListingFetcher
	enricher ListingEnricher
	upserter EntryUpserter
	opts     Options
	now      func() time.Time

	mu    sync.RWMutex
	state State
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(fetcher ListingFetcher, enricher ListingEnricher, upserter EntryUpserter, opts Options) *Orchestrator {
	if opts.Locker == nil {
		opts.Locker = NewMutexLocker()
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = DefaultLockTTL
	}
	return &Orchestrator{
		fetcher:  fetcher,
		enricher: enricher,
		upserter: upserter,
		opts:     opts,
		now:      time.Now,
		state:    StateIdle,
	}
}

// State returns the phase of the current or last run.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

func (o *Orchestrator) enter(run *RunResult, s State, msg string) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	o.emit(ProgressEvent{RunID: run.RunID, State: s, Message: msg})
}

func (o *Orchestrator) emit(ev ProgressEvent) {
	if o.opts.OnProgress != nil {
		o.opts.OnProgress(ev)
	}
}

// Run executes one sync pass. It returns ErrRunInProgress when another run
// holds the lock. A page fetch failure fails the whole run; per-item problems
// are only counted. The time budget also bounds the listing fetch; a fetch
// that outlasts it fails the run. When the budget runs out or ctx is canceled
// during the item loop the run stops after the item in flight and ends with
// status partial.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*RunResult, error) {
	if req.Trigger == "" {
		req.Trigger = db.TriggerManual
	}

	unlock, err := o.opts.Locker.Lock(ctx, o.opts.LockTTL)
	if err != nil {
		return nil, err
	}
	defer unlock()

	start := o.now()
	res := &RunResult{Trigger: req.Trigger, StartedAt: start.UTC()}
	rec := o.createRun(ctx, req, res)

	log.Printf("[sync] run %s started (trigger=%s, max_pages=%d, budget=%s)",
		res.RunID, req.Trigger, req.MaxPages, req.TimeBudget)

	o.enter(res, StateFetching, "")
	fetched, err := o.fetch(ctx, req, start)
	if err != nil {
		if fetched != nil {
			res.TotalReported = fetched.TotalReported
			res.Pages = fetched.Pages
			res.Skipped = len(fetched.Stubs)
		}
		res.Status = db.RunStatusFailed
		res.Error = err.Error()
		res.Duration = o.now().Sub(start)
		o.enter(res, StateFailed, res.Error)
		o.finish(res, rec)
		log.Printf("[sync] run %s failed while fetching: %v", res.RunID, err)
		return res, fmt.Errorf("sync run %s: %w", res.RunID, err)
	}
	res.TotalReported = fetched.TotalReported
	res.Pages = fetched.Pages

	o.enter(res, StateEnriching, fmt.Sprintf("%d listings", len(fetched.Stubs)))
	res.Status = db.RunStatusDone
	for i, stub := range fetched.Stubs {
		if reason := o.stopReason(ctx, req, start); reason != "" {
			res.Skipped = len(fetched.Stubs) - i
			res.Status = db.RunStatusPartial
			log.Printf("[sync] run %s stopping early (%s), %d listings left", res.RunID, reason, res.Skipped)
			break
		}
		o.processItem(ctx, res, stub)
		o.emit(ProgressEvent{RunID: res.RunID, State: StateEnriching, Index: i + 1, Total: len(fetched.Stubs), RefNr: stub.RefNr})
	}

	res.Duration = o.now().Sub(start)
	o.enter(res, StateDone, res.Status)
	o.finish(res, rec)

	log.Printf("[sync] run %s %s: processed=%d saved=%d failed=%d degraded=%d skipped=%d in %s",
		res.RunID, res.Status, res.Processed, res.Saved, res.Failed, res.Degraded, res.Skipped,
		res.Duration.Round(time.Millisecond))
	return res, nil
}

// fetch runs the listing walk under the time budget. A fetch that uses up
// the whole budget leaves nothing for the items and fails the run.
func (o *Orchestrator) fetch(ctx context.Context, req Request, start time.Time) (*jobsapi.FetchResult, error) {
	if req.TimeBudget <= 0 {
		return o.fetcher.FetchAll(ctx, req.MaxPages)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, req.TimeBudget)
	defer cancel()

	fetched, err := o.fetcher.FetchAll(fetchCtx, req.MaxPages)
	if err != nil {
		return nil, err
	}
	if elapsed := o.now().Sub(start); elapsed >= req.TimeBudget {
		return fetched, fmt.Errorf("%w: fetching took %s", ErrTimeBudgetExceeded, elapsed.Round(time.Second))
	}
	return fetched, nil
}

func (o *Orchestrator) processItem(ctx context.Context, res *RunResult, stub catalog.ListingStub) {
	res.Processed++

	rec, degraded := o.enricher.Enrich(ctx, stub)
	if degraded {
		res.Degraded++
	}

	if _, err := o.upserter.Upsert(ctx, rec); err != nil {
		res.Failed++
		log.Printf("[sync] %s: upsert failed: %v", stub.RefNr, err)
		return
	}
	res.Saved++
}

func (o *Orchestrator) stopReason(ctx context.Context, req Request, start time.Time) string {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "deadline exceeded"
		}
		return "canceled"
	}
	if req.TimeBudget > 0 && o.now().Sub(start) >= req.TimeBudget {
		return "time budget used up"
	}
	return ""
}

// createRun records the run start. Bookkeeping failures never stop a sync.
func (o *Orchestrator) createRun(ctx context.Context, req Request, res *RunResult) *db.SyncRun {
	run := &db.SyncRun{ID: uuid.New(), Trigger: req.Trigger, Status: db.RunStatusRunning}
	if req.MaxPages > 0 {
		maxPages := req.MaxPages
		run.MaxPages = &maxPages
	}
	res.RunID = run.ID

	if o.opts.Recorder == nil {
		return nil
	}
	if err := o.opts.Recorder.CreateSyncRun(ctx, run); err != nil {
		log.Printf("[sync] run %s: failed to record start: %v", run.ID, err)
		return nil
	}
	return run
}

func (o *Orchestrator) finish(res *RunResult, run *db.SyncRun) {
	// the caller's ctx may already be done
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if run != nil {
		run.Status = res.Status
		run.TotalReported = res.TotalReported
		run.Processed = res.Processed
		run.Saved = res.Saved
		run.Failed = res.Failed
		run.Degraded = res.Degraded
		run.Skipped = res.Skipped
		if res.Error != "" {
			msg := res.Error
			run.Error = &msg
		}
		if err := o.opts.Recorder.CompleteSyncRun(ctx, run); err != nil {
			log.Printf("[sync] run %s: failed to record completion: %v", res.RunID, err)
		}
	}

	if o.opts.Summaries != nil {
		if err := o.opts.Summaries.PublishSummary(ctx, res); err != nil {
			log.Printf("[sync] run %s: failed to publish summary: %v", res.RunID, err)
		}
	}
}
