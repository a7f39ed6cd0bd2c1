// Package lookup serves on-demand contact requests: one browser per request,
// challenge solving, extraction, and an asynchronous cache write to the catalog.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jonathan/job-catalog/internal/captcha"
	"github.com/jonathan/job-catalog/internal/catalog"
	"github.com/jonathan/job-catalog/internal/contact"
	"github.com/jonathan/job-catalog/internal/fetch"
)

// DefaultDetailPageURL is the canonical job detail page; %s is the reference number.
const DefaultDetailPageURL = "https://www.arbeitsagentur.de/jobsuche/jobdetail/%s"

// ErrMissingRefNr is returned when no reference number was given.
var ErrMissingRefNr = errors.New("reference number is required")

// Error represents a failed lookup.
type Error struct {
	RefNr   string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("contact lookup %s: %s: %v", e.RefNr, e.Message, e.Cause)
	}
	return fmt.Sprintf("contact lookup %s: %s", e.RefNr, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Browser is one browser session as used by a lookup.
type Browser interface {
	captcha.Page
	Navigate(ctx context.Context, url string) error
	HTML(ctx context.Context) (string, error)
	Close()
}

// BrowserFactory opens a fresh browser bound to ctx.
type BrowserFactory func(ctx context.Context) (Browser, error)

// ChallengeSolver clears the challenge on a loaded page.
type ChallengeSolver interface {
	Run(ctx context.Context, page captcha.Page) (*captcha.Result, error)
}

// Options configures a Service.
type Options struct {
	DetailPageURL string // fmt pattern with one %s
	Timeout       time.Duration
	PatchTimeout  time.Duration
	FailOnStuck   bool
}

// Result is the outcome of one lookup.
type Result struct {
	RefNr     string
	Contact   *catalog.ContactInfo
	Challenge captcha.State
	Shared    bool // served from a concurrent lookup for the same reference number
}

// Service runs contact lookups.
type Service struct {
	openBrowser BrowserFactory
	solver      ChallengeSolver
	extractor   *contact.Extractor
	store       catalog.Store
	throttle    *fetch.Throttle
	opts        Options
	now         func() time.Time

	group   singleflight.Group
	patches sync.WaitGroup

	mu      sync.Mutex
	waiters map[string]int     // callers waiting per flight key
	flights map[string]*flight // running flight per key
}

type flight struct {
	cancel context.CancelFunc
}

// NewService creates a Service. store may be nil to disable the catalog patch.
func NewService(open BrowserFactory, solver ChallengeSolver, extractor *contact.Extractor, store catalog.Store, throttle *fetch.Throttle, opts Options) *Service {
	if opts.DetailPageURL == "" {
		opts.DetailPageURL = DefaultDetailPageURL
	}
	if opts.PatchTimeout <= 0 {
		opts.PatchTimeout = 10 * time.Second
	}
	if extractor == nil {
		extractor = contact.NewExtractor()
	}
	return &Service{
		openBrowser: open,
		solver:      solver,
		extractor:   extractor,
		store:       store,
		throttle:    throttle,
		opts:        opts,
		now:         time.Now,
		waiters:     make(map[string]int),
		flights:     make(map[string]*flight),
	}
}

// Lookup returns the contact details of a job posting. Concurrent calls for
// the same reference number share one browser session, which keeps running
// as long as at least one of them is still waiting.
func (s *Service) Lookup(ctx context.Context, refNr string) (*Result, error) {
	return s.lookup(ctx, refNr, true)
}

// LookupNoPatch is Lookup without the catalog write.
func (s *Service) LookupNoPatch(ctx context.Context, refNr string) (*Result, error) {
	return s.lookup(ctx, refNr, false)
}

func (s *Service) lookup(ctx context.Context, refNr string, patch bool) (*Result, error) {
	refNr = strings.TrimSpace(refNr)
	if refNr == "" {
		return nil, ErrMissingRefNr
	}

	key := flightKey(refNr, patch)
	s.enter(key)
	defer s.leave(key)

	ch := s.group.DoChan(key, func() (interface{}, error) {
		runCtx, f := s.startFlight(ctx, key)
		defer s.endFlight(key, f)

		res, err := s.run(runCtx, refNr)
		if err == nil && patch {
			s.patchAsync(refNr, res.Contact)
		}
		return res, err
	})

	select {
	case <-ctx.Done():
		return nil, &Error{RefNr: refNr, Message: "request abandoned", Cause: ctx.Err()}
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		res := *r.Val.(*Result)
		res.Shared = r.Shared
		return &res, nil
	}
}

// flightKey separates patching and read-only lookups so a caller that wants
// the catalog write never joins a flight that skips it.
func flightKey(refNr string, patch bool) string {
	if patch {
		return refNr + "|patch"
	}
	return refNr + "|nopatch"
}

func (s *Service) enter(key string) {
	s.mu.Lock()
	s.waiters[key]++
	s.mu.Unlock()
}

// leave drops one waiter. The last one to go cancels the flight so the
// browser closes even when nobody is left to read the result, and forgets
// it so the next caller starts fresh instead of joining a dying flight.
func (s *Service) leave(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waiters[key]--
	if s.waiters[key] > 0 {
		return
	}
	delete(s.waiters, key)
	if f, ok := s.flights[key]; ok {
		f.cancel()
		delete(s.flights, key)
		s.group.Forget(key)
	}
}

// startFlight detaches the flight from the caller that happened to start it.
// Only opts.Timeout and the departure of every waiter end it.
func (s *Service) startFlight(parent context.Context, key string) (context.Context, *flight) {
	base := context.WithoutCancel(parent)
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if s.opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(base, s.opts.Timeout)
	} else {
		ctx, cancel = context.WithCancel(base)
	}
	f := &flight{cancel: cancel}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.waiters[key] == 0 {
		cancel()
	} else {
		s.flights[key] = f
	}
	return ctx, f
}

func (s *Service) endFlight(key string, f *flight) {
	s.mu.Lock()
	if s.flights[key] == f {
		delete(s.flights, key)
	}
	s.mu.Unlock()
	f.cancel()
}

func (s *Service) run(ctx context.Context, refNr string) (*Result, error) {
	start := time.Now()
	log.Printf("[lookup] %s: starting", refNr)

	if err := s.throttle.Wait(ctx); err != nil {
		return nil, &Error{RefNr: refNr, Message: "throttle wait aborted", Cause: err}
	}

	b, err := s.openBrowser(ctx)
	if err != nil {
		return nil, &Error{RefNr: refNr, Message: "failed to start browser", Cause: err}
	}
	defer b.Close()

	pageURL := fmt.Sprintf(s.opts.DetailPageURL, url.PathEscape(refNr))
	if err := b.Navigate(ctx, pageURL); err != nil {
		return nil, &Error{RefNr: refNr, Message: "failed to load job page", Cause: err}
	}

	challenge, err := s.solver.Run(ctx, b)
	if err != nil {
		return nil, &Error{RefNr: refNr, Message: "challenge failed", Cause: err}
	}
	if challenge.State == captcha.StateStuck && s.opts.FailOnStuck {
		return nil, &Error{RefNr: refNr, Message: "challenge still shown after submit"}
	}

	html, err := b.HTML(ctx)
	if err != nil {
		return nil, &Error{RefNr: refNr, Message: "failed to read page", Cause: err}
	}
	text, err := b.Text(ctx)
	if err != nil {
		// HTML alone is enough for the rules
		log.Printf("[lookup] %s: page text unavailable: %v", refNr, err)
		text = ""
	}

	info := s.extractor.Extract(contact.Source{HTML: html, Text: text, RefNr: refNr})
	log.Printf("[lookup] %s: challenge=%s status=%s in %s", refNr, challenge.State,
		catalog.StatusFor(info), time.Since(start).Round(time.Millisecond))

	return &Result{RefNr: refNr, Contact: info, Challenge: challenge.State}, nil
}

// patchAsync stores the result on the catalog entry without blocking the caller.
// A missing entry or a store error is only logged.
func (s *Service) patchAsync(refNr string, info *catalog.ContactInfo) {
	if s.store == nil {
		return
	}
	saved := *info
	if info.Address != nil {
		addr := *info.Address
		saved.Address = &addr
	}
	at := s.now().UTC()

	s.patches.Add(1)
	go func() {
		defer s.patches.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.PatchTimeout)
		defer cancel()

		err := s.store.PatchContact(ctx, refNr, &saved, catalog.StatusFor(&saved), at)
		switch {
		case errors.Is(err, catalog.ErrNotFound):
			log.Printf("[lookup] %s: not in catalog, contact not cached", refNr)
		case err != nil:
			log.Printf("[lookup] %s: failed to cache contact: %v", refNr, err)
		}
	}()
}

// Wait blocks until pending catalog patches have finished.
func (s *Service) Wait() {
	s.patches.Wait()
}
