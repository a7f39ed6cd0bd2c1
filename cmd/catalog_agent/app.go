package main

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/jonathan/job-catalog/internal/browser"
	"github.com/jonathan/job-catalog/internal/captcha"
	"github.com/jonathan/job-catalog/internal/catalog"
	"github.com/jonathan/job-catalog/internal/config"
	"github.com/jonathan/job-catalog/internal/contact"
	"github.com/jonathan/job-catalog/internal/db"
	"github.com/jonathan/job-catalog/internal/fetch"
	"github.com/jonathan/job-catalog/internal/jobsapi"
	"github.com/jonathan/job-catalog/internal/lookup"
	"github.com/jonathan/job-catalog/internal/syncer"
)

// catalogStore is what both the PostgreSQL and the in-memory store provide.
type catalogStore interface {
	catalog.Store
	syncer.RunRecorder
	ListSyncRuns(ctx context.Context, limit int) ([]db.SyncRun, error)
}

// app holds the long-lived resources of one command invocation.
type app struct {
	cfg     *config.Config
	store   catalogStore
	redis   *redis.Client
	closers []func()
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath, o.lookup)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// openApp loads the configuration and connects the catalog store and Redis.
func (o *rootOptions) openApp(ctx context.Context) (*app, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg}

	switch {
	case o.memory:
		log.Println("[app] Using in-memory catalog store")
		a.store = db.NewMemoryStore()
	case cfg.DatabaseURL != "":
		database, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.store = database
		a.closers = append(a.closers, database.Close)
	default:
		return nil, fmt.Errorf("DATABASE_URL is required (or pass --memory)")
	}

	if cfg.RedisURL != "" {
		client, err := db.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.redis = client
		a.closers = append(a.closers, func() { _ = client.Close() })
	}
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// newOrchestrator wires the jobs API, the catalog store and the run lock.
func (a *app) newOrchestrator(onProgress syncer.ProgressCallback) *syncer.Orchestrator {
	client := jobsapi.NewClient(jobsapi.Config{
		BaseURL:  a.cfg.JobsAPI.BaseURL,
		APIKey:   a.cfg.JobsAPI.APIKey,
		ClientID: a.cfg.JobsAPI.ClientID,
		Timeout:  a.cfg.JobsAPI.Timeout.Std(),
	}, fetch.NewThrottle(a.cfg.Sync.RequestDelay.Std()))

	opts := syncer.Options{
		Recorder:   a.store,
		OnProgress: onProgress,
	}
	if a.redis != nil {
		locker := syncer.NewRedisLocker(a.redis)
		opts.Locker = locker
		opts.Summaries = locker
	}

	return syncer.NewOrchestrator(
		jobsapi.NewFetcher(client, a.cfg.JobsAPI.PageSize),
		jobsapi.NewEnricher(client),
		catalog.NewUpserter(a.store),
		opts,
	)
}

// newLookupService wires the browser, the challenge solver and the extractor.
func (a *app) newLookupService(ctx context.Context) (*lookup.Service, error) {
	if err := a.cfg.RequireCaptcha(); err != nil {
		return nil, err
	}
	service, closeService, err := newCaptchaService(ctx, a.cfg.Captcha)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeService)

	solverCfg := captcha.DefaultConfig()
	solverCfg.SolveTimeout = a.cfg.Captcha.SolveTimeout.Std()
	solverCfg.ChallengeWait = a.cfg.Captcha.ChallengeWait.Std()
	solverCfg.SettleDelay = a.cfg.Captcha.SettleDelay.Std()

	launcher := browser.NewLauncher(browser.Options{
		UserAgent:         a.cfg.Browser.UserAgent,
		Width:             a.cfg.Browser.Width,
		Height:            a.cfg.Browser.Height,
		Headless:          a.cfg.Browser.Headless,
		ExecPath:          a.cfg.Browser.ChromePath,
		NavigationTimeout: a.cfg.Browser.NavigationTimeout.Std(),
	})

	svc := lookup.NewService(
		browserFactory(launcher),
		captcha.NewSolver(service, solverCfg),
		contact.NewExtractor(),
		a.store,
		fetch.NewThrottle(a.cfg.Lookup.RequestDelay.Std()),
		lookup.Options{
			DetailPageURL: a.cfg.Lookup.DetailPageURL,
			Timeout:       a.cfg.Lookup.Timeout.Std(),
			FailOnStuck:   a.cfg.Lookup.FailOnStuck,
		},
	)
	// pending catalog patches finish before the store closes
	a.closers = append(a.closers, svc.Wait)
	return svc, nil
}

// newCaptchaService builds the configured solving service.
func newCaptchaService(ctx context.Context, cfg config.CaptchaConfig) (captcha.Service, func(), error) {
	switch cfg.Provider {
	case config.ProviderTwoCaptcha:
		svc := captcha.NewTwoCaptcha(captcha.TwoCaptchaConfig{
			BaseURL:      cfg.BaseURL,
			APIKey:       cfg.APIKey,
			PollInterval: cfg.PollInterval.Std(),
			Timeout:      cfg.SolveTimeout.Std(),
		})
		return svc, func() {}, nil
	case config.ProviderGemini:
		svc, err := captcha.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, nil, err
		}
		return svc, func() {
			if err := svc.Close(); err != nil {
				log.Printf("[app] Failed to close Gemini client: %v", err)
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown captcha provider %q", cfg.Provider)
	}
}

// browserFactory adapts a Launcher to the lookup service.
func browserFactory(l *browser.Launcher) lookup.BrowserFactory {
	return func(ctx context.Context) (lookup.Browser, error) {
		s, err := l.Open(ctx)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// logProgress prints orchestrator state changes and a line every 100 items.
func logProgress(ev syncer.ProgressEvent) {
	switch {
	case ev.Index == 0:
		log.Printf("[sync] %s: %s", ev.State, ev.Message)
	case ev.Index%100 == 0 || ev.Index == ev.Total:
		log.Printf("[sync] %d/%d items done (last %s)", ev.Index, ev.Total, ev.RefNr)
	}
}
