package config

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// LookupFunc reads one environment variable; os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// envReader applies variables to fields and collects parse errors.
type envReader struct {
	lookup LookupFunc
	errs   []error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) int(key string, dst *int) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", key, err))
		return
	}
	*dst = n
}

func (e *envReader) bool(key string, dst *bool) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", key, err))
		return
	}
	*dst = b
}

// duration accepts Go duration strings ("1.5s") and bare milliseconds ("1500").
func (e *envReader) duration(key string, dst *Duration) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	if ms, err := strconv.Atoi(v); err == nil {
		*dst = Duration(time.Duration(ms) * time.Millisecond)
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", key, err))
		return
	}
	*dst = Duration(d)
}

// ApplyEnv overrides fields from environment variables. Unset or empty
// variables leave the current value alone.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	e := &envReader{lookup: lookup}

	e.int("PORT", &c.Port)
	e.str("DATABASE_URL", &c.DatabaseURL)
	e.str("REDIS_URL", &c.RedisURL)

	e.str("JOBS_API_BASE_URL", &c.JobsAPI.BaseURL)
	e.str("JOBS_API_KEY", &c.JobsAPI.APIKey)
	e.str("JOBS_API_CLIENT_ID", &c.JobsAPI.ClientID)
	e.int("JOBS_API_PAGE_SIZE", &c.JobsAPI.PageSize)
	e.duration("HTTP_TIMEOUT", &c.JobsAPI.Timeout)

	e.str("SYNC_CRON", &c.Sync.Cron)
	e.duration("SYNC_TIME_BUDGET", &c.Sync.TimeBudget)
	e.int("MANUAL_SYNC_MAX_PAGES", &c.Sync.ManualMaxPages)
	e.duration("REQUEST_DELAY", &c.Sync.RequestDelay)
	e.bool("SYNC_ON_START", &c.Sync.RunOnStart)

	e.str("BROWSER_USER_AGENT", &c.Browser.UserAgent)
	e.int("BROWSER_VIEWPORT_WIDTH", &c.Browser.Width)
	e.int("BROWSER_VIEWPORT_HEIGHT", &c.Browser.Height)
	e.bool("BROWSER_HEADLESS", &c.Browser.Headless)
	e.str("CHROME_PATH", &c.Browser.ChromePath)
	e.duration("NAVIGATION_TIMEOUT", &c.Browser.NavigationTimeout)

	e.str("CAPTCHA_PROVIDER", &c.Captcha.Provider)
	e.str("CAPTCHA_API_KEY", &c.Captcha.APIKey)
	e.str("CAPTCHA_BASE_URL", &c.Captcha.BaseURL)
	e.duration("CAPTCHA_SOLVE_TIMEOUT", &c.Captcha.SolveTimeout)
	e.duration("CAPTCHA_POLL_INTERVAL", &c.Captcha.PollInterval)
	e.str("GEMINI_API_KEY", &c.Captcha.GeminiAPIKey)
	e.str("GEMINI_MODEL", &c.Captcha.GeminiModel)
	e.duration("CHALLENGE_WAIT", &c.Captcha.ChallengeWait)
	e.duration("SETTLE_DELAY", &c.Captcha.SettleDelay)

	e.str("JOB_DETAIL_PAGE_BASE_URL", &c.Lookup.DetailPageURL)
	e.duration("LOOKUP_TIMEOUT", &c.Lookup.Timeout)
	e.duration("LOOKUP_REQUEST_DELAY", &c.Lookup.RequestDelay)
	e.bool("LOOKUP_FAIL_ON_STUCK", &c.Lookup.FailOnStuck)

	e.str("JWT_SECRET", &c.JWT.Secret)
	e.int("JWT_EXPIRATION_HOURS", &c.JWT.ExpirationHours)

	return errors.Join(e.errs...)
}
