// Package config provides configuration loading and validation.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Captcha providers
const (
	ProviderTwoCaptcha = "twocaptcha"
	ProviderGemini     = "gemini"
)

// Duration is a time.Duration that reads "30s" style strings from JSON.
type Duration time.Duration

// UnmarshalJSON accepts a duration string or a number of nanoseconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid duration %s", string(b))
	}
	*d = Duration(n)
	return nil
}

// MarshalJSON writes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// JobsAPIConfig configures the listing search and detail API.
type JobsAPIConfig struct {
	BaseURL  string   `json:"base_url" validate:"required,url"`
	APIKey   string   `json:"api_key" validate:"required"`
	ClientID string   `json:"client_id" validate:"required"`
	PageSize int      `json:"page_size" validate:"min=1,max=100"`
	Timeout  Duration `json:"timeout"`
}

// SyncConfig configures scheduled and manual sync runs.
type SyncConfig struct {
	Cron           string   `json:"cron" validate:"required"`
	TimeBudget     Duration `json:"time_budget"`
	ManualMaxPages int      `json:"manual_max_pages" validate:"min=1"`
	RequestDelay   Duration `json:"request_delay"`
	RunOnStart     bool     `json:"run_on_start,omitempty"`
}

// BrowserConfig configures the headless browser used for contact lookups.
type BrowserConfig struct {
	UserAgent         string   `json:"user_agent" validate:"required"`
	Width             int      `json:"viewport_width" validate:"min=320"`
	Height            int      `json:"viewport_height" validate:"min=240"`
	Headless          bool     `json:"headless"`
	ChromePath        string   `json:"chrome_path,omitempty"`
	NavigationTimeout Duration `json:"navigation_timeout"`
}

// CaptchaConfig configures the challenge solver and its solving service.
type CaptchaConfig struct {
	Provider      string   `json:"provider" validate:"oneof=twocaptcha gemini"`
	APIKey        string   `json:"api_key,omitempty"`
	BaseURL       string   `json:"base_url" validate:"omitempty,url"`
	SolveTimeout  Duration `json:"solve_timeout"`
	PollInterval  Duration `json:"poll_interval"`
	GeminiAPIKey  string   `json:"gemini_api_key,omitempty"`
	GeminiModel   string   `json:"gemini_model,omitempty"`
	ChallengeWait Duration `json:"challenge_wait"`
	SettleDelay   Duration `json:"settle_delay"`
}

// LookupConfig configures on-demand contact lookups.
type LookupConfig struct {
	DetailPageURL string   `json:"detail_page_url" validate:"required,contains=%s"`
	Timeout       Duration `json:"timeout"`
	RequestDelay  Duration `json:"request_delay"`
	FailOnStuck   bool     `json:"fail_on_stuck,omitempty"`
}

// Config is built once at startup and passed into every constructor.
type Config struct {
	Port        int    `json:"port" validate:"min=1,max=65535"`
	DatabaseURL string `json:"database_url,omitempty"`
	RedisURL    string `json:"redis_url,omitempty"`

	JobsAPI JobsAPIConfig `json:"jobs_api"`
	Sync    SyncConfig    `json:"sync"`
	Browser BrowserConfig `json:"browser"`
	Captcha CaptchaConfig `json:"captcha"`
	Lookup  LookupConfig  `json:"lookup"`
	JWT     JWTConfig     `json:"-"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port: 8080,
		JobsAPI: JobsAPIConfig{
			BaseURL:  "https://rest.arbeitsagentur.de/jobboerse/jobsuche-service",
			APIKey:   "jobboerse-jobsuche",
			ClientID: "job-catalog/1.0",
			PageSize: 100,
			Timeout:  Duration(30 * time.Second),
		},
		Sync: SyncConfig{
			Cron:           "CRON_TZ=Europe/Berlin 0 3 * * *",
			TimeBudget:     Duration(50 * time.Minute),
			ManualMaxPages: 2,
			RequestDelay:   Duration(300 * time.Millisecond),
		},
		Browser: BrowserConfig{
			UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			Width:             1366,
			Height:            900,
			Headless:          true,
			NavigationTimeout: Duration(30 * time.Second),
		},
		Captcha: CaptchaConfig{
			Provider:      ProviderTwoCaptcha,
			BaseURL:       "https://2captcha.com",
			SolveTimeout:  Duration(90 * time.Second),
			PollInterval:  Duration(5 * time.Second),
			GeminiModel:   "gemini-2.5-flash",
			ChallengeWait: Duration(8 * time.Second),
			SettleDelay:   Duration(1500 * time.Millisecond),
		},
		Lookup: LookupConfig{
			DetailPageURL: "https://www.arbeitsagentur.de/jobsuche/jobdetail/%s",
			Timeout:       Duration(2 * time.Minute),
			RequestDelay:  Duration(time.Second),
		},
		JWT: JWTConfig{ExpirationHours: 24},
	}
}

// LoadConfig reads a JSON file on top of the built-in defaults.
// Keys missing from the file keep their default values.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	return &cfg, nil
}

// Load builds the configuration: defaults, then the optional JSON file, then
// environment variables read through lookup, then validation.
func Load(path string, lookup LookupFunc) (*Config, error) {
	cfg := Default()
	if path != "" {
		fromFile, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = *fromFile
	}
	if lookup != nil {
		if err := cfg.ApplyEnv(lookup); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New()

// Validate checks the parts every command needs. Credentials that only some
// commands use are checked by RequireCaptcha and RequireJWT.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config error: %s", validationMessage(err))
	}
	if c.Lookup.Timeout.Std() < 0 || c.Sync.TimeBudget.Std() < 0 {
		return fmt.Errorf("config error: timeouts must be non-negative")
	}
	if strings.Count(c.Lookup.DetailPageURL, "%s") != 1 {
		return fmt.Errorf("config error: detail_page_url must contain exactly one %%s")
	}
	return nil
}

// RequireCaptcha checks that the selected solving service has credentials.
func (c *Config) RequireCaptcha() error {
	switch c.Captcha.Provider {
	case ProviderTwoCaptcha:
		if c.Captcha.APIKey == "" {
			return fmt.Errorf("config error: CAPTCHA_API_KEY is required for provider %s", ProviderTwoCaptcha)
		}
	case ProviderGemini:
		if c.Captcha.GeminiAPIKey == "" {
			return fmt.Errorf("config error: GEMINI_API_KEY is required for provider %s", ProviderGemini)
		}
	default:
		return fmt.Errorf("config error: unknown captcha provider %q", c.Captcha.Provider)
	}
	return nil
}

// RequireJWT checks the operator token settings.
func (c *Config) RequireJWT() error {
	return c.JWT.normalize()
}

// validationMessage formats validator errors as "field tag" pairs.
func validationMessage(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag())
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		msgs = append(msgs, msg)
	}
	return strings.Join(msgs, "; ")
}
