package ratelimit

import (
	"strconv"
	"strings"
	"time"
)

// EndpointConfig represents rate limiting configuration for a specific endpoint.
type EndpointConfig struct {
	Path   string        // Endpoint path pattern (supports prefix matching)
	Method string        // HTTP method (GET, POST, etc.)
	Limit  int           // Maximum requests per window
	Window time.Duration // Time window
	Burst  int           // Burst capacity (defaults to Limit if 0)
}

// LookupFunc reads one environment variable; os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// LoadConfig loads rate limiting configuration from RATE_LIMIT_* variables.
func LoadConfig(lookup LookupFunc) *Config {
	env := envSource{lookup: lookup}
	if !env.boolean("RATE_LIMIT_ENABLED", true) {
		return &Config{Enabled: false}
	}

	return &Config{
		Enabled:         true,
		DefaultLimit:    env.integer("RATE_LIMIT_DEFAULT_LIMIT", 600),
		DefaultWindow:   env.duration("RATE_LIMIT_DEFAULT_WINDOW", time.Minute),
		CleanupInterval: env.duration("RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute),
		Whitelist:       parseIPList(env.str("RATE_LIMIT_WHITELIST", "")),
		Blacklist:       parseIPList(env.str("RATE_LIMIT_BLACKLIST", "")),
		EndpointConfigs: DefaultEndpointConfigs(env.integer("RATE_LIMIT_CONTACT_PER_MINUTE", 20)),
	}
}

// DefaultEndpointConfigs returns the per-endpoint rules. Contact lookups pay
// for a solved challenge each, so they get the tightest budget after /sync.
func DefaultEndpointConfigs(contactPerMinute int) []EndpointConfig {
	return []EndpointConfig{
		{Path: "/sync", Method: "POST", Limit: 6, Window: time.Hour, Burst: 2},
		{Path: "/sync/runs", Method: "GET", Limit: 60, Window: time.Minute, Burst: 10},
		{Path: "/contact", Method: "GET", Limit: contactPerMinute, Window: time.Minute, Burst: 5},
		{Path: "/contact", Method: "POST", Limit: contactPerMinute, Window: time.Minute, Burst: 5},
		{Path: "/catalog/", Method: "GET", Limit: 300, Window: time.Minute, Burst: 50},
	}
}

type envSource struct {
	lookup LookupFunc
}

func (e envSource) str(key, defaultValue string) string {
	if e.lookup == nil {
		return defaultValue
	}
	if value, ok := e.lookup(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func (e envSource) integer(key string, defaultValue int) int {
	if n, err := strconv.Atoi(e.str(key, "")); err == nil {
		return n
	}
	return defaultValue
}

func (e envSource) boolean(key string, defaultValue bool) bool {
	if b, err := strconv.ParseBool(e.str(key, "")); err == nil {
		return b
	}
	return defaultValue
}

func (e envSource) duration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(e.str(key, "")); err == nil {
		return d
	}
	return defaultValue
}

// parseIPList parses a comma-separated list of IP addresses into a set.
func parseIPList(list string) map[string]bool {
	result := make(map[string]bool)
	for _, ip := range strings.Split(list, ",") {
		if ip = strings.TrimSpace(ip); ip != "" {
			result[ip] = true
		}
	}
	return result
}
