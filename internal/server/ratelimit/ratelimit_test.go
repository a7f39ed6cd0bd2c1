package ratelimit

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestLimiter returns a limiter with a frozen clock and no cleanup goroutine.
func newTestLimiter(t *testing.T, cfg *Config) (*Limiter, *time.Time) {
	t.Helper()
	cfg.CleanupInterval = 0
	l := NewLimiter(cfg)
	t.Cleanup(l.Stop)
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }
	return l, &clock
}

func TestLimiter_Allow(t *testing.T) {
	l, _ := newTestLimiter(t, &Config{Enabled: true, DefaultLimit: 10, DefaultWindow: time.Minute})

	for i := 0; i < 10; i++ {
		allowed, info := l.Allow("127.0.0.1", "/test", "GET")
		require.True(t, allowed, "request %d", i+1)
		assert.Equal(t, 10, info.Limit)
		assert.Equal(t, 9-i, info.Remaining)
	}

	allowed, info := l.Allow("127.0.0.1", "/test", "GET")
	assert.False(t, allowed)
	assert.Equal(t, 0, info.Remaining)
	assert.Equal(t, 6*time.Second, info.RetryAfter)
	assert.True(t, info.ResetTime.After(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)))
}

func TestLimiter_Refill(t *testing.T) {
	l, clock := newTestLimiter(t, &Config{Enabled: true, DefaultLimit: 60, DefaultWindow: time.Minute})

	for i := 0; i < 60; i++ {
		l.Allow("c", "/test", "GET")
	}
	allowed, _ := l.Allow("c", "/test", "GET")
	require.False(t, allowed)

	*clock = clock.Add(time.Second)
	allowed, _ = l.Allow("c", "/test", "GET")
	assert.True(t, allowed, "one token refilled after a second")

	allowed, _ = l.Allow("c", "/test", "GET")
	assert.False(t, allowed)
}

func TestLimiter_WhitelistBlacklistDisabled(t *testing.T) {
	l, _ := newTestLimiter(t, &Config{
		Enabled:       true,
		DefaultLimit:  1,
		DefaultWindow: time.Minute,
		Whitelist:     map[string]bool{"10.0.0.1": true},
		Blacklist:     map[string]bool{"10.0.0.2": true},
	})

	for i := 0; i < 20; i++ {
		allowed, info := l.Allow("10.0.0.1", "/test", "GET")
		require.True(t, allowed)
		assert.Equal(t, 0, info.Limit)
	}

	allowed, _ := l.Allow("10.0.0.2", "/health", "GET")
	assert.False(t, allowed)

	off, _ := newTestLimiter(t, &Config{Enabled: false})
	for i := 0; i < 20; i++ {
		allowed, _ := off.Allow("10.0.0.3", "/contact", "POST")
		require.True(t, allowed)
	}
}

func TestLimiter_EndpointSpecific(t *testing.T) {
	l, _ := newTestLimiter(t, &Config{
		Enabled:         true,
		DefaultLimit:    1000,
		DefaultWindow:   time.Minute,
		EndpointConfigs: DefaultEndpointConfigs(20),
	})

	for i := 0; i < 2; i++ {
		allowed, info := l.Allow("c", "/sync", "POST")
		require.True(t, allowed)
		assert.Equal(t, 6, info.Limit)
	}
	allowed, _ := l.Allow("c", "/sync", "POST")
	assert.False(t, allowed, "burst of two manual syncs")

	allowed, info := l.Allow("c", "/sync/runs", "GET")
	assert.True(t, allowed)
	assert.Equal(t, 60, info.Limit)

	allowed, info = l.Allow("c", "/other", "GET")
	assert.True(t, allowed)
	assert.Equal(t, 1000, info.Limit)
}

func TestLimiter_PrefixRuleSharesOneBucket(t *testing.T) {
	l, _ := newTestLimiter(t, &Config{
		Enabled:       true,
		DefaultLimit:  1000,
		DefaultWindow: time.Minute,
		EndpointConfigs: []EndpointConfig{
			{Path: "/catalog/", Method: "GET", Limit: 2, Window: time.Minute},
		},
	})

	allowed, _ := l.Allow("c", "/catalog/10000-1", "GET")
	require.True(t, allowed)
	allowed, _ = l.Allow("c", "/catalog/10000-2", "GET")
	require.True(t, allowed)
	allowed, _ = l.Allow("c", "/catalog/10000-3", "GET")
	assert.False(t, allowed, "different ids count against the same rule")
}

func TestLimiter_HealthAndPreflightUnlimited(t *testing.T) {
	l, _ := newTestLimiter(t, &Config{Enabled: true, DefaultLimit: 1, DefaultWindow: time.Minute})
	for i := 0; i < 10; i++ {
		allowed, _ := l.Allow("c", "/health", "GET")
		require.True(t, allowed)
		allowed, _ = l.Allow("c", "/contact", "OPTIONS")
		require.True(t, allowed)
	}
}

func TestLimiter_Concurrent(t *testing.T) {
	l, _ := newTestLimiter(t, &Config{Enabled: true, DefaultLimit: 100, DefaultWindow: time.Minute})

	var wg sync.WaitGroup
	var allowedCount int64
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if allowed, _ := l.Allow("c", "/test", "GET"); allowed {
				atomic.AddInt64(&allowedCount, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(100), allowedCount)
}

func TestLimiter_CleanupDropsIdleBuckets(t *testing.T) {
	l, clock := newTestLimiter(t, &Config{Enabled: true, DefaultLimit: 10, DefaultWindow: time.Minute, IdleTTL: time.Hour})

	for i := 0; i < 4; i++ {
		l.Allow(fmt.Sprintf("127.0.0.%d", i+1), "/test", "GET")
	}
	*clock = clock.Add(30 * time.Minute)
	l.Allow("127.0.0.1", "/test", "GET")

	*clock = clock.Add(45 * time.Minute)
	assert.Equal(t, 3, l.cleanupBuckets())
	assert.Len(t, l.buckets, 1)
}

func TestNewLimiter_NilConfig(t *testing.T) {
	l := NewLimiter(nil)
	defer l.Stop()

	allowed, info := l.Allow("127.0.0.1", "/test", "GET")
	assert.True(t, allowed)
	assert.Equal(t, 1000, info.Limit)
}

func TestLoadConfig(t *testing.T) {
	env := map[string]string{
		"RATE_LIMIT_DEFAULT_LIMIT":      "50",
		"RATE_LIMIT_WHITELIST":          "10.0.0.1, 10.0.0.2",
		"RATE_LIMIT_CONTACT_PER_MINUTE": "5",
	}
	cfg := LoadConfig(func(k string) (string, bool) { v, ok := env[k]; return v, ok })

	assert.True(t, cfg.Enabled)
	assert.Equal(t, 50, cfg.DefaultLimit)
	assert.Equal(t, time.Minute, cfg.DefaultWindow)
	assert.True(t, cfg.Whitelist["10.0.0.2"])

	rule := MatchEndpoint("/contact", "POST", cfg.EndpointConfigs)
	require.NotNil(t, rule)
	assert.Equal(t, 5, rule.Limit)

	disabled := LoadConfig(func(k string) (string, bool) { return "false", k == "RATE_LIMIT_ENABLED" })
	assert.False(t, disabled.Enabled)
}

func TestMatchEndpoint(t *testing.T) {
	configs := DefaultEndpointConfigs(20)

	assert.Nil(t, MatchEndpoint("/unknown", "GET", configs))
	assert.Equal(t, "/catalog/", MatchEndpoint("/catalog/10000-1", "GET", configs).Path)
	assert.Nil(t, MatchEndpoint("/catalog/10000-1", "POST", configs))
	assert.Equal(t, 0, MatchEndpoint("/health", "GET", configs).Limit)
}
