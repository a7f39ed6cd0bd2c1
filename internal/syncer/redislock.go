package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis keys used by RedisLocker.
const (
	DefaultLockKey    = "catalog:sync:lock"
	DefaultSummaryKey = "catalog:sync:last"
)

// releaseScript deletes the lock only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// extendScript refreshes the expiry only while the lock still carries our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

// RedisLocker is a Locker shared by every process talking to the same Redis.
// It also stores the summary of the last finished run.
type RedisLocker struct {
	client     *redis.Client
	lockKey    string
	summaryKey string
}

// NewRedisLocker creates a RedisLocker using the default keys.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{
		client:     client,
		lockKey:    DefaultLockKey,
		summaryKey: DefaultSummaryKey,
	}
}

// WithKeys returns a copy that uses other keys.
func (l *RedisLocker) WithKeys(lockKey, summaryKey string) *RedisLocker {
	cp := *l
	cp.lockKey = lockKey
	cp.summaryKey = summaryKey
	return &cp
}

// Lock implements Locker with SET NX PX. The expiry is refreshed while the
// lock is held so long runs keep it; a crashed holder loses it after ttl.
func (l *RedisLocker) Lock(ctx context.Context, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.lockKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire sync lock: %w", err)
	}
	if !ok {
		return nil, ErrRunInProgress
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.keepAlive(token, ttl, stop)
	}()

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			close(stop)
			wg.Wait()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, l.client, []string{l.lockKey}, token).Err(); err != nil {
				log.Printf("[sync] failed to release lock %s: %v", l.lockKey, err)
			}
		})
	}
	return unlock, nil
}

func (l *RedisLocker) keepAlive(token string, ttl time.Duration, stop <-chan struct{}) {
	interval := ttl / 3
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			err := extendScript.Run(ctx, l.client, []string{l.lockKey}, token, ttl.Milliseconds()).Err()
			cancel()
			if err != nil {
				log.Printf("[sync] failed to extend lock %s: %v", l.lockKey, err)
			}
		}
	}
}

// PublishSummary implements SummaryPublisher.
func (l *RedisLocker) PublishSummary(ctx context.Context, res *RunResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}
	if err := l.client.Set(ctx, l.summaryKey, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store run summary: %w", err)
	}
	return nil
}

// LastSummary returns the summary of the last finished run, or (nil, nil).
func (l *RedisLocker) LastSummary(ctx context.Context) (*RunResult, error) {
	data, err := l.client.Get(ctx, l.summaryKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read run summary: %w", err)
	}
	var res RunResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("failed to decode run summary: %w", err)
	}
	return &res, nil
}
