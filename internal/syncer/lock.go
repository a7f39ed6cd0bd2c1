package syncer

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrRunInProgress is returned when another sync run holds the lock.
var ErrRunInProgress = errors.New("a sync run is already in progress")

// Locker guarantees that at most one sync run is active. Lock either returns
// a release function or ErrRunInProgress without waiting.
type Locker interface {
	Lock(ctx context.Context, ttl time.Duration) (unlock func(), err error)
}

// MutexLocker is a Locker for a single process.
type MutexLocker struct {
	mu sync.Mutex
}

// NewMutexLocker creates a MutexLocker.
func NewMutexLocker() *MutexLocker {
	return &MutexLocker{}
}

// Lock implements Locker. ttl is ignored; the lock lives as long as the process.
func (l *MutexLocker) Lock(context.Context, time.Duration) (func(), error) {
	if !l.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	var once sync.Once
	return func() { once.Do(l.mu.Unlock) }, nil
}
