package billing

import (
	"context"
	"fmt"
	"sync"
)

// =============================================================================
// KEYED MUTEX - one writer per key (e.g. property + period)
// =============================================================================

// KeyedMutex hands out one mutex per key and drops it once nobody holds or
// waits for it.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock blocks until key is free and returns the matching unlock func.
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func periodLockKey(propertyID string, period Period) string {
	return propertyID + "|" + string(period)
}

// =============================================================================
// OPTIMISTIC RETRY
// =============================================================================

// DefaultMaxRetries bounds optimistic read-modify-write loops.
const DefaultMaxRetries = 3

// WithRetry runs fn until it succeeds, fails with a non-retryable error, or
// maxRetries attempts have lost a version race.
func WithRetry(ctx context.Context, maxRetries int, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = fn(ctx)
		if err == nil || !IsRetryable(err) {
			return err
		}
	}
	return fmt.Errorf("too much contention after %d attempts: %w", maxRetries, err)
}
