package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LocalLocker implements Locker with in-process mutexes. It provides the
// same semantics as RedisLocker for a single instance and is what tests and
// single-node deployments use.
type LocalLocker struct {
	mu         sync.Mutex
	held       map[string]localEntry
	maxRetries int
	retryDelay time.Duration
}

type localEntry struct {
	token     string
	expiresAt time.Time
}

// NewLocalLocker creates a LocalLocker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{
		held:       make(map[string]localEntry),
		maxRetries: 50,
		retryDelay: 10 * time.Millisecond,
	}
}

// Acquire takes the lock if free or expired, retrying with fixed delay
func (l *LocalLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	for attempt := 0; attempt <= l.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(l.retryDelay):
			}
		}

		if token, ok := l.tryAcquire(key, ttl); ok {
			return token, nil
		}
	}
	return "", ErrNotAcquired
}

func (l *LocalLocker) tryAcquire(key string, ttl time.Duration) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry, ok := l.held[key]; ok && time.Now().Before(entry.expiresAt) {
		return "", false
	}

	token := uuid.New().String()
	l.held[key] = localEntry{token: token, expiresAt: time.Now().Add(ttl)}
	return token, true
}

// Release frees the lock if the token still matches
func (l *LocalLocker) Release(ctx context.Context, key string, token string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.held[key]
	if !ok || entry.token != token {
		return false, nil
	}
	delete(l.held, key)
	return true, nil
}

// WithLock acquires, runs fn, and releases on every exit path
func (l *LocalLocker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	token, err := l.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = l.Release(context.Background(), key, token)
	}()

	return fn(ctx)
}

var _ Locker = (*LocalLocker)(nil)
