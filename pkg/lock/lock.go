// Package lock provides cross-process mutual exclusion for operations that
// span multiple statements and cannot be protected by a single atomic
// database primitive, such as the per-user quota check before a reservation.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrNotAcquired is returned when the lock could not be obtained within the
// retry budget. It is a transient failure: the caller may safely retry the
// whole operation later.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker serializes conflicting operations across service instances.
//
// The TTL passed to Acquire/WithLock must exceed the expected maximum
// duration of the protected critical section; otherwise the lock can expire
// mid-operation and admit a second entrant.
type Locker interface {
	// Acquire attempts to take the lock, retrying with a fixed delay up to
	// the configured budget. It returns an ownership token on success and
	// ErrNotAcquired when the budget is exhausted.
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, err error)

	// Release frees the lock only if the stored token still matches; a
	// holder whose TTL lapsed cannot delete a lock since re-acquired by
	// someone else. Returns whether the lock was actually released.
	Release(ctx context.Context, key string, token string) (bool, error)

	// WithLock acquires, runs fn, and releases on every exit path.
	// It returns ErrNotAcquired without running fn if the lock is busy.
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error
}
