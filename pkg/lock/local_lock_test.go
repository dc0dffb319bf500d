package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker_AcquireRelease(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	token, err := l.Acquire(ctx, "user-1:event-1", time.Second)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	released, err := l.Release(ctx, "user-1:event-1", token)
	require.NoError(t, err)
	assert.True(t, released)
}

func TestLocalLocker_HeldLockBlocksSecondAcquirer(t *testing.T) {
	l := &LocalLocker{
		held:       make(map[string]localEntry),
		maxRetries: 2,
		retryDelay: time.Millisecond,
	}
	ctx := context.Background()

	_, err := l.Acquire(ctx, "key", time.Minute)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "key", time.Minute)
	assert.ErrorIs(t, err, ErrNotAcquired)
}

func TestLocalLocker_ExpiredLockCanBeReacquired(t *testing.T) {
	l := &LocalLocker{
		held:       make(map[string]localEntry),
		maxRetries: 0,
		retryDelay: time.Millisecond,
	}
	ctx := context.Background()

	staleToken, err := l.Acquire(ctx, "key", time.Millisecond)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	newToken, err := l.Acquire(ctx, "key", time.Minute)
	require.NoError(t, err)
	assert.NotEqual(t, staleToken, newToken)

	// the stale holder must not be able to free the new holder's lock
	released, err := l.Release(ctx, "key", staleToken)
	require.NoError(t, err)
	assert.False(t, released)
}

func TestLocalLocker_WithLockReleasesOnError(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()
	boom := errors.New("operation failed")

	err := l.WithLock(ctx, "key", time.Minute, func(ctx context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)

	// lock must be free again
	token, err := l.Acquire(ctx, "key", time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)
}

func TestLocalLocker_SerializesCriticalSections(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	var inside, maxInside int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithLock(ctx, "same-key", time.Minute, func(ctx context.Context) error {
				mu.Lock()
				inside++
				if inside > maxInside {
					maxInside = inside
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInside, "two goroutines entered the critical section concurrently")
}
