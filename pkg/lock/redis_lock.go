package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	pkgredis "github.com/yash-parekh715/nuvio/pkg/redis"
)

// releaseScript deletes the lock only when the stored token matches the
// caller's. GET+DEL as two commands would let a stale holder delete a lock
// re-acquired by someone else after TTL expiry.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

// RedisLocker implements Locker on Redis SET NX PX plus a compare-and-delete
// Lua script.
type RedisLocker struct {
	client     *pkgredis.Client
	maxRetries int
	retryDelay time.Duration
	keyPrefix  string
}

// RedisLockerConfig contains locker tuning
type RedisLockerConfig struct {
	// MaxRetries is how many times Acquire re-attempts after the first try
	MaxRetries int
	// RetryDelay is the fixed wait between attempts
	RetryDelay time.Duration
	// KeyPrefix namespaces lock keys, default "lock:"
	KeyPrefix string
}

// NewRedisLocker creates a RedisLocker
func NewRedisLocker(client *pkgredis.Client, cfg *RedisLockerConfig) *RedisLocker {
	maxRetries := 5
	retryDelay := 100 * time.Millisecond
	keyPrefix := "lock:"
	if cfg != nil {
		if cfg.MaxRetries >= 0 {
			maxRetries = cfg.MaxRetries
		}
		if cfg.RetryDelay > 0 {
			retryDelay = cfg.RetryDelay
		}
		if cfg.KeyPrefix != "" {
			keyPrefix = cfg.KeyPrefix
		}
	}
	return &RedisLocker{
		client:     client,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		keyPrefix:  keyPrefix,
	}
}

// Acquire attempts SET NX with expiry, retrying with fixed delay.
// Returns ErrNotAcquired, not an infrastructure error, when the lock stays
// held through the whole budget.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.New().String()
	fullKey := l.keyPrefix + key

	for attempt := 0; attempt <= l.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(l.retryDelay):
			}
		}

		ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
		if err != nil {
			return "", fmt.Errorf("lock acquire failed: %w", err)
		}
		if ok {
			return token, nil
		}
	}

	return "", ErrNotAcquired
}

// Release runs the compare-and-delete script
func (l *RedisLocker) Release(ctx context.Context, key string, token string) (bool, error) {
	fullKey := l.keyPrefix + key

	deleted, err := l.client.Eval(ctx, releaseScript, []string{fullKey}, token).Int64()
	if err != nil {
		return false, fmt.Errorf("lock release failed: %w", err)
	}
	return deleted == 1, nil
}

// WithLock acquires, runs fn, and releases via defer so every exit path
// (including panics unwound by the caller) frees the lock.
func (l *RedisLocker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	token, err := l.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer func() {
		// Release on a fresh context: the operation's context may already
		// be cancelled, and a leaked lock would block the key until TTL.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = l.Release(releaseCtx, key, token)
	}()

	return fn(ctx)
}

var _ Locker = (*RedisLocker)(nil)
