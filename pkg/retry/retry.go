package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

var (
	// ErrMaxAttemptsExceeded is returned when every attempt failed.
	// The last attempt's error is wrapped alongside it.
	ErrMaxAttemptsExceeded = errors.New("max retry attempts exceeded")
)

// Config contains retry configuration
type Config struct {
	// MaxRetries is the number of retries after the initial attempt
	MaxRetries int
	// InitialInterval is the first backoff interval
	InitialInterval time.Duration
	// MaxInterval caps the backoff interval
	MaxInterval time.Duration
	// Multiplier grows the interval after each retry
	Multiplier float64
	// JitterFactor (0-1) randomizes the interval by ±factor to avoid
	// synchronized retries across instances. Zero disables jitter.
	JitterFactor float64
}

// DefaultConfig returns the default retry configuration:
// 3 retries with 100ms, 200ms, 400ms backoff.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2.0,
	}
}

// Operation is the unit of work to retry
type Operation func(ctx context.Context) error

// PermanentError marks an error that must not be retried
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps an error so the retrier gives up immediately
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// OnRetry is called before each retry with the attempt number (1-based),
// the error that triggered the retry, and the upcoming wait.
type OnRetry func(attempt int, err error, wait time.Duration)

// Do runs op, retrying on failure with exponential backoff.
// A PermanentError stops retries and is returned unwrapped.
// When retries exhaust, the last error is returned wrapped together with
// ErrMaxAttemptsExceeded so callers can check either.
func Do(ctx context.Context, cfg *Config, op Operation, onRetry OnRetry) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}

		var perm *PermanentError
		if errors.As(err, &perm) {
			return perm.Err
		}
		lastErr = err

		if attempt == cfg.MaxRetries {
			break
		}

		wait := backoff(cfg, attempt)
		if onRetry != nil {
			onRetry(attempt+1, err, wait)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	return errors.Join(ErrMaxAttemptsExceeded, lastErr)
}

// backoff computes the wait before the retry following the given attempt
func backoff(cfg *Config, attempt int) time.Duration {
	multiplier := cfg.Multiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}
	initial := cfg.InitialInterval
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}

	interval := float64(initial) * math.Pow(multiplier, float64(attempt))

	if cfg.JitterFactor > 0 {
		jitter := interval * cfg.JitterFactor
		interval += (rand.Float64()*2 - 1) * jitter
	}

	if cfg.MaxInterval > 0 && interval > float64(cfg.MaxInterval) {
		interval = float64(cfg.MaxInterval)
	}
	if interval < 0 {
		interval = float64(initial)
	}

	return time.Duration(interval)
}
