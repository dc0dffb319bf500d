package database

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/yash-parekh715/nuvio/pkg/logger"
	"github.com/yash-parekh715/nuvio/pkg/retry"
)

// Postgres error codes that mean "the whole transaction is safe to re-run".
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// ErrTxRetriesExhausted is returned when a unit of work kept deadlocking
// past the retry budget. Callers surface it as a transient failure.
var ErrTxRetriesExhausted = errors.New("transaction retries exhausted")

// TxBeginner is satisfied by *pgxpool.Pool and by pgx.Conn
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TxRunner executes units of work inside a transaction and re-runs the
// entire unit on deadlock or serialization failure. Retrying sub-steps
// individually is never correct: the conflict invalidates everything the
// transaction has read.
type TxRunner struct {
	db  TxBeginner
	cfg *retry.Config
	log *logger.Logger
}

// NewTxRunner creates a TxRunner. A nil retry config gets the default
// 3 retries with 100/200/400ms backoff.
func NewTxRunner(db TxBeginner, cfg *retry.Config) *TxRunner {
	if cfg == nil {
		cfg = retry.DefaultConfig()
	}
	return &TxRunner{
		db:  db,
		cfg: cfg,
		log: logger.Get(),
	}
}

// WithinTx runs fn inside BEGIN/COMMIT. On a retryable conflict the whole
// unit is retried with backoff; any other error rolls back and propagates
// immediately. Exhausted retries return ErrTxRetriesExhausted wrapping the
// last conflict.
func (r *TxRunner) WithinTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	err := retry.Do(ctx, r.cfg, func(ctx context.Context) error {
		return r.runOnce(ctx, fn)
	}, func(attempt int, err error, wait time.Duration) {
		r.log.Warn("transaction conflict, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
	})

	if err != nil && errors.Is(err, retry.ErrMaxAttemptsExceeded) {
		return errors.Join(ErrTxRetriesExhausted, err)
	}
	return err
}

func (r *TxRunner) runOnce(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return retry.Permanent(err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, tx); err != nil {
		return classify(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return classify(err)
	}
	return nil
}

// classify marks non-conflict errors permanent so the retrier stops
func classify(err error) error {
	if IsRetryableTxError(err) {
		return err
	}
	return retry.Permanent(err)
}

// IsRetryableTxError reports whether err is a deadlock or serialization
// failure signaled by Postgres.
func IsRetryableTxError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected
	}
	return false
}
