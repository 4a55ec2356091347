package services

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/playarena/credit_engine/internal/storage"
	"github.com/playarena/credit_engine/pkg/errors"
	"github.com/playarena/credit_engine/pkg/logger"
)

const defaultTxAttempts = 3

// isRetryableTxError reports whether the transaction failed due to a
// serialization conflict or deadlock and is safe to replay as a whole.
func isRetryableTxError(err error) bool {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return true
		}
	}
	return errors.IsCode(err, errors.ErrCodeConflict)
}

// atomicallyWithRetry replays a whole atomic unit a bounded number of
// times on transactional conflicts before surfacing UNAVAILABLE.
// Application errors (insufficient funds, invalid state) pass through
// on the first occurrence.
func atomicallyWithRetry(ctx context.Context, store storage.Datastore, attempts int, fn func(tx storage.Datastore) error) error {
	if attempts <= 0 {
		attempts = defaultTxAttempts
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = store.Atomically(ctx, fn)
		if err == nil || !isRetryableTxError(err) {
			return err
		}

		logger.Warn("Retrying transaction after conflict", "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), errors.ErrCodeUnavailable, "operation cancelled")
		case <-time.After(time.Duration(attempt) * 25 * time.Millisecond):
		}
	}

	return errors.Wrap(err, errors.ErrCodeUnavailable, "transaction conflicts exhausted retries")
}
