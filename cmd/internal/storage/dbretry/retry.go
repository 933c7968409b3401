// Package dbretry retries transient database failures at a transaction boundary.
package dbretry

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
)

// Policy bounds how often and how fast an operation is retried.
type Policy struct {
	// MaxRetries is the number of extra attempts after the first one.
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// OnRetry, when set, is called with the error that triggered each retry.
	OnRetry func(err error)
}

// Once is the default policy: at most one retry after a short pause.
func Once() Policy {
	return Policy{
		MaxRetries:      1,
		InitialInterval: 25 * time.Millisecond,
		MaxInterval:     250 * time.Millisecond,
	}
}

// CommitError wraps a failure returned by COMMIT. When the server never
// answered, the transaction may have committed anyway, so a blind retry could
// replay work that already happened.
type CommitError struct{ Err error }

func (e *CommitError) Error() string { return "commit: " + e.Err.Error() }
func (e *CommitError) Unwrap() error { return e.Err }

// Commit marks err as coming from the commit step. Nil stays nil.
func Commit(err error) error {
	if err == nil {
		return nil
	}
	return &CommitError{Err: err}
}

// IsRetryableError reports whether err is a transient failure for which a
// fresh attempt of the whole transaction can succeed.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// A commit is only retried when the server reported an abort, or when
	// pgx knows the request never left the client.
	var commitErr *CommitError
	if errors.As(err, &commitErr) {
		var pgErr *pgconn.PgError
		if errors.As(commitErr.Err, &pgErr) {
			return pgErr.Code == "40001" || pgErr.Code == "40P01"
		}
		return pgconn.SafeToRetry(commitErr.Err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", // serialization_failure
			"40P01", // deadlock_detected
			"55P03", // lock_not_available (lock_timeout)
			"53300", // too_many_connections
			"57P01", // admin_shutdown
			"57P03": // cannot_connect_now
			return true
		}
		// Class 08: connection exception.
		return len(pgErr.Code) == 5 && pgErr.Code[:2] == "08"
	}

	if pgconn.SafeToRetry(err) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF)
}

// Operation runs op and retries it per policy while the error is retryable.
// Non-retryable errors are returned unchanged so callers can errors.Is them.
func Operation[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	var result T

	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(p.InitialInterval),
		backoff.WithMaxInterval(p.MaxInterval),
		backoff.WithMaxElapsedTime(0),
	), p.MaxRetries)

	var notify backoff.Notify
	if p.OnRetry != nil {
		notify = func(err error, _ time.Duration) { p.OnRetry(err) }
	}

	err := backoff.RetryNotify(func() error {
		var err error
		result, err = op(ctx)
		if err != nil && !IsRetryableError(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(b, ctx), notify)

	return result, err
}

// NoResult is Operation for operations that only return an error.
func NoResult(ctx context.Context, p Policy, op func(context.Context) error) error {
	_, err := Operation(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
