// Package retry runs operations with bounded exponential backoff,
// classifying errors as retryable transport faults or fatal failures.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Options controls a retried operation. The zero value retries nothing.
type Options struct {
	// MaxRetries bounds additional attempts after the first; the
	// operation runs at most MaxRetries+1 times.
	MaxRetries int
	// BaseDelay is the first backoff interval; doubled per attempt with
	// jitter applied by the backoff implementation.
	BaseDelay time.Duration
	// MaxDelay caps a single backoff interval when positive.
	MaxDelay time.Duration
	// ShouldRetry classifies errors; defaults to IsRetryable.
	ShouldRetry func(error) bool
	// OnRetry runs before each wait with the failed attempt's error and
	// zero-based attempt index.
	OnRetry func(err error, attempt int)
}

// Do runs op until it succeeds, exhausts retries, or hits a non-retryable
// error. The final error is returned unchanged.
func Do(ctx context.Context, op func() error, opts Options) error {
	shouldRetry := opts.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsRetryable
	}

	exp := backoff.NewExponentialBackOff()
	if opts.BaseDelay > 0 {
		exp.InitialInterval = opts.BaseDelay
	}
	exp.Multiplier = 2
	if opts.MaxDelay > 0 {
		exp.MaxInterval = opts.MaxDelay
	}
	exp.MaxElapsedTime = 0

	var b backoff.BackOff = backoff.WithMaxRetries(exp, uint64(opts.MaxRetries))
	b = backoff.WithContext(b, ctx)

	attempt := 0
	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !shouldRetry(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, _ time.Duration) {
		if opts.OnRetry != nil {
			opts.OnRetry(err, attempt)
		}
		attempt++
	}
	return backoff.RetryNotify(wrapped, b, notify)
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, op func() (T, error), opts Options) (T, error) {
	var out T
	err := Do(ctx, func() error {
		v, err := op()
		if err != nil {
			return err
		}
		out = v
		return nil
	}, opts)
	return out, err
}
