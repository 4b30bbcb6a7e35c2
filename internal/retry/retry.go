// Package retry is the single bounded-retry wrapper used for every outbound
// remote call. Callers decide what is retriable through the RetryIf predicate;
// the executor only owns the attempt budget and the backoff schedule.
package retry

import (
	"context"
	"time"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
)

type options struct {
	maxAttempts int
	baseDelay   time.Duration
	retryIf     func(error) bool
}

type Option func(*options)

func WithMaxAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

func WithBaseDelay(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.baseDelay = d
		}
	}
}

// WithRetryIf installs the caller's retriability predicate. An error for which
// the predicate returns false is surfaced immediately without further attempts.
func WithRetryIf(fn func(error) bool) Option {
	return func(o *options) {
		o.retryIf = fn
	}
}

// Do executes op up to the attempt budget, sleeping base * 2^attempt between
// attempts. It returns nil on the first success, the op's error as soon as the
// predicate rejects it, or the last error once attempts are exhausted. The
// backoff sleep is interruptible by ctx.
func Do(ctx context.Context, op func() error, opts ...Option) error {
	o := options{
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		retryIf:     func(error) bool { return true },
	}
	for _, opt := range opts {
		opt(&o)
	}

	var lastErr error
	for attempt := 0; attempt < o.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := o.baseDelay << (attempt - 1)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !o.retryIf(lastErr) {
			return lastErr
		}
	}

	return lastErr
}
