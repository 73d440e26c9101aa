package neopaths

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy is a bounded, constant-delay retry envelope.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// Delay is the fixed pause between attempts. There is no growth and no jitter.
	Delay time.Duration
}

// DefaultRetryPolicy makes up to 5 attempts, 1 second apart.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 5, Delay: time.Second}

// RetryHooks are callbacks run between attempts.
type RetryHooks struct {
	// Reconnect runs before the next attempt when the previous one failed with a
	// reconnect-triggering error. Its own failure does not stop the retry loop: the
	// next attempt will fail on the missing session and ask again.
	Reconnect func(ctx context.Context) error

	// OnRetry is told about each failed attempt that will be retried.
	OnRetry func(attempt int, err error)
}

// Do runs op until it succeeds, fails with a non-retriable error, or MaxAttempts is
// reached, in which case the last error is returned.
func (p RetryPolicy) Do(ctx context.Context, op func(context.Context) error, hooks RetryHooks) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var (
		attempt int
		last    error
	)
	operation := func() (struct{}, error) {
		if last != nil && KindOf(last).Reconnects() && hooks.Reconnect != nil {
			_ = hooks.Reconnect(ctx)
		}
		attempt++
		last = op(ctx)
		if last != nil && !KindOf(last).Retriable() {
			return struct{}{}, backoff.Permanent(last)
		}
		return struct{}{}, last
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(backoff.NewConstantBackOff(p.Delay)),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithMaxElapsedTime(0),
	}
	if hooks.OnRetry != nil {
		opts = append(opts, backoff.WithNotify(func(err error, _ time.Duration) {
			hooks.OnRetry(attempt, err)
		}))
	}

	_, err := backoff.Retry(ctx, operation, opts...)
	if err == nil {
		return nil
	}
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Unwrap()
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return classify("retry", err)
	}
	return err
}
