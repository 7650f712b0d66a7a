package refresh

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jrsteele09/go-auth-client/autherrors"
)

// RetryPolicy retries refresh requests that failed at the transport level.
// The delay before attempt n (counting from 0) is n*Step, and a retry is only
// scheduled while the elapsed time plus the next delay is strictly below Window.
type RetryPolicy struct {
	Step   time.Duration
	Window time.Duration
	Now    func() time.Time // Clock for the window, time.Now when nil
}

// DefaultRetryPolicy waits 200ms, 400ms, 600ms ... within a 30s window.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Step: 200 * time.Millisecond, Window: 30 * time.Second}
}

// linearBackOff implements backoff.BackOff with a linearly growing delay that
// stops once the delay would reach the end of the window.
type linearBackOff struct {
	step    time.Duration
	window  time.Duration
	now     func() time.Time
	started time.Time
	attempt int
}

func newLinearBackOff(p RetryPolicy) *linearBackOff {
	now := p.Now
	if now == nil {
		now = time.Now
	}
	return &linearBackOff{step: p.Step, window: p.Window, now: now, started: now()}
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	next := time.Duration(b.attempt) * b.step
	if b.now().Sub(b.started)+next >= b.window {
		return backoff.Stop
	}
	return next
}

func (b *linearBackOff) Reset() {
	b.attempt = 0
	b.started = b.now()
}

// Do runs op until it succeeds, fails with an error that is not a
// RetryableFetchError, or the window is exhausted. onAttempt is called with the
// attempt number before each call.
func Do[T any](ctx context.Context, p RetryPolicy, onAttempt func(attempt int), op func(ctx context.Context) (T, error)) (T, error) {
	attempt := 0
	operation := func() (T, error) {
		if onAttempt != nil {
			onAttempt(attempt)
		}
		attempt++
		res, err := op(ctx)
		if err != nil && !autherrors.IsRetryableFetchError(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}

	// The window is enforced by linearBackOff, not by MaxElapsedTime, whose
	// bound is inclusive.
	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(newLinearBackOff(p)),
		backoff.WithMaxElapsedTime(0),
	)
}
