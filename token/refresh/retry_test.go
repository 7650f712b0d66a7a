package refresh_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-client/autherrors"
	"github.com/jrsteele09/go-auth-client/token/refresh"
	"github.com/stretchr/testify/require"
)

func TestDo_RetriesRetryableErrors(t *testing.T) {
	policy := refresh.RetryPolicy{Step: time.Millisecond, Window: time.Second}
	var attempts []int

	calls := 0
	res, err := refresh.Do(context.Background(), policy, func(n int) { attempts = append(attempts, n) }, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", autherrors.NewRetryableFetchError("service unavailable", 503)
		}
		return "ok", nil
	})

	require.NoError(t, err)
	require.Equal(t, "ok", res)
	require.Equal(t, []int{0, 1, 2}, attempts)
}

func TestDo_StopsOnNonRetryableError(t *testing.T) {
	policy := refresh.RetryPolicy{Step: time.Millisecond, Window: time.Second}
	calls := 0

	_, err := refresh.Do(context.Background(), policy, nil, func(context.Context) (string, error) {
		calls++
		return "", autherrors.NewApiError("Invalid Refresh Token", 400)
	})

	require.Equal(t, 1, calls)
	apiErr, ok := autherrors.AsApiError(err)
	require.True(t, ok, "permanent errors are unwrapped")
	require.Equal(t, 400, apiErr.Status())
}

func TestDo_GivesUpWhenWindowIsExhausted(t *testing.T) {
	policy := refresh.RetryPolicy{Step: 20 * time.Millisecond, Window: 50 * time.Millisecond}
	calls := 0

	_, err := refresh.Do(context.Background(), policy, nil, func(context.Context) (string, error) {
		calls++
		return "", autherrors.NewRetryableFetchError("bad gateway", 502)
	})

	require.True(t, autherrors.IsRetryableFetchError(err))
	// Delays 20ms then 40ms: the third delay (60ms) would overflow the window.
	require.GreaterOrEqual(t, calls, 2)
	require.LessOrEqual(t, calls, 3)
}

func TestDo_WindowBoundaryIsExclusive(t *testing.T) {
	// A frozen clock leaves only the delays: 1ms and 2ms fit a 3ms window,
	// a 3ms delay would end exactly on it and is not taken.
	start := time.Unix(1700000000, 0)
	policy := refresh.RetryPolicy{Step: time.Millisecond, Window: 3 * time.Millisecond, Now: func() time.Time { return start }}
	calls := 0

	_, err := refresh.Do(context.Background(), policy, nil, func(context.Context) (string, error) {
		calls++
		return "", autherrors.NewRetryableFetchError("service unavailable", 503)
	})

	require.True(t, autherrors.IsRetryableFetchError(err))
	require.Equal(t, 3, calls)
}

func TestDo_PlainErrorsAreNotRetried(t *testing.T) {
	boom := errors.New("boom")
	calls := 0

	_, err := refresh.Do(context.Background(), refresh.DefaultRetryPolicy(), nil, func(context.Context) (int, error) {
		calls++
		return 0, boom
	})

	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, calls)
}
