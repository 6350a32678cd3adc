package retry

import (
	"context"
	"errors"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fastOptions(maxRetries int) Options {
	return Options{
		MaxRetries:        maxRetries,
		InitialDelay:      time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestExecuteNonTransientFailsFast(t *testing.T) {
	calls := 0
	result := Execute(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		return "", errors.New("bad request")
	}, fastOptions(3), nil)

	require.False(t, result.Succeeded)
	require.Equal(t, 1, result.Attempts)
	require.Equal(t, 1, calls)
	require.Error(t, result.Err)
}

func TestExecuteTransientThenSuccess(t *testing.T) {
	calls := 0
	result := Execute(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", syscall.ECONNREFUSED
		}
		return "ok", nil
	}, fastOptions(3), nil)

	require.True(t, result.Succeeded)
	require.Equal(t, 3, result.Attempts)
	require.Equal(t, "ok", result.Value)
	require.NoError(t, func() error {
		if result.Elapsed <= 0 {
			return errors.New("elapsed not recorded")
		}
		return nil
	}())
}

func TestExecuteTransientExhaustsRetries(t *testing.T) {
	calls := 0
	result := Execute(context.Background(), func(ctx context.Context) (int, error) {
		calls++
		return 0, &HTTPStatusError{StatusCode: 503}
	}, fastOptions(2), nil)

	require.False(t, result.Succeeded)
	require.Equal(t, 3, calls)
	require.Equal(t, 3, result.Attempts)
	var statusErr *HTTPStatusError
	require.ErrorAs(t, result.Err, &statusErr)
}

func TestExecuteRetryOnResultSatisfiedMidway(t *testing.T) {
	calls := 0
	result := Execute(context.Background(), func(ctx context.Context) (int, error) {
		calls++
		return calls, nil
	}, fastOptions(5), func(v int) bool {
		return v < 3
	})

	require.True(t, result.Succeeded)
	require.False(t, result.Exhausted)
	require.Equal(t, 3, result.Value)
	require.Equal(t, 3, result.Attempts)
}

func TestExecuteRetryOnResultExhausted(t *testing.T) {
	result := Execute(context.Background(), func(ctx context.Context) (int, error) {
		return -1, nil
	}, fastOptions(2), func(v int) bool {
		return v < 0
	})

	// Run completed without error, but the predicate never passed: the
	// lenient success flag stays up and Exhausted marks the shortfall.
	require.True(t, result.Succeeded)
	require.True(t, result.Exhausted)
	require.Equal(t, -1, result.Value)
	require.Equal(t, 3, result.Attempts)
}

func TestExecuteRetryOnResultCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	opts := Options{
		MaxRetries:        5,
		InitialDelay:      time.Hour,
		MaxDelay:          time.Hour,
		BackoffMultiplier: 2.0,
	}

	done := make(chan Result[int], 1)
	go func() {
		done <- Execute(ctx, func(ctx context.Context) (int, error) {
			return -1, nil
		}, opts, func(v int) bool {
			return v < 0
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case result := <-done:
		// A rejected value abandoned mid-backoff is a cancellation, not a
		// success and not predicate exhaustion.
		require.False(t, result.Succeeded)
		require.False(t, result.Exhausted)
		require.ErrorIs(t, result.Err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("retry did not abort on cancellation")
	}
}

func TestExecuteCancellationDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	opts := Options{
		MaxRetries:        5,
		InitialDelay:      time.Hour,
		MaxDelay:          time.Hour,
		BackoffMultiplier: 2.0,
	}

	calls := 0
	done := make(chan Result[string], 1)
	go func() {
		done <- Execute(ctx, func(ctx context.Context) (string, error) {
			calls++
			return "", syscall.ECONNRESET
		}, opts, nil)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case result := <-done:
		require.False(t, result.Succeeded)
		require.Equal(t, 1, calls)
		require.ErrorIs(t, result.Err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("retry did not abort on cancellation")
	}
}

func TestExecuteCancelledErrorNotRetried(t *testing.T) {
	calls := 0
	result := Execute(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		return "", context.Canceled
	}, fastOptions(4), nil)

	require.False(t, result.Succeeded)
	require.Equal(t, 1, calls)
}

func TestExecuteHTTPTransientStatus(t *testing.T) {
	calls := 0
	result := ExecuteHTTP(context.Background(), func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 503, nil
		}
		return 200, nil
	}, fastOptions(3))

	require.True(t, result.Succeeded)
	require.Equal(t, 2, result.Attempts)
	require.Equal(t, 200, result.Value)
}

func TestExecuteHTTPNonTransientStatusNotRetried(t *testing.T) {
	calls := 0
	result := ExecuteHTTP(context.Background(), func(ctx context.Context) (int, error) {
		calls++
		return 400, nil
	}, fastOptions(3))

	require.True(t, result.Succeeded)
	require.Equal(t, 1, calls)
	require.Equal(t, 400, result.Value)
}

func TestTransientClassification(t *testing.T) {
	require.True(t, TransientStatus(503))
	require.True(t, TransientStatus(429))
	require.True(t, TransientStatus(408))
	require.False(t, TransientStatus(400))
	require.False(t, TransientStatus(404))
	require.False(t, TransientStatus(200))

	require.True(t, IsTransient(&HTTPStatusError{StatusCode: 502}))
	require.False(t, IsTransient(&HTTPStatusError{StatusCode: 403}))
	require.True(t, IsTransient(&net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}))
	require.False(t, IsTransient(context.Canceled))
	require.False(t, IsTransient(errors.New("schema violation")))
}

func TestBackoffDelayCappedAtMax(t *testing.T) {
	opts := Options{
		MaxRetries:        4,
		InitialDelay:      2 * time.Millisecond,
		MaxDelay:          4 * time.Millisecond,
		BackoffMultiplier: 10.0,
	}
	delay := opts.InitialDelay
	for i := 0; i < 4; i++ {
		delay = nextDelay(delay, opts)
		require.LessOrEqual(t, delay, opts.MaxDelay)
	}
}

func TestJitterStaysWithinWindow(t *testing.T) {
	base := 100 * time.Millisecond
	for i := 0; i < 50; i++ {
		d := jittered(base, true)
		require.GreaterOrEqual(t, d, base/2)
		require.LessOrEqual(t, d, base)
	}
	require.Equal(t, base, jittered(base, false))
}
