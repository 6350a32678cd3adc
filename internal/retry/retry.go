// Package retry wraps outbound operations in a bounded retry/backoff policy.
// Every network call leaving the service goes through it.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"syscall"
	"time"
)

// Options tunes a retry run.
type Options struct {
	// MaxRetries is the number of retries after the first attempt, so the
	// operation runs at most MaxRetries+1 times.
	MaxRetries        int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	// Jitter randomizes each delay in [delay/2, delay) so many sends firing
	// at once do not retry in lockstep.
	Jitter bool
	// AttemptTimeout bounds a single attempt with a derived context.
	// Zero means no per-attempt bound.
	AttemptTimeout time.Duration
}

// DefaultOptions matches the outbound platform-call profile.
func DefaultOptions() Options {
	return Options{
		MaxRetries:        3,
		InitialDelay:      500 * time.Millisecond,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
		AttemptTimeout:    10 * time.Second,
	}
}

// Result records the outcome of a retry run.
type Result[T any] struct {
	// Succeeded is true when the final attempt returned without error.
	Succeeded bool
	// Exhausted is true when the final attempt returned a value the
	// retry-on-result predicate still rejected. Succeeded stays true in
	// that case; callers that care about predicate satisfaction must check
	// Exhausted explicitly.
	Exhausted bool
	Value     T
	Attempts  int
	Elapsed   time.Duration
	Err       error
}

// HTTPStatusError carries a response status code through the transience
// classifier.
type HTTPStatusError struct {
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("http status %d", e.StatusCode)
}

// TransientStatus reports whether an HTTP status code is worth retrying.
func TransientStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// IsTransient classifies an error as likely to succeed on retry: timeouts,
// socket/connection failures, and transient HTTP statuses. Cancellation is
// never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return TransientStatus(statusErr.StatusCode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}

	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// Execute runs op up to MaxRetries+1 times. It retries on transient errors
// and, when retryOnResult is non-nil, on successful results the predicate
// rejects. Non-transient errors fail fast; cancellation aborts immediately,
// including mid-backoff.
func Execute[T any](ctx context.Context, op func(context.Context) (T, error), opts Options, retryOnResult func(T) bool) Result[T] {
	start := time.Now()
	result := Result[T]{}
	delay := opts.InitialDelay

	for attempt := 1; attempt <= opts.MaxRetries+1; attempt++ {
		result.Attempts = attempt

		if err := ctx.Err(); err != nil {
			result.Err = err
			result.Elapsed = time.Since(start)
			return result
		}

		value, err := runAttempt(ctx, op, opts.AttemptTimeout)
		if err == nil {
			result.Value = value
			result.Succeeded = true
			if retryOnResult != nil && retryOnResult(value) {
				if attempt <= opts.MaxRetries {
					if sleep(ctx, jittered(delay, opts.Jitter)) {
						delay = nextDelay(delay, opts)
						result.Succeeded = false
						continue
					}
					// Cancelled mid-backoff; the rejected value must not
					// read as a success.
					result.Succeeded = false
					result.Err = ctx.Err()
					result.Elapsed = time.Since(start)
					return result
				}
				// Retries spent and the value still fails the predicate.
				result.Exhausted = true
			}
			result.Elapsed = time.Since(start)
			return result
		}

		result.Err = err
		result.Succeeded = false
		if errors.Is(err, context.Canceled) || !IsTransient(err) || attempt > opts.MaxRetries {
			result.Elapsed = time.Since(start)
			return result
		}
		if !sleep(ctx, jittered(delay, opts.Jitter)) {
			result.Err = ctx.Err()
			result.Elapsed = time.Since(start)
			return result
		}
		delay = nextDelay(delay, opts)
	}

	result.Elapsed = time.Since(start)
	return result
}

// ExecuteHTTP runs an operation returning an HTTP status code, classifying
// transience purely from the status rather than from a thrown error. A
// transient status on the final attempt is surfaced as a failed result with
// an HTTPStatusError attached.
func ExecuteHTTP(ctx context.Context, op func(context.Context) (int, error), opts Options) Result[int] {
	result := Execute(ctx, func(ctx context.Context) (int, error) {
		status, err := op(ctx)
		if err != nil {
			return 0, err
		}
		if TransientStatus(status) {
			return status, &HTTPStatusError{StatusCode: status}
		}
		return status, nil
	}, opts, nil)
	if result.Err != nil {
		var statusErr *HTTPStatusError
		if errors.As(result.Err, &statusErr) {
			result.Value = statusErr.StatusCode
		}
	}
	return result
}

func runAttempt[T any](ctx context.Context, op func(context.Context) (T, error), timeout time.Duration) (T, error) {
	if timeout <= 0 {
		return op(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return op(attemptCtx)
}

func nextDelay(delay time.Duration, opts Options) time.Duration {
	next := time.Duration(float64(delay) * opts.BackoffMultiplier)
	if opts.MaxDelay > 0 && next > opts.MaxDelay {
		return opts.MaxDelay
	}
	return next
}

func jittered(delay time.Duration, jitter bool) time.Duration {
	if !jitter || delay <= 0 {
		return delay
	}
	half := delay / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}

// sleep waits for d unless the context is cancelled first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
