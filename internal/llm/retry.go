package llm

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// RetryConfig bounds RetryDo's backoff.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryConfig matches the teacher's provider retry wrapper: capped,
// jittered backoff for rate-limit and server errors; context-length errors
// are never retried (§7).
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:  5,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     30 * time.Second,
}

// RetryDo runs fn, retrying on retryable errors (IsRetryable) with capped,
// jittered exponential backoff. ContextLengthExceeded and other non-retryable
// errors return immediately. Honors ctx cancellation between attempts.
func RetryDo[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	delay := cfg.InitialDelay
	if delay <= 0 {
		delay = DefaultRetryConfig.InitialDelay
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultRetryConfig.MaxAttempts
	}
	maxDelay := cfg.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultRetryConfig.MaxDelay
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			wait := delay
			var rle *RateLimitExceededError
			if errors.As(lastErr, &rle) && rle.RetryDelay != nil {
				wait = *rle.RetryDelay
			} else {
				wait = jitter(delay)
			}
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(wait):
			}
			delay *= 2
			if delay > maxDelay {
				delay = maxDelay
			}
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return zero, err
		}
	}
	return zero, lastErr
}

func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	// +/- 20% jitter
	span := int64(d) / 5
	if span <= 0 {
		return d
	}
	delta := time.Duration(rand.Int63n(span))
	if rand.Intn(2) == 0 {
		return d + delta
	}
	return d - delta
}
