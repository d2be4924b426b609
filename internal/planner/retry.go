package planner

import (
	"context"
	"errors"
	"time"

	"wanderplan/internal/apiclient"
	"wanderplan/internal/logger"
)

// RetryPolicy retries a failed call up to Retries times, waiting
// attempt*Backoff before each retry.
type RetryPolicy struct {
	Retries int
	Backoff time.Duration
}

// ItineraryRetryPolicy waits 1s, 2s, then 3s between attempts.
var ItineraryRetryPolicy = RetryPolicy{Retries: 3, Backoff: time.Second}

// Retry runs fn until it succeeds, the retries are spent, ctx ends or the
// session is rejected. The last error is returned.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= policy.Retries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(attempt) * policy.Backoff
			logger.Debug("Retrying request", "attempt", attempt, "wait", wait, "error", lastErr)
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if errors.Is(err, apiclient.ErrUnauthorized) || errors.Is(err, context.Canceled) {
			break
		}
	}

	return zero, lastErr
}
