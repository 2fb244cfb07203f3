package utils

import (
	"context"
	"math"
	"time"
)

// RetryConfig controls exponential backoff between attempts.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig returns the backoff used by the feed sources.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2.0,
	}
}

// Retry runs fn until it succeeds, attempts are exhausted or the
// context is cancelled. Returns the last attempt's error.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	_, err := RetryWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// RetryWithResult is Retry for functions that produce a value.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		if attempt < cfg.MaxAttempts-1 {
			time.Sleep(CalculateBackoff(attempt, cfg.InitialDelay, cfg.MaxDelay, cfg.BackoffFactor))
		}
	}
	return zero, lastErr
}

// CalculateBackoff returns the delay before retrying after attempt
// (zero-based), capped at maxDelay.
func CalculateBackoff(attempt int, initialDelay, maxDelay time.Duration, factor float64) time.Duration {
	delay := float64(initialDelay) * math.Pow(factor, float64(attempt))
	if delay > float64(maxDelay) {
		delay = float64(maxDelay)
	}
	return time.Duration(delay)
}
