// Package retry retries transient failures with exponential backoff.
//
// The agent uses it for connecting to the in-process profiler, which may not
// have opened its socket yet when a capture request arrives. Commands sent
// over an established connection are never retried.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Config defines the retry behavior.
//
// The zero value is not usable; MaxRetries and InitialBackoff must be set.
type Config struct {
	// MaxRetries is the maximum number of attempts, including the first.
	MaxRetries int

	// InitialBackoff is the wait before the second attempt. Each further
	// attempt doubles it.
	InitialBackoff time.Duration

	// MaxBackoff caps the wait. Zero means no cap.
	MaxBackoff time.Duration

	// Jitter (0.0 to 1.0) adds a share of the backoff that grows linearly
	// with the attempt number. Zero means no jitter.
	Jitter float64
}

// ShouldRetryFunc reports whether err is worth another attempt. A nil
// ShouldRetryFunc retries every error.
type ShouldRetryFunc func(error) bool

// Do calls fn until it succeeds, shouldRetry rejects its error, the attempts
// are exhausted or ctx is done.
//
// When the attempts are exhausted the last error is wrapped. Context
// cancellation during a backoff returns the context error.
func Do(ctx context.Context, cfg Config, fn func() error, shouldRetry ShouldRetryFunc) error {
	_, err := DoValue(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	}, shouldRetry)
	return err
}

// DoValue is Do for functions that produce a value, such as a connection.
func DoValue[T any](ctx context.Context, cfg Config, fn func() (T, error), shouldRetry ShouldRetryFunc) (T, error) {
	var (
		zero    T
		lastErr error
	)

	for attempt := 0; attempt < cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(calculateBackoff(cfg, attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}

		value, err := fn()
		if err == nil {
			return value, nil
		}
		if shouldRetry != nil && !shouldRetry(err) {
			return zero, err
		}
		lastErr = err
	}

	return zero, fmt.Errorf("failed after %d retries: %w", cfg.MaxRetries, lastErr)
}

// calculateBackoff returns InitialBackoff * 2^(attempt-1), capped at
// MaxBackoff, plus jitter.
func calculateBackoff(cfg Config, attempt int) time.Duration {
	multiplier := math.Pow(2, float64(attempt-1))
	backoff := time.Duration(multiplier * float64(cfg.InitialBackoff))

	if cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff {
		backoff = cfg.MaxBackoff
	}

	if cfg.Jitter > 0 {
		jitterAmount := float64(backoff) * cfg.Jitter * float64(attempt) / float64(cfg.MaxRetries)
		backoff += time.Duration(jitterAmount)
	}

	return backoff
}
