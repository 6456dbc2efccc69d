// Package retry implements exponential-backoff retry for transient failures.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// RetryConfig configures retry behavior for model calls.
type RetryConfig struct {
	MaxRetries      int           // Maximum number of retry attempts (0 = no retries)
	InitialDelay    time.Duration // Initial delay before first retry
	MaxDelay        time.Duration // Maximum delay between retries
	Multiplier      float64       // Backoff multiplier (e.g., 2.0 for exponential)
	RetryableErrors []error       // Errors that should trigger a retry
	Logger          *slog.Logger  // Logger for retry attempts (nil = slog.Default)
}

// DefaultRetryConfig returns sensible retry defaults. Callers append the
// sentinel errors their gateways emit (e.g. providers.ErrModelUnavailable).
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   2,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// IsRetryable checks if an error should trigger a retry.
func (rc RetryConfig) IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	for _, retryableErr := range rc.RetryableErrors {
		if errors.Is(err, retryableErr) {
			return true
		}
	}
	return false
}

// CalculateDelay calculates the delay for a given retry attempt using
// exponential backoff.
func (rc RetryConfig) CalculateDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return rc.InitialDelay
	}

	delay := float64(rc.InitialDelay) * math.Pow(rc.Multiplier, float64(attempt))
	if time.Duration(delay) > rc.MaxDelay {
		return rc.MaxDelay
	}
	return time.Duration(delay)
}

// WithRetry wraps a function with retry logic.
func WithRetry[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var result T
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("context cancelled: %w", err)
		}

		result, lastErr = fn()
		if lastErr == nil {
			if attempt > 0 {
				logger.Info("operation succeeded after retry", "attempt", attempt)
			}
			return result, nil
		}

		if !cfg.IsRetryable(lastErr) {
			return result, lastErr
		}

		if attempt >= cfg.MaxRetries {
			break
		}

		delay := cfg.CalculateDelay(attempt)
		logger.Warn("operation failed, retrying",
			"attempt", attempt+1,
			"max_retries", cfg.MaxRetries,
			"delay", delay,
			"error", lastErr,
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return result, fmt.Errorf("context cancelled during retry backoff: %w", ctx.Err())
		}
	}

	return result, fmt.Errorf("max retries (%d) exceeded: %w", cfg.MaxRetries, lastErr)
}
