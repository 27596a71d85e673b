// Package resilience provides fault tolerance patterns
package resilience

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/classlive/platform/internal/errors"
)

// Retry configuration constants
const (
	DefaultMaxRetries   = 3
	DefaultBaseDelay    = 500 * time.Millisecond
	DefaultMaxDelay     = 10 * time.Second
	DefaultJitterFactor = 0.2 // 20% jitter

	// Generation-specific: more retries, longer delays for flaky AI APIs
	GenerationMaxRetries = 5
	GenerationBaseDelay  = 1 * time.Second
	GenerationMaxDelay   = 30 * time.Second

	// Relay reconnection: fixed ladder required by the relay provider
	RelayMaxRetries = 3
	RelayBaseDelay  = 2 * time.Second
)

// RetryConfig holds retry settings.
type RetryConfig struct {
	MaxRetries   int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	JitterFactor float64
	IsRetryable  func(error) bool
}

// DefaultRetryConfig returns standard retry settings.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   DefaultMaxRetries,
		BaseDelay:    DefaultBaseDelay,
		MaxDelay:     DefaultMaxDelay,
		JitterFactor: DefaultJitterFactor,
		IsRetryable:  IsRetryable,
	}
}

// GenerationRetryConfig returns settings for the question generation API.
func GenerationRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   GenerationMaxRetries,
		BaseDelay:    GenerationBaseDelay,
		MaxDelay:     GenerationMaxDelay,
		JitterFactor: DefaultJitterFactor,
		IsRetryable:  IsRetryable,
	}
}

// RelayRetryConfig returns the reconnect backoff ladder for the
// transcription relay: 2s, 4s, 8s with no jitter, so the final attempt
// completes before the provider tears the session down server-side.
func RelayRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   RelayMaxRetries,
		BaseDelay:    RelayBaseDelay,
		MaxDelay:     RelayBaseDelay << RelayMaxRetries,
		JitterFactor: 0,
		IsRetryable:  IsRetryable,
	}
}

// IsRetryable checks if an error is worth retrying. Errors carrying a
// fatal code (bad credentials, denied audio permission) never are; codes
// marking transient transport or provider trouble always are. Foreign
// errors are retried on the assumption they are I/O failures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.IsFatal(err) {
		return false
	}
	if errors.CodeOf(err) == errors.CodeUnknown {
		return true
	}
	return errors.IsRetryable(err)
}

// Retry executes fn with exponential backoff. Returns last error if all retries fail.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	cfg = cfg.withDefaults()
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if lastErr = fn(); lastErr == nil {
			return nil
		}

		if !cfg.IsRetryable(lastErr) || attempt == cfg.MaxRetries {
			return lastErr
		}

		delay := BackoffDelay(cfg, attempt)
		slog.Debug("retrying after error", "attempt", attempt+1, "max", cfg.MaxRetries, "delay", delay, "error", lastErr)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}

// BackoffDelay calculates exponential backoff with jitter for a zero-based
// attempt number. Exported so callers driving their own retry loop (the
// relay reconnect state machine) share the same delay ladder.
func BackoffDelay(cfg RetryConfig, attempt int) time.Duration {
	delay := cfg.BaseDelay << min(attempt, 6) // Cap shift to prevent overflow
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	if cfg.JitterFactor <= 0 {
		return delay
	}
	// Add jitter: delay * (1 ± jitterFactor/2)
	jitter := float64(delay) * cfg.JitterFactor * (rand.Float64() - 0.5)
	return time.Duration(float64(delay) + jitter)
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.IsRetryable == nil {
		c.IsRetryable = IsRetryable
	}
	return c
}
