// Package retry implements bounded exponential backoff with jitter for
// transient failures. Only errors classified retryable are retried;
// validation failures and business-rule conflicts surface immediately.
package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/motiongranted/draftengine/internal/core"
)

const (
	// DefaultMaxAttempts is the total attempt bound, first try included.
	DefaultMaxAttempts = 4
	// DefaultBaseDelay is the base delay for exponential backoff.
	DefaultBaseDelay = 2 * time.Second
	// DefaultMaxDelay caps a single backoff sleep.
	DefaultMaxDelay = 60 * time.Second
	// DefaultJitterPercent is the maximum jitter share of a delay.
	DefaultJitterPercent = 25
)

// Config holds retry configuration.
type Config struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	JitterPercent int
	// OnRetry is called before each sleep with the upcoming attempt
	// number and the chosen delay.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   DefaultMaxAttempts,
		BaseDelay:     DefaultBaseDelay,
		MaxDelay:      DefaultMaxDelay,
		JitterPercent: DefaultJitterPercent,
	}
}

// Do runs op until it succeeds, returns a non-retryable error, or the
// attempt bound is exhausted. The context cancels waits between
// attempts; an in-flight op runs to completion.
func Do(ctx context.Context, cfg Config, op func(ctx context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !core.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		delay := Delay(cfg, attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, delay, lastErr)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}

// Delay returns the backoff delay for the given completed attempt:
// base * 2^(attempt-1) plus up to JitterPercent% jitter, capped.
func Delay(cfg Config, attempt int) time.Duration {
	shift := attempt - 1
	if shift > 16 {
		shift = 16
	}
	delay := cfg.BaseDelay * time.Duration(1<<shift)
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	if cfg.JitterPercent > 0 {
		jitterRange := float64(delay) * float64(cfg.JitterPercent) / 100.0
		delay += time.Duration(rand.Float64() * jitterRange)
	}
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	return delay
}
