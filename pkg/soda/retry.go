package soda

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	// DefaultMaxAttempts bounds retries of a single request.
	DefaultMaxAttempts = 5
	// DefaultInitialInterval is the first backoff delay; it doubles per
	// attempt.
	DefaultInitialInterval = 1 * time.Second
	// DefaultMaxInterval caps the backoff delay.
	DefaultMaxInterval = 30 * time.Second
)

// RetryConfig bounds the retry behavior for transient request failures.
type RetryConfig struct {
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (rc RetryConfig) withDefaults() RetryConfig {
	if rc.MaxAttempts == 0 {
		rc.MaxAttempts = DefaultMaxAttempts
	}
	if rc.InitialInterval == 0 {
		rc.InitialInterval = DefaultInitialInterval
	}
	if rc.MaxInterval == 0 {
		rc.MaxInterval = DefaultMaxInterval
	}
	return rc
}

// FetchWithRetry executes a query, retrying transient failures with
// exponential backoff. Permanent failures (4xx) abort immediately; exhausting
// the attempt budget propagates the last error to the caller with no partial
// result. Each failed retryable attempt logs one warning with the attempt
// number and cause.
func FetchWithRetry(ctx context.Context, log *slog.Logger, client *Client, q Query, rc RetryConfig) ([]Record, error) {
	return retryRecords(ctx, log, rc, func() ([]Record, error) {
		return client.Fetch(ctx, q)
	})
}

// CountWithRetry is Count with the same retry policy as FetchWithRetry.
func CountWithRetry(ctx context.Context, log *slog.Logger, client *Client, where string, rc RetryConfig) (int, error) {
	rc = rc.withDefaults()
	attempt := 0
	count, err := backoff.Retry(ctx, func() (int, error) {
		attempt++
		n, err := client.Count(ctx, where)
		if err != nil && !IsTransient(err) {
			return 0, backoff.Permanent(err)
		}
		return n, err
	}, retryOpts(log, rc, &attempt)...)
	if err != nil {
		return 0, fmt.Errorf("count failed after %d attempts: %w", attempt, err)
	}
	return count, nil
}

func retryRecords(ctx context.Context, log *slog.Logger, rc RetryConfig, fn func() ([]Record, error)) ([]Record, error) {
	rc = rc.withDefaults()
	attempt := 0
	records, err := backoff.Retry(ctx, func() ([]Record, error) {
		attempt++
		records, err := fn()
		if err != nil && !IsTransient(err) {
			return nil, backoff.Permanent(err)
		}
		return records, err
	}, retryOpts(log, rc, &attempt)...)
	if err != nil {
		return nil, fmt.Errorf("fetch failed after %d attempts: %w", attempt, err)
	}
	return records, nil
}

func retryOpts(log *slog.Logger, rc RetryConfig, attempt *int) []backoff.RetryOption {
	return []backoff.RetryOption{
		backoff.WithBackOff(&backoff.ExponentialBackOff{
			InitialInterval:     rc.InitialInterval,
			RandomizationFactor: 0,
			Multiplier:          2,
			MaxInterval:         rc.MaxInterval,
		}),
		backoff.WithMaxTries(rc.MaxAttempts),
		backoff.WithNotify(func(err error, delay time.Duration) {
			log.Warn("request failed, retrying", "attempt", *attempt, "max_attempts", rc.MaxAttempts, "backoff", delay, "error", err)
		}),
	}
}
