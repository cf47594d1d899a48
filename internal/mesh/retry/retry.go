// Package retry implements the generic bounded exponential-backoff
// wrapper from design note §4.2. It does not distinguish retryable from
// terminal errors; callers that must not retry certain failures simply
// do not use it.
package retry

import (
	"context"
	"time"
)

// Config holds the retry harness parameters from design note §6.
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultConfig returns design note §4.2's defaults: 3 attempts, 100ms initial,
// 10s ceiling, x2 growth.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}

// Do runs op at most cfg.MaxAttempts times in total, retrying on error
// with exponential backoff. On success it returns immediately; after
// exhausting attempts it surfaces the last error verbatim. Sleeps
// respect ctx cancellation.
func Do[T any](ctx context.Context, cfg Config, op func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	delay := cfg.InitialDelay
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == cfg.MaxAttempts-1 {
			break
		}

		sleepFor := delay
		if sleepFor > cfg.MaxDelay {
			sleepFor = cfg.MaxDelay
		}

		timer := time.NewTimer(sleepFor)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
	}

	return zero, lastErr
}
