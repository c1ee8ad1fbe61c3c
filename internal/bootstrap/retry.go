// Package bootstrap establishes startup-critical connections with bounded
// retries. It is never used on the request path: per-request failures must
// surface as request errors, not process termination.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Defaults for Options left at their zero value.
const (
	DefaultMaxAttempts = 5
	DefaultDelay       = 5 * time.Second
)

// Options tunes WithRetry. The delay is fixed between attempts, not exponential.
type Options struct {
	MaxAttempts int
	Delay       time.Duration

	// sleep is injectable for tests; nil means a real timer.
	sleep func(ctx context.Context, d time.Duration) error
}

// WithRetry runs op until it succeeds or MaxAttempts is exhausted, waiting
// Delay between attempts. The returned error after exhaustion wraps the last
// failure; callers treat it as fatal to the process, since serving traffic
// against a dependency that could never be reached is unsafe.
func WithRetry(ctx context.Context, name string, op func(ctx context.Context) error, opts Options) error {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	if opts.sleep == nil {
		opts.sleep = sleepWithContext
	}

	var lastErr error
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			if attempt > 1 {
				slog.Info("dependency connected after retry", "name", name, "attempt", attempt)
			}
			return nil
		}

		slog.Warn("dependency connection attempt failed",
			"name", name, "attempt", attempt, "max_attempts", opts.MaxAttempts, "err", lastErr)

		if attempt < opts.MaxAttempts {
			if err := opts.sleep(ctx, opts.Delay); err != nil {
				return fmt.Errorf("connect %s: canceled while waiting to retry: %w", name, err)
			}
		}
	}
	return fmt.Errorf("connect %s: all %d attempts failed: %w", name, opts.MaxAttempts, lastErr)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
