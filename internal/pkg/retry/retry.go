// Package retry runs store calls with bounded exponential backoff.
package retry

import (
	"context"
	"fmt"
	"time"

	"radar/internal/logger"
)

// Policy bounds the retry loop. A zero Policy runs fn exactly once.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Retryable decides whether err is worth another attempt. Nil retries every error.
	Retryable func(error) bool
}

// Do executes fn until it succeeds, the error is not retryable, attempts run
// out, or ctx is done.
func (p Policy) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := p.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}
		logger.Warnf("[retry] %s failed (attempt %d/%d): %v; retrying in %v", op, attempt, attempts, lastErr, delay)
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("%s: %w (last error: %v)", op, ctx.Err(), lastErr)
			case <-timer.C:
			}
		}
		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	if attempts == 1 {
		return lastErr
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, attempts, lastErr)
}
