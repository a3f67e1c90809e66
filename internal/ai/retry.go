package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

const (
	maxAttempts    = 3
	baseRetryDelay = 1 * time.Second
)

// withRetry runs fn up to maxAttempts times with doubling delays (1s, 2s)
// between attempts. Transient provider errors and invalid model output are
// retried; anything else aborts immediately, as does context cancellation.
func withRetry(ctx context.Context, label string, fn func(context.Context) error) error {
	var lastErr error
	delay := baseRetryDelay

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			log.Printf("[AI] %s retry %d/%d (waiting %v)...", label, attempt-1, maxAttempts-1, delay)
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s cancelled: %w", label, ctx.Err())
			case <-time.After(delay):
			}
			delay *= 2
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				log.Printf("[AI] %s succeeded on attempt %d", label, attempt)
			}
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return fmt.Errorf("%s cancelled: %w", label, ctx.Err())
		}
		if !isTransientError(err) && !errors.Is(err, ErrInvalidResponse) {
			return fmt.Errorf("%s failed: %w", label, err)
		}
		log.Printf("[AI] %s attempt %d failed: %v", label, attempt, err)
	}

	return fmt.Errorf("%s failed after %d attempts: %w", label, maxAttempts, lastErr)
}
