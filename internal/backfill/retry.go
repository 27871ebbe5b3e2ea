package backfill

import (
	"context"
	"time"
)

const maxRetryDelay = 30 * time.Second

// withRetry calls fn until it succeeds, doubling the delay between attempts
// up to maxRetryDelay. maxRetries counts retries after the first attempt.
func withRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func(context.Context) error) error {
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	var err error
	delay := baseDelay
	for attempt := 0; attempt <= maxRetries || attempt == 0; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			delay = min(delay*2, maxRetryDelay)
		}
		if err = fn(ctx); err == nil {
			return nil
		}
	}
	return err
}
