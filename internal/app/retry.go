package app

import (
	"context"
	"time"
)

// withRetry runs fn up to attempts times with a per-attempt timeout and an
// increasing delay between attempts. The last error wins.
func withRetry(ctx context.Context, attempts int, delay, timeout time.Duration, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		err = fn(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt < attempts {
			select {
			case <-time.After(delay * time.Duration(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return err
}
