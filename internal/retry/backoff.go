package retry

import (
	"context"
	"time"
)

// maxShift bounds the exponent so the delay cannot overflow.
const maxShift = 16

// ExponentialBackoff returns base * 2^attempt, with attempt clamped to [0, 16].
func ExponentialBackoff(attempt int, base time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > maxShift {
		attempt = maxShift
	}
	return base * (1 << attempt)
}

// Wait sleeps for ExponentialBackoff(attempt, base) and returns ctx.Err() if
// ctx ends first.
func Wait(ctx context.Context, attempt int, base time.Duration) error {
	t := time.NewTimer(ExponentialBackoff(attempt, base))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
