// Package backoff implements exponential backoff with full jitter for the
// version-conflict retries and the pipeline redelivery loop.
package backoff

import (
	"context"
	"math/rand/v2"
	"time"
)

const maxShift = 30

// Delay returns a random duration in [0, base*2^attempt). Negative attempts
// count as 0.
func Delay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	} else if attempt > maxShift {
		attempt = maxShift
	}
	ceiling := base << attempt
	return time.Duration(rand.Int64N(int64(ceiling)))
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
