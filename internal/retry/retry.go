// Package retry implements the bounded exponential-backoff loop used for
// external API calls. It is an explicit loop rather than a library policy so
// tests can run zero-delay variants and the delay schedule stays visible.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"sowflow/internal/pipeline"
)

type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// MaxDelay caps the exponential growth. Zero means 8x BaseDelay,
	// matching the 1s,2s,4s,8s schedule used against rate limits.
	MaxDelay time.Duration
}

// Do runs fn up to MaxAttempts times, sleeping an exponentially increasing
// delay between attempts. Non-retryable errors and context cancellation stop
// the loop immediately. The last error is returned after exhaustion.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if errors.Is(err, pipeline.ErrNonRetryable) {
			return err
		}
		if attempt == p.MaxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Delay(attempt)):
		}
	}
	return err
}

// Delay computes the sleep before retrying after the given zero-based
// attempt: BaseDelay*2^attempt, capped, plus up to one BaseDelay of jitter.
func (p Policy) Delay(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	max := p.MaxDelay
	if max <= 0 {
		max = 8 * p.BaseDelay
	}
	d := p.BaseDelay
	for i := 0; i < attempt && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	return d + time.Duration(rand.Int63n(int64(p.BaseDelay)))
}
