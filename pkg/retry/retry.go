// Package retry implements a bounded exponential backoff policy for
// transient provider errors. Non-retryable error classes surface
// immediately without consuming any of the attempt budget.
package retry

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"mailtriage/pkg/util"
)

// Policy parameterizes retries per call site: how many attempts, how the
// delay grows, and how much jitter is layered on top.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	// Jitter in [0..1]: each delay is stretched by up to this fraction.
	Jitter float64
}

// DefaultPolicy returns the policy used around provider calls: 5 attempts,
// 1s base delay doubling up to 30s, 20% jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		Multiplier:  2,
		MaxDelay:    30 * time.Second,
		Jitter:      0.2,
	}
}

// Delay returns the backoff before the given attempt (attempt 1 is the
// first retry).
func (p Policy) Delay(attempt int) time.Duration {
	d := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
	}
	if max := float64(p.MaxDelay); p.MaxDelay > 0 && d > max {
		d = max
	}
	if p.Jitter > 0 {
		d += d * p.Jitter * rand.Float64()
	}
	return time.Duration(d)
}

// Do runs fn, retrying per the policy while the error classifies as
// retryable. It returns the last error when the budget is exhausted, and
// immediately for non-retryable errors or a canceled context.
func (p Policy) Do(ctx context.Context, logger *zap.Logger, op string, fn func() error) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		retryable, class := util.IsRetryableError(err)
		if !util.ShouldRetry(attempt, p.MaxAttempts, retryable) {
			return err
		}

		delay := p.Delay(attempt)
		if logger != nil {
			logger.Warn("Transient error, backing off",
				zap.String("op", op),
				zap.String("error_class", class),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", p.MaxAttempts),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
