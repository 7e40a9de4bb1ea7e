package risk

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/eaglebank/transactions-svc/shared/correlation"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RetryPolicy bounds re-attempts. MaxAttempts counts the first call.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Retryable defaults to IsTransient.
	Retryable func(error) bool
}

// WithRetry re-invokes next on retryable errors with exponential backoff and
// full jitter. Attempts are always finite: MaxAttempts below 1 means 1.
func WithRetry(policy RetryPolicy, logger *zap.Logger) Middleware {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.Retryable == nil {
		policy.Retryable = IsTransient
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next Evaluator) Evaluator {
		return EvaluatorFunc(func(ctx context.Context, currency, txType string, amount decimal.Decimal) (bool, error) {
			var lastErr error
			for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
				allowed, err := next.IsAllowed(ctx, currency, txType, amount)
				if err == nil {
					return allowed, nil
				}
				lastErr = err
				if !policy.Retryable(err) || attempt == policy.MaxAttempts-1 {
					break
				}

				delay := policy.backoff(attempt)
				correlation.Logger(ctx, logger).Debug("retrying risk evaluation",
					zap.Int("attempt", attempt+1), zap.Duration("delay", delay), zap.Error(err))
				if err := sleepWithContext(ctx, delay); err != nil {
					return false, fmt.Errorf("risk retry interrupted: %w", err)
				}
			}
			return false, lastErr
		})
	}
}

// backoff returns a random delay in [0, min(BaseDelay*2^attempt, MaxDelay)).
func (p RetryPolicy) backoff(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}
	delay := p.BaseDelay << attempt
	if delay <= 0 || (p.MaxDelay > 0 && delay > p.MaxDelay) {
		delay = p.MaxDelay
	}
	if delay <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(delay)))
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
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
