package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type decision struct {
	allowed bool
	err     error
}

// WithTimeout bounds every call to next by d. The bound holds even if next
// ignores its context: the caller is released at the deadline and the late
// result is discarded.
func WithTimeout(d time.Duration) Middleware {
	return func(next Evaluator) Evaluator {
		if d <= 0 {
			return next
		}
		return EvaluatorFunc(func(ctx context.Context, currency, txType string, amount decimal.Decimal) (bool, error) {
			attemptCtx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			out := make(chan decision, 1)
			go func() {
				allowed, err := next.IsAllowed(attemptCtx, currency, txType, amount)
				out <- decision{allowed: allowed, err: err}
			}()

			select {
			case res := <-out:
				if res.err != nil && ctx.Err() == nil && attemptCtx.Err() == context.DeadlineExceeded {
					return false, fmt.Errorf("%w after %s: %v", ErrTimeout, d, res.err)
				}
				return res.allowed, res.err
			case <-attemptCtx.Done():
				if ctx.Err() != nil {
					return false, ctx.Err()
				}
				return false, fmt.Errorf("%w after %s", ErrTimeout, d)
			}
		})
	}
}
