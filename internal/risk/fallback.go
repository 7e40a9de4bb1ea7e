package risk

import (
	"context"
	"errors"
	"fmt"

	"github.com/eaglebank/transactions-svc/shared/correlation"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// WithFallback answers from fallback whenever next fails. When both fail the
// error wraps ErrUnavailable and both causes; it is never an implicit allow.
func WithFallback(fallback Evaluator, logger *zap.Logger, observer Observer) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	if observer == nil {
		observer = nopObserver{}
	}

	return func(next Evaluator) Evaluator {
		return EvaluatorFunc(func(ctx context.Context, currency, txType string, amount decimal.Decimal) (bool, error) {
			allowed, primaryErr := next.IsAllowed(ctx, currency, txType, amount)
			if primaryErr == nil {
				return allowed, nil
			}

			cause := fallbackCause(primaryErr)
			observer.RiskFallback(cause)
			correlation.Logger(ctx, logger).Warn("risk primary path failed, using local rules",
				zap.String("cause", cause), zap.Error(primaryErr))

			allowed, fallbackErr := fallback.IsAllowed(ctx, currency, txType, amount)
			if fallbackErr != nil {
				return false, fmt.Errorf("%w: primary: %w; fallback: %w", ErrUnavailable, primaryErr, fallbackErr)
			}
			return allowed, nil
		})
	}
}

func fallbackCause(err error) string {
	var statusErr *StatusError
	switch {
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.As(err, &statusErr):
		return "status"
	default:
		return "error"
	}
}
