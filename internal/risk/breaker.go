package risk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerSettings configures the circuit breaker around the remote path.
type BreakerSettings struct {
	Name string
	// MaxRequests is the number of trial calls allowed while half-open.
	MaxRequests uint32
	// Interval clears closed-state counts periodically; zero never clears.
	Interval time.Duration
	// OpenTimeout is how long the breaker stays open before going half-open.
	OpenTimeout         time.Duration
	MinRequests         uint32
	FailureRatio        float64
	ConsecutiveFailures uint32
}

// CircuitBreaker short-circuits calls to next while the failure ratio is over
// the threshold. Its state is shared by every caller.
type CircuitBreaker struct {
	cb   *gobreaker.CircuitBreaker
	next Evaluator
}

// NewCircuitBreaker wraps next. The breaker counts caller cancellation as
// neither success nor failure of the dependency.
func NewCircuitBreaker(next Evaluator, s BreakerSettings, logger *zap.Logger, observer Observer) *CircuitBreaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if observer == nil {
		observer = nopObserver{}
	}

	settings := gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if s.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= s.ConsecutiveFailures {
				return true
			}
			if counts.Requests < s.MinRequests || counts.Requests == 0 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= s.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
			observer.RiskBreakerState(to.String())
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}

	observer.RiskBreakerState(gobreaker.StateClosed.String())
	return &CircuitBreaker{cb: gobreaker.NewCircuitBreaker(settings), next: next}
}

// WithCircuitBreaker is the Middleware form of NewCircuitBreaker.
func WithCircuitBreaker(s BreakerSettings, logger *zap.Logger, observer Observer) Middleware {
	return func(next Evaluator) Evaluator {
		return NewCircuitBreaker(next, s, logger, observer)
	}
}

func (b *CircuitBreaker) IsAllowed(ctx context.Context, currency, txType string, amount decimal.Decimal) (bool, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.IsAllowed(ctx, currency, txType, amount)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return false, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		return false, err
	}
	return result.(bool), nil
}

// State reports the breaker state as closed, open or half-open.
func (b *CircuitBreaker) State() string {
	return b.cb.State().String()
}
