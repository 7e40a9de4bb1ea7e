// Package risk decides whether a transaction may proceed. The remote
// evaluator is wrapped in explicit decorators (timeout, retry, circuit
// breaker, fallback) that compose around a single Evaluator contract.
package risk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnavailable is returned when neither the remote evaluator nor the
	// local fallback produced a decision.
	ErrUnavailable = errors.New("risk evaluation unavailable")
	// ErrTimeout marks an attempt that exceeded its time limit.
	ErrTimeout = errors.New("risk evaluation timed out")
	// ErrCircuitOpen marks a call short-circuited by the breaker.
	ErrCircuitOpen = errors.New("risk circuit open")
	// ErrBadResponse marks a response body that is not a boolean.
	ErrBadResponse = errors.New("risk evaluator returned malformed response")
)

// Evaluator answers a single risk question. Implementations never return a
// business error: a decision is a bool, and errors are infrastructure only.
type Evaluator interface {
	IsAllowed(ctx context.Context, currency, txType string, amount decimal.Decimal) (bool, error)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx context.Context, currency, txType string, amount decimal.Decimal) (bool, error)

func (f EvaluatorFunc) IsAllowed(ctx context.Context, currency, txType string, amount decimal.Decimal) (bool, error) {
	return f(ctx, currency, txType, amount)
}

// Middleware decorates an Evaluator.
type Middleware func(Evaluator) Evaluator

// Chain applies middlewares to e, first one innermost.
func Chain(e Evaluator, mws ...Middleware) Evaluator {
	for _, mw := range mws {
		e = mw(e)
	}
	return e
}

// StatusError is a non-2xx answer from the remote evaluator.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("risk evaluator returned status %d", e.Code)
}

// IsTransient reports whether err is worth another attempt: timeouts, 5xx
// answers and network failures. Caller cancellation never is.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= 500
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// Observer receives resilience events, typically for metrics.
type Observer interface {
	RiskFallback(cause string)
	RiskBreakerState(state string)
}

type nopObserver struct{}

func (nopObserver) RiskFallback(string)     {}
func (nopObserver) RiskBreakerState(string) {}
