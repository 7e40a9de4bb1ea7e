package risk

import (
	"context"
	"net/http"
	"time"

	"github.com/eaglebank/transactions-svc/shared/correlation"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// GateConfig holds the resilience settings of the remote path.
type GateConfig struct {
	BaseURL    string
	MockDelay  time.Duration
	Timeout    time.Duration
	Retry      RetryPolicy
	Breaker    BreakerSettings
	HTTPClient *http.Client
}

// Gate is the risk check used by the transaction pipeline. The remote call is
// bounded per attempt, retried on transient failures and guarded by a circuit
// breaker; any failure of that path is answered by local rules.
type Gate struct {
	evaluator Evaluator
	breaker   *CircuitBreaker
	logger    *zap.Logger
}

// NewGate composes primary and local as
// Fallback(CircuitBreaker(Retry(Timeout(primary)))).
func NewGate(primary, local Evaluator, cfg GateConfig, logger *zap.Logger, observer Observer) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	if observer == nil {
		observer = nopObserver{}
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker.Name = "risk-remote"
	}

	limited := Chain(primary, WithTimeout(cfg.Timeout), WithRetry(cfg.Retry, logger))
	breaker := NewCircuitBreaker(limited, cfg.Breaker, logger, observer)
	evaluator := WithFallback(local, logger, observer)(breaker)

	return &Gate{evaluator: evaluator, breaker: breaker, logger: logger}
}

// NewRemoteGate wires a Gate whose primary path is the HTTP risk service.
func NewRemoteGate(cfg GateConfig, local Evaluator, logger *zap.Logger, observer Observer) *Gate {
	remote := NewRemoteEvaluator(cfg.BaseURL, cfg.MockDelay, cfg.HTTPClient)
	return NewGate(remote, local, cfg, logger, observer)
}

func (g *Gate) IsAllowed(ctx context.Context, currency, txType string, amount decimal.Decimal) (bool, error) {
	allowed, err := g.evaluator.IsAllowed(ctx, currency, txType, amount)
	if err != nil {
		correlation.Logger(ctx, g.logger).Error("risk evaluation unavailable",
			zap.String("currency", currency), zap.String("type", txType), zap.Error(err))
		return false, err
	}
	correlation.Logger(ctx, g.logger).Debug("risk decision",
		zap.String("currency", currency), zap.String("type", txType),
		zap.Stringer("amount", amount), zap.Bool("allowed", allowed))
	return allowed, nil
}

// BreakerState exposes the remote breaker state for health reporting.
func (g *Gate) BreakerState() string {
	return g.breaker.State()
}
