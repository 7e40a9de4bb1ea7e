package risk

import (
	"context"
	"fmt"

	"github.com/eaglebank/transactions-svc/shared/correlation"
	"github.com/eaglebank/transactions-svc/shared/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RuleFinder returns the first rule for a currency, or nil when none exists.
type RuleFinder interface {
	FindFirstByCurrency(ctx context.Context, currency string) (*models.RiskRule, error)
}

// LocalEvaluator applies Decide against the local rule store. Store access
// runs on the blocking pool.
type LocalEvaluator struct {
	rules  RuleFinder
	pool   *BlockingPool
	logger *zap.Logger
}

func NewLocalEvaluator(rules RuleFinder, pool *BlockingPool, logger *zap.Logger) *LocalEvaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalEvaluator{rules: rules, pool: pool, logger: logger}
}

func (l *LocalEvaluator) IsAllowed(ctx context.Context, currency, txType string, amount decimal.Decimal) (bool, error) {
	log := correlation.Logger(ctx, l.logger)
	log.Debug("local risk validation",
		zap.String("currency", currency), zap.String("type", txType), zap.Stringer("amount", amount))

	var allowed bool
	err := l.pool.Do(ctx, func(ctx context.Context) error {
		var err error
		allowed, err = Lookup(ctx, l.rules, currency, txType, amount)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("local risk lookup for %s: %w", currency, err)
	}

	log.Info("risk result",
		zap.String("source", "local"),
		zap.String("currency", currency),
		zap.String("type", txType),
		zap.Stringer("amount", amount),
		zap.Bool("allowed", allowed))
	return allowed, nil
}
