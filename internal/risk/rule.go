package risk

import (
	"context"
	"strings"

	"github.com/eaglebank/transactions-svc/shared/models"
	"github.com/shopspring/decimal"
)

// Decide is the single decision rule shared by the remote evaluator and the
// local fallback. A missing rule means a zero ceiling; only DEBIT is bounded.
func Decide(rule *models.RiskRule, txType string, amount decimal.Decimal) bool {
	if !strings.EqualFold(txType, models.TransactionTypeDebit) {
		return true
	}
	ceiling := decimal.Zero
	if rule != nil {
		ceiling = rule.MaxDebitPerTx
	}
	return amount.LessThanOrEqual(ceiling)
}

// Lookup resolves the rule for currency and applies Decide. Currency codes
// are matched upper-cased, so the remote evaluator and the local fallback
// always read the same rule.
func Lookup(ctx context.Context, rules RuleFinder, currency, txType string, amount decimal.Decimal) (bool, error) {
	rule, err := rules.FindFirstByCurrency(ctx, strings.ToUpper(strings.TrimSpace(currency)))
	if err != nil {
		return false, err
	}
	return Decide(rule, txType, amount), nil
}
