// Package seed loads the demo risk rules and accounts.
package seed

import (
	"context"
	"fmt"

	"github.com/eaglebank/transactions-svc/shared/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type RuleStore interface {
	Save(ctx context.Context, rule *models.RiskRule) (*models.RiskRule, error)
}

type AccountStore interface {
	DeleteAll(ctx context.Context) error
	Insert(ctx context.Context, account *models.Account) (*models.Account, error)
}

// Rules returns the per-currency debit ceilings loaded on seed.
func Rules() []models.RiskRule {
	return []models.RiskRule{
		{Currency: "PEN", MaxDebitPerTx: decimal.NewFromInt(1500)},
		{Currency: "USD", MaxDebitPerTx: decimal.NewFromInt(500)},
	}
}

// Accounts returns the demo accounts loaded on seed.
func Accounts() []models.Account {
	return []models.Account{
		{Number: "001-0001", HolderName: "Ana Peru", Currency: "PEN", Balance: decimal.NewFromInt(5000)},
		{Number: "001-0002", HolderName: "Luis Acuña", Currency: "USD", Balance: decimal.NewFromInt(1000)},
	}
}

// Run upserts the rules and replaces every account with the demo set.
// Rules go first so a failure leaves the existing accounts untouched.
func Run(ctx context.Context, rules RuleStore, accounts AccountStore, logger *zap.Logger) error {
	for _, r := range Rules() {
		r := r
		if _, err := rules.Save(ctx, &r); err != nil {
			return fmt.Errorf("failed to seed risk rule %s: %w", r.Currency, err)
		}
	}

	if err := accounts.DeleteAll(ctx); err != nil {
		return fmt.Errorf("failed to clear accounts: %w", err)
	}
	for _, a := range Accounts() {
		a := a
		if _, err := accounts.Insert(ctx, &a); err != nil {
			return fmt.Errorf("failed to seed account %s: %w", a.Number, err)
		}
	}

	logger.Info("seed data loaded",
		zap.Int("rules", len(Rules())),
		zap.Int("accounts", len(Accounts())),
	)
	return nil
}
