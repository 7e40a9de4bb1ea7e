package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/eaglebank/transactions-svc/shared/models"
	_ "github.com/lib/pq"
)

const riskRulesSchema = `
CREATE TABLE IF NOT EXISTS risk_rules (
	id               BIGSERIAL PRIMARY KEY,
	currency         VARCHAR(3) NOT NULL UNIQUE,
	max_debit_per_tx NUMERIC(19, 4) NOT NULL
)`

// OpenPostgres opens and pings the rule database.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// RiskRuleRepository reads and writes per-currency debit ceilings in PostgreSQL.
type RiskRuleRepository struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

func NewRiskRuleRepository(db *sql.DB) *RiskRuleRepository {
	return &RiskRuleRepository{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// EnsureSchema creates the rule table when missing.
func (r *RiskRuleRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, riskRulesSchema); err != nil {
		return fmt.Errorf("failed to create risk_rules: %w", err)
	}
	return nil
}

// FindFirstByCurrency returns the first rule for currency, or nil when none exists.
func (r *RiskRuleRepository) FindFirstByCurrency(ctx context.Context, currency string) (*models.RiskRule, error) {
	query, args, err := r.findFirstByCurrency(currency).ToSql()
	if err != nil {
		return nil, err
	}

	var rule models.RiskRule
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&rule.ID, &rule.Currency, &rule.MaxDebitPerTx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get risk rule for %s: %w", currency, err)
	}
	return &rule, nil
}

// Save inserts the rule or replaces the ceiling of the existing rule for its currency.
func (r *RiskRuleRepository) Save(ctx context.Context, rule *models.RiskRule) (*models.RiskRule, error) {
	query, args, err := r.upsert(rule).ToSql()
	if err != nil {
		return nil, err
	}

	saved := *rule
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&saved.ID); err != nil {
		return nil, fmt.Errorf("failed to save risk rule for %s: %w", rule.Currency, err)
	}
	return &saved, nil
}

func (r *RiskRuleRepository) findFirstByCurrency(currency string) sq.SelectBuilder {
	return r.sb.
		Select("id", "currency", "max_debit_per_tx").
		From("risk_rules").
		Where(sq.Eq{"currency": currency}).
		OrderBy("id").
		Limit(1)
}

func (r *RiskRuleRepository) upsert(rule *models.RiskRule) sq.InsertBuilder {
	return r.sb.
		Insert("risk_rules").
		Columns("currency", "max_debit_per_tx").
		Values(rule.Currency, rule.MaxDebitPerTx.String()).
		Suffix("ON CONFLICT (currency) DO UPDATE SET max_debit_per_tx = EXCLUDED.max_debit_per_tx RETURNING id")
}
