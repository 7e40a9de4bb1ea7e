package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TransactionTypeDebit  = "DEBIT"
	TransactionTypeCredit = "CREDIT"

	TransactionStatusOK = "OK"
)

// Account is a holder's balance in a single currency. Number is the business key
// clients use; ID is the store identity that transactions reference.
type Account struct {
	ID         string          `json:"id"`
	Number     string          `json:"number"`
	HolderName string          `json:"holderName"`
	Currency   string          `json:"currency"`
	Balance    decimal.Decimal `json:"balance"`
	Version    int64           `json:"-"`
}

// Transaction is immutable once persisted.
type Transaction struct {
	ID        string          `json:"id"`
	AccountID string          `json:"accountId"`
	Type      string          `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
	Status    string          `json:"status"`
}

// RiskRule caps a single DEBIT in the given currency.
type RiskRule struct {
	ID            int64           `json:"id"`
	Currency      string          `json:"currency"`
	MaxDebitPerTx decimal.Decimal `json:"maxDebitPerTx"`
}
