package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionView is the read-optimised projection of a transaction.
// AccountNumber and Currency are denormalised from the owning account so a
// single cache lookup can answer GET requests.
type TransactionView struct {
	ID            string          `json:"id"`
	AccountID     string          `json:"accountId"`
	AccountNumber string          `json:"accountNumber"`
	Currency      string          `json:"currency"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
	Timestamp     time.Time       `json:"timestamp"`
}

// NewTransactionView projects a persisted transaction together with its account.
func NewTransactionView(tx *Transaction, account *Account) *TransactionView {
	return &TransactionView{
		ID:            tx.ID,
		AccountID:     tx.AccountID,
		AccountNumber: account.Number,
		Currency:      account.Currency,
		Type:          tx.Type,
		Amount:        tx.Amount,
		Status:        tx.Status,
		Timestamp:     tx.Timestamp,
	}
}
