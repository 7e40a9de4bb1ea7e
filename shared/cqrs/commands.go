package cqrs

import "github.com/shopspring/decimal"

// CreateTransactionCommand is validated by the handler and consumed once by the
// command service. Type is normalised to upper case by the service.
type CreateTransactionCommand struct {
	AccountNumber string
	Type          string
	Amount        decimal.Decimal
}
