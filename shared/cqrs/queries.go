package cqrs

// GetTransactionQuery fetches a single transaction belonging to an account.
type GetTransactionQuery struct {
	TransactionID string
	AccountNumber string
}

// ListTransactionsQuery fetches all transactions for an account, newest first.
type ListTransactionsQuery struct {
	AccountNumber string
}
