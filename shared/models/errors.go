package models

import "errors"

// BusinessError is a rule violation reported to the client with its code.
// It is never retried and never counted as an infrastructure failure.
type BusinessError struct {
	Code string
}

func (e *BusinessError) Error() string {
	return e.Code
}

var (
	ErrAccountNotFound     = &BusinessError{Code: "account_not_found"}
	ErrRiskRejected        = &BusinessError{Code: "risk_rejected"}
	ErrInsufficientFunds   = &BusinessError{Code: "insufficient_funds"}
	ErrConcurrentUpdate    = &BusinessError{Code: "concurrent_update"}
	ErrTransactionNotFound = &BusinessError{Code: "transaction_not_found"}
	ErrInvalidTransaction  = &BusinessError{Code: "invalid_transaction"}
)

// ErrRiskUnavailable means neither the remote evaluator nor the local rules
// could produce a decision.
var ErrRiskUnavailable = errors.New("risk_unavailable")

// IsBusinessError reports whether err carries a BusinessError anywhere in its chain.
func IsBusinessError(err error) bool {
	var be *BusinessError
	return errors.As(err, &be)
}
