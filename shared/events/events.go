package events

import (
	"encoding/json"
	"time"

	"github.com/eaglebank/transactions-svc/shared/models"
)

// Event types
const (
	TransactionCreated = "transaction.created"
)

// Stream names
const (
	TransactionEventsStream = "transaction.events"
)

// Event is the envelope written to every stream. Source identifies the
// publishing instance so consumers can recognise their own events.
type Event struct {
	Type          string          `json:"type"`
	Source        string          `json:"source,omitempty"`
	CorrelationID string          `json:"correlationId,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	Data          json.RawMessage `json:"data"`
}

// Transaction events
type TransactionCreatedEvent struct {
	AccountNumber string             `json:"accountNumber"`
	Transaction   models.Transaction `json:"transaction"`
}
