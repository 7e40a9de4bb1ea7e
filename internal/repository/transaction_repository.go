package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/eaglebank/transactions-svc/shared/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type transactionDocument struct {
	ID        primitive.ObjectID   `bson:"_id,omitempty"`
	AccountID string               `bson:"account_id"`
	Type      string               `bson:"type"`
	Amount    primitive.Decimal128 `bson:"amount"`
	Timestamp time.Time            `bson:"timestamp"`
	Status    string               `bson:"status"`
}

// TransactionWriteRepository handles all state-mutating operations for transactions.
// Transactions are insert-only.
type TransactionWriteRepository struct {
	collection *mongo.Collection
}

func NewTransactionWriteRepository(db *mongo.Database) *TransactionWriteRepository {
	return &TransactionWriteRepository{collection: db.Collection(transactionsCollection)}
}

// Save inserts tx and returns it with the ID assigned by the store.
func (r *TransactionWriteRepository) Save(ctx context.Context, tx *models.Transaction) (*models.Transaction, error) {
	doc, err := newTransactionDocument(tx)
	if err != nil {
		return nil, err
	}
	res, err := r.collection.InsertOne(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	saved := *tx
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		saved.ID = oid.Hex()
	}
	return &saved, nil
}

func newTransactionDocument(tx *models.Transaction) (transactionDocument, error) {
	amount, err := toDecimal128(tx.Amount)
	if err != nil {
		return transactionDocument{}, err
	}
	return transactionDocument{
		AccountID: tx.AccountID,
		Type:      tx.Type,
		Amount:    amount,
		Timestamp: tx.Timestamp.UTC(),
		Status:    tx.Status,
	}, nil
}

func (d transactionDocument) toModel() (*models.Transaction, error) {
	amount, err := fromDecimal128(d.Amount)
	if err != nil {
		return nil, err
	}
	return &models.Transaction{
		ID:        d.ID.Hex(),
		AccountID: d.AccountID,
		Type:      d.Type,
		Amount:    amount,
		Timestamp: d.Timestamp.UTC(),
		Status:    d.Status,
	}, nil
}
