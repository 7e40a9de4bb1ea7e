package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eaglebank/transactions-svc/shared/models"
	sharedredis "github.com/eaglebank/transactions-svc/shared/redis"
	goredis "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const transactionViewKeyPrefix = "transaction:view:"

// TransactionReadRepository handles all read operations for transactions.
// Single transaction views are served from Redis first, falling back to
// MongoDB on a miss.
type TransactionReadRepository struct {
	collection *mongo.Collection
	cache      *sharedredis.ViewCache[models.TransactionView]
}

func NewTransactionReadRepository(db *mongo.Database, redisClient *goredis.Client, ttl time.Duration, logger *zap.Logger) *TransactionReadRepository {
	return &TransactionReadRepository{
		collection: db.Collection(transactionsCollection),
		cache:      sharedredis.NewViewCache[models.TransactionView](redisClient, ttl, logger),
	}
}

// FindByAccountOrderByTimestampDesc returns the account's transactions, newest first.
func (r *TransactionReadRepository) FindByAccountOrderByTimestampDesc(ctx context.Context, accountID string) ([]models.Transaction, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"account_id": accountID}, newestFirst())
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer cursor.Close(ctx)

	transactions := make([]models.Transaction, 0)
	for cursor.Next(ctx) {
		var doc transactionDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode transaction: %w", err)
		}
		tx, err := doc.toModel()
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, *tx)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return transactions, nil
}

// newestFirst orders by timestamp descending; _id breaks ties between
// transactions committed in the same instant.
func newestFirst() *options.FindOptions {
	return options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}})
}

// FindByID returns models.ErrTransactionNotFound when id is unknown or malformed.
func (r *TransactionReadRepository) FindByID(ctx context.Context, id string) (*models.Transaction, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, models.ErrTransactionNotFound
	}

	var doc transactionDocument
	err = r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return doc.toModel()
}

// CachedView returns the cached projection for the transaction, if present.
func (r *TransactionReadRepository) CachedView(ctx context.Context, id, accountNumber string) (*models.TransactionView, bool) {
	return r.cache.Get(ctx, viewKey(accountNumber, id))
}

// CacheTransactionView stores the read model for a transaction in Redis.
// Called by the command service immediately after a successful create.
func (r *TransactionReadRepository) CacheTransactionView(ctx context.Context, view *models.TransactionView) {
	r.cache.Set(ctx, viewKey(view.AccountNumber, view.ID), view)
}

func viewKey(accountNumber, id string) string {
	return fmt.Sprintf("%s%s:%s", transactionViewKeyPrefix, accountNumber, id)
}
