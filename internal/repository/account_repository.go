package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/eaglebank/transactions-svc/shared/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type accountDocument struct {
	ID         primitive.ObjectID   `bson:"_id,omitempty"`
	Number     string               `bson:"number"`
	HolderName string               `bson:"holder_name"`
	Currency   string               `bson:"currency"`
	Balance    primitive.Decimal128 `bson:"balance"`
	Version    int64                `bson:"version"`
}

// AccountRepository persists accounts in MongoDB. Updates are guarded by the
// account version so concurrent writers cannot overwrite each other.
type AccountRepository struct {
	collection *mongo.Collection
}

func NewAccountRepository(db *mongo.Database) *AccountRepository {
	return &AccountRepository{collection: db.Collection(accountsCollection)}
}

// FindByNumber returns models.ErrAccountNotFound when no account has number.
func (r *AccountRepository) FindByNumber(ctx context.Context, number string) (*models.Account, error) {
	var doc accountDocument
	err := r.collection.FindOne(ctx, bson.M{"number": number}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account %s: %w", number, err)
	}
	return doc.toModel()
}

// Save writes balance changes if the stored version still matches
// account.Version, and returns the account with its new version. A mismatch
// is reported as models.ErrConcurrentUpdate.
func (r *AccountRepository) Save(ctx context.Context, account *models.Account) (*models.Account, error) {
	id, err := primitive.ObjectIDFromHex(account.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid account id %q: %w", account.ID, err)
	}
	balance, err := toDecimal128(account.Balance)
	if err != nil {
		return nil, err
	}

	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "version": account.Version},
		bson.M{
			"$set": bson.M{"balance": balance},
			"$inc": bson.M{"version": 1},
		})
	if err != nil {
		return nil, fmt.Errorf("failed to save account %s: %w", account.Number, err)
	}
	if res.MatchedCount == 0 {
		return nil, models.ErrConcurrentUpdate
	}

	saved := *account
	saved.Version++
	return &saved, nil
}

// Insert stores a new account and returns it with its assigned ID.
func (r *AccountRepository) Insert(ctx context.Context, account *models.Account) (*models.Account, error) {
	balance, err := toDecimal128(account.Balance)
	if err != nil {
		return nil, err
	}
	doc := accountDocument{
		Number:     account.Number,
		HolderName: account.HolderName,
		Currency:   account.Currency,
		Balance:    balance,
	}
	res, err := r.collection.InsertOne(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("failed to insert account %s: %w", account.Number, err)
	}

	inserted := *account
	inserted.Version = 0
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		inserted.ID = oid.Hex()
	}
	return &inserted, nil
}

// DeleteAll removes every account.
func (r *AccountRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.collection.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("failed to delete accounts: %w", err)
	}
	return nil
}

func (d accountDocument) toModel() (*models.Account, error) {
	balance, err := fromDecimal128(d.Balance)
	if err != nil {
		return nil, err
	}
	return &models.Account{
		ID:         d.ID.Hex(),
		Number:     d.Number,
		HolderName: d.HolderName,
		Currency:   d.Currency,
		Balance:    balance,
		Version:    d.Version,
	}, nil
}
