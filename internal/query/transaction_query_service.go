package query

import (
	"context"
	"fmt"

	"github.com/eaglebank/transactions-svc/shared/correlation"
	"github.com/eaglebank/transactions-svc/shared/cqrs"
	"github.com/eaglebank/transactions-svc/shared/models"
	"go.uber.org/zap"
)

type AccountFinder interface {
	FindByNumber(ctx context.Context, number string) (*models.Account, error)
}

type TransactionReader interface {
	FindByAccountOrderByTimestampDesc(ctx context.Context, accountID string) ([]models.Transaction, error)
	FindByID(ctx context.Context, id string) (*models.Transaction, error)
	CachedView(ctx context.Context, id, accountNumber string) (*models.TransactionView, bool)
	CacheTransactionView(ctx context.Context, view *models.TransactionView)
}

// Subscriber exposes the live transaction feed.
type Subscriber interface {
	Subscribe(ctx context.Context) <-chan models.Transaction
}

// TransactionQueryService serves transaction reads and the live stream.
type TransactionQueryService struct {
	readRepo TransactionReader
	accounts AccountFinder
	feed     Subscriber
	logger   *zap.Logger
}

func NewTransactionQueryService(readRepo TransactionReader, accounts AccountFinder, feed Subscriber, logger *zap.Logger) *TransactionQueryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransactionQueryService{readRepo: readRepo, accounts: accounts, feed: feed, logger: logger}
}

// ListTransactions returns the account's transactions, newest first.
func (s *TransactionQueryService) ListTransactions(ctx context.Context, q cqrs.ListTransactionsQuery) ([]models.Transaction, error) {
	account, err := s.findAccount(ctx, q.AccountNumber)
	if err != nil {
		return nil, err
	}
	correlation.Logger(ctx, s.logger).Info("account found, loading transactions", zap.String("account", q.AccountNumber))
	return s.readRepo.FindByAccountOrderByTimestampDesc(ctx, account.ID)
}

// GetTransaction returns one transaction of the account, from the view cache
// when possible. A transaction of another account is reported as not found.
func (s *TransactionQueryService) GetTransaction(ctx context.Context, q cqrs.GetTransactionQuery) (*models.TransactionView, error) {
	if view, ok := s.readRepo.CachedView(ctx, q.TransactionID, q.AccountNumber); ok {
		return view, nil
	}

	account, err := s.findAccount(ctx, q.AccountNumber)
	if err != nil {
		return nil, err
	}
	tx, err := s.readRepo.FindByID(ctx, q.TransactionID)
	if err != nil {
		return nil, err
	}
	if tx.AccountID != account.ID {
		return nil, models.ErrTransactionNotFound
	}

	view := models.NewTransactionView(tx, account)
	s.readRepo.CacheTransactionView(ctx, view)
	return view, nil
}

// Stream delivers transactions committed after the call until ctx ends or
// the service shuts down.
func (s *TransactionQueryService) Stream(ctx context.Context) <-chan models.Transaction {
	correlation.Logger(ctx, s.logger).Debug("opening transaction stream")
	return s.feed.Subscribe(ctx)
}

func (s *TransactionQueryService) findAccount(ctx context.Context, number string) (*models.Account, error) {
	account, err := s.accounts.FindByNumber(ctx, number)
	if err != nil {
		if models.IsBusinessError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if account == nil {
		return nil, models.ErrAccountNotFound
	}
	return account, nil
}
