package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/eaglebank/transactions-svc/shared/correlation"
	"github.com/eaglebank/transactions-svc/shared/cqrs"
	"github.com/eaglebank/transactions-svc/shared/events"
	"github.com/eaglebank/transactions-svc/shared/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AccountStore is the account side of the write model.
type AccountStore interface {
	FindByNumber(ctx context.Context, number string) (*models.Account, error)
	Save(ctx context.Context, account *models.Account) (*models.Account, error)
}

// TransactionStore persists new transactions.
type TransactionStore interface {
	Save(ctx context.Context, tx *models.Transaction) (*models.Transaction, error)
}

// RiskGate decides whether a transaction may proceed.
type RiskGate interface {
	IsAllowed(ctx context.Context, currency, txType string, amount decimal.Decimal) (bool, error)
}

// Transactor groups the account and transaction writes.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Broadcaster delivers committed transactions to live subscribers.
type Broadcaster interface {
	Publish(tx models.Transaction) error
}

// EventPublisher mirrors committed transactions onto the event stream.
type EventPublisher interface {
	Publish(ctx context.Context, stream, eventType string, data any) error
}

// ViewCache stores read projections for single-transaction lookups.
type ViewCache interface {
	CacheTransactionView(ctx context.Context, view *models.TransactionView)
}

// Recorder counts outcomes.
type Recorder interface {
	TransactionCreated(txType string)
	TransactionRejected(reason string)
}

type nopRecorder struct{}

func (nopRecorder) TransactionCreated(string)  {}
func (nopRecorder) TransactionRejected(string) {}

// Dependencies groups everything TransactionCommandService needs. Publisher,
// Cache and Recorder are optional.
type Dependencies struct {
	Accounts     AccountStore
	Transactions TransactionStore
	Risk         RiskGate
	Transactor   Transactor
	Broadcaster  Broadcaster
	Publisher    EventPublisher
	Cache        ViewCache
	Recorder     Recorder
	Logger       *zap.Logger
	Now          func() time.Time
}

// TransactionCommandService creates transactions. Every create runs risk
// check, funds check and mutation strictly in that order, and nothing is
// written unless both checks pass.
type TransactionCommandService struct {
	accounts     AccountStore
	transactions TransactionStore
	risk         RiskGate
	transactor   Transactor
	broadcaster  Broadcaster
	publisher    EventPublisher
	cache        ViewCache
	recorder     Recorder
	logger       *zap.Logger
	now          func() time.Time
}

func NewTransactionCommandService(deps Dependencies) *TransactionCommandService {
	s := &TransactionCommandService{
		accounts:     deps.Accounts,
		transactions: deps.Transactions,
		risk:         deps.Risk,
		transactor:   deps.Transactor,
		broadcaster:  deps.Broadcaster,
		publisher:    deps.Publisher,
		cache:        deps.Cache,
		recorder:     deps.Recorder,
		logger:       deps.Logger,
		now:          deps.Now,
	}
	if s.recorder == nil {
		s.recorder = nopRecorder{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

func (s *TransactionCommandService) CreateTransaction(ctx context.Context, cmd cqrs.CreateTransactionCommand) (*models.Transaction, error) {
	log := correlation.Logger(ctx, s.logger)
	log.Debug("creating transaction",
		zap.String("account", cmd.AccountNumber), zap.String("type", cmd.Type), zap.Stringer("amount", cmd.Amount))

	txType := strings.ToUpper(strings.TrimSpace(cmd.Type))
	if txType != models.TransactionTypeDebit && txType != models.TransactionTypeCredit {
		return nil, s.reject(log, fmt.Errorf("unknown transaction type %q: %w", cmd.Type, models.ErrInvalidTransaction), "")
	}
	if !cmd.Amount.IsPositive() {
		return nil, s.reject(log, fmt.Errorf("amount must be greater than zero: %w", models.ErrInvalidTransaction), "")
	}

	account, err := s.accounts.FindByNumber(ctx, cmd.AccountNumber)
	if err != nil {
		return nil, s.reject(log, err, "failed to load account")
	}
	if account == nil {
		return nil, s.reject(log, models.ErrAccountNotFound, "")
	}

	allowed, err := s.risk.IsAllowed(ctx, account.Currency, txType, cmd.Amount)
	if err != nil {
		return nil, s.reject(log, fmt.Errorf("%w: %w", models.ErrRiskUnavailable, err), "")
	}
	if !allowed {
		return nil, s.reject(log, models.ErrRiskRejected, "")
	}

	if txType == models.TransactionTypeDebit && cmd.Amount.GreaterThan(account.Balance) {
		return nil, s.reject(log, models.ErrInsufficientFunds, "")
	}

	updated := *account
	if txType == models.TransactionTypeDebit {
		updated.Balance = account.Balance.Sub(cmd.Amount)
	} else {
		updated.Balance = account.Balance.Add(cmd.Amount)
	}

	var saved *models.Transaction
	err = s.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		savedAccount, err := s.accounts.Save(ctx, &updated)
		if err != nil {
			return err
		}
		saved, err = s.transactions.Save(ctx, &models.Transaction{
			AccountID: savedAccount.ID,
			Type:      txType,
			Amount:    cmd.Amount,
			Timestamp: s.now(),
			Status:    models.TransactionStatusOK,
		})
		if err != nil {
			return fmt.Errorf("account %s updated but transaction not stored: %w", account.Number, err)
		}
		return nil
	})
	if err != nil {
		return nil, s.reject(log, err, "failed to persist transaction")
	}

	s.recorder.TransactionCreated(txType)
	log.Info("tx_created",
		zap.String("account", account.Number),
		zap.String("transaction_id", saved.ID),
		zap.String("type", txType),
		zap.Stringer("amount", cmd.Amount))

	s.announce(ctx, log, saved, account)
	return saved, nil
}

// announce runs the best-effort side effects of a committed transaction.
// None of them can fail the create.
func (s *TransactionCommandService) announce(ctx context.Context, log *zap.Logger, tx *models.Transaction, account *models.Account) {
	if s.broadcaster != nil {
		if err := s.broadcaster.Publish(*tx); err != nil {
			log.Warn("failed to broadcast transaction", zap.String("transaction_id", tx.ID), zap.Error(err))
		}
	}
	if s.cache != nil {
		s.cache.CacheTransactionView(ctx, models.NewTransactionView(tx, account))
	}
	if s.publisher != nil {
		err := s.publisher.Publish(ctx, events.TransactionEventsStream, events.TransactionCreated, events.TransactionCreatedEvent{
			AccountNumber: account.Number,
			Transaction:   *tx,
		})
		if err != nil {
			log.Warn("failed to publish transaction.created event", zap.String("transaction_id", tx.ID), zap.Error(err))
		}
	}
}

// reject logs and counts a failed create. Business errors pass through
// unchanged; anything else is wrapped with msg.
func (s *TransactionCommandService) reject(log *zap.Logger, err error, msg string) error {
	var be *models.BusinessError
	if errors.As(err, &be) {
		s.recorder.TransactionRejected(be.Code)
		log.Info("transaction rejected", zap.String("reason", be.Code))
		return err
	}

	if errors.Is(err, models.ErrRiskUnavailable) {
		s.recorder.TransactionRejected(models.ErrRiskUnavailable.Error())
	} else {
		s.recorder.TransactionRejected("error")
	}
	log.Error("transaction failed", zap.Error(err))
	if msg == "" {
		return err
	}
	return fmt.Errorf("%s: %w", msg, err)
}
