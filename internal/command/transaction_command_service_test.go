package command

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/eaglebank/transactions-svc/internal/broadcast"
	"github.com/eaglebank/transactions-svc/shared/correlation"
	"github.com/eaglebank/transactions-svc/shared/cqrs"
	"github.com/eaglebank/transactions-svc/shared/events"
	"github.com/eaglebank/transactions-svc/shared/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// ---- in-memory collaborators ----

type memAccounts struct {
	mu       sync.Mutex
	accounts map[string]models.Account
	saves    int
}

func newMemAccounts(accounts ...models.Account) *memAccounts {
	m := &memAccounts{accounts: map[string]models.Account{}}
	for _, a := range accounts {
		m.accounts[a.Number] = a
	}
	return m
}

func (m *memAccounts) FindByNumber(ctx context.Context, number string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[number]
	if !ok {
		return nil, models.ErrAccountNotFound
	}
	return &a, nil
}

func (m *memAccounts) Save(ctx context.Context, account *models.Account) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current := m.accounts[account.Number]
	if current.Version != account.Version {
		return nil, models.ErrConcurrentUpdate
	}
	saved := *account
	saved.Version++
	m.accounts[account.Number] = saved
	m.saves++
	return &saved, nil
}

func (m *memAccounts) balance(number string) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts[number].Balance
}

// snapshotTransactor restores the account store when the unit of work fails.
// Units of work are serialised so a restore never undoes another commit.
type snapshotTransactor struct {
	accounts *memAccounts
	mu       *sync.Mutex
}

func (s snapshotTransactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts.mu.Lock()
	snapshot := make(map[string]models.Account, len(s.accounts.accounts))
	for k, v := range s.accounts.accounts {
		snapshot[k] = v
	}
	s.accounts.mu.Unlock()

	if err := fn(ctx); err != nil {
		s.accounts.mu.Lock()
		s.accounts.accounts = snapshot
		s.accounts.mu.Unlock()
		return err
	}
	return nil
}

type memTransactions struct {
	mu    sync.Mutex
	saved []models.Transaction
	err   error
}

func (m *memTransactions) Save(ctx context.Context, tx *models.Transaction) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	saved := *tx
	saved.ID = fmt.Sprintf("tx-%d", len(m.saved)+1)
	m.saved = append(m.saved, saved)
	return &saved, nil
}

type stubRisk struct {
	mu      sync.Mutex
	allowed bool
	err     error
	calls   int
	corrID  string
}

func (s *stubRisk) IsAllowed(ctx context.Context, currency, txType string, amount decimal.Decimal) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.corrID = correlation.FromContext(ctx)
	return s.allowed, s.err
}

type recordingPublisher struct {
	events []events.TransactionCreatedEvent
	err    error
}

func (r *recordingPublisher) Publish(ctx context.Context, stream, eventType string, data any) error {
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, data.(events.TransactionCreatedEvent))
	return nil
}

type recordingCache struct {
	views []*models.TransactionView
}

func (r *recordingCache) CacheTransactionView(ctx context.Context, view *models.TransactionView) {
	r.views = append(r.views, view)
}

type failingBroadcaster struct{}

func (failingBroadcaster) Publish(models.Transaction) error { return broadcast.ErrClosed }

// ---- fixtures ----

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func anaAccount() models.Account {
	return models.Account{
		ID: "acc-1", Number: "001-0001", HolderName: "Ana Peru", Currency: "PEN",
		Balance: decimal.NewFromInt(5000),
	}
}

type fixture struct {
	accounts     *memAccounts
	transactions *memTransactions
	risk         *stubRisk
	broadcaster  *broadcast.Broadcaster
	publisher    *recordingPublisher
	cache        *recordingCache
	service      *TransactionCommandService
}

func newFixture(t *testing.T, logger *zap.Logger) *fixture {
	t.Helper()
	f := &fixture{
		accounts:     newMemAccounts(anaAccount()),
		transactions: &memTransactions{},
		risk:         &stubRisk{allowed: true},
		broadcaster:  broadcast.New(16, nil, nil),
		publisher:    &recordingPublisher{},
		cache:        &recordingCache{},
	}
	t.Cleanup(f.broadcaster.Close)
	f.service = NewTransactionCommandService(Dependencies{
		Accounts:     f.accounts,
		Transactions: f.transactions,
		Risk:         f.risk,
		Transactor:   snapshotTransactor{accounts: f.accounts, mu: &sync.Mutex{}},
		Broadcaster:  f.broadcaster,
		Publisher:    f.publisher,
		Cache:        f.cache,
		Logger:       logger,
		Now:          func() time.Time { return fixedNow },
	})
	return f
}

func debit(amount int64) cqrs.CreateTransactionCommand {
	return cqrs.CreateTransactionCommand{AccountNumber: "001-0001", Type: "debit", Amount: decimal.NewFromInt(amount)}
}

// ---- tests ----

func TestCreateTransaction_Debit(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream := f.broadcaster.Subscribe(ctx)

	tx, err := f.service.CreateTransaction(ctx, debit(100))
	require.NoError(t, err)

	assert.Equal(t, "DEBIT", tx.Type)
	assert.Equal(t, models.TransactionStatusOK, tx.Status)
	assert.True(t, tx.Amount.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, "acc-1", tx.AccountID)
	assert.Equal(t, fixedNow, tx.Timestamp)
	assert.True(t, f.accounts.balance("001-0001").Equal(decimal.NewFromInt(4900)))

	select {
	case got := <-stream:
		assert.Equal(t, tx.ID, got.ID)
	case <-time.After(time.Second):
		t.Fatal("transaction not broadcast")
	}
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, "001-0001", f.publisher.events[0].AccountNumber)
	require.Len(t, f.cache.views, 1)
	assert.Equal(t, "PEN", f.cache.views[0].Currency)
}

func TestCreateTransaction_Credit(t *testing.T) {
	f := newFixture(t, nil)

	tx, err := f.service.CreateTransaction(context.Background(), cqrs.CreateTransactionCommand{
		AccountNumber: "001-0001", Type: "Credit", Amount: decimal.RequireFromString("250.75"),
	})
	require.NoError(t, err)
	assert.Equal(t, "CREDIT", tx.Type)
	assert.True(t, f.accounts.balance("001-0001").Equal(decimal.RequireFromString("5250.75")))
}

func TestCreateTransaction_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		cmd       cqrs.CreateTransactionCommand
		allowed   bool
		riskErr   error
		wantErr   error
		riskCalls int
	}{
		{
			name:      "unknown account",
			cmd:       cqrs.CreateTransactionCommand{AccountNumber: "999", Type: "DEBIT", Amount: decimal.NewFromInt(1)},
			allowed:   true,
			wantErr:   models.ErrAccountNotFound,
			riskCalls: 0,
		},
		{
			name:      "risk rejected",
			cmd:       debit(100),
			allowed:   false,
			wantErr:   models.ErrRiskRejected,
			riskCalls: 1,
		},
		{
			name:      "risk checked before funds",
			cmd:       debit(9000),
			allowed:   false,
			wantErr:   models.ErrRiskRejected,
			riskCalls: 1,
		},
		{
			name:      "insufficient funds",
			cmd:       debit(5001),
			allowed:   true,
			wantErr:   models.ErrInsufficientFunds,
			riskCalls: 1,
		},
		{
			name:      "risk unavailable is never an allow",
			cmd:       debit(100),
			allowed:   true,
			riskErr:   errors.New("both paths down"),
			wantErr:   models.ErrRiskUnavailable,
			riskCalls: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.risk.allowed = tt.allowed
			f.risk.err = tt.riskErr

			tx, err := f.service.CreateTransaction(context.Background(), tt.cmd)
			assert.Nil(t, tx)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.riskCalls, f.risk.calls)

			assert.True(t, f.accounts.balance("001-0001").Equal(decimal.NewFromInt(5000)))
			assert.Zero(t, f.accounts.saves)
			assert.Empty(t, f.transactions.saved)
			assert.Empty(t, f.publisher.events)
		})
	}
}

func TestCreateTransaction_ExactBalanceDebit(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.service.CreateTransaction(context.Background(), debit(5000))
	require.NoError(t, err)
	assert.True(t, f.accounts.balance("001-0001").IsZero())
}

func TestCreateTransaction_NonPositiveAmount(t *testing.T) {
	for _, amount := range []int64{0, -100} {
		f := newFixture(t, nil)

		_, err := f.service.CreateTransaction(context.Background(), debit(amount))
		require.ErrorIs(t, err, models.ErrInvalidTransaction)
		assert.Zero(t, f.risk.calls)
		assert.Empty(t, f.transactions.saved)
		assert.True(t, f.accounts.balance("001-0001").Equal(decimal.NewFromInt(5000)))
	}
}

func TestCreateTransaction_UnknownTypeIsRejected(t *testing.T) {
	for _, txType := range []string{"REFUND", "debt", "", "  "} {
		t.Run(txType, func(t *testing.T) {
			f := newFixture(t, nil)

			_, err := f.service.CreateTransaction(context.Background(), cqrs.CreateTransactionCommand{
				AccountNumber: "001-0001", Type: txType, Amount: decimal.NewFromInt(100),
			})
			require.ErrorIs(t, err, models.ErrInvalidTransaction)
			assert.True(t, models.IsBusinessError(err))
			assert.Zero(t, f.risk.calls)
			assert.Empty(t, f.transactions.saved)
			assert.True(t, f.accounts.balance("001-0001").Equal(decimal.NewFromInt(5000)))
		})
	}
}

func TestCreateTransaction_TransactionSaveFailureRollsBackAccount(t *testing.T) {
	f := newFixture(t, nil)
	f.transactions.err = errors.New("disk full")

	_, err := f.service.CreateTransaction(context.Background(), debit(100))
	require.Error(t, err)
	assert.False(t, models.IsBusinessError(err))
	assert.True(t, f.accounts.balance("001-0001").Equal(decimal.NewFromInt(5000)))
	assert.Empty(t, f.publisher.events)
}

func TestCreateTransaction_StaleVersionIsConcurrentUpdate(t *testing.T) {
	f := newFixture(t, nil)
	stale := &staleAccounts{memAccounts: f.accounts}
	f.service.accounts = stale

	_, err := f.service.CreateTransaction(context.Background(), debit(100))
	assert.ErrorIs(t, err, models.ErrConcurrentUpdate)
	assert.True(t, f.accounts.balance("001-0001").Equal(decimal.NewFromInt(5000)))
}

// staleAccounts simulates a concurrent writer committing between read and save.
type staleAccounts struct {
	*memAccounts
}

func (s *staleAccounts) FindByNumber(ctx context.Context, number string) (*models.Account, error) {
	a, err := s.memAccounts.FindByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	s.memAccounts.mu.Lock()
	bumped := s.memAccounts.accounts[number]
	bumped.Version++
	s.memAccounts.accounts[number] = bumped
	s.memAccounts.mu.Unlock()
	return a, nil
}

func TestCreateTransaction_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	f := newFixture(t, nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.service.CreateTransaction(context.Background(), debit(1000)); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	final := f.accounts.balance("001-0001")
	assert.False(t, final.IsNegative())
	assert.True(t, final.Equal(decimal.NewFromInt(int64(5000-1000*succeeded))))
	assert.Len(t, f.transactions.saved, succeeded)
}

func TestCreateTransaction_BestEffortSideEffects(t *testing.T) {
	f := newFixture(t, nil)
	f.service.broadcaster = failingBroadcaster{}
	f.publisher.err = errors.New("redis down")

	tx, err := f.service.CreateTransaction(context.Background(), debit(100))
	require.NoError(t, err)
	assert.NotEmpty(t, tx.ID)
	assert.Len(t, f.cache.views, 1)
}

func TestCreateTransaction_LogsCarryCorrelationID(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	f := newFixture(t, zap.New(core))

	ctx := correlation.WithID(context.Background(), "req-42")
	_, err := f.service.CreateTransaction(ctx, debit(100))
	require.NoError(t, err)

	assert.Equal(t, "req-42", f.risk.corrID)
	created := logs.FilterMessage("tx_created").All()
	require.Len(t, created, 1)
	for _, entry := range logs.All() {
		assert.Equal(t, "req-42", entry.ContextMap()[correlation.LogField], entry.Message)
	}
}
