package query

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/eaglebank/transactions-svc/internal/broadcast"
	"github.com/eaglebank/transactions-svc/shared/cqrs"
	"github.com/eaglebank/transactions-svc/shared/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockAccounts struct {
	accounts map[string]*models.Account
	err      error
}

func (m *mockAccounts) FindByNumber(ctx context.Context, number string) (*models.Account, error) {
	if m.err != nil {
		return nil, m.err
	}
	if a, ok := m.accounts[number]; ok {
		return a, nil
	}
	return nil, models.ErrAccountNotFound
}

type memReader struct {
	transactions []models.Transaction
	views        map[string]*models.TransactionView
	findByIDs    int
}

func (m *memReader) FindByAccountOrderByTimestampDesc(ctx context.Context, accountID string) ([]models.Transaction, error) {
	var out []models.Transaction
	for _, tx := range m.transactions {
		if tx.AccountID == accountID {
			out = append(out, tx)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (m *memReader) FindByID(ctx context.Context, id string) (*models.Transaction, error) {
	m.findByIDs++
	for _, tx := range m.transactions {
		if tx.ID == id {
			tx := tx
			return &tx, nil
		}
	}
	return nil, models.ErrTransactionNotFound
}

func (m *memReader) CachedView(ctx context.Context, id, accountNumber string) (*models.TransactionView, bool) {
	v, ok := m.views[accountNumber+":"+id]
	return v, ok
}

func (m *memReader) CacheTransactionView(ctx context.Context, view *models.TransactionView) {
	m.views[view.AccountNumber+":"+view.ID] = view
}

func newTestService() (*TransactionQueryService, *memReader, *broadcast.Broadcaster) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	reader := &memReader{
		views: map[string]*models.TransactionView{},
		transactions: []models.Transaction{
			{ID: "t1", AccountID: "acc-1", Type: "DEBIT", Amount: decimal.NewFromInt(10), Timestamp: base, Status: "OK"},
			{ID: "t3", AccountID: "acc-1", Type: "CREDIT", Amount: decimal.NewFromInt(30), Timestamp: base.Add(2 * time.Minute), Status: "OK"},
			{ID: "t2", AccountID: "acc-1", Type: "DEBIT", Amount: decimal.NewFromInt(20), Timestamp: base.Add(time.Minute), Status: "OK"},
			{ID: "t9", AccountID: "acc-2", Type: "DEBIT", Amount: decimal.NewFromInt(90), Timestamp: base, Status: "OK"},
		},
	}
	accounts := &mockAccounts{accounts: map[string]*models.Account{
		"001-0001": {ID: "acc-1", Number: "001-0001", Currency: "PEN"},
		"001-0002": {ID: "acc-2", Number: "001-0002", Currency: "USD"},
	}}
	b := broadcast.New(8, nil, nil)
	return NewTransactionQueryService(reader, accounts, b, nil), reader, b
}

func TestListTransactions(t *testing.T) {
	svc, _, b := newTestService()
	defer b.Close()

	txs, err := svc.ListTransactions(context.Background(), cqrs.ListTransactionsQuery{AccountNumber: "001-0001"})
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, []string{"t3", "t2", "t1"}, []string{txs[0].ID, txs[1].ID, txs[2].ID})
	for i := 1; i < len(txs); i++ {
		assert.True(t, txs[i-1].Timestamp.After(txs[i].Timestamp))
	}

	_, err = svc.ListTransactions(context.Background(), cqrs.ListTransactionsQuery{AccountNumber: "nope"})
	assert.ErrorIs(t, err, models.ErrAccountNotFound)
}

func TestListTransactions_StoreFailure(t *testing.T) {
	svc := NewTransactionQueryService(&memReader{}, &mockAccounts{err: errors.New("mongo down")}, nil, nil)

	_, err := svc.ListTransactions(context.Background(), cqrs.ListTransactionsQuery{AccountNumber: "001-0001"})
	require.Error(t, err)
	assert.False(t, models.IsBusinessError(err))
}

func TestGetTransaction(t *testing.T) {
	svc, reader, b := newTestService()
	defer b.Close()
	ctx := context.Background()

	view, err := svc.GetTransaction(ctx, cqrs.GetTransactionQuery{TransactionID: "t2", AccountNumber: "001-0001"})
	require.NoError(t, err)
	assert.Equal(t, "PEN", view.Currency)
	assert.Equal(t, 1, reader.findByIDs)

	// second read is served by the cache
	_, err = svc.GetTransaction(ctx, cqrs.GetTransactionQuery{TransactionID: "t2", AccountNumber: "001-0001"})
	require.NoError(t, err)
	assert.Equal(t, 1, reader.findByIDs)

	_, err = svc.GetTransaction(ctx, cqrs.GetTransactionQuery{TransactionID: "t9", AccountNumber: "001-0001"})
	assert.ErrorIs(t, err, models.ErrTransactionNotFound)

	_, err = svc.GetTransaction(ctx, cqrs.GetTransactionQuery{TransactionID: "zz", AccountNumber: "001-0001"})
	assert.ErrorIs(t, err, models.ErrTransactionNotFound)
}

func TestStream(t *testing.T) {
	svc, _, b := newTestService()
	defer b.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, b.Publish(models.Transaction{ID: "before"}))
	stream := svc.Stream(ctx)
	require.NoError(t, b.Publish(models.Transaction{ID: "after"}))

	select {
	case tx := <-stream:
		assert.Equal(t, "after", tx.ID)
	case <-time.After(time.Second):
		t.Fatal("no transaction on stream")
	}
}
