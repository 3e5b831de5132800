package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tapbridge/tapbridge/internal/pagination"
)

func TestRecordAdjustmentCreditCreatesBalance(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	txn, err := store.RecordAdjustment(ctx, "wallet-1", "asset-1", 100, "initial sync")
	require.NoError(t, err)
	assert.Equal(t, TypeCredit, txn.Type)
	assert.Equal(t, int64(100), txn.Amount)
	assert.NotEmpty(t, txn.ID)

	bal, err := store.GetBalance(ctx, "wallet-1", "asset-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), bal.Balance)
}

func TestRecordAdjustmentDebit(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.RecordAdjustment(ctx, "wallet-1", "asset-1", 100, "seed")
	require.NoError(t, err)

	txn, err := store.RecordAdjustment(ctx, "wallet-1", "asset-1", -60, "drain")
	require.NoError(t, err)
	assert.Equal(t, TypeDebit, txn.Type)
	assert.Equal(t, int64(60), txn.Amount)

	bal, err := store.GetBalance(ctx, "wallet-1", "asset-1")
	require.NoError(t, err)
	assert.Equal(t, int64(40), bal.Balance)
}

func TestRecordAdjustmentCannotGoNegative(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.RecordAdjustment(ctx, "wallet-1", "asset-1", 10, "seed")
	require.NoError(t, err)

	_, err = store.RecordAdjustment(ctx, "wallet-1", "asset-1", -11, "overdraw")
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	// Balance unchanged after the rejected debit.
	bal, err := store.GetBalance(ctx, "wallet-1", "asset-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), bal.Balance)
}

func TestRecordAdjustmentDebitUnknownWallet(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.RecordAdjustment(context.Background(), "ghost", "asset-1", -5, "debit")
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestRecordAdjustmentZeroDelta(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.RecordAdjustment(context.Background(), "wallet-1", "asset-1", 0, "noop")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestGetBalanceUnknown(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.GetBalance(context.Background(), "nobody", "nothing")
	assert.ErrorIs(t, err, ErrWalletNotFound)
}

func TestGetBalancesListsAllAssets(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.RecordAdjustment(ctx, "wallet-1", "asset-a", 1, "")
	require.NoError(t, err)
	_, err = store.RecordAdjustment(ctx, "wallet-1", "asset-b", 2, "")
	require.NoError(t, err)
	_, err = store.RecordAdjustment(ctx, "wallet-2", "asset-a", 3, "")
	require.NoError(t, err)

	balances, err := store.GetBalances(ctx, "wallet-1")
	require.NoError(t, err)
	assert.Len(t, balances, 2)
}

func TestListTransactionsNewestFirst(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.RecordAdjustment(ctx, "wallet-1", "asset-1", 10, "first")
	require.NoError(t, err)
	_, err = store.RecordAdjustment(ctx, "wallet-1", "asset-1", 20, "second")
	require.NoError(t, err)
	_, err = store.RecordAdjustment(ctx, "wallet-2", "asset-1", 30, "other wallet")
	require.NoError(t, err)

	txns, err := store.ListTransactions(ctx, "wallet-1", 10, nil)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, "second", txns[0].Description)
	assert.Equal(t, "first", txns[1].Description)

	txns, err = store.ListTransactions(ctx, "wallet-1", 1, nil)
	require.NoError(t, err)
	assert.Len(t, txns, 1)
}

func TestConcurrentAdjustments(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.RecordAdjustment(ctx, "wallet-1", "asset-1", 2, "concurrent")
		}()
	}
	wg.Wait()

	bal, err := store.GetBalance(ctx, "wallet-1", "asset-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), bal.Balance)
}

func TestListTransactionsCursorPagination(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := store.RecordAdjustment(ctx, "wallet-1", "asset-1", int64(i+1), "adjustment")
		require.NoError(t, err)
	}

	// First page of two, newest first.
	page, err := store.ListTransactions(ctx, "wallet-1", 2, nil)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(5), page[0].Amount)
	assert.Equal(t, int64(4), page[1].Amount)

	// Resume from the last item of the first page.
	last := page[1]
	cursor, err := pagination.Decode(pagination.Encode(last.CreatedAt, last.ID))
	require.NoError(t, err)

	page, err = store.ListTransactions(ctx, "wallet-1", 2, cursor)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(3), page[0].Amount)
	assert.Equal(t, int64(2), page[1].Amount)

	// Final page has the single remaining transaction.
	last = page[1]
	cursor, err = pagination.Decode(pagination.Encode(last.CreatedAt, last.ID))
	require.NoError(t, err)

	page, err = store.ListTransactions(ctx, "wallet-1", 2, cursor)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, int64(1), page[0].Amount)
}
