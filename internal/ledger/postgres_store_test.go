//go:build integration

package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tapbridge/tapbridge/internal/testutil"
)

func setupPostgresStore(t *testing.T) (*PostgresStore, func()) {
	t.Helper()
	db, cleanup := testutil.PGTest(t)
	return NewPostgresStore(db), cleanup
}

func TestPostgresRecordAdjustmentRoundTrip(t *testing.T) {
	store, cleanup := setupPostgresStore(t)
	defer cleanup()
	ctx := context.Background()

	txn, err := store.RecordAdjustment(ctx, "wallet-pg", "asset-pg", 500, "seed")
	require.NoError(t, err)
	assert.Equal(t, TypeCredit, txn.Type)
	assert.False(t, txn.CreatedAt.IsZero())

	_, err = store.RecordAdjustment(ctx, "wallet-pg", "asset-pg", -200, "drain")
	require.NoError(t, err)

	bal, err := store.GetBalance(ctx, "wallet-pg", "asset-pg")
	require.NoError(t, err)
	assert.Equal(t, int64(300), bal.Balance)

	txns, err := store.ListTransactions(ctx, "wallet-pg", 10, nil)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, TypeDebit, txns[0].Type)
}

func TestPostgresDebitCannotOverdraw(t *testing.T) {
	store, cleanup := setupPostgresStore(t)
	defer cleanup()
	ctx := context.Background()

	_, err := store.RecordAdjustment(ctx, "wallet-pg", "asset-pg", 10, "seed")
	require.NoError(t, err)

	_, err = store.RecordAdjustment(ctx, "wallet-pg", "asset-pg", -11, "overdraw")
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestPostgresDebitUnknownWallet(t *testing.T) {
	store, cleanup := setupPostgresStore(t)
	defer cleanup()

	_, err := store.RecordAdjustment(context.Background(), "ghost", "asset-pg", -5, "debit")
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestPostgresGetBalancesEmpty(t *testing.T) {
	store, cleanup := setupPostgresStore(t)
	defer cleanup()

	balances, err := store.GetBalances(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, balances)
}
