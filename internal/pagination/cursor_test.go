package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pageTxn mirrors the shape the transaction listing paginates over.
type pageTxn struct {
	ID        string
	Amount    int64
	CreatedAt time.Time
}

func txnAt(id string, amount int64, offset time.Duration) pageTxn {
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	return pageTxn{ID: id, Amount: amount, CreatedAt: base.Add(offset)}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	ts := time.Date(2026, 8, 30, 12, 0, 0, 123456789, time.UTC)
	id := "3f2a9c1e-5b7d-4a08-9c31-d4e6f8a0b2c4"

	encoded := Encode(ts, id)
	assert.NotEmpty(t, encoded)

	cursor, err := Decode(encoded)
	require.NoError(t, err)
	require.NotNil(t, cursor)
	assert.Equal(t, ts, cursor.CreatedAt)
	assert.Equal(t, id, cursor.ID)
}

func TestDecodeEmpty(t *testing.T) {
	cursor, err := Decode("")
	assert.NoError(t, err)
	assert.Nil(t, cursor)
}

func TestDecodeInvalid(t *testing.T) {
	_, err := Decode("not-base64!!!")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cursor")
}

func TestDecodeMalformedPayload(t *testing.T) {
	// Valid base64 but no | separator
	_, err := Decode("bm9waXBl") // "nopipe"
	assert.Error(t, err)
}

func TestComputePageNoMore(t *testing.T) {
	txns := []pageTxn{
		txnAt("txn-3", 40, 2*time.Second),
		txnAt("txn-2", 80, time.Second),
		txnAt("txn-1", 100, 0),
	}
	page, cursor, hasMore := ComputePage(txns, 5, func(txn pageTxn) (time.Time, string) {
		return txn.CreatedAt, txn.ID
	})
	assert.Len(t, page, 3)
	assert.Empty(t, cursor)
	assert.False(t, hasMore)
}

func TestComputePageHasMore(t *testing.T) {
	// Fetched with limit+1: four rows for a page of three.
	txns := []pageTxn{
		txnAt("txn-4", 25, 3*time.Second),
		txnAt("txn-3", 40, 2*time.Second),
		txnAt("txn-2", 80, time.Second),
		txnAt("txn-1", 100, 0),
	}
	page, cursor, hasMore := ComputePage(txns, 3, func(txn pageTxn) (time.Time, string) {
		return txn.CreatedAt, txn.ID
	})
	require.Len(t, page, 3)
	assert.NotEmpty(t, cursor)
	assert.True(t, hasMore)

	// The cursor marks the last kept row so the next page resumes after it.
	c, err := Decode(cursor)
	require.NoError(t, err)
	assert.Equal(t, "txn-2", c.ID)
	assert.Equal(t, page[2].CreatedAt, c.CreatedAt)
}

func TestComputePageExactLimit(t *testing.T) {
	txns := []pageTxn{
		txnAt("txn-2", 80, time.Second),
		txnAt("txn-1", 100, 0),
	}
	page, cursor, hasMore := ComputePage(txns, 2, func(txn pageTxn) (time.Time, string) {
		return txn.CreatedAt, txn.ID
	})
	assert.Len(t, page, 2)
	assert.Empty(t, cursor)
	assert.False(t, hasMore)
}
