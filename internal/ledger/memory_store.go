package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/tapbridge/tapbridge/internal/idgen"
	"github.com/tapbridge/tapbridge/internal/pagination"
)

// MemoryStore is an in-memory ledger store for demo/development mode.
type MemoryStore struct {
	balances     map[string]map[string]*Balance
	transactions []*Transaction
	mu           sync.RWMutex
}

// NewMemoryStore creates a new in-memory ledger store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances: make(map[string]map[string]*Balance),
	}
}

func (m *MemoryStore) GetBalances(ctx context.Context, walletID string) ([]Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wallet := m.balances[walletID]
	result := make([]Balance, 0, len(wallet))
	for _, bal := range wallet {
		result = append(result, *bal)
	}
	return result, nil
}

func (m *MemoryStore) GetBalance(ctx context.Context, walletID, assetID string) (*Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if bal, ok := m.balances[walletID][assetID]; ok {
		cp := *bal
		return &cp, nil
	}
	return nil, ErrWalletNotFound
}

func (m *MemoryStore) RecordAdjustment(ctx context.Context, walletID, assetID string, delta int64, description string) (*Transaction, error) {
	if delta == 0 {
		return nil, ErrInvalidAmount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	wallet, ok := m.balances[walletID]
	if !ok {
		wallet = make(map[string]*Balance)
		m.balances[walletID] = wallet
	}
	bal, ok := wallet[assetID]
	if !ok {
		if delta < 0 {
			return nil, ErrInsufficientBalance
		}
		bal = &Balance{WalletID: walletID, AssetID: assetID}
		wallet[assetID] = bal
	}

	if bal.Balance+delta < 0 {
		return nil, ErrInsufficientBalance
	}
	bal.Balance += delta
	bal.UpdatedAt = time.Now()

	amount := delta
	if amount < 0 {
		amount = -amount
	}
	txn := &Transaction{
		ID:          idgen.New(),
		WalletID:    walletID,
		AssetID:     assetID,
		Type:        adjustmentType(delta),
		Amount:      amount,
		Description: description,
		CreatedAt:   time.Now(),
	}
	m.transactions = append(m.transactions, txn)

	cp := *txn
	return &cp, nil
}

func (m *MemoryStore) ListTransactions(ctx context.Context, walletID string, limit int, before *pagination.Cursor) ([]*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Transaction
	for i := len(m.transactions) - 1; i >= 0 && len(result) < limit; i-- {
		txn := m.transactions[i]
		if txn.WalletID != walletID {
			continue
		}
		if before != nil && !olderThan(txn, before) {
			continue
		}
		cp := *txn
		result = append(result, &cp)
	}
	return result, nil
}

// olderThan reports whether txn sorts strictly after the cursor position
// in newest-first order, with the ID as tiebreaker.
func olderThan(txn *Transaction, c *pagination.Cursor) bool {
	if txn.CreatedAt.Equal(c.CreatedAt) {
		return txn.ID < c.ID
	}
	return txn.CreatedAt.Before(c.CreatedAt)
}
