// Package ledger tracks per-wallet asset balances.
//
// Balances move only through recorded adjustments: a credit or debit is
// applied to the balance and written as a transaction in the same step, so
// the transaction history always explains the current balance.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/tapbridge/tapbridge/internal/pagination"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrInvalidAmount       = errors.New("invalid amount")
)

// Adjustment types recorded on transactions.
const (
	TypeCredit = "credit"
	TypeDebit  = "debit"
)

// Balance is one wallet's holding of one asset.
type Balance struct {
	WalletID  string    `json:"wallet_id"`
	AssetID   string    `json:"asset_id"`
	Balance   int64     `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Transaction is one recorded balance adjustment.
type Transaction struct {
	ID          string    `json:"id"`
	WalletID    string    `json:"wallet_id"`
	AssetID     string    `json:"asset_id"`
	Type        string    `json:"type"`
	Amount      int64     `json:"amount"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store persists balances and their adjustment history.
type Store interface {
	// GetBalances returns every asset balance held by the wallet.
	GetBalances(ctx context.Context, walletID string) ([]Balance, error)

	// GetBalance returns one asset's balance, or ErrWalletNotFound when the
	// wallet has never held the asset.
	GetBalance(ctx context.Context, walletID, assetID string) (*Balance, error)

	// RecordAdjustment applies delta to the balance and records the matching
	// transaction atomically. A positive delta credits, creating the balance
	// row if needed; a negative delta debits and fails with
	// ErrInsufficientBalance rather than going below zero. A zero delta is
	// ErrInvalidAmount.
	RecordAdjustment(ctx context.Context, walletID, assetID string, delta int64, description string) (*Transaction, error)

	// ListTransactions returns the wallet's transactions newest first,
	// starting strictly after the cursor position when before is non-nil.
	ListTransactions(ctx context.Context, walletID string, limit int, before *pagination.Cursor) ([]*Transaction, error)
}

func adjustmentType(delta int64) string {
	if delta < 0 {
		return TypeDebit
	}
	return TypeCredit
}
