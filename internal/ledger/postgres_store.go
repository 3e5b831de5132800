package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/tapbridge/tapbridge/internal/idgen"
	"github.com/tapbridge/tapbridge/internal/pagination"
)

// PostgresStore implements Store with PostgreSQL.
//
// Schema lives in migrations/; the balance CHECK constraint enforces the
// non-negative invariant even if two adjustments race.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed ledger store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) GetBalances(ctx context.Context, walletID string) ([]Balance, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT wallet_id, asset_id, balance, updated_at
		FROM asset_balances WHERE wallet_id = $1
		ORDER BY asset_id
	`, walletID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Balance
	for rows.Next() {
		var bal Balance
		if err := rows.Scan(&bal.WalletID, &bal.AssetID, &bal.Balance, &bal.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, bal)
	}
	return result, rows.Err()
}

func (p *PostgresStore) GetBalance(ctx context.Context, walletID, assetID string) (*Balance, error) {
	bal := &Balance{WalletID: walletID, AssetID: assetID}

	err := p.db.QueryRowContext(ctx, `
		SELECT balance, updated_at
		FROM asset_balances WHERE wallet_id = $1 AND asset_id = $2
	`, walletID, assetID).Scan(&bal.Balance, &bal.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return bal, nil
}

func (p *PostgresStore) RecordAdjustment(ctx context.Context, walletID, assetID string, delta int64, description string) (*Transaction, error) {
	if delta == 0 {
		return nil, ErrInvalidAmount
	}

	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if delta > 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO asset_balances (wallet_id, asset_id, balance, updated_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (wallet_id, asset_id) DO UPDATE SET
				balance    = asset_balances.balance + $3,
				updated_at = NOW()
		`, walletID, assetID, delta)
	} else {
		var result sql.Result
		result, err = tx.ExecContext(ctx, `
			UPDATE asset_balances SET
				balance    = balance + $3,
				updated_at = NOW()
			WHERE wallet_id = $1 AND asset_id = $2
		`, walletID, assetID, delta)
		if err == nil {
			rows, _ := result.RowsAffected()
			if rows == 0 {
				return nil, ErrInsufficientBalance
			}
		}
	}
	if err != nil {
		// The CHECK constraint (balance >= 0) rejects overdrawing debits.
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "check_violation" {
			return nil, ErrInsufficientBalance
		}
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}

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
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO asset_transactions (id, wallet_id, asset_id, type, amount, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING created_at
	`, txn.ID, txn.WalletID, txn.AssetID, txn.Type, txn.Amount, txn.Description).Scan(&txn.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return txn, nil
}

func (p *PostgresStore) ListTransactions(ctx context.Context, walletID string, limit int, before *pagination.Cursor) ([]*Transaction, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if before != nil {
		rows, err = p.db.QueryContext(ctx, `
			SELECT id, wallet_id, asset_id, type, amount, description, created_at
			FROM asset_transactions
			WHERE wallet_id = $1 AND (created_at, id) < ($2, $3)
			ORDER BY created_at DESC, id DESC
			LIMIT $4
		`, walletID, before.CreatedAt, before.ID, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `
			SELECT id, wallet_id, asset_id, type, amount, description, created_at
			FROM asset_transactions
			WHERE wallet_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		`, walletID, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Transaction
	for rows.Next() {
		txn := &Transaction{}
		var description sql.NullString
		if err := rows.Scan(&txn.ID, &txn.WalletID, &txn.AssetID, &txn.Type, &txn.Amount, &description, &txn.CreatedAt); err != nil {
			return nil, err
		}
		txn.Description = description.String
		result = append(result, txn)
	}
	return result, rows.Err()
}
