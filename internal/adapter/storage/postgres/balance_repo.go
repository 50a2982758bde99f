package postgres

import (
	"context"
	"errors"
	"fmt"

	"chainremit/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// BalanceRepo implements ports.BalanceRepository.
type BalanceRepo struct {
	pool Pool
}

// NewBalanceRepo creates a new BalanceRepo.
func NewBalanceRepo(pool Pool) *BalanceRepo {
	return &BalanceRepo{pool: pool}
}

// Create inserts a new balance row.
func (r *BalanceRepo) Create(ctx context.Context, b *domain.Balance) error {
	query := `INSERT INTO balances (id, user_id, currency, amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.pool.Exec(ctx, query,
		b.ID, b.UserID, b.Currency, b.Amount, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert balance: %w", err)
	}
	return nil
}

// Get fetches a balance by user and currency (non-locking read).
func (r *BalanceRepo) Get(ctx context.Context, userID uuid.UUID, currency string) (*domain.Balance, error) {
	query := `SELECT id, user_id, currency, amount, created_at, updated_at
		FROM balances WHERE user_id = $1 AND currency = $2`

	return scanBalance(r.pool.QueryRow(ctx, query, userID, currency))
}

// GetForUpdate fetches a balance with pessimistic locking.
// This MUST be called within a transaction.
func (r *BalanceRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID, currency string) (*domain.Balance, error) {
	query := `SELECT id, user_id, currency, amount, created_at, updated_at
		FROM balances WHERE user_id = $1 AND currency = $2 FOR UPDATE`

	return scanBalance(tx.QueryRow(ctx, query, userID, currency))
}

// Credit adds to a balance within a transaction, under the row lock taken
// by GetForUpdate.
func (r *BalanceRepo) Credit(ctx context.Context, tx pgx.Tx, balanceID uuid.UUID, amount int64) error {
	query := `UPDATE balances SET amount = amount + $1, updated_at = NOW() WHERE id = $2`

	tag, err := tx.Exec(ctx, query, amount, balanceID)
	if err != nil {
		return fmt.Errorf("credit balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("balance not found: %s", balanceID)
	}
	return nil
}

// Debit subtracts from a balance within a transaction. The check constraint
// on the amount column rejects a debit below zero even if a caller skipped
// the locked read.
func (r *BalanceRepo) Debit(ctx context.Context, tx pgx.Tx, balanceID uuid.UUID, amount int64) error {
	query := `UPDATE balances SET amount = amount - $1, updated_at = NOW() WHERE id = $2`

	tag, err := tx.Exec(ctx, query, amount, balanceID)
	if err != nil {
		return fmt.Errorf("debit balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("balance not found: %s", balanceID)
	}
	return nil
}

func scanBalance(row pgx.Row) (*domain.Balance, error) {
	b := &domain.Balance{}
	err := row.Scan(&b.ID, &b.UserID, &b.Currency, &b.Amount, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan balance: %w", err)
	}
	return b, nil
}
