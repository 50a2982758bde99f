package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chainremit/internal/core/domain"
	"chainremit/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

const transactionColumns = `id, user_id, type, status, amount, currency,
	settlement_fee, platform_fee, total_fees, network, recipient_ref, destination_ref,
	settlement_tx_ref, funding_ref, refund_ref, failure_reason,
	original_transaction_id, needs_reconciliation, created_at, completed_at`

// Create inserts a new transaction. A nil tx executes on the pool.
func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	query := `INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

	_, err := exec(r.pool, tx).Exec(ctx, query,
		t.ID, t.UserID, t.Type, t.Status, t.Amount, t.Currency,
		t.SettlementFee, t.PlatformFee, t.TotalFees, t.Network, t.RecipientRef, t.DestinationRef,
		t.SettlementTxRef, t.FundingRef, t.RefundRef, t.FailureReason,
		t.OriginalTransactionID, t.NeedsReconciliation, t.CreatedAt, t.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// GetByID fetches a transaction by UUID.
func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	return r.scanTransaction(r.pool.QueryRow(ctx, query, id))
}

// UpdateOutcome writes the terminal or reconciliation-flagged state: status,
// external references, failure reason, completion time.
func (r *TransactionRepo) UpdateOutcome(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	query := `UPDATE transactions SET status = $1, settlement_tx_ref = $2, funding_ref = $3,
		refund_ref = $4, failure_reason = $5, needs_reconciliation = $6, completed_at = $7
		WHERE id = $8`

	tag, err := exec(r.pool, tx).Exec(ctx, query,
		t.Status, t.SettlementTxRef, t.FundingRef,
		t.RefundRef, t.FailureReason, t.NeedsReconciliation, t.CompletedAt,
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("update transaction outcome: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction not found: %s", t.ID)
	}
	return nil
}

// UpdateStatus updates only the lifecycle status. A nil tx executes on the
// pool.
func (r *TransactionRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus) error {
	query := `UPDATE transactions SET status = $1 WHERE id = $2`

	tag, err := exec(r.pool, tx).Exec(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction not found: %s", id)
	}
	return nil
}

// List fetches a user's transactions with filtering and pagination.
func (r *TransactionRepo) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	conditions = append(conditions, fmt.Sprintf("user_id = $%d", argIdx))
	args = append(args, params.UserID)
	argIdx++

	if params.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *params.Status)
		argIdx++
	}
	if params.Type != nil {
		conditions = append(conditions, fmt.Sprintf("type = $%d", argIdx))
		args = append(args, *params.Type)
		argIdx++
	}

	where := "WHERE " + strings.Join(conditions, " AND ")

	// Count total
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM transactions %s", where)
	var total int64
	err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	// Fetch page
	offset := (params.Page - 1) * params.PageSize
	dataQuery := fmt.Sprintf(`SELECT `+transactionColumns+`
		FROM transactions %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		t := domain.Transaction{}
		if err := scanTransactionFields(rows, &t); err != nil {
			return nil, 0, fmt.Errorf("scan transaction row: %w", err)
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate transaction rows: %w", err)
	}
	return txns, total, nil
}

// ListNeedingReconciliation fetches transactions flagged after an unknown
// gateway outcome or a failed compensation, oldest first.
func (r *TransactionRepo) ListNeedingReconciliation(ctx context.Context, limit int) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM transactions WHERE needs_reconciliation = TRUE ORDER BY created_at ASC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions needing reconciliation: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		t := domain.Transaction{}
		if err := scanTransactionFields(rows, &t); err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction rows: %w", err)
	}
	return txns, nil
}

// CountRefundsFor returns how many compensating refund records point at the
// given original transaction.
func (r *TransactionRepo) CountRefundsFor(ctx context.Context, originalTxID uuid.UUID) (int64, error) {
	query := `SELECT COUNT(*) FROM transactions WHERE original_transaction_id = $1`

	var count int64
	if err := r.pool.QueryRow(ctx, query, originalTxID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count refunds: %w", err)
	}
	return count, nil
}

// scanTransaction is a helper to scan a single row into a Transaction.
func (r *TransactionRepo) scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	t := &domain.Transaction{}
	if err := scanTransactionFields(row, t); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	return t, nil
}

func scanTransactionFields(row pgx.Row, t *domain.Transaction) error {
	return row.Scan(
		&t.ID, &t.UserID, &t.Type, &t.Status, &t.Amount, &t.Currency,
		&t.SettlementFee, &t.PlatformFee, &t.TotalFees, &t.Network, &t.RecipientRef, &t.DestinationRef,
		&t.SettlementTxRef, &t.FundingRef, &t.RefundRef, &t.FailureReason,
		&t.OriginalTransactionID, &t.NeedsReconciliation, &t.CreatedAt, &t.CompletedAt,
	)
}
