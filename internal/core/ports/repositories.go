package ports

import (
	"context"

	"chainremit/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TransactionRepository defines persistence operations for transactions.
// Methods accepting pgx.Tx run inside a database transaction so the ledger
// write and any balance mutation commit atomically.
type TransactionRepository interface {
	Create(ctx context.Context, tx pgx.Tx, transaction *domain.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	// UpdateOutcome writes the terminal (or reconciliation-flagged) state of
	// a transaction: status, external references, failure reason.
	UpdateOutcome(ctx context.Context, tx pgx.Tx, transaction *domain.Transaction) error
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus) error
	List(ctx context.Context, params TransactionListParams) ([]domain.Transaction, int64, error)
	// ListNeedingReconciliation returns transactions flagged for manual or
	// automated reconciliation, oldest first.
	ListNeedingReconciliation(ctx context.Context, limit int) ([]domain.Transaction, error)
	// CountRefundsFor returns the number of compensating refund records
	// linked to the given original transaction.
	CountRefundsFor(ctx context.Context, originalTxID uuid.UUID) (int64, error)
}

// TransactionListParams holds filter + pagination for listing transactions.
type TransactionListParams struct {
	UserID   uuid.UUID
	Status   *domain.TransactionStatus
	Type     *domain.TransactionType
	Page     int
	PageSize int
}

// BalanceRepository defines persistence operations for user balances.
// GetForUpdate acquires a row-level lock; Credit and Debit must be called
// with the lock held, inside the same database transaction.
type BalanceRepository interface {
	Create(ctx context.Context, balance *domain.Balance) error
	Get(ctx context.Context, userID uuid.UUID, currency string) (*domain.Balance, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID, currency string) (*domain.Balance, error)
	Credit(ctx context.Context, tx pgx.Tx, balanceID uuid.UUID, amount int64) error
	Debit(ctx context.Context, tx pgx.Tx, balanceID uuid.UUID, amount int64) error
}

// CardRepository defines persistence operations for linked cards.
type CardRepository interface {
	Create(ctx context.Context, tx pgx.Tx, card *domain.LinkedCard) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.LinkedCard, error)
	ListActive(ctx context.Context, userID uuid.UUID) ([]domain.LinkedCard, error)
	// ListActiveForUpdate locks the user's active card rows so a
	// concurrent insert against the same user serializes on them. The
	// per-user card cap is enforced against this read.
	ListActiveForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) ([]domain.LinkedCard, error)
	GetDefault(ctx context.Context, userID uuid.UUID) (*domain.LinkedCard, error)
	// Deactivate soft-deletes a card and, in the same database transaction,
	// SetDefault flips the default flag so at most one active card per user
	// carries it.
	Deactivate(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
	SetDefault(ctx context.Context, tx pgx.Tx, userID, cardID uuid.UUID) error
	ClearDefault(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error
}

// RateRepository persists fetched exchange rates for audit and for serving
// requests when every live source is down.
type RateRepository interface {
	Save(ctx context.Context, rate *domain.ExchangeRate) error
	GetLatest(ctx context.Context, base, target string) (*domain.ExchangeRate, error)
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
