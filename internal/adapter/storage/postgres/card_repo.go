package postgres

import (
	"context"
	"errors"
	"fmt"

	"chainremit/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CardRepo implements ports.CardRepository.
type CardRepo struct {
	pool Pool
}

// NewCardRepo creates a new CardRepo.
func NewCardRepo(pool Pool) *CardRepo {
	return &CardRepo{pool: pool}
}

const cardColumns = `id, user_id, encrypted_number, masked_number, card_type,
	expiry_month, expiry_year, encrypted_cvv, is_default, is_active, created_at, updated_at`

// Create inserts a new linked card within a database transaction.
func (r *CardRepo) Create(ctx context.Context, tx pgx.Tx, c *domain.LinkedCard) error {
	query := `INSERT INTO linked_cards (` + cardColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := exec(r.pool, tx).Exec(ctx, query,
		c.ID, c.UserID, c.EncryptedNumber, c.MaskedNumber, c.CardType,
		c.ExpiryMonth, c.ExpiryYear, c.EncryptedCvv, c.IsDefault, c.IsActive, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert linked card: %w", err)
	}
	return nil
}

// GetByID fetches a card by UUID, active or not.
func (r *CardRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.LinkedCard, error) {
	query := `SELECT ` + cardColumns + ` FROM linked_cards WHERE id = $1`
	return scanCard(r.pool.QueryRow(ctx, query, id))
}

// ListActive fetches a user's active cards, oldest first.
func (r *CardRepo) ListActive(ctx context.Context, userID uuid.UUID) ([]domain.LinkedCard, error) {
	query := `SELECT ` + cardColumns + `
		FROM linked_cards WHERE user_id = $1 AND is_active = TRUE ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list active cards: %w", err)
	}
	defer rows.Close()

	var cards []domain.LinkedCard
	for rows.Next() {
		c := domain.LinkedCard{}
		if err := scanCardFields(rows, &c); err != nil {
			return nil, fmt.Errorf("scan card row: %w", err)
		}
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate card rows: %w", err)
	}
	return cards, nil
}

// ListActiveForUpdate fetches a user's active cards with their rows
// locked, so concurrent card inserts for the same user serialize and the
// card cap holds.
func (r *CardRepo) ListActiveForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) ([]domain.LinkedCard, error) {
	query := `SELECT ` + cardColumns + `
		FROM linked_cards WHERE user_id = $1 AND is_active = TRUE ORDER BY created_at ASC FOR UPDATE`

	rows, err := exec(r.pool, tx).Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list active cards for update: %w", err)
	}
	defer rows.Close()

	var cards []domain.LinkedCard
	for rows.Next() {
		c := domain.LinkedCard{}
		if err := scanCardFields(rows, &c); err != nil {
			return nil, fmt.Errorf("scan card row: %w", err)
		}
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate card rows: %w", err)
	}
	return cards, nil
}

// GetDefault fetches the user's default active card.
func (r *CardRepo) GetDefault(ctx context.Context, userID uuid.UUID) (*domain.LinkedCard, error) {
	query := `SELECT ` + cardColumns + `
		FROM linked_cards WHERE user_id = $1 AND is_default = TRUE AND is_active = TRUE`

	return scanCard(r.pool.QueryRow(ctx, query, userID))
}

// Deactivate soft-deletes a card and drops its default flag.
func (r *CardRepo) Deactivate(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	query := `UPDATE linked_cards SET is_active = FALSE, is_default = FALSE, updated_at = NOW() WHERE id = $1`

	tag, err := exec(r.pool, tx).Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("deactivate card: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("card not found: %s", id)
	}
	return nil
}

// SetDefault flags one card as the user's default. Callers clear the
// previous default in the same database transaction.
func (r *CardRepo) SetDefault(ctx context.Context, tx pgx.Tx, userID, cardID uuid.UUID) error {
	query := `UPDATE linked_cards SET is_default = TRUE, updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND is_active = TRUE`

	tag, err := exec(r.pool, tx).Exec(ctx, query, cardID, userID)
	if err != nil {
		return fmt.Errorf("set default card: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("card not found: %s", cardID)
	}
	return nil
}

// ClearDefault removes the default flag from all of a user's cards.
func (r *CardRepo) ClearDefault(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error {
	query := `UPDATE linked_cards SET is_default = FALSE, updated_at = NOW()
		WHERE user_id = $1 AND is_default = TRUE`

	if _, err := exec(r.pool, tx).Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("clear default card: %w", err)
	}
	return nil
}

func scanCard(row pgx.Row) (*domain.LinkedCard, error) {
	c := &domain.LinkedCard{}
	if err := scanCardFields(row, c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan card: %w", err)
	}
	return c, nil
}

func scanCardFields(row pgx.Row, c *domain.LinkedCard) error {
	return row.Scan(
		&c.ID, &c.UserID, &c.EncryptedNumber, &c.MaskedNumber, &c.CardType,
		&c.ExpiryMonth, &c.ExpiryYear, &c.EncryptedCvv, &c.IsDefault, &c.IsActive, &c.CreatedAt, &c.UpdatedAt,
	)
}
