package domain

import (
	"time"

	"github.com/google/uuid"
)

// Balance is a user's internal ledger balance in minor units of one currency.
// Debits and credits happen only under a row-level lock inside a database
// transaction.
type Balance struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Currency  string    `json:"currency"`
	Amount    int64     `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
