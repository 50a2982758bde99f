package domain

import (
	"time"

	"github.com/google/uuid"
)

// CardType identifies the card issuer network.
type CardType string

const (
	CardTypeVisa       CardType = "VISA"
	CardTypeMastercard CardType = "MASTERCARD"
	CardTypeAmex       CardType = "AMEX"
	CardTypeDiscover   CardType = "DISCOVER"
	CardTypeUnknown    CardType = "UNKNOWN"
)

// MaxActiveCards is the per-user limit on active linked cards.
const MaxActiveCards = 3

// LinkedCard is a stored payment instrument. Number and CVV are held only
// in encrypted form; MaskedNumber is the only displayable representation.
type LinkedCard struct {
	ID              uuid.UUID `json:"id"`
	UserID          uuid.UUID `json:"user_id"`
	EncryptedNumber string    `json:"-"`
	MaskedNumber    string    `json:"masked_number"`
	CardType        CardType  `json:"card_type"`
	ExpiryMonth     int       `json:"expiry_month"`
	ExpiryYear      int       `json:"expiry_year"`
	EncryptedCvv    string    `json:"-"`
	IsDefault       bool      `json:"is_default"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
