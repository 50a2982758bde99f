package ports

import (
	"context"
	"time"

	"chainremit/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FeeQuote is the fee breakdown for a requested amount. GrossAmount is what
// the funding instrument will be charged.
type FeeQuote struct {
	SettlementFee int64
	PlatformFee   int64
	TotalFees     int64
	GrossAmount   int64
}

// FeeCalculator computes settlement-network and platform fees. Both legs of
// a transfer use the same calculator so quote-time and settlement-time
// values cannot drift.
type FeeCalculator interface {
	SettlementFee(network domain.SettlementNetwork, amount int64) (int64, error)
	PlatformFee(amount int64) (int64, error)
	Quote(network domain.SettlementNetwork, amount int64) (FeeQuote, error)
}

// CardVault encrypts, validates, and masks stored card data.
type CardVault interface {
	ValidateNumber(number string) bool
	DetectType(number string) domain.CardType
	ValidateCvv(cvv string, cardType domain.CardType) bool
	ValidateExpiry(month, year int, asOf time.Time) bool
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
	Mask(number string) string
}

// CurrencyConverter converts between display currency and the settlement
// currency using cached external rates.
type CurrencyConverter interface {
	ToSettlementCurrency(ctx context.Context, amount int64, displayCurrency string) (decimal.Decimal, error)
	FromSettlementCurrency(ctx context.Context, amount decimal.Decimal, displayCurrency string) (int64, error)
}

// --- Service Ports (Business Logic) ---

// TransferService orchestrates transfers, deposits, and withdrawals.
type TransferService interface {
	Transfer(ctx context.Context, req TransferRequest) (*domain.Transaction, error)
	Deposit(ctx context.Context, req DepositRequest) (*domain.Transaction, error)
	Withdraw(ctx context.Context, req WithdrawRequest) (*domain.Transaction, error)
	Cancel(ctx context.Context, userID, transactionID uuid.UUID) (*domain.Transaction, error)
	Get(ctx context.Context, userID, transactionID uuid.UUID) (*domain.Transaction, error)
	List(ctx context.Context, params TransactionListParams) ([]domain.Transaction, int64, error)
}

// TransferRequest holds validated input for a card-funded on-chain transfer.
// ExpectedTotalFees, when set, is the fee total the client was quoted; the
// transfer is rejected before any money moves if it no longer matches.
type TransferRequest struct {
	UserID            uuid.UUID
	RecipientRef      string
	Amount            int64
	Currency          string
	Network           domain.SettlementNetwork
	ExpectedTotalFees *int64
}

// DepositRequest holds validated input for a card-funded balance deposit.
type DepositRequest struct {
	UserID   uuid.UUID
	Amount   int64
	Currency string
}

// WithdrawRequest holds validated input for a balance withdrawal to a
// verified bank account.
type WithdrawRequest struct {
	UserID        uuid.UUID
	Amount        int64
	Currency      string
	AccountNumber string
	BankCode      string
}

// CardService manages the linked-card lifecycle.
type CardService interface {
	AddCard(ctx context.Context, req AddCardRequest) (*domain.LinkedCard, error)
	ListCards(ctx context.Context, userID uuid.UUID) ([]domain.LinkedCard, error)
	RemoveCard(ctx context.Context, userID, cardID uuid.UUID) error
	SetDefaultCard(ctx context.Context, userID, cardID uuid.UUID) error
}

// AddCardRequest holds validated input for linking a new card.
type AddCardRequest struct {
	UserID      uuid.UUID
	Number      string
	Cvv         string
	ExpiryMonth int
	ExpiryYear  int
	MakeDefault bool
}
