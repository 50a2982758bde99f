package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType represents the kind of money movement.
type TransactionType string

const (
	TransactionTypeTransfer   TransactionType = "TRANSFER"
	TransactionTypeDeposit    TransactionType = "DEPOSIT"
	TransactionTypeWithdrawal TransactionType = "WITHDRAWAL"
	TransactionTypeCardCharge TransactionType = "CARD_CHARGE"
)

// TransactionStatus represents the lifecycle state of a transaction.
type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "PENDING"
	TransactionStatusProcessing TransactionStatus = "PROCESSING"
	TransactionStatusCompleted  TransactionStatus = "COMPLETED"
	TransactionStatusFailed     TransactionStatus = "FAILED"
	TransactionStatusCancelled  TransactionStatus = "CANCELLED"
)

// SettlementNetwork identifies the on-chain rail used to move settlement funds.
type SettlementNetwork string

const (
	NetworkStellar  SettlementNetwork = "STELLAR"
	NetworkEthereum SettlementNetwork = "ETHEREUM"
	NetworkPolygon  SettlementNetwork = "POLYGON"
)

// Networks lists every supported settlement network.
func Networks() []SettlementNetwork {
	return []SettlementNetwork{NetworkStellar, NetworkEthereum, NetworkPolygon}
}

// ValidNetwork reports whether n is a supported settlement network.
func ValidNetwork(n SettlementNetwork) bool {
	switch n {
	case NetworkStellar, NetworkEthereum, NetworkPolygon:
		return true
	}
	return false
}

// ValidType reports whether t is a known transaction type.
func ValidType(t TransactionType) bool {
	switch t {
	case TransactionTypeTransfer, TransactionTypeDeposit, TransactionTypeWithdrawal, TransactionTypeCardCharge:
		return true
	}
	return false
}

// ValidStatus reports whether s is a known transaction status.
func ValidStatus(s TransactionStatus) bool {
	switch s {
	case TransactionStatusPending, TransactionStatusProcessing, TransactionStatusCompleted,
		TransactionStatusFailed, TransactionStatusCancelled:
		return true
	}
	return false
}

// Transaction is the authoritative ledger record for a money movement.
// Amount and fees are in minor units of the display currency.
type Transaction struct {
	ID              uuid.UUID         `json:"id"`
	UserID          uuid.UUID         `json:"user_id"`
	Type            TransactionType   `json:"type"`
	Status          TransactionStatus `json:"status"`
	Amount          int64             `json:"amount"`
	Currency        string            `json:"currency"`
	SettlementFee   int64             `json:"settlement_fee"`
	PlatformFee     int64             `json:"platform_fee"`
	TotalFees       int64             `json:"total_fees"`
	Network         SettlementNetwork `json:"network,omitempty"`
	RecipientRef    string            `json:"recipient_ref,omitempty"`
	DestinationRef  string            `json:"destination_ref,omitempty"`
	SettlementTxRef *string           `json:"settlement_tx_ref,omitempty"`
	FundingRef      *string           `json:"funding_ref,omitempty"`
	RefundRef       *string           `json:"refund_ref,omitempty"`
	FailureReason   *string           `json:"failure_reason,omitempty"`

	// OriginalTransactionID links a compensating refund record to the
	// transaction whose funding charge it reverses.
	OriginalTransactionID *uuid.UUID `json:"original_transaction_id,omitempty"`
	NeedsReconciliation   bool       `json:"needs_reconciliation"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// GrossAmount is what the funding instrument is charged: amount plus all fees.
func (t *Transaction) GrossAmount() int64 {
	return t.Amount + t.TotalFees
}

// IsTerminal returns true if the transaction is in a final state.
func (t *Transaction) IsTerminal() bool {
	return t.Status == TransactionStatusCompleted ||
		t.Status == TransactionStatusFailed ||
		t.Status == TransactionStatusCancelled
}

// IsCancellable returns true while the transaction may still be cancelled by
// the user. Once funding has been attempted it must run to completion or
// failure.
func (t *Transaction) IsCancellable() bool {
	return t.Status == TransactionStatusPending
}
