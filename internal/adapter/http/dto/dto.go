package dto

import (
	"time"

	"chainremit/internal/core/domain"
)

// TransferRequest is the request body for a card-funded on-chain transfer.
// ExpectedTotalFees carries the fee total the client was quoted; the server
// rejects the transfer if the live quote no longer matches.
type TransferRequest struct {
	RecipientRef      string `json:"recipient_ref" binding:"required,max=128"`
	Amount            int64  `json:"amount" binding:"required,gt=0"`
	Currency          string `json:"currency" binding:"required,len=3|len=4"`
	Network           string `json:"network" binding:"required,network"`
	ExpectedTotalFees *int64 `json:"expected_total_fees,omitempty"`
}

// DepositRequest is the request body for a card-funded balance deposit.
type DepositRequest struct {
	Amount   int64  `json:"amount" binding:"required,gt=0"`
	Currency string `json:"currency" binding:"required,len=3|len=4"`
}

// WithdrawRequest is the request body for a balance withdrawal to a bank
// account.
type WithdrawRequest struct {
	Amount        int64  `json:"amount" binding:"required,gt=0"`
	Currency      string `json:"currency" binding:"required,len=3|len=4"`
	AccountNumber string `json:"account_number" binding:"required,numeric,min=6,max=20"`
	BankCode      string `json:"bank_code" binding:"required,alphanum,min=2,max=12"`
}

// AddCardRequest is the request body for linking a new card. The number and
// CVV are never echoed back.
type AddCardRequest struct {
	Number      string `json:"number" binding:"required,numeric,min=13,max=19"`
	Cvv         string `json:"cvv" binding:"required,numeric,min=3,max=4"`
	ExpiryMonth int    `json:"expiry_month" binding:"required,min=1,max=12"`
	ExpiryYear  int    `json:"expiry_year" binding:"required,min=2000,max=2100"`
	MakeDefault bool   `json:"make_default"`
}

// TransactionResponse is the user-facing projection of a transaction.
// Settlement-currency internals are not exposed.
type TransactionResponse struct {
	ID              string  `json:"id"`
	Type            string  `json:"type"`
	Status          string  `json:"status"`
	Amount          int64   `json:"amount"`
	Currency        string  `json:"currency"`
	SettlementFee   int64   `json:"settlement_fee"`
	PlatformFee     int64   `json:"platform_fee"`
	TotalFees       int64   `json:"total_fees"`
	Network         string  `json:"network,omitempty"`
	RecipientRef    string  `json:"recipient_ref,omitempty"`
	DestinationRef  string  `json:"destination_ref,omitempty"`
	SettlementTxRef *string `json:"settlement_tx_ref,omitempty"`
	FailureReason   *string `json:"failure_reason,omitempty"`
	CreatedAt       string  `json:"created_at"`
	CompletedAt     *string `json:"completed_at,omitempty"`
}

// TransactionListResponse wraps a paginated transaction list.
type TransactionListResponse struct {
	Items    []TransactionResponse `json:"items"`
	Total    int64                 `json:"total"`
	Page     int                   `json:"page"`
	PageSize int                   `json:"page_size"`
}

// CardResponse is the user-facing projection of a linked card.
type CardResponse struct {
	ID           string `json:"id"`
	MaskedNumber string `json:"masked_number"`
	CardType     string `json:"card_type"`
	ExpiryMonth  int    `json:"expiry_month"`
	ExpiryYear   int    `json:"expiry_year"`
	IsDefault    bool   `json:"is_default"`
	CreatedAt    string `json:"created_at"`
}

// BalanceResponse is the response for a balance query.
type BalanceResponse struct {
	Currency  string `json:"currency"`
	Amount    int64  `json:"amount"`
	UpdatedAt string `json:"updated_at"`
}

// FromTransaction converts a domain transaction to its response projection.
func FromTransaction(txn *domain.Transaction) TransactionResponse {
	resp := TransactionResponse{
		ID:              txn.ID.String(),
		Type:            string(txn.Type),
		Status:          string(txn.Status),
		Amount:          txn.Amount,
		Currency:        txn.Currency,
		SettlementFee:   txn.SettlementFee,
		PlatformFee:     txn.PlatformFee,
		TotalFees:       txn.TotalFees,
		Network:         string(txn.Network),
		RecipientRef:    txn.RecipientRef,
		DestinationRef:  txn.DestinationRef,
		SettlementTxRef: txn.SettlementTxRef,
		FailureReason:   txn.FailureReason,
		CreatedAt:       txn.CreatedAt.Format(time.RFC3339),
	}
	if txn.CompletedAt != nil {
		s := txn.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &s
	}
	return resp
}

// FromCard converts a domain card to its response projection. Encrypted
// fields never appear here.
func FromCard(card *domain.LinkedCard) CardResponse {
	return CardResponse{
		ID:           card.ID.String(),
		MaskedNumber: card.MaskedNumber,
		CardType:     string(card.CardType),
		ExpiryMonth:  card.ExpiryMonth,
		ExpiryYear:   card.ExpiryYear,
		IsDefault:    card.IsDefault,
		CreatedAt:    card.CreatedAt.Format(time.RFC3339),
	}
}
