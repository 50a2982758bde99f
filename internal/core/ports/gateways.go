package ports

import (
	"context"

	"chainremit/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ChargeStatus is the issuer-side state of a card charge, used when a
// timeout forces a status re-check before deciding the outcome.
type ChargeStatus string

const (
	ChargeStatusSucceeded ChargeStatus = "SUCCEEDED"
	ChargeStatusFailed    ChargeStatus = "FAILED"
	ChargeStatusUnknown   ChargeStatus = "UNKNOWN"
)

// FundingGateway charges and refunds the user's linked card. Charge and
// Refund are not idempotent: a blind retry may move money twice. A timeout
// means unknown outcome and callers must use LookupCharge, keyed by the
// client-supplied reference, before deciding the outcome.
type FundingGateway interface {
	Charge(ctx context.Context, card *domain.LinkedCard, grossAmount int64, currency, reference string) (chargeRef string, err error)
	Refund(ctx context.Context, chargeRef string, amount int64) (refundRef string, err error)
	LookupCharge(ctx context.Context, reference string) (status ChargeStatus, chargeRef string, err error)
}

// SettlementStatus is the on-chain state of a settlement transaction.
type SettlementStatus string

const (
	SettlementStatusPending   SettlementStatus = "PENDING"
	SettlementStatusConfirmed SettlementStatus = "CONFIRMED"
	SettlementStatusFailed    SettlementStatus = "FAILED"
)

// SettlementResult is the polled state of a settlement transaction.
type SettlementResult struct {
	Status        SettlementStatus
	TxRef         string
	Confirmations int
}

// SettlementGateway moves settlement-currency funds over one blockchain
// network. Send is not idempotent; GetStatus is safe to poll and accepts
// the client-supplied reference so a timed-out Send can be reconciled.
type SettlementGateway interface {
	Send(ctx context.Context, destination string, amount decimal.Decimal, reference string) (txRef string, err error)
	GetStatus(ctx context.Context, reference string) (SettlementResult, error)
}

// SettlementRouter resolves the gateway bound to a network. Bindings are
// fixed at construction, not looked up by string at runtime.
type SettlementRouter interface {
	Gateway(network domain.SettlementNetwork) (SettlementGateway, error)
}

// PayoutGateway transfers withdrawal funds to a verified bank account.
// Same non-idempotency rules as FundingGateway.
type PayoutGateway interface {
	Send(ctx context.Context, destinationRef string, amount int64, currency, reference string) (payoutRef string, err error)
	GetStatus(ctx context.Context, reference string) (SettlementResult, error)
}

// RateSource fetches a live exchange rate from an external provider.
type RateSource interface {
	Rate(ctx context.Context, base, target string) (decimal.Decimal, error)
	Name() string
}

// RateCache is the short-TTL cache in front of the rate sources.
type RateCache interface {
	Get(ctx context.Context, base, target string) (decimal.Decimal, bool, error)
	Set(ctx context.Context, base, target string, rate decimal.Decimal) error
}

// Notifier delivers post-completion events to the external notification
// collaborator. Delivery is fire-and-forget; failures never roll back
// financial state.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, event string, payload any) error
}

// BankVerifier validates a withdrawal destination against the external
// bank-lookup collaborator.
type BankVerifier interface {
	Verify(ctx context.Context, accountNumber, bankCode string) (accountName string, err error)
}
