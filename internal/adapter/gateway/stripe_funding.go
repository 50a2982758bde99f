package gateway

import (
	"context"
	"fmt"
	"strings"

	"chainremit/internal/core/domain"
	"chainremit/internal/core/ports"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
)

// StripeFunding implements ports.FundingGateway on the Stripe Charges API.
// Card numbers are stored encrypted and only decrypted here, immediately
// before tokenization; the plaintext never leaves this adapter.
type StripeFunding struct {
	api   *client.API
	vault ports.CardVault
	log   zerolog.Logger
}

// NewStripeFunding creates a Stripe-backed funding gateway.
func NewStripeFunding(api *client.API, vault ports.CardVault, log zerolog.Logger) *StripeFunding {
	return &StripeFunding{
		api:   api,
		vault: vault,
		log:   log.With().Str("component", "stripe_funding").Logger(),
	}
}

// NewStripeClient builds a Stripe API client from a secret key.
func NewStripeClient(secretKey string) *client.API {
	api := &client.API{}
	api.Init(secretKey, nil)
	return api
}

// Charge tokenizes the decrypted card and creates a charge for grossAmount.
// The client-supplied reference is attached as metadata so a timed-out call
// can be reconciled with LookupCharge.
func (g *StripeFunding) Charge(ctx context.Context, card *domain.LinkedCard, grossAmount int64, currency, reference string) (string, error) {
	number, err := g.vault.Decrypt(card.EncryptedNumber)
	if err != nil {
		return "", fmt.Errorf("decrypt card number: %w", err)
	}
	cvv, err := g.vault.Decrypt(card.EncryptedCvv)
	if err != nil {
		return "", fmt.Errorf("decrypt card cvv: %w", err)
	}

	tokenParams := &stripe.TokenParams{
		Card: &stripe.CardParams{
			Number:   stripe.String(number),
			ExpMonth: stripe.String(fmt.Sprintf("%02d", card.ExpiryMonth)),
			ExpYear:  stripe.String(fmt.Sprintf("%d", card.ExpiryYear)),
			CVC:      stripe.String(cvv),
		},
	}
	tokenParams.Context = ctx

	token, err := g.api.Tokens.New(tokenParams)
	if err != nil {
		return "", fmt.Errorf("tokenize card: %w", err)
	}

	chargeParams := &stripe.ChargeParams{
		Amount:   stripe.Int64(grossAmount),
		Currency: stripe.String(strings.ToLower(currency)),
	}
	chargeParams.Context = ctx
	chargeParams.SetSource(token.ID)
	chargeParams.AddMetadata("reference", reference)

	charge, err := g.api.Charges.New(chargeParams)
	if err != nil {
		return "", fmt.Errorf("create charge: %w", err)
	}

	g.log.Info().
		Str("charge_id", charge.ID).
		Str("reference", reference).
		Int64("amount", grossAmount).
		Msg("card charged")

	return charge.ID, nil
}

// Refund reverses a charge, fully or partially.
func (g *StripeFunding) Refund(ctx context.Context, chargeRef string, amount int64) (string, error) {
	params := &stripe.RefundParams{
		Charge: stripe.String(chargeRef),
		Amount: stripe.Int64(amount),
	}
	params.Context = ctx

	refund, err := g.api.Refunds.New(params)
	if err != nil {
		return "", fmt.Errorf("create refund: %w", err)
	}

	g.log.Info().
		Str("charge_id", chargeRef).
		Str("refund_id", refund.ID).
		Int64("amount", amount).
		Msg("charge refunded")

	return refund.ID, nil
}

// LookupCharge scans recent charges for one carrying the given reference in
// its metadata. Used after a Charge timeout to learn whether money moved.
func (g *StripeFunding) LookupCharge(ctx context.Context, reference string) (ports.ChargeStatus, string, error) {
	params := &stripe.ChargeListParams{}
	params.Context = ctx
	params.Filters.AddFilter("limit", "", "100")

	iter := g.api.Charges.List(params)
	for iter.Next() {
		charge := iter.Charge()
		if charge.Metadata["reference"] != reference {
			continue
		}
		return chargeStatus(charge), charge.ID, nil
	}
	if err := iter.Err(); err != nil {
		return ports.ChargeStatusUnknown, "", fmt.Errorf("list charges: %w", err)
	}

	// No charge carries the reference: the original call never reached
	// Stripe, so nothing was charged.
	return ports.ChargeStatusFailed, "", nil
}

func chargeStatus(c *stripe.Charge) ports.ChargeStatus {
	switch c.Status {
	case "succeeded":
		return ports.ChargeStatusSucceeded
	case "failed":
		return ports.ChargeStatusFailed
	default:
		return ports.ChargeStatusUnknown
	}
}
