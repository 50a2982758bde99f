package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"chainremit/internal/core/ports"

	"github.com/rs/zerolog"
)

// HTTPPayoutGateway implements ports.PayoutGateway against the bank payout
// provider's JSON API. Same non-idempotency contract as the funding gateway:
// a timed-out Send must be resolved through GetStatus before retrying.
type HTTPPayoutGateway struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewHTTPPayoutGateway creates a payout gateway.
func NewHTTPPayoutGateway(baseURL string, client *http.Client, log zerolog.Logger) *HTTPPayoutGateway {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPPayoutGateway{
		baseURL: baseURL,
		client:  client,
		log:     log.With().Str("component", "payout_gateway").Logger(),
	}
}

type payoutRequest struct {
	AccountNumber string `json:"account_number"`
	BankCode      string `json:"bank_code"`
	AccountName   string `json:"account_name"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Reference     string `json:"reference"`
}

type payoutResponse struct {
	PayoutRef string `json:"payout_ref"`
}

type payoutStatusResponse struct {
	Status    string `json:"status"`
	PayoutRef string `json:"payout_ref"`
}

// Send initiates a bank payout. destinationRef is the verified destination
// encoded as "bankCode:accountNumber:accountName".
func (g *HTTPPayoutGateway) Send(ctx context.Context, destinationRef string, amount int64, currency, reference string) (string, error) {
	bankCode, accountNumber, accountName, err := splitDestinationRef(destinationRef)
	if err != nil {
		return "", err
	}

	body := payoutRequest{
		AccountNumber: accountNumber,
		BankCode:      bankCode,
		AccountName:   accountName,
		Amount:        amount,
		Currency:      currency,
		Reference:     reference,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal payout request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/payouts", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build payout request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("payout request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK && httpResp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		return "", fmt.Errorf("payout provider returned %d: %s", httpResp.StatusCode, string(raw))
	}

	var resp payoutResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return "", fmt.Errorf("decode payout response: %w", err)
	}

	g.log.Info().
		Str("payout_ref", resp.PayoutRef).
		Str("reference", reference).
		Int64("amount", amount).
		Msg("payout submitted")

	return resp.PayoutRef, nil
}

// GetStatus polls a payout by the client-supplied reference.
func (g *HTTPPayoutGateway) GetStatus(ctx context.Context, reference string) (ports.SettlementResult, error) {
	url := g.baseURL + "/payouts/" + reference

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ports.SettlementResult{}, fmt.Errorf("build payout status request: %w", err)
	}

	httpResp, err := g.client.Do(req)
	if err != nil {
		return ports.SettlementResult{}, fmt.Errorf("payout status request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode == http.StatusNotFound {
		return ports.SettlementResult{Status: ports.SettlementStatusFailed}, nil
	}
	if httpResp.StatusCode != http.StatusOK {
		return ports.SettlementResult{}, fmt.Errorf("payout status: unexpected status %d", httpResp.StatusCode)
	}

	var resp payoutStatusResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return ports.SettlementResult{}, fmt.Errorf("decode payout status: %w", err)
	}

	return ports.SettlementResult{
		Status: settlementStatus(resp.Status),
		TxRef:  resp.PayoutRef,
	}, nil
}

func splitDestinationRef(ref string) (bankCode, accountNumber, accountName string, err error) {
	parts := strings.SplitN(ref, ":", 3)
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("malformed destination ref %q", ref)
	}
	return parts[0], parts[1], parts[2], nil
}
