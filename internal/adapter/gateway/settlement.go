package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"chainremit/internal/core/ports"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// HTTPSettlementGateway implements ports.SettlementGateway against a
// network-node relay service speaking JSON over HTTP. One instance is bound
// to one network's relay.
type HTTPSettlementGateway struct {
	network string
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewHTTPSettlementGateway creates a settlement gateway for one network relay.
// Timeouts come from the request context, not the client.
func NewHTTPSettlementGateway(network, baseURL string, client *http.Client, log zerolog.Logger) *HTTPSettlementGateway {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSettlementGateway{
		network: network,
		baseURL: baseURL,
		client:  client,
		log:     log.With().Str("component", "settlement_gateway").Str("network", network).Logger(),
	}
}

type sendRequest struct {
	Destination string `json:"destination"`
	Amount      string `json:"amount"`
	Reference   string `json:"reference"`
}

type sendResponse struct {
	TxRef string `json:"tx_ref"`
}

type statusResponse struct {
	Status        string `json:"status"`
	TxRef         string `json:"tx_ref"`
	Confirmations int    `json:"confirmations"`
}

// Send submits a settlement transaction to the relay. Not idempotent: a
// timeout means unknown outcome and must be resolved via GetStatus.
func (g *HTTPSettlementGateway) Send(ctx context.Context, destination string, amount decimal.Decimal, reference string) (string, error) {
	body := sendRequest{
		Destination: destination,
		Amount:      amount.String(),
		Reference:   reference,
	}

	var resp sendResponse
	if err := g.postJSON(ctx, g.baseURL+"/transactions", body, &resp); err != nil {
		return "", err
	}

	g.log.Info().
		Str("tx_ref", resp.TxRef).
		Str("reference", reference).
		Str("amount", amount.String()).
		Msg("settlement submitted")

	return resp.TxRef, nil
}

// GetStatus polls the relay for a transaction by the client-supplied
// reference. Safe to retry.
func (g *HTTPSettlementGateway) GetStatus(ctx context.Context, reference string) (ports.SettlementResult, error) {
	url := g.baseURL + "/transactions/" + reference

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ports.SettlementResult{}, fmt.Errorf("build status request: %w", err)
	}

	httpResp, err := g.client.Do(req)
	if err != nil {
		return ports.SettlementResult{}, fmt.Errorf("settlement status request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode == http.StatusNotFound {
		// The relay never saw the reference: the send never landed.
		return ports.SettlementResult{Status: ports.SettlementStatusFailed}, nil
	}
	if httpResp.StatusCode != http.StatusOK {
		return ports.SettlementResult{}, fmt.Errorf("settlement status: unexpected status %d", httpResp.StatusCode)
	}

	var resp statusResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return ports.SettlementResult{}, fmt.Errorf("decode status response: %w", err)
	}

	return ports.SettlementResult{
		Status:        settlementStatus(resp.Status),
		TxRef:         resp.TxRef,
		Confirmations: resp.Confirmations,
	}, nil
}

func (g *HTTPSettlementGateway) postJSON(ctx context.Context, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("settlement request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("settlement relay returned %d: %s", resp.StatusCode, string(raw))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func settlementStatus(s string) ports.SettlementStatus {
	switch s {
	case "CONFIRMED":
		return ports.SettlementStatusConfirmed
	case "FAILED":
		return ports.SettlementStatusFailed
	default:
		return ports.SettlementStatusPending
	}
}
