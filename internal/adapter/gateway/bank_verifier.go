package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"chainremit/pkg/apperror"
)

// HTTPBankVerifier implements ports.BankVerifier against the bank account
// resolution provider.
type HTTPBankVerifier struct {
	baseURL string
	client  *http.Client
}

// NewHTTPBankVerifier creates a bank verifier.
func NewHTTPBankVerifier(baseURL string, client *http.Client) *HTTPBankVerifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPBankVerifier{
		baseURL: baseURL,
		client:  client,
	}
}

type verifyRequest struct {
	AccountNumber string `json:"account_number"`
	BankCode      string `json:"bank_code"`
}

type verifyResponse struct {
	AccountName string `json:"account_name"`
}

// Verify resolves an account number against its bank. A definitive "no such
// account" from the provider maps to the domain error; transport failures
// stay plain errors so callers can distinguish them.
func (v *HTTPBankVerifier) Verify(ctx context.Context, accountNumber, bankCode string) (string, error) {
	payload, err := json.Marshal(verifyRequest{
		AccountNumber: accountNumber,
		BankCode:      bankCode,
	})
	if err != nil {
		return "", fmt.Errorf("marshal verify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/resolve", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := v.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("bank verify request: %w", err)
	}
	defer httpResp.Body.Close()

	switch {
	case httpResp.StatusCode == http.StatusOK:
	case httpResp.StatusCode == http.StatusNotFound || httpResp.StatusCode == http.StatusUnprocessableEntity:
		return "", apperror.ErrBankVerificationFailed(fmt.Errorf("account not resolvable (%d)", httpResp.StatusCode))
	default:
		raw, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		return "", fmt.Errorf("bank verify returned %d: %s", httpResp.StatusCode, string(raw))
	}

	var resp verifyResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return "", fmt.Errorf("decode verify response: %w", err)
	}
	if resp.AccountName == "" {
		return "", apperror.ErrBankVerificationFailed(fmt.Errorf("provider returned empty account name"))
	}
	return resp.AccountName, nil
}
