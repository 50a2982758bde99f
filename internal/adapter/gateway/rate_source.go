package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"
)

// HTTPRateSource implements ports.RateSource against an external FX rate
// provider. Two instances (primary and fallback) front different providers.
type HTTPRateSource struct {
	name    string
	baseURL string
	client  *http.Client
}

// NewHTTPRateSource creates a named rate source.
func NewHTTPRateSource(name, baseURL string, client *http.Client) *HTTPRateSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPRateSource{
		name:    name,
		baseURL: baseURL,
		client:  client,
	}
}

type rateResponse struct {
	Rate string `json:"rate"`
}

// Rate fetches the live rate for a currency pair.
func (s *HTTPRateSource) Rate(ctx context.Context, base, target string) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/rates?base=%s&target=%s",
		s.baseURL, url.QueryEscape(base), url.QueryEscape(target))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("build rate request: %w", err)
	}

	httpResp, err := s.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("rate request to %s: %w", s.name, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("rate source %s returned %d", s.name, httpResp.StatusCode)
	}

	var resp rateResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return decimal.Zero, fmt.Errorf("decode rate response: %w", err)
	}

	rate, err := decimal.NewFromString(resp.Rate)
	if err != nil {
		return decimal.Zero, fmt.Errorf("rate source %s sent malformed rate %q: %w", s.name, resp.Rate, err)
	}
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("rate source %s sent non-positive rate %s", s.name, rate)
	}
	return rate, nil
}

// Name returns the provider name used in logs and persisted rates.
func (s *HTTPRateSource) Name() string {
	return s.name
}
