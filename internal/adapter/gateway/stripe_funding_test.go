package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chainremit/internal/core/domain"
	"chainremit/internal/core/ports"
	"chainremit/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
)

const testVaultKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func newStripeTestClient(t *testing.T, handler http.Handler) (*client.API, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:           stripe.String(server.URL),
		LeveledLogger: &stripe.LeveledLogger{Level: stripe.LevelError},
	})
	api := &client.API{}
	api.Init("sk_test_chainremit", &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
	return api, server
}

func encryptedTestCard(t *testing.T, vault ports.CardVault) *domain.LinkedCard {
	t.Helper()
	number, err := vault.Encrypt("4532015112830366")
	require.NoError(t, err)
	cvv, err := vault.Encrypt("123")
	require.NoError(t, err)

	return &domain.LinkedCard{
		ID:              uuid.New(),
		UserID:          uuid.New(),
		EncryptedNumber: number,
		EncryptedCvv:    cvv,
		MaskedNumber:    "4532********0366",
		CardType:        domain.CardTypeVisa,
		ExpiryMonth:     12,
		ExpiryYear:      time.Now().Year() + 2,
		IsDefault:       true,
		IsActive:        true,
	}
}

func TestStripeFunding_Charge(t *testing.T) {
	vault, err := service.NewCardVault(testVaultKey)
	require.NoError(t, err)

	var chargeForm string
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/tokens", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		form := string(body)
		// The decrypted number must reach Stripe, not the ciphertext.
		assert.Contains(t, form, "4532015112830366")
		json.NewEncoder(w).Encode(map[string]any{"id": "tok_test", "object": "token"})
	})
	mux.HandleFunc("/v1/charges", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		chargeForm = string(body)
		json.NewEncoder(w).Encode(map[string]any{"id": "ch_test", "object": "charge", "status": "succeeded"})
	})

	api, _ := newStripeTestClient(t, mux)
	g := NewStripeFunding(api, vault, zerolog.Nop())

	chargeRef, err := g.Charge(context.Background(), encryptedTestCard(t, vault), 50800, "USD", "txn-1")
	require.NoError(t, err)
	assert.Equal(t, "ch_test", chargeRef)
	assert.Contains(t, chargeForm, "amount=50800")
	assert.Contains(t, chargeForm, "currency=usd")
	assert.Contains(t, chargeForm, "txn-1")
}

func TestStripeFunding_Charge_Declined(t *testing.T) {
	vault, err := service.NewCardVault(testVaultKey)
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/tokens", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"id": "tok_test", "object": "token"})
	})
	mux.HandleFunc("/v1/charges", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"type": "card_error", "code": "card_declined", "message": "Your card was declined."},
		})
	})

	api, _ := newStripeTestClient(t, mux)
	g := NewStripeFunding(api, vault, zerolog.Nop())

	_, err = g.Charge(context.Background(), encryptedTestCard(t, vault), 100, "USD", "txn-2")
	require.Error(t, err)
	assert.Contains(t, strings.ToLower(err.Error()), "declined")
}

func TestStripeFunding_Refund(t *testing.T) {
	vault, err := service.NewCardVault(testVaultKey)
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/refunds", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		form := string(body)
		assert.Contains(t, form, "charge=ch_test")
		assert.Contains(t, form, "amount=50800")
		json.NewEncoder(w).Encode(map[string]any{"id": "re_test", "object": "refund"})
	})

	api, _ := newStripeTestClient(t, mux)
	g := NewStripeFunding(api, vault, zerolog.Nop())

	refundRef, err := g.Refund(context.Background(), "ch_test", 50800)
	require.NoError(t, err)
	assert.Equal(t, "re_test", refundRef)
}

func TestStripeFunding_LookupCharge(t *testing.T) {
	vault, err := service.NewCardVault(testVaultKey)
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/charges", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"object":   "list",
			"has_more": false,
			"data": []map[string]any{
				{"id": "ch_other", "object": "charge", "status": "succeeded", "metadata": map[string]string{"reference": "txn-other"}},
				{"id": "ch_found", "object": "charge", "status": "succeeded", "metadata": map[string]string{"reference": "txn-3"}},
			},
		})
	})

	api, _ := newStripeTestClient(t, mux)
	g := NewStripeFunding(api, vault, zerolog.Nop())

	status, chargeRef, err := g.LookupCharge(context.Background(), "txn-3")
	require.NoError(t, err)
	assert.Equal(t, ports.ChargeStatusSucceeded, status)
	assert.Equal(t, "ch_found", chargeRef)
}

func TestStripeFunding_LookupCharge_NeverLanded(t *testing.T) {
	vault, err := service.NewCardVault(testVaultKey)
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/charges", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"object": "list", "has_more": false, "data": []map[string]any{}})
	})

	api, _ := newStripeTestClient(t, mux)
	g := NewStripeFunding(api, vault, zerolog.Nop())

	status, chargeRef, err := g.LookupCharge(context.Background(), "txn-ghost")
	require.NoError(t, err)
	assert.Equal(t, ports.ChargeStatusFailed, status)
	assert.Empty(t, chargeRef)
}
