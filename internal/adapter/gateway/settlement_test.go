package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"chainremit/internal/core/ports"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSettlementGateway_Send(t *testing.T) {
	var got sendRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/transactions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(sendResponse{TxRef: "0xabc123"})
	}))
	defer server.Close()

	g := NewHTTPSettlementGateway("ETHEREUM", server.URL, nil, zerolog.Nop())

	txRef, err := g.Send(context.Background(), "0xrecipient", decimal.RequireFromString("499.25"), "txn-1")
	require.NoError(t, err)
	assert.Equal(t, "0xabc123", txRef)
	assert.Equal(t, "0xrecipient", got.Destination)
	assert.Equal(t, "499.25", got.Amount)
	assert.Equal(t, "txn-1", got.Reference)
}

func TestHTTPSettlementGateway_Send_RelayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "insufficient gas", http.StatusBadGateway)
	}))
	defer server.Close()

	g := NewHTTPSettlementGateway("ETHEREUM", server.URL, nil, zerolog.Nop())

	_, err := g.Send(context.Background(), "0xrecipient", decimal.NewFromInt(100), "txn-2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestHTTPSettlementGateway_GetStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/transactions/txn-3", r.URL.Path)
		json.NewEncoder(w).Encode(statusResponse{Status: "CONFIRMED", TxRef: "0xdef", Confirmations: 12})
	}))
	defer server.Close()

	g := NewHTTPSettlementGateway("POLYGON", server.URL, nil, zerolog.Nop())

	result, err := g.GetStatus(context.Background(), "txn-3")
	require.NoError(t, err)
	assert.Equal(t, ports.SettlementStatusConfirmed, result.Status)
	assert.Equal(t, "0xdef", result.TxRef)
	assert.Equal(t, 12, result.Confirmations)
}

func TestHTTPSettlementGateway_GetStatus_UnknownReferenceIsFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	g := NewHTTPSettlementGateway("STELLAR", server.URL, nil, zerolog.Nop())

	result, err := g.GetStatus(context.Background(), "txn-never-sent")
	require.NoError(t, err)
	assert.Equal(t, ports.SettlementStatusFailed, result.Status)
}

func TestHTTPSettlementGateway_Send_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(sendResponse{TxRef: "0x1"})
	}))
	defer server.Close()

	g := NewHTTPSettlementGateway("STELLAR", server.URL, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Send(ctx, "dest", decimal.NewFromInt(1), "txn-4")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
