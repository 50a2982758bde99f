package gateway

import (
	"testing"

	"chainremit/internal/core/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettlementRouter(t *testing.T) {
	stellar := NewHTTPSettlementGateway("STELLAR", "http://stellar", nil, zerolog.Nop())
	ethereum := NewHTTPSettlementGateway("ETHEREUM", "http://ethereum", nil, zerolog.Nop())
	polygon := NewHTTPSettlementGateway("POLYGON", "http://polygon", nil, zerolog.Nop())

	router := NewSettlementRouter(stellar, ethereum, polygon)

	for _, tc := range []struct {
		network domain.SettlementNetwork
		want    *HTTPSettlementGateway
	}{
		{domain.NetworkStellar, stellar},
		{domain.NetworkEthereum, ethereum},
		{domain.NetworkPolygon, polygon},
	} {
		got, err := router.Gateway(tc.network)
		require.NoError(t, err)
		assert.Same(t, tc.want, got)
	}

	_, err := router.Gateway(domain.SettlementNetwork("DOGECOIN"))
	assert.Error(t, err)
}
