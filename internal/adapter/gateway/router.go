package gateway

import (
	"fmt"

	"chainremit/internal/core/domain"
	"chainremit/internal/core/ports"
)

// SettlementRouter binds each supported network to its gateway at
// construction time. Resolution is a switch on the enum, never a string
// lookup against runtime state.
type SettlementRouter struct {
	stellar  ports.SettlementGateway
	ethereum ports.SettlementGateway
	polygon  ports.SettlementGateway
}

// NewSettlementRouter creates a router with all three networks bound.
func NewSettlementRouter(stellar, ethereum, polygon ports.SettlementGateway) *SettlementRouter {
	return &SettlementRouter{
		stellar:  stellar,
		ethereum: ethereum,
		polygon:  polygon,
	}
}

// Gateway resolves the gateway bound to a network.
func (r *SettlementRouter) Gateway(network domain.SettlementNetwork) (ports.SettlementGateway, error) {
	switch network {
	case domain.NetworkStellar:
		return r.stellar, nil
	case domain.NetworkEthereum:
		return r.ethereum, nil
	case domain.NetworkPolygon:
		return r.polygon, nil
	default:
		return nil, fmt.Errorf("no gateway bound for network %q", network)
	}
}
