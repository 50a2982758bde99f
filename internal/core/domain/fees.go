package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// FeeScheduleEntry holds the settlement-fee parameters for one network.
// MinFee and MaxFee are in minor units of the display currency.
type FeeScheduleEntry struct {
	RatePercent decimal.Decimal `json:"rate_percent"`
	MinFee      int64           `json:"min_fee"`
	MaxFee      int64           `json:"max_fee"`
}

// Validate checks the entry's internal consistency.
func (e FeeScheduleEntry) Validate() error {
	if e.RatePercent.IsNegative() {
		return fmt.Errorf("fee rate must be non-negative, got %s", e.RatePercent)
	}
	if e.MinFee < 0 {
		return fmt.Errorf("min fee must be non-negative, got %d", e.MinFee)
	}
	if e.MinFee > e.MaxFee {
		return fmt.Errorf("min fee %d exceeds max fee %d", e.MinFee, e.MaxFee)
	}
	return nil
}

// FeeSchedule maps every supported network to its fee parameters.
// It is configuration data, loaded once at startup.
type FeeSchedule struct {
	Stellar  FeeScheduleEntry
	Ethereum FeeScheduleEntry
	Polygon  FeeScheduleEntry
}

// Entry returns the schedule entry for the given network.
func (s FeeSchedule) Entry(network SettlementNetwork) (FeeScheduleEntry, error) {
	switch network {
	case NetworkStellar:
		return s.Stellar, nil
	case NetworkEthereum:
		return s.Ethereum, nil
	case NetworkPolygon:
		return s.Polygon, nil
	}
	return FeeScheduleEntry{}, fmt.Errorf("no fee schedule for network %q", network)
}

// Validate checks every entry in the schedule.
func (s FeeSchedule) Validate() error {
	for _, n := range Networks() {
		entry, err := s.Entry(n)
		if err != nil {
			return err
		}
		if err := entry.Validate(); err != nil {
			return fmt.Errorf("network %s: %w", n, err)
		}
	}
	return nil
}
