package service

import (
	"chainremit/internal/core/domain"
	"chainremit/internal/core/ports"
	"chainremit/pkg/apperror"

	"github.com/shopspring/decimal"
)

const (
	// Platform fee: free below the threshold, then 0.1% capped.
	platformFeeThreshold = 1000
	platformFeeCap       = 2000
)

var oneHundred = decimal.NewFromInt(100)

// FeeServiceImpl implements ports.FeeCalculator. All methods are pure: the
// schedule is fixed at construction, so quote-time and settlement-time
// calls always use the same formula.
type FeeServiceImpl struct {
	schedule domain.FeeSchedule
}

// NewFeeService creates a FeeServiceImpl after validating the schedule.
func NewFeeService(schedule domain.FeeSchedule) (*FeeServiceImpl, error) {
	if err := schedule.Validate(); err != nil {
		return nil, err
	}
	return &FeeServiceImpl{schedule: schedule}, nil
}

// SettlementFee computes the network fee for an amount in minor units:
// amount * ratePercent / 100, clamped to [minFee, maxFee].
func (s *FeeServiceImpl) SettlementFee(network domain.SettlementNetwork, amount int64) (int64, error) {
	if amount < 0 {
		return 0, apperror.ErrInvalidAmount()
	}
	entry, err := s.schedule.Entry(network)
	if err != nil {
		return 0, apperror.ErrUnsupportedNetwork(string(network))
	}

	fee := decimal.NewFromInt(amount).
		Mul(entry.RatePercent).
		Div(oneHundred).
		IntPart()

	if fee < entry.MinFee {
		return entry.MinFee, nil
	}
	if fee > entry.MaxFee {
		return entry.MaxFee, nil
	}
	return fee, nil
}

// PlatformFee computes the fee retained by the platform: zero below the
// threshold, then 0.1% of the amount capped at platformFeeCap.
func (s *FeeServiceImpl) PlatformFee(amount int64) (int64, error) {
	if amount < 0 {
		return 0, apperror.ErrInvalidAmount()
	}
	if amount < platformFeeThreshold {
		return 0, nil
	}
	fee := amount / 1000
	if fee > platformFeeCap {
		return platformFeeCap, nil
	}
	return fee, nil
}

// Quote computes the full fee breakdown for a transfer over a network.
func (s *FeeServiceImpl) Quote(network domain.SettlementNetwork, amount int64) (ports.FeeQuote, error) {
	settlementFee, err := s.SettlementFee(network, amount)
	if err != nil {
		return ports.FeeQuote{}, err
	}
	platformFee, err := s.PlatformFee(amount)
	if err != nil {
		return ports.FeeQuote{}, err
	}
	total := settlementFee + platformFee
	return ports.FeeQuote{
		SettlementFee: settlementFee,
		PlatformFee:   platformFee,
		TotalFees:     total,
		GrossAmount:   amount + total,
	}, nil
}
