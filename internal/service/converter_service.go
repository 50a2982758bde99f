package service

import (
	"context"
	"fmt"
	"time"

	"chainremit/internal/core/domain"
	"chainremit/internal/core/ports"
	"chainremit/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ConverterServiceImpl implements ports.CurrencyConverter. Rate lookup
// order: cache, primary source, fallback source, last persisted rate.
// Fetched rates are persisted for audit and as the last-resort fallback.
type ConverterServiceImpl struct {
	cache              ports.RateCache
	primary            ports.RateSource
	fallback           ports.RateSource
	rateRepo           ports.RateRepository
	settlementCurrency string
	log                zerolog.Logger
}

// NewConverterService creates a ConverterServiceImpl.
func NewConverterService(
	cache ports.RateCache,
	primary ports.RateSource,
	fallback ports.RateSource,
	rateRepo ports.RateRepository,
	settlementCurrency string,
	log zerolog.Logger,
) *ConverterServiceImpl {
	return &ConverterServiceImpl{
		cache:              cache,
		primary:            primary,
		fallback:           fallback,
		rateRepo:           rateRepo,
		settlementCurrency: settlementCurrency,
		log:                log,
	}
}

// ToSettlementCurrency converts a display-currency amount (minor units)
// into the settlement currency.
func (s *ConverterServiceImpl) ToSettlementCurrency(ctx context.Context, amount int64, displayCurrency string) (decimal.Decimal, error) {
	if amount < 0 {
		return decimal.Zero, apperror.ErrInvalidAmount()
	}
	rate, err := s.rate(ctx, displayCurrency)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromInt(amount).Mul(rate), nil
}

// FromSettlementCurrency converts a settlement-currency amount back into
// display-currency minor units, rounding down.
func (s *ConverterServiceImpl) FromSettlementCurrency(ctx context.Context, amount decimal.Decimal, displayCurrency string) (int64, error) {
	if amount.IsNegative() {
		return 0, apperror.ErrInvalidAmount()
	}
	rate, err := s.rate(ctx, displayCurrency)
	if err != nil {
		return 0, err
	}
	if rate.IsZero() {
		return 0, apperror.ErrRateUnavailable(fmt.Errorf("zero rate for %s", displayCurrency))
	}
	return amount.Div(rate).Floor().IntPart(), nil
}

// rate resolves the conversion rate from displayCurrency to the settlement
// currency. Rate fetches are read-only and safe to retry.
func (s *ConverterServiceImpl) rate(ctx context.Context, displayCurrency string) (decimal.Decimal, error) {
	if displayCurrency == s.settlementCurrency {
		return decimal.NewFromInt(1), nil
	}

	cached, ok, err := s.cache.Get(ctx, displayCurrency, s.settlementCurrency)
	if err != nil {
		s.log.Warn().Err(err).Str("base", displayCurrency).Msg("rate cache read failed, falling through to sources")
	} else if ok {
		return cached, nil
	}

	var lastErr error
	for _, source := range []ports.RateSource{s.primary, s.fallback} {
		rate, err := source.Rate(ctx, displayCurrency, s.settlementCurrency)
		if err != nil {
			s.log.Warn().Err(err).Str("source", source.Name()).Str("base", displayCurrency).Msg("rate source failed")
			lastErr = err
			continue
		}

		if err := s.cache.Set(ctx, displayCurrency, s.settlementCurrency, rate); err != nil {
			s.log.Warn().Err(err).Msg("failed to cache exchange rate")
		}
		if err := s.rateRepo.Save(ctx, &domain.ExchangeRate{
			Base:      displayCurrency,
			Target:    s.settlementCurrency,
			Rate:      rate,
			Source:    source.Name(),
			FetchedAt: time.Now().UTC(),
		}); err != nil {
			s.log.Warn().Err(err).Msg("failed to persist exchange rate")
		}
		return rate, nil
	}

	// All live sources down: serve the last persisted rate if one exists.
	persisted, err := s.rateRepo.GetLatest(ctx, displayCurrency, s.settlementCurrency)
	if err != nil {
		return decimal.Zero, apperror.ErrRateUnavailable(fmt.Errorf("rate lookup: %w", err))
	}
	if persisted != nil {
		s.log.Warn().
			Str("base", displayCurrency).
			Time("fetched_at", persisted.FetchedAt).
			Msg("serving persisted exchange rate, all live sources unavailable")
		return persisted.Rate, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no rate for %s/%s", displayCurrency, s.settlementCurrency)
	}
	return decimal.Zero, apperror.ErrRateUnavailable(lastErr)
}
