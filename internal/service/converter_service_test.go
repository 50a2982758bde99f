package service

import (
	"context"
	"errors"
	"testing"

	"chainremit/internal/core/domain"
	"chainremit/internal/core/ports/mocks"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type converterFixture struct {
	cache    *mocks.MockRateCache
	primary  *mocks.MockRateSource
	fallback *mocks.MockRateSource
	rateRepo *mocks.MockRateRepository
	svc      *ConverterServiceImpl
}

func newConverterFixture(t *testing.T) *converterFixture {
	ctrl := gomock.NewController(t)
	f := &converterFixture{
		cache:    mocks.NewMockRateCache(ctrl),
		primary:  mocks.NewMockRateSource(ctrl),
		fallback: mocks.NewMockRateSource(ctrl),
		rateRepo: mocks.NewMockRateRepository(ctrl),
	}
	f.primary.EXPECT().Name().Return("primary").AnyTimes()
	f.fallback.EXPECT().Name().Return("fallback").AnyTimes()
	f.svc = NewConverterService(f.cache, f.primary, f.fallback, f.rateRepo, "USDC", zerolog.Nop())
	return f
}

func TestToSettlementCurrency_SettlementCurrencyIsIdentity(t *testing.T) {
	f := newConverterFixture(t)

	got, err := f.svc.ToSettlementCurrency(context.Background(), 12345, "USDC")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(12345).Equal(got))
}

func TestToSettlementCurrency_CacheHit(t *testing.T) {
	f := newConverterFixture(t)
	f.cache.EXPECT().Get(gomock.Any(), "USD", "USDC").Return(decimal.NewFromFloat(0.99), true, nil)

	got, err := f.svc.ToSettlementCurrency(context.Background(), 10000, "USD")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(9900).Equal(got), got.String())
}

func TestToSettlementCurrency_PrimarySourceCachedAndPersisted(t *testing.T) {
	f := newConverterFixture(t)
	rate := decimal.NewFromFloat(1.08)

	f.cache.EXPECT().Get(gomock.Any(), "EUR", "USDC").Return(decimal.Zero, false, nil)
	f.primary.EXPECT().Rate(gomock.Any(), "EUR", "USDC").Return(rate, nil)
	f.cache.EXPECT().Set(gomock.Any(), "EUR", "USDC", rate).Return(nil)
	f.rateRepo.EXPECT().Save(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, saved *domain.ExchangeRate) error {
			assert.Equal(t, "EUR", saved.Base)
			assert.Equal(t, "USDC", saved.Target)
			assert.Equal(t, "primary", saved.Source)
			assert.True(t, rate.Equal(saved.Rate))
			return nil
		})

	got, err := f.svc.ToSettlementCurrency(context.Background(), 5000, "EUR")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(5400).Equal(got), got.String())
}

func TestToSettlementCurrency_FallbackSourceAfterPrimaryFails(t *testing.T) {
	f := newConverterFixture(t)
	rate := decimal.NewFromFloat(1.25)

	f.cache.EXPECT().Get(gomock.Any(), "GBP", "USDC").Return(decimal.Zero, false, nil)
	f.primary.EXPECT().Rate(gomock.Any(), "GBP", "USDC").Return(decimal.Zero, errors.New("timeout"))
	f.fallback.EXPECT().Rate(gomock.Any(), "GBP", "USDC").Return(rate, nil)
	f.cache.EXPECT().Set(gomock.Any(), "GBP", "USDC", rate).Return(nil)
	f.rateRepo.EXPECT().Save(gomock.Any(), gomock.Any()).Return(nil)

	got, err := f.svc.ToSettlementCurrency(context.Background(), 800, "GBP")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1000).Equal(got), got.String())
}

func TestToSettlementCurrency_PersistedRateWhenSourcesDown(t *testing.T) {
	f := newConverterFixture(t)

	f.cache.EXPECT().Get(gomock.Any(), "NGN", "USDC").Return(decimal.Zero, false, nil)
	f.primary.EXPECT().Rate(gomock.Any(), "NGN", "USDC").Return(decimal.Zero, errors.New("down"))
	f.fallback.EXPECT().Rate(gomock.Any(), "NGN", "USDC").Return(decimal.Zero, errors.New("down"))
	f.rateRepo.EXPECT().GetLatest(gomock.Any(), "NGN", "USDC").Return(&domain.ExchangeRate{
		Base: "NGN", Target: "USDC", Rate: decimal.NewFromFloat(0.00065),
	}, nil)

	got, err := f.svc.ToSettlementCurrency(context.Background(), 1000000, "NGN")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(650).Equal(got), got.String())
}

func TestToSettlementCurrency_RateUnavailable(t *testing.T) {
	f := newConverterFixture(t)

	f.cache.EXPECT().Get(gomock.Any(), "USD", "USDC").Return(decimal.Zero, false, nil)
	f.primary.EXPECT().Rate(gomock.Any(), "USD", "USDC").Return(decimal.Zero, errors.New("down"))
	f.fallback.EXPECT().Rate(gomock.Any(), "USD", "USDC").Return(decimal.Zero, errors.New("down"))
	f.rateRepo.EXPECT().GetLatest(gomock.Any(), "USD", "USDC").Return(nil, nil)

	_, err := f.svc.ToSettlementCurrency(context.Background(), 1000, "USD")
	assertAppError(t, err, "FX_001")
}

func TestToSettlementCurrency_CacheErrorFallsThrough(t *testing.T) {
	f := newConverterFixture(t)
	rate := decimal.NewFromInt(1)

	f.cache.EXPECT().Get(gomock.Any(), "USD", "USDC").Return(decimal.Zero, false, errors.New("redis down"))
	f.primary.EXPECT().Rate(gomock.Any(), "USD", "USDC").Return(rate, nil)
	f.cache.EXPECT().Set(gomock.Any(), "USD", "USDC", rate).Return(errors.New("redis down"))
	f.rateRepo.EXPECT().Save(gomock.Any(), gomock.Any()).Return(nil)

	got, err := f.svc.ToSettlementCurrency(context.Background(), 777, "USD")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(777).Equal(got))
}

func TestToSettlementCurrency_NegativeAmount(t *testing.T) {
	f := newConverterFixture(t)
	_, err := f.svc.ToSettlementCurrency(context.Background(), -1, "USD")
	assertAppError(t, err, "VAL_002")
}

func TestFromSettlementCurrency_RoundsDown(t *testing.T) {
	f := newConverterFixture(t)
	f.cache.EXPECT().Get(gomock.Any(), "EUR", "USDC").Return(decimal.NewFromFloat(1.08), true, nil)

	// 1000 / 1.08 = 925.925..., floored to 925.
	got, err := f.svc.FromSettlementCurrency(context.Background(), decimal.NewFromInt(1000), "EUR")
	require.NoError(t, err)
	assert.Equal(t, int64(925), got)
}

func TestFromSettlementCurrency_NegativeAmount(t *testing.T) {
	f := newConverterFixture(t)
	_, err := f.svc.FromSettlementCurrency(context.Background(), decimal.NewFromInt(-5), "EUR")
	assertAppError(t, err, "VAL_002")
}
