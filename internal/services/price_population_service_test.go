package services

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	apperrors "github.com/tropicaldog17/finledger/internal/errors"
	"github.com/tropicaldog17/finledger/internal/models"
)

func TestPricePopulationService_Populate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	usd := env.asset(t, models.AssetKindCurrency, "USD")
	spy := env.asset(t, models.AssetKindStock, "SPY")

	// 2016-03-05 and 03-06 are a weekend
	provider := &mockPriceProvider{closes: map[string]string{
		"2016-03-03": "199.25",
		"2016-03-04": "200.43",
		"2016-03-07": "200.59",
	}}
	env.price(t, spy, usd, date(2016, 3, 3), "199.25")

	svc := NewPricePopulationService(provider, env.prices, env.assetRepo,
		PopulationOptions{MaxRetries: 2, InitialInterval: time.Millisecond}, zaptest.NewLogger(t))

	res, err := svc.Populate(ctx, spy.ID, usd.ID, date(2016, 3, 3), date(2016, 3, 7).Add(12*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, PopulationResult{Inserted: 2, Skipped: 1, Missing: 2}, res)
	assert.Len(t, provider.calls, 4)

	v, err := env.prices.LookupNearestPrior(ctx, spy.ID, usd.ID, models.GranularityDay, date(2016, 3, 6))
	require.NoError(t, err)
	requireDecimal(t, "200.43", v.Close)
	assert.Equal(t, models.SourceProvider, v.Source)

	t.Run("second run skips stored days", func(t *testing.T) {
		provider.calls = nil
		res, err := svc.Populate(ctx, spy.ID, usd.ID, date(2016, 3, 3), date(2016, 3, 7))
		require.NoError(t, err)
		assert.Equal(t, PopulationResult{Skipped: 3, Missing: 2}, res)
		assert.Len(t, provider.calls, 2)
	})

	t.Run("invalid range", func(t *testing.T) {
		_, err := svc.Populate(ctx, spy.ID, usd.ID, date(2016, 3, 7), date(2016, 3, 3))
		var verr *apperrors.ErrValidation
		assert.ErrorAs(t, err, &verr)
	})

	t.Run("unknown asset", func(t *testing.T) {
		_, err := svc.Populate(ctx, 999, usd.ID, date(2016, 3, 3), date(2016, 3, 3))
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

func TestPricePopulationService_Retries(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	usd := env.asset(t, models.AssetKindCurrency, "USD")
	spy := env.asset(t, models.AssetKindStock, "SPY")
	opts := PopulationOptions{RatePerSec: 1000, MaxRetries: 2, InitialInterval: time.Millisecond}

	t.Run("transient provider errors", func(t *testing.T) {
		provider := &mockPriceProvider{
			closes:   map[string]string{"2016-03-03": "199.25"},
			failures: []error{&ProviderError{Provider: "mock", StatusCode: http.StatusServiceUnavailable}, &ProviderError{Provider: "mock", StatusCode: http.StatusTooManyRequests}},
		}
		svc := NewPricePopulationService(provider, env.prices, env.assetRepo, opts, nil)

		res, err := svc.Populate(ctx, spy.ID, usd.ID, date(2016, 3, 3), date(2016, 3, 3))
		require.NoError(t, err)
		assert.Equal(t, 1, res.Inserted)
		assert.Len(t, provider.calls, 3)
	})

	t.Run("retries exhausted", func(t *testing.T) {
		unavailable := &ProviderError{Provider: "mock", StatusCode: http.StatusBadGateway}
		provider := &mockPriceProvider{failures: []error{unavailable, unavailable, unavailable}}
		svc := NewPricePopulationService(provider, env.prices, env.assetRepo, opts, nil)

		_, err := svc.Populate(ctx, spy.ID, usd.ID, date(2016, 3, 4), date(2016, 3, 4))
		var pe *ProviderError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, http.StatusBadGateway, pe.StatusCode)
		assert.Len(t, provider.calls, 3)
	})

	t.Run("permanent provider error", func(t *testing.T) {
		provider := &mockPriceProvider{failures: []error{&ProviderError{Provider: "mock", StatusCode: http.StatusUnauthorized}}}
		svc := NewPricePopulationService(provider, env.prices, env.assetRepo, opts, nil)

		_, err := svc.Populate(ctx, spy.ID, usd.ID, date(2016, 3, 4), date(2016, 3, 4))
		require.Error(t, err)
		assert.Len(t, provider.calls, 1)
	})

	t.Run("transient storage errors", func(t *testing.T) {
		provider := &mockPriceProvider{closes: map[string]string{"2016-03-08": "201.00"}}
		prices := NewPriceTable(&flakyAssetValueRepository{AssetValueRepository: env.valueRepo, n: 2})
		svc := NewPricePopulationService(provider, prices, env.assetRepo, opts, nil)

		res, err := svc.Populate(ctx, spy.ID, usd.ID, date(2016, 3, 8), date(2016, 3, 8))
		require.NoError(t, err)
		assert.Equal(t, 1, res.Inserted)
	})

	t.Run("cancelled context", func(t *testing.T) {
		provider := &mockPriceProvider{closes: map[string]string{"2016-03-09": "202.00"}}
		svc := NewPricePopulationService(provider, env.prices, env.assetRepo, opts, nil)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := svc.Populate(cancelled, spy.ID, usd.ID, date(2016, 3, 9), date(2016, 3, 9))
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled))
	})
}
