package services

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/tropicaldog17/finledger/internal/errors"
	"github.com/tropicaldog17/finledger/internal/models"
	"github.com/tropicaldog17/finledger/internal/rebalance"
)

func TestRebalanceService(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	usd := env.asset(t, models.AssetKindCurrency, "USD")
	spy := env.asset(t, models.AssetKindStock, "SPY")
	tlt := env.asset(t, models.AssetKindStock, "TLT")
	gdx := env.asset(t, models.AssetKindStock, "GDX")
	brokerage := env.account(t, "brokerage")

	env.deposit(t, brokerage, usd, "1000", date(2016, 2, 1))
	env.deposit(t, brokerage, spy, "10", date(2016, 2, 1))
	env.deposit(t, brokerage, tlt, "5", date(2016, 2, 1))
	env.price(t, spy, usd, date(2016, 3, 1), "100")
	env.price(t, tlt, usd, date(2016, 3, 1), "50")

	asOf := date(2016, 3, 2)
	req := RebalanceRequest{
		AccountID:   brokerage.ID,
		BaseAssetID: usd.ID,
		Targets:     map[string]decimal.Decimal{"SPY": dec("1"), "TLT": dec("1")},
		AsOf:        &asOf,
	}

	snap, plan, err := env.rebalance.Plan(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "USD", snap.Rebalancer.CashSymbol())
	nav, err := snap.Rebalancer.NetAssetValue()
	require.NoError(t, err)
	requireDecimal(t, "2250", nav)
	assert.Equal(t, rebalance.Plan{"SPY": 1, "TLT": 17}, plan)

	tx, err := env.rebalance.Execute(ctx, req, snap, plan)
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.Equal(t, models.TransactionStateClosed, tx.State)
	requireDecimal(t, "50", snap.Rebalancer.Cash())

	records, err := env.ledger.TransactionRecords(ctx, tx.ID)
	require.NoError(t, err)
	assert.Len(t, records, 3)

	balance, err := env.ledger.Balance(ctx, []uint64{brokerage.ID}, &asOf, false)
	require.NoError(t, err)
	assert.True(t, models.Balance{usd.ID: dec("50"), spy.ID: dec("11"), tlt.ID: dec("22")}.Equal(balance))

	t.Run("insufficient cash records nothing", func(t *testing.T) {
		snap, err := env.rebalance.Snapshot(ctx, req)
		require.NoError(t, err)
		_, err = env.rebalance.Execute(ctx, req, snap, rebalance.Plan{"SPY": 100})
		assert.ErrorIs(t, err, apperrors.ErrInsufficientCash)

		after, err := env.ledger.Balance(ctx, []uint64{brokerage.ID}, &asOf, false)
		require.NoError(t, err)
		assert.True(t, balance.Equal(after))
	})

	t.Run("empty plan", func(t *testing.T) {
		snap, err := env.rebalance.Snapshot(ctx, req)
		require.NoError(t, err)
		tx, err := env.rebalance.Execute(ctx, req, snap, rebalance.Plan{})
		require.NoError(t, err)
		assert.Nil(t, tx)
	})

	t.Run("unpriced target", func(t *testing.T) {
		r := req
		r.Targets = map[string]decimal.Decimal{"SPY": dec("1"), gdx.Symbol(): dec("1")}
		_, _, err := env.rebalance.Plan(ctx, r)
		assert.ErrorIs(t, err, apperrors.ErrPriceUnavailable)
	})

	t.Run("unknown target", func(t *testing.T) {
		r := req
		r.Targets = map[string]decimal.Decimal{"ARKW": dec("1")}
		_, err := env.rebalance.Snapshot(ctx, r)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("invalid base asset", func(t *testing.T) {
		r := req
		r.BaseAssetID = 999
		_, err := env.rebalance.Snapshot(ctx, r)
		assert.ErrorIs(t, err, apperrors.ErrInvalidTargetAsset)
	})

	t.Run("failed booking keeps the snapshot", func(t *testing.T) {
		snap, err := env.rebalance.Snapshot(ctx, req)
		require.NoError(t, err)
		inventory := snap.Rebalancer.Inventory()
		held := snap.Rebalancer

		// a record with the same identity as the TLT leg is already stored
		env.deposit(t, brokerage, tlt, "-2", snap.AsOf)

		_, err = env.rebalance.Execute(ctx, req, snap, rebalance.Plan{"TLT": -2})
		require.ErrorIs(t, err, apperrors.ErrDuplicateRecord)
		assert.Same(t, held, snap.Rebalancer)
		assert.Equal(t, inventory, snap.Rebalancer.Inventory())
		requireDecimal(t, "50", snap.Rebalancer.Cash())

		after, err := env.ledger.Balance(ctx, []uint64{brokerage.ID}, &asOf, false)
		require.NoError(t, err)
		requireDecimal(t, "50", after.Get(usd.ID))
		requireDecimal(t, "20", after.Get(tlt.ID))
	})
}
