package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"iter"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	apperrors "github.com/tropicaldog17/finledger/internal/errors"
	"github.com/tropicaldog17/finledger/internal/models"
	"github.com/tropicaldog17/finledger/internal/rebalance"
	"github.com/tropicaldog17/finledger/internal/services"
)

type mockAssets map[string]*models.Asset

func (m mockAssets) GetAssetBySymbol(_ context.Context, symbol string) (*models.Asset, error) {
	if a, ok := m[symbol]; ok {
		return a, nil
	}
	return nil, apperrors.AssetNotFound(symbol)
}

type mockValuator struct {
	balances  map[uint64]models.Balance
	netWorth  decimal.Decimal
	nwErr     error
	lastQuery services.NetWorthQuery
	lastAsOf  *time.Time
	series    []services.DailyNetWorth
	seriesErr error
}

func (m *mockValuator) AccountBalance(_ context.Context, id uint64, asOf *time.Time) (models.Balance, error) {
	m.lastAsOf = asOf
	b, ok := m.balances[id]
	if !ok {
		return nil, apperrors.AccountNotFound(strconv.FormatUint(id, 10))
	}
	return b, nil
}

func (m *mockValuator) AccountNetWorth(_ context.Context, _ uint64, q services.NetWorthQuery) (decimal.Decimal, error) {
	m.lastQuery = q
	return m.netWorth, m.nwErr
}

func (m *mockValuator) PortfolioBalance(_ context.Context, id uint64, asOf *time.Time) (models.Balance, error) {
	return m.AccountBalance(context.Background(), id, asOf)
}

func (m *mockValuator) PortfolioNetWorth(_ context.Context, _ uint64, asOf *time.Time, g models.Granularity) (decimal.Decimal, error) {
	m.lastAsOf = asOf
	m.lastQuery.Granularity = g
	return m.netWorth, m.nwErr
}

func (m *mockValuator) DailyNetWorth(_ context.Context, _ uint64, _, _ time.Time) iter.Seq2[services.DailyNetWorth, error] {
	return func(yield func(services.DailyNetWorth, error) bool) {
		for _, p := range m.series {
			if !yield(p, nil) {
				return
			}
		}
		if m.seriesErr != nil {
			yield(services.DailyNetWorth{}, m.seriesErr)
		}
	}
}

type mockPriceHistory struct {
	values   []*models.AssetValue
	from, to time.Time
}

func (m *mockPriceHistory) Range(_ context.Context, _, _ uint64, _ models.Granularity, from, to time.Time) ([]*models.AssetValue, error) {
	m.from, m.to = from, to
	return m.values, nil
}

type mockPopulator struct {
	result services.PopulationResult
	err    error
	calls  int
}

func (m *mockPopulator) Populate(_ context.Context, _, _ uint64, _, _ time.Time) (services.PopulationResult, error) {
	m.calls++
	return m.result, m.err
}

type mockImporter struct {
	records []services.RecordImport
	values  []services.AssetValueImport
}

func (m *mockImporter) ImportRecords(_ context.Context, items []services.RecordImport) (services.ImportResult, error) {
	m.records = items
	return services.ImportResult{Inserted: len(items) - 1, Skipped: 1}, nil
}

func (m *mockImporter) ImportAssetValues(_ context.Context, items []services.AssetValueImport) (services.ImportResult, error) {
	m.values = items
	return services.ImportResult{Inserted: len(items)}, nil
}

type mockRebalancer struct {
	inventory map[string]decimal.Decimal
	prices    map[string]decimal.Decimal
	req       services.RebalanceRequest
	executed  bool
}

func (m *mockRebalancer) Plan(_ context.Context, req services.RebalanceRequest) (*services.Snapshot, rebalance.Plan, error) {
	m.req = req
	r, err := rebalance.New(m.inventory, m.prices, req.Targets, rebalance.WithCashSymbol("USD"), rebalance.WithCashReserve(req.CashReserve))
	if err != nil {
		return nil, nil, err
	}
	plan, err := r.MakeRebalancingPlan()
	if err != nil {
		return nil, nil, err
	}
	return &services.Snapshot{Rebalancer: r}, plan, nil
}

func (m *mockRebalancer) Execute(_ context.Context, _ services.RebalanceRequest, snap *services.Snapshot, plan rebalance.Plan) (*models.Transaction, error) {
	if err := snap.Rebalancer.ApplyPlan(plan); err != nil {
		return nil, err
	}
	m.executed = true
	return &models.Transaction{ID: "tx-1"}, nil
}

func strPtr(s string) *string { return &s }

type fixture struct {
	router     http.Handler
	valuator   *mockValuator
	history    *mockPriceHistory
	populator  *mockPopulator
	importer   *mockImporter
	rebalancer *mockRebalancer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zaptest.NewLogger(t)
	assets := mockAssets{
		"KRW":   {ID: 1, Kind: models.AssetKindCurrency, Code: strPtr("KRW")},
		"USD":   {ID: 2, Kind: models.AssetKindCurrency, Code: strPtr("USD")},
		"SP500": {ID: 3, Kind: models.AssetKindFund, Code: strPtr("SP500")},
		"GOLD":  {ID: 4, Kind: models.AssetKindCommodity, Code: strPtr("GOLD")},
		"SPY":   {ID: 5, Kind: models.AssetKindStock, Code: strPtr("SPY")},
	}
	f := &fixture{
		valuator: &mockValuator{balances: map[uint64]models.Balance{
			1: {1: decimal.NewFromInt(1000), 3: decimal.NewFromInt(10)},
		}},
		history:   &mockPriceHistory{},
		populator: &mockPopulator{},
		importer:  &mockImporter{},
		rebalancer: &mockRebalancer{
			inventory: map[string]decimal.Decimal{"USD": decimal.NewFromInt(1000)},
			prices:    map[string]decimal.Decimal{"SPY": decimal.NewFromInt(300)},
		},
	}
	f.router = NewRouter(Handlers{
		Valuation: NewValuationHandler(f.valuator, assets, log),
		Assets:    NewAssetHandler(assets, f.history, f.populator, log),
		Ingest:    NewIngestHandler(f.importer, assets, log),
		Rebalance: NewRebalanceHandler(f.rebalancer, assets, log),
	}, log)
	return f
}

func (f *fixture) do(method, target string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	rw := httptest.NewRecorder()
	f.router.ServeHTTP(rw, req)
	return rw
}

func decodeBody[T any](t *testing.T, rw *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &v), rw.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rw := f.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rw.Code)
	assert.Equal(t, "healthy", decodeBody[map[string]string](t, rw)["status"])

	down := NewRouter(Handlers{Health: func() error { return errors.New("connection refused") }}, nil)
	rw = httptest.NewRecorder()
	down.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rw.Code)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	rw := f.do(http.MethodOptions, "/api/rebalance", nil)
	assert.Equal(t, http.StatusOK, rw.Code)
	assert.Equal(t, "*", rw.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouteMatching(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name, method, target string
		want                 int
	}{
		{"get on post-only route", http.MethodGet, "/api/rebalance", http.StatusMethodNotAllowed},
		{"delete on asset", http.MethodDelete, "/api/assets/USD", http.StatusMethodNotAllowed},
		{"put on values", http.MethodPut, "/api/assets/USD/values", http.StatusMethodNotAllowed},
		{"unknown path", http.MethodGet, "/api/unknown", http.StatusNotFound},
		{"outside api", http.MethodGet, "/accounts/1/balance", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.do(tt.method, tt.target, nil).Code)
		})
	}
}

func TestAccountBalance(t *testing.T) {
	f := newFixture(t)

	rw := f.do(http.MethodGet, "/api/accounts/1/balance?as_of=2016-01-04", nil)
	require.Equal(t, http.StatusOK, rw.Code, rw.Body.String())
	got := decodeBody[[]Holding](t, rw)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(1), got[0].AssetID)
	assert.True(t, got[0].Quantity.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, uint64(3), got[1].AssetID)
	require.NotNil(t, f.valuator.lastAsOf)
	assert.Equal(t, time.Date(2016, 1, 4, 0, 0, 0, 0, time.UTC), *f.valuator.lastAsOf)

	t.Run("bad id", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/accounts/abc/balance", nil).Code)
	})
	t.Run("bad as_of", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/accounts/1/balance?as_of=yesterday", nil).Code)
	})
	t.Run("unknown account", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/accounts/9/balance", nil).Code)
	})
	t.Run("wrong method", func(t *testing.T) {
		assert.Equal(t, http.StatusMethodNotAllowed, f.do(http.MethodPost, "/api/accounts/1/balance", nil).Code)
	})
}

func TestAccountNetWorth(t *testing.T) {
	f := newFixture(t)
	f.valuator.netWorth = decimal.NewFromInt(921770)

	rw := f.do(http.MethodGet, "/api/accounts/1/net-worth?base_asset=KRW&as_of=2016-03-01&approximation=true", nil)
	require.Equal(t, http.StatusOK, rw.Code, rw.Body.String())
	got := decodeBody[netWorthResponse](t, rw)
	assert.True(t, got.NetWorth.Equal(decimal.NewFromInt(921770)))
	assert.Equal(t, models.GranularityDay, got.Granularity)
	assert.True(t, f.valuator.lastQuery.Approximation)
	assert.Equal(t, uint64(1), f.valuator.lastQuery.BaseAssetID)

	tests := []struct {
		name  string
		query string
		err   error
		want  int
	}{
		{"missing base asset", "", nil, http.StatusBadRequest},
		{"unknown base asset", "base_asset=XYZ", nil, http.StatusBadRequest},
		{"bad granularity", "base_asset=KRW&granularity=nano_sec", nil, http.StatusBadRequest},
		{"bad approximation", "base_asset=KRW&approximation=maybe", nil, http.StatusBadRequest},
		{"unavailable value", "base_asset=KRW", apperrors.ErrAssetValueUnavailable, http.StatusUnprocessableEntity},
		{"storage failure", "base_asset=KRW", apperrors.Storage("list records", errors.New("disk I/O error")), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.valuator.nwErr = tt.err
			rw := f.do(http.MethodGet, "/api/accounts/1/net-worth?"+tt.query, nil)
			assert.Equal(t, tt.want, rw.Code, rw.Body.String())
		})
	}
}

func TestPortfolioNetWorth(t *testing.T) {
	f := newFixture(t)
	f.valuator.netWorth = decimal.NewFromInt(503183)

	rw := f.do(http.MethodGet, "/api/portfolios/1/net-worth?as_of=2016-01-02T00:00:00Z&granularity=1min", nil)
	require.Equal(t, http.StatusOK, rw.Code, rw.Body.String())
	assert.Equal(t, models.GranularityMin, f.valuator.lastQuery.Granularity)
	assert.True(t, decodeBody[netWorthResponse](t, rw).NetWorth.Equal(decimal.NewFromInt(503183)))

	rw = f.do(http.MethodGet, "/api/portfolios/1/balance", nil)
	require.Equal(t, http.StatusOK, rw.Code)
	assert.Nil(t, f.valuator.lastAsOf)
}

func TestDailyNetWorth(t *testing.T) {
	f := newFixture(t)
	f.valuator.series = []services.DailyNetWorth{
		{Date: time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC), NetWorth: decimal.NewFromInt(500000)},
		{Date: time.Date(2016, 1, 2, 0, 0, 0, 0, time.UTC), NetWorth: decimal.NewFromInt(503183)},
	}

	rw := f.do(http.MethodGet, "/api/portfolios/1/daily-net-worth?from=2016-01-01&to=2016-01-03", nil)
	require.Equal(t, http.StatusOK, rw.Code, rw.Body.String())
	got := decodeBody[[]services.DailyNetWorth](t, rw)
	require.Len(t, got, 2)
	assert.True(t, got[1].NetWorth.Equal(decimal.NewFromInt(503183)))

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/portfolios/1/daily-net-worth?from=2016-01-01", nil).Code)

	f.valuator.seriesErr = apperrors.ErrAssetValueUnavailable
	rw = f.do(http.MethodGet, "/api/portfolios/1/daily-net-worth?from=2016-01-01&to=2016-01-04", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rw.Code)
	assert.NotContains(t, rw.Body.String(), "503183")
}

func TestAssetEndpoints(t *testing.T) {
	f := newFixture(t)

	rw := f.do(http.MethodGet, "/api/assets/GOLD", nil)
	require.Equal(t, http.StatusOK, rw.Code)
	assert.Equal(t, uint64(4), decodeBody[models.Asset](t, rw).ID)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/assets/XYZ", nil).Code)

	t.Run("values", func(t *testing.T) {
		f.history.values = []*models.AssetValue{{AssetID: 4, BaseAssetID: 1, Close: decimal.NewFromInt(52000)}}
		rw := f.do(http.MethodGet, "/api/assets/GOLD/values?base_asset=KRW&from=2016-01-01&to=2016-01-31", nil)
		require.Equal(t, http.StatusOK, rw.Code, rw.Body.String())
		assert.Len(t, decodeBody[[]models.AssetValue](t, rw), 1)
		assert.Equal(t, time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC), f.history.from)
		// a date-only bound covers the whole day
		assert.Equal(t, time.Date(2016, 2, 1, 0, 0, 0, 0, time.UTC).Add(-time.Microsecond), f.history.to)

		assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/assets/GOLD/values?from=2016-01-01&to=2016-01-31", nil).Code)
	})

	t.Run("populate", func(t *testing.T) {
		f.populator.result = services.PopulationResult{Inserted: 2, Skipped: 1, Missing: 2}
		rw := f.do(http.MethodPost, "/api/assets/SPY/populate?base_asset=USD&from=2016-01-01&to=2016-01-05", nil)
		require.Equal(t, http.StatusOK, rw.Code, rw.Body.String())
		assert.Equal(t, f.populator.result, decodeBody[services.PopulationResult](t, rw))
		assert.Equal(t, 1, f.populator.calls)

		f.populator.err = apperrors.Storage("create asset value", errors.New("database is locked"))
		rw = f.do(http.MethodPost, "/api/assets/SPY/populate?base_asset=USD&from=2016-01-01&to=2016-01-05", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rw.Code)
	})

	t.Run("populate not configured", func(t *testing.T) {
		h := NewAssetHandler(mockAssets{}, f.history, nil, nil)
		rw := httptest.NewRecorder()
		h.HandlePopulate(rw, httptest.NewRequest(http.MethodPost, "/api/assets/SPY/populate", nil))
		assert.Equal(t, http.StatusNotImplemented, rw.Code)
	})
}

func TestImportRecords(t *testing.T) {
	f := newFixture(t)
	body := []map[string]any{
		{"asset": "KRW", "date": "2016-01-01", "quantity": "1000"},
		{"asset": "KRW", "date": "2016-01-01", "quantity": "1000"},
		{"asset": "SP500", "date": "2016-01-02T09:30:00Z", "quantity": 10, "category": "buy"},
	}
	rw := f.do(http.MethodPost, "/api/accounts/7/records", body)
	require.Equal(t, http.StatusOK, rw.Code, rw.Body.String())
	assert.Equal(t, services.ImportResult{Inserted: 2, Skipped: 1}, decodeBody[services.ImportResult](t, rw))

	require.Len(t, f.importer.records, 3)
	last := f.importer.records[2]
	assert.Equal(t, uint64(7), last.AccountID)
	assert.Equal(t, uint64(3), last.AssetID)
	assert.Equal(t, "buy", *last.Spec.Category)
	assert.Equal(t, time.Date(2016, 1, 2, 9, 30, 0, 0, time.UTC), last.Spec.Date)

	rw = f.do(http.MethodPost, "/api/accounts/7/records", []map[string]any{{"asset": "XYZ", "date": "2016-01-01", "quantity": "1"}})
	assert.Equal(t, http.StatusNotFound, rw.Code)

	rw = f.do(http.MethodPost, "/api/accounts/7/records", "not an array")
	assert.Equal(t, http.StatusBadRequest, rw.Code)
}

func TestImportValues(t *testing.T) {
	f := newFixture(t)
	body := []map[string]any{
		{"date": "2016-01-04", "close": "2043.94", "volume": 1000},
		{"date": "2016-01-05", "open": "2040", "close": "2016.71"},
	}
	rw := f.do(http.MethodPost, "/api/assets/SP500/values?base_asset=USD", body)
	require.Equal(t, http.StatusOK, rw.Code, rw.Body.String())

	require.Len(t, f.importer.values, 2)
	first := f.importer.values[0]
	assert.Equal(t, uint64(3), first.AssetID)
	assert.Equal(t, uint64(2), first.BaseAssetID)
	assert.Equal(t, models.GranularityDay, first.Spec.Granularity)
	assert.Equal(t, int64(1000), *first.Spec.Volume)
	assert.False(t, first.Spec.Open.Valid)
	assert.True(t, f.importer.values[1].Spec.Open.Valid)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/api/assets/SP500/values?base_asset=XYZ", body).Code)
}

func TestRebalanceCalculator(t *testing.T) {
	f := newFixture(t)
	body := map[string]any{
		"inventory": map[string]any{"_USD": "1000"},
		"prices":    map[string]any{"SPY": "300"},
		"targets":   map[string]any{"SPY": 1},
	}
	rw := f.do(http.MethodPost, "/api/rebalance", body)
	require.Equal(t, http.StatusOK, rw.Code, rw.Body.String())
	got := decodeBody[rebalanceResponse](t, rw)
	assert.True(t, got.NetAssetValue.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, rebalance.Plan{"SPY": 3}, got.Plan)
	assert.True(t, got.Cash.Equal(decimal.NewFromInt(100)))
	assert.True(t, got.Inventory["SPY"].Equal(decimal.NewFromInt(3)))

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"negative weight", map[string]any{"inventory": map[string]any{"_USD": 1}, "targets": map[string]any{"SPY": -1}}, http.StatusBadRequest},
		{"no targets", map[string]any{"inventory": map[string]any{"_USD": 1}}, http.StatusBadRequest},
		{"unpriced target", map[string]any{"inventory": map[string]any{"_USD": 1000}, "targets": map[string]any{"GDX": 1}}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.do(http.MethodPost, "/api/rebalance", tt.body).Code)
		})
	}
}

func TestAccountRebalance(t *testing.T) {
	f := newFixture(t)
	body := map[string]any{"base_asset": "USD", "targets": map[string]any{"SPY": 1}}

	rw := f.do(http.MethodPost, "/api/accounts/3/rebalance", body)
	require.Equal(t, http.StatusOK, rw.Code, rw.Body.String())
	assert.Equal(t, rebalance.Plan{"SPY": 3}, decodeBody[rebalanceResponse](t, rw).Plan)
	assert.False(t, f.rebalancer.executed)
	assert.Equal(t, uint64(3), f.rebalancer.req.AccountID)
	assert.Equal(t, uint64(2), f.rebalancer.req.BaseAssetID)

	body["execute"] = true
	rw = f.do(http.MethodPost, "/api/accounts/3/rebalance", body)
	require.Equal(t, http.StatusCreated, rw.Code, rw.Body.String())
	got := decodeBody[rebalanceResponse](t, rw)
	assert.Equal(t, "tx-1", got.TransactionID)
	assert.True(t, got.Cash.Equal(decimal.NewFromInt(100)))
	assert.True(t, f.rebalancer.executed)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/accounts/3/rebalance", map[string]any{"targets": map[string]any{"SPY": 1}}).Code)
}
