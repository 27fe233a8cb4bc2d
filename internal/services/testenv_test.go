package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tropicaldog17/finledger/internal/db/dbtest"
	"github.com/tropicaldog17/finledger/internal/models"
	"github.com/tropicaldog17/finledger/internal/repositories"
)

var testNow = time.Date(2018, 8, 31, 9, 30, 0, 0, time.UTC)

type testEnv struct {
	assetRepo   repositories.AssetRepository
	accountRepo repositories.AccountRepository
	ledgerRepo  repositories.LedgerRepository
	valueRepo   repositories.AssetValueRepository

	catalog   *CatalogService
	ledger    *LedgerService
	prices    *PriceTable
	valuation *ValuationService
	ingest    *IngestService
	rebalance *RebalanceService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	database := dbtest.NewSQLite(t)
	log := zaptest.NewLogger(t)
	clock := func() time.Time { return testNow }

	env := &testEnv{
		assetRepo:   repositories.NewAssetRepository(database),
		accountRepo: repositories.NewAccountRepository(database),
		ledgerRepo:  repositories.NewLedgerRepository(database),
		valueRepo:   repositories.NewAssetValueRepository(database),
	}
	env.catalog = NewCatalogService(env.assetRepo, env.accountRepo, log)
	env.ledger = NewLedgerService(env.ledgerRepo).WithClock(clock)
	env.prices = NewPriceTable(env.valueRepo)
	env.valuation = NewValuationService(env.ledger, env.prices, env.accountRepo, env.assetRepo).WithClock(clock)
	env.ingest = NewIngestService(env.ledger, env.prices, env.catalog, log)
	env.rebalance = NewRebalanceService(env.ledger, env.prices, env.assetRepo, log).WithClock(clock)
	return env
}

func (e *testEnv) asset(t *testing.T, kind models.AssetKind, code string) *models.Asset {
	t.Helper()
	a, err := e.catalog.CreateAsset(context.Background(), &models.Asset{Kind: kind, Name: code, Code: &code}, false)
	require.NoError(t, err)
	return a
}

func (e *testEnv) account(t *testing.T, name string) *models.Account {
	t.Helper()
	a, err := e.catalog.CreateAccount(context.Background(), &models.Account{Type: models.AccountTypeChecking, Name: name}, false)
	require.NoError(t, err)
	return a
}

func (e *testEnv) deposit(t *testing.T, account *models.Account, asset *models.Asset, quantity string, at time.Time) *models.Record {
	t.Helper()
	r, err := e.ledger.Deposit(context.Background(), account.ID, asset.ID, dec(quantity), at, nil)
	require.NoError(t, err)
	return r
}

func (e *testEnv) price(t *testing.T, asset, base *models.Asset, at time.Time, closePrice string) {
	t.Helper()
	_, err := e.prices.Put(context.Background(), &models.AssetValue{
		AssetID: asset.ID, BaseAssetID: base.ID, EvaluatedAt: at,
		Granularity: models.GranularityDay, Source: models.SourceTest, Close: dec(closePrice),
	}, false)
	require.NoError(t, err)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T {
	return &v
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "want %s, got %s", want, got)
}
