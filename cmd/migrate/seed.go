package main

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tropicaldog17/finledger/internal/models"
	"github.com/tropicaldog17/finledger/internal/services"
)

type seeded struct {
	UserID      uint64
	PortfolioID uint64
	Accounts    map[string]*models.Account
	Assets      map[string]*models.Asset
}

type sampleAccount struct {
	key, name   string
	kind        models.AccountType
	institution string
}

var sampleAccounts = []sampleAccount{
	{"checking", "Shinhan Checking", models.AccountTypeChecking, "Shinhan"},
	{"gold", "Woori Gold Banking", models.AccountTypeInvestment, "Woori"},
	{"sp500", "S&P500 Fund", models.AccountTypeInvestment, "KB"},
	{"esch", "East Spring China Fund", models.AccountTypeInvestment, "Eastspring"},
	{"kjp", "키움일본인덱스 주식재간접", models.AccountTypeInvestment, "Kiwoom"},
	{"hf", "어니스트펀드", models.AccountTypeVirtual, "Honest Fund"},
}

type sampleAsset struct {
	code, name string
	kind       models.AssetKind
	isin       string
}

var sampleAssets = []sampleAsset{
	{"KRW", "Korean Won", models.AssetKindCurrency, ""},
	{"USD", "United States Dollar", models.AssetKindCurrency, ""},
	{"GOLD", "Gold", models.AssetKindCommodity, ""},
	{"KR5223941018", "KB S&P500", models.AssetKindSecurity, "KR5223941018"},
	{"KR5229221225", "이스트스프링차이나펀드", models.AssetKindSecurity, "KR5229221225"},
	{"KR5206689717", "키움일본인덱스", models.AssetKindSecurity, "KR5206689717"},
	{"HF1", "포트폴리오 투자상품 1호", models.AssetKindBond, ""},
}

// goldTrades are (date, grams, won) pairs settled against the checking account
var goldTrades = []struct {
	at    time.Time
	grams string
	won   string
}{
	{day(2016, 1, 22), "10.00", "-426870"},
	{day(2016, 1, 22), "-1.04", "49586"},
	// same quantities on the same day must differ in time to stay unique
	{day(2016, 1, 22).Add(time.Second), "-1.04", "49816"},
	{day(2016, 1, 29), "-1.00", "48603"},
	{day(2016, 2, 23), "-2.08", "99577"},
	{day(2016, 2, 24), "-2.06", "99667"},
	{day(2016, 2, 26), "-1.63", "79589"},
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func strPtr(s string) *string { return &s }

// seed inserts the sample user with accounts, assets, opening fund balances
// and a series of gold trades, then groups every account into one portfolio
// valued in KRW.
func seed(ctx context.Context, catalog *services.CatalogService, ledger *services.LedgerService) (*seeded, error) {
	out := &seeded{
		Accounts: make(map[string]*models.Account, len(sampleAccounts)),
		Assets:   make(map[string]*models.Asset, len(sampleAssets)),
	}

	user := &models.User{GivenName: "Sumin", FamilyName: "Byeon", Email: strPtr("suminb@gmail.com")}
	if err := catalog.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	out.UserID = user.ID

	for _, a := range sampleAssets {
		asset := &models.Asset{Kind: a.kind, Name: a.name, Code: strPtr(a.code)}
		if a.isin != "" {
			asset.ISIN = strPtr(a.isin)
		}
		created, err := catalog.CreateAsset(ctx, asset, true)
		if err != nil {
			return nil, fmt.Errorf("asset %s: %w", a.code, err)
		}
		out.Assets[a.code] = created
	}

	for _, a := range sampleAccounts {
		account := &models.Account{
			UserID:      &user.ID,
			Type:        a.kind,
			Name:        a.name,
			Institution: strPtr(a.institution),
			Number:      strPtr(a.key),
		}
		created, err := catalog.CreateAccount(ctx, account, true)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", a.key, err)
		}
		out.Accounts[a.key] = created
	}

	opening := []struct{ account, asset, quantity string }{
		{"sp500", "KR5223941018", "2400727"},
		{"esch", "KR5229221225", "1685792"},
		{"kjp", "KR5206689717", "268695"},
	}
	for _, o := range opening {
		_, err := ledger.AddRecord(ctx, services.RecordInput{
			AccountID:      out.Accounts[o.account].ID,
			AssetID:        out.Assets[o.asset].ID,
			Quantity:       decimal.RequireFromString(o.quantity),
			CreatedAt:      day(2015, 1, 1),
			IgnoreIfExists: true,
		})
		if err != nil {
			return nil, fmt.Errorf("opening balance of %s: %w", o.account, err)
		}
	}

	checking, gold := out.Accounts["checking"].ID, out.Accounts["gold"].ID
	krw, goldAsset := out.Assets["KRW"].ID, out.Assets["GOLD"].ID
	for _, t := range goldTrades {
		legs := []services.RecordInput{
			{AccountID: gold, AssetID: goldAsset, Quantity: decimal.RequireFromString(t.grams), CreatedAt: t.at, IgnoreIfExists: true},
			{AccountID: checking, AssetID: krw, Quantity: decimal.RequireFromString(t.won), CreatedAt: t.at, IgnoreIfExists: true},
		}
		at := t.at
		if _, _, err := ledger.RecordGroup(ctx, &at, legs); err != nil {
			return nil, fmt.Errorf("gold trade on %s: %w", t.at.Format("2006-01-02"), err)
		}
	}

	// a transfer in and straight back out nets to zero
	transfer := day(2015, 12, 4)
	if _, _, err := ledger.RecordGroup(ctx, &transfer, []services.RecordInput{
		{AccountID: checking, AssetID: krw, Quantity: decimal.NewFromInt(500000), CreatedAt: transfer, IgnoreIfExists: true},
		{AccountID: checking, AssetID: krw, Quantity: decimal.NewFromInt(-500000), CreatedAt: transfer, IgnoreIfExists: true},
	}); err != nil {
		return nil, fmt.Errorf("transfer: %w", err)
	}

	portfolio := &models.Portfolio{Name: user.Name(), BaseAssetID: krw}
	if err := catalog.CreatePortfolio(ctx, portfolio); err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(out.Accounts))
	for _, a := range sampleAccounts {
		ids = append(ids, out.Accounts[a.key].ID)
	}
	if err := catalog.AddAccounts(ctx, portfolio.ID, ids...); err != nil {
		return nil, err
	}
	out.PortfolioID = portfolio.ID
	return out, nil
}
