package services

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/tropicaldog17/finledger/internal/errors"
	"github.com/tropicaldog17/finledger/internal/models"
	"github.com/tropicaldog17/finledger/internal/repositories"
)

// NetWorthQuery parameterizes a net worth evaluation
type NetWorthQuery struct {
	// AsOf defaults to now
	AsOf *time.Time
	// Granularity defaults to 1day
	Granularity models.Granularity
	// Approximation falls back to the latest earlier price when the window has none
	Approximation bool
	BaseAssetID   uint64
}

// DailyNetWorth is one element of a daily net worth series
type DailyNetWorth struct {
	Date     time.Time       `json:"date"`
	NetWorth decimal.Decimal `json:"net_worth"`
}

// ValuationService computes balances and net worth of accounts and portfolios
type ValuationService struct {
	ledger   *LedgerService
	prices   *PriceTable
	accounts repositories.AccountRepository
	assets   repositories.AssetRepository
	now      Clock
}

// NewValuationService creates a new valuation service
func NewValuationService(ledger *LedgerService, prices *PriceTable, accounts repositories.AccountRepository, assets repositories.AssetRepository) *ValuationService {
	return &ValuationService{ledger: ledger, prices: prices, accounts: accounts, assets: assets, now: utcNow}
}

// WithClock replaces the wall clock used for defaults
func (s *ValuationService) WithClock(now Clock) *ValuationService {
	s.now = now
	return s
}

// AccountBalance returns the holdings of an account at asOf (now when nil)
func (s *ValuationService) AccountBalance(ctx context.Context, accountID uint64, asOf *time.Time) (models.Balance, error) {
	if _, err := s.accounts.GetByID(ctx, accountID); err != nil {
		return nil, err
	}
	return s.ledger.Balance(ctx, []uint64{accountID}, asOf, false)
}

// AccountNetWorth values an account in q.BaseAssetID. The balance is taken at
// the end of the granularity window containing q.AsOf and each non-base asset
// is priced within that window. Any missing price aborts the computation.
func (s *ValuationService) AccountNetWorth(ctx context.Context, accountID uint64, q NetWorthQuery) (decimal.Decimal, error) {
	if err := s.checkBaseAsset(ctx, q.BaseAssetID); err != nil {
		return decimal.Zero, err
	}
	if _, err := s.accounts.GetByID(ctx, accountID); err != nil {
		return decimal.Zero, err
	}
	return s.netWorth(ctx, []uint64{accountID}, q)
}

func (s *ValuationService) checkBaseAsset(ctx context.Context, baseAssetID uint64) error {
	if baseAssetID == 0 {
		return fmt.Errorf("base asset is required: %w", apperrors.ErrInvalidTargetAsset)
	}
	if _, err := s.assets.GetByID(ctx, baseAssetID); err != nil {
		if apperrors.IsStorage(err) {
			return err
		}
		return fmt.Errorf("base asset %d: %w", baseAssetID, apperrors.ErrInvalidTargetAsset)
	}
	return nil
}

func (s *ValuationService) netWorth(ctx context.Context, accountIDs []uint64, q NetWorthQuery) (decimal.Decimal, error) {
	granularity := q.Granularity
	if granularity == "" {
		granularity = models.GranularityDay
	}
	at := s.now()
	if q.AsOf != nil {
		at = *q.AsOf
	}
	from, to, err := granularity.Window(at)
	if err != nil {
		return decimal.Zero, err
	}

	balance, err := s.ledger.Balance(ctx, accountIDs, &to, false)
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, assetID := range balance.AssetIDs() {
		quantity := balance[assetID]
		if assetID == q.BaseAssetID {
			total = total.Add(quantity)
			continue
		}

		var v *models.AssetValue
		if q.Approximation {
			v, err = s.prices.LookupNearestPrior(ctx, assetID, q.BaseAssetID, granularity, to)
		} else {
			v, err = s.prices.LookupExact(ctx, assetID, q.BaseAssetID, granularity, from, to)
		}
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(quantity.Mul(v.Close))
	}
	return total, nil
}

// PortfolioBalance sums the holdings of all member accounts
func (s *ValuationService) PortfolioBalance(ctx context.Context, portfolioID uint64, asOf *time.Time) (models.Balance, error) {
	p, err := s.accounts.GetPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	return s.ledger.Balance(ctx, p.AccountIDs(), asOf, false)
}

// PortfolioNetWorth sums the net worth of all member accounts in the
// portfolio base asset, approximating missing prices with earlier ones.
func (s *ValuationService) PortfolioNetWorth(ctx context.Context, portfolioID uint64, asOf *time.Time, granularity models.Granularity) (decimal.Decimal, error) {
	p, err := s.accounts.GetPortfolio(ctx, portfolioID)
	if err != nil {
		return decimal.Zero, err
	}
	return s.portfolioNetWorth(ctx, p, asOf, granularity)
}

func (s *ValuationService) portfolioNetWorth(ctx context.Context, p *models.Portfolio, asOf *time.Time, granularity models.Granularity) (decimal.Decimal, error) {
	if err := s.checkBaseAsset(ctx, p.BaseAssetID); err != nil {
		return decimal.Zero, fmt.Errorf("portfolio %d: %w", p.ID, err)
	}

	total := decimal.Zero
	for _, accountID := range p.AccountIDs() {
		nw, err := s.netWorth(ctx, []uint64{accountID}, NetWorthQuery{
			AsOf:          asOf,
			Granularity:   granularity,
			Approximation: true,
			BaseAssetID:   p.BaseAssetID,
		})
		if err != nil {
			return decimal.Zero, fmt.Errorf("account %d: %w", accountID, err)
		}
		total = total.Add(nw)
	}
	return total, nil
}

// DailyNetWorth yields the portfolio net worth for each day in [from, to).
// Every element is an independent point query; the sequence stops after the
// first error and can be ranged over again.
func (s *ValuationService) DailyNetWorth(ctx context.Context, portfolioID uint64, from, to time.Time) iter.Seq2[DailyNetWorth, error] {
	return func(yield func(DailyNetWorth, error) bool) {
		p, err := s.accounts.GetPortfolio(ctx, portfolioID)
		if err != nil {
			yield(DailyNetWorth{}, err)
			return
		}

		start, _, err := models.GranularityDay.Window(from)
		if err != nil {
			yield(DailyNetWorth{}, err)
			return
		}
		for day := start; day.Before(to); day = day.AddDate(0, 0, 1) {
			if err := ctx.Err(); err != nil {
				yield(DailyNetWorth{Date: day}, err)
				return
			}
			at := day
			nw, err := s.portfolioNetWorth(ctx, p, &at, models.GranularityDay)
			if !yield(DailyNetWorth{Date: day, NetWorth: nw}, err) || err != nil {
				return
			}
		}
	}
}
