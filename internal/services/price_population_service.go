package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	apperrors "github.com/tropicaldog17/finledger/internal/errors"
	"github.com/tropicaldog17/finledger/internal/logger"
	"github.com/tropicaldog17/finledger/internal/models"
	"github.com/tropicaldog17/finledger/internal/repositories"
)

// PopulationOptions tune provider throttling and retries
type PopulationOptions struct {
	// RatePerSec caps provider calls; zero means unlimited
	RatePerSec float64
	MaxRetries uint64
	// InitialInterval is the first backoff delay, 500ms by default
	InitialInterval time.Duration
}

// PopulationResult summarizes a population run
type PopulationResult struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
	Missing  int `json:"missing"`
}

// PricePopulationService backfills daily closes from a PriceProvider into the
// price table. Days that already have a value are skipped.
type PricePopulationService struct {
	provider PriceProvider
	prices   *PriceTable
	assets   repositories.AssetRepository
	limiter  *rate.Limiter
	opts     PopulationOptions
	log      *zap.Logger
}

// NewPricePopulationService creates a new price population service
func NewPricePopulationService(provider PriceProvider, prices *PriceTable, assets repositories.AssetRepository, opts PopulationOptions, log *zap.Logger) *PricePopulationService {
	limit := rate.Inf
	if opts.RatePerSec > 0 {
		limit = rate.Limit(opts.RatePerSec)
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 500 * time.Millisecond
	}
	return &PricePopulationService{
		provider: provider,
		prices:   prices,
		assets:   assets,
		limiter:  rate.NewLimiter(limit, 1),
		opts:     opts,
		log:      logger.OrNop(log),
	}
}

// Populate fetches the daily close of assetID in baseAssetID for every UTC day
// in [from, to]. Days the provider has no quote for are counted as missing.
// Transient provider and storage failures are retried; anything else stops the run.
func (s *PricePopulationService) Populate(ctx context.Context, assetID, baseAssetID uint64, from, to time.Time) (PopulationResult, error) {
	var res PopulationResult
	if to.Before(from) {
		return res, &apperrors.ErrValidation{Field: "range", Message: "to is before from"}
	}
	asset, err := s.assets.GetByID(ctx, assetID)
	if err != nil {
		return res, err
	}
	base, err := s.assets.GetByID(ctx, baseAssetID)
	if err != nil {
		return res, err
	}
	symbol, baseSymbol := asset.Symbol(), base.Symbol()
	log := s.log.With(zap.String("provider", s.provider.Name()), zap.String("symbol", symbol), zap.String("base", baseSymbol))

	start, _, _ := models.GranularityDay.Window(from)
	for day := start; !day.After(to); day = day.AddDate(0, 0, 1) {
		dayFrom, dayTo, _ := models.GranularityDay.Window(day)
		_, err := s.prices.LookupExact(ctx, assetID, baseAssetID, models.GranularityDay, dayFrom, dayTo)
		if err == nil {
			res.Skipped++
			continue
		}
		if !errors.Is(err, apperrors.ErrAssetValueUnavailable) {
			return res, err
		}

		spec, err := s.fetch(ctx, symbol, baseSymbol, day)
		if errors.Is(err, apperrors.ErrQuoteNotFound) {
			log.Debug("no quote", zap.Time("date", day))
			res.Missing++
			continue
		}
		if err != nil {
			log.Error("failed to fetch quote", zap.Time("date", day), zap.Error(err))
			return res, fmt.Errorf("fetch %s on %s: %w", symbol, day.Format("2006-01-02"), err)
		}

		err = s.retry(ctx, func() error {
			_, err := s.prices.Put(ctx, spec.toModel(assetID, baseAssetID), true)
			return err
		})
		if err != nil {
			return res, err
		}
		res.Inserted++
	}

	log.Info("prices populated",
		zap.Int("inserted", res.Inserted),
		zap.Int("skipped", res.Skipped),
		zap.Int("missing", res.Missing))
	return res, nil
}

func (s *PricePopulationService) fetch(ctx context.Context, symbol, baseSymbol string, day time.Time) (*AssetValueSpec, error) {
	return backoff.RetryWithData(func() (*AssetValueSpec, error) {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}
		spec, err := s.provider.FetchDaily(ctx, symbol, baseSymbol, day)
		if err != nil && !isTransient(err) {
			return nil, backoff.Permanent(err)
		}
		if err == nil && spec.EvaluatedAt.IsZero() {
			spec.EvaluatedAt = day
		}
		return spec, err
	}, s.policy(ctx))
}

func (s *PricePopulationService) retry(ctx context.Context, op func() error) error {
	return backoff.Retry(func() error {
		err := op()
		if err != nil && !isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, s.policy(ctx))
}

func (s *PricePopulationService) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.InitialInterval
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, s.opts.MaxRetries), ctx)
}

func isTransient(err error) bool {
	if apperrors.IsStorage(err) {
		return true
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Temporary()
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
