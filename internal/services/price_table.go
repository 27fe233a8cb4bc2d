package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/tropicaldog17/finledger/internal/errors"
	"github.com/tropicaldog17/finledger/internal/models"
	"github.com/tropicaldog17/finledger/internal/repositories"
)

// PriceTable stores and looks up asset values. Only Close is used for valuation.
type PriceTable struct {
	repo repositories.AssetValueRepository
}

// NewPriceTable creates a new price table
func NewPriceTable(repo repositories.AssetValueRepository) *PriceTable {
	return &PriceTable{repo: repo}
}

// Put stores v. When a point with the same asset, evaluation time and
// granularity exists, Put returns it if ignoreIfExists is set and fails with
// ErrDuplicateRecord otherwise.
func (p *PriceTable) Put(ctx context.Context, v *models.AssetValue, ignoreIfExists bool) (*models.AssetValue, error) {
	if err := v.Validate(); err != nil {
		return nil, &apperrors.ErrValidation{Field: "asset_value", Message: err.Error()}
	}

	err := p.repo.Create(ctx, v)
	if err == nil {
		return v, nil
	}
	if ignoreIfExists && errors.Is(err, apperrors.ErrDuplicateRecord) {
		existing, findErr := p.repo.FindByIdentity(ctx, v.AssetID, v.EvaluatedAt, v.Granularity)
		if findErr != nil {
			return nil, findErr
		}
		if existing != nil {
			return existing, nil
		}
	}
	return nil, err
}

// LookupExact returns the latest point within [from, to]. A missing point is
// an *AssetValueUnavailableError.
func (p *PriceTable) LookupExact(ctx context.Context, assetID, baseAssetID uint64, granularity models.Granularity, from, to time.Time) (*models.AssetValue, error) {
	v, err := p.repo.FindLatestInWindow(ctx, assetID, baseAssetID, granularity, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to look up asset value: %w", err)
	}
	if v == nil {
		return nil, &apperrors.AssetValueUnavailableError{AssetID: assetID, BaseAssetID: baseAssetID, From: from.UTC(), To: to.UTC()}
	}
	return v, nil
}

// LookupNearestPrior returns the latest point at or before asOf
func (p *PriceTable) LookupNearestPrior(ctx context.Context, assetID, baseAssetID uint64, granularity models.Granularity, asOf time.Time) (*models.AssetValue, error) {
	v, err := p.repo.FindNearestPrior(ctx, assetID, baseAssetID, granularity, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to look up asset value: %w", err)
	}
	if v == nil {
		return nil, &apperrors.AssetValueUnavailableError{AssetID: assetID, BaseAssetID: baseAssetID, To: asOf.UTC()}
	}
	return v, nil
}

// Range lists the points within [from, to] in evaluation order
func (p *PriceTable) Range(ctx context.Context, assetID, baseAssetID uint64, granularity models.Granularity, from, to time.Time) ([]*models.AssetValue, error) {
	if to.Before(from) {
		return nil, &apperrors.ErrValidation{Field: "range", Message: "to is before from"}
	}
	return p.repo.ListRange(ctx, assetID, baseAssetID, granularity, from, to)
}
