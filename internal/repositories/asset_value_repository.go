package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tropicaldog17/finledger/internal/db"
	"github.com/tropicaldog17/finledger/internal/models"
)

type assetValueRepository struct {
	db *db.DB
}

// NewAssetValueRepository creates a new asset value repository
func NewAssetValueRepository(database *db.DB) AssetValueRepository {
	return &assetValueRepository{db: database}
}

func (r *assetValueRepository) Create(ctx context.Context, value *models.AssetValue) error {
	value.EvaluatedAt = models.Stamp(value.EvaluatedAt)
	return translate("create asset value", r.db.WithContext(ctx).Create(value).Error)
}

func (r *assetValueRepository) FindByIdentity(ctx context.Context, assetID uint64, evaluatedAt time.Time, granularity models.Granularity) (*models.AssetValue, error) {
	query := r.db.WithContext(ctx).
		Where("asset_id = ? AND evaluated_at = ? AND granularity = ?", assetID, models.Stamp(evaluatedAt), granularity)
	return first(query, "find asset value")
}

func (r *assetValueRepository) FindLatestInWindow(ctx context.Context, assetID, baseAssetID uint64, granularity models.Granularity, from, to time.Time) (*models.AssetValue, error) {
	query := r.series(ctx, assetID, baseAssetID, granularity).
		Where("evaluated_at >= ? AND evaluated_at <= ?", from.UTC(), to.UTC()).
		Order("evaluated_at DESC, id DESC")
	return first(query, "find asset value in window")
}

func (r *assetValueRepository) FindNearestPrior(ctx context.Context, assetID, baseAssetID uint64, granularity models.Granularity, asOf time.Time) (*models.AssetValue, error) {
	query := r.series(ctx, assetID, baseAssetID, granularity).
		Where("evaluated_at <= ?", asOf.UTC()).
		Order("evaluated_at DESC, id DESC")
	return first(query, "find nearest prior asset value")
}

func (r *assetValueRepository) ListRange(ctx context.Context, assetID, baseAssetID uint64, granularity models.Granularity, from, to time.Time) ([]*models.AssetValue, error) {
	var values []*models.AssetValue
	err := r.series(ctx, assetID, baseAssetID, granularity).
		Where("evaluated_at >= ? AND evaluated_at <= ?", from.UTC(), to.UTC()).
		Order("evaluated_at ASC").
		Find(&values).Error
	if err != nil {
		return nil, translate("list asset values", err)
	}
	return values, nil
}

func (r *assetValueRepository) Count(ctx context.Context, assetID uint64) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.AssetValue{}).Where("asset_id = ?", assetID).Count(&n).Error; err != nil {
		return 0, translate("count asset values", err)
	}
	return n, nil
}

func (r *assetValueRepository) series(ctx context.Context, assetID, baseAssetID uint64, granularity models.Granularity) *gorm.DB {
	return r.db.WithContext(ctx).
		Where("asset_id = ? AND base_asset_id = ? AND granularity = ?", assetID, baseAssetID, granularity)
}

// first returns the first row of query, nil when there is none
func first(query *gorm.DB, op string) (*models.AssetValue, error) {
	var values []*models.AssetValue
	if err := query.Limit(1).Find(&values).Error; err != nil {
		return nil, translate(op, err)
	}
	if len(values) == 0 {
		return nil, nil
	}
	return values[0], nil
}
