package repositories

import (
	"context"
	"strconv"

	"github.com/tropicaldog17/finledger/internal/db"
	apperrors "github.com/tropicaldog17/finledger/internal/errors"
	"github.com/tropicaldog17/finledger/internal/models"
)

type assetRepository struct {
	db *db.DB
}

// NewAssetRepository creates a new asset repository
func NewAssetRepository(database *db.DB) AssetRepository {
	return &assetRepository{db: database}
}

func (r *assetRepository) Create(ctx context.Context, asset *models.Asset) error {
	return translate("create asset", r.db.WithContext(ctx).Create(asset).Error)
}

func (r *assetRepository) GetByID(ctx context.Context, id uint64) (*models.Asset, error) {
	var asset models.Asset
	if err := r.db.WithContext(ctx).First(&asset, "id = ?", id).Error; err != nil {
		if db.IsNotFound(err) {
			return nil, apperrors.AssetNotFound(strconv.FormatUint(id, 10))
		}
		return nil, translate("get asset", err)
	}
	return &asset, nil
}

func (r *assetRepository) GetByCode(ctx context.Context, code string) (*models.Asset, error) {
	var asset models.Asset
	if err := r.db.WithContext(ctx).First(&asset, "code = ?", code).Error; err != nil {
		if db.IsNotFound(err) {
			return nil, apperrors.AssetNotFound(code)
		}
		return nil, translate("get asset by code", err)
	}
	return &asset, nil
}

// GetByISIN returns the first asset registered under isin. ISINs are not unique.
func (r *assetRepository) GetByISIN(ctx context.Context, isin string) (*models.Asset, error) {
	var asset models.Asset
	if err := r.db.WithContext(ctx).Order("id ASC").First(&asset, "isin = ?", isin).Error; err != nil {
		if db.IsNotFound(err) {
			return nil, apperrors.AssetNotFound(isin)
		}
		return nil, translate("get asset by isin", err)
	}
	return &asset, nil
}

func (r *assetRepository) List(ctx context.Context) ([]*models.Asset, error) {
	var assets []*models.Asset
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&assets).Error; err != nil {
		return nil, translate("list assets", err)
	}
	return assets, nil
}

// UpdateDescription persists the descriptive fields only; identity is immutable.
func (r *assetRepository) UpdateDescription(ctx context.Context, asset *models.Asset) error {
	res := r.db.WithContext(ctx).Model(asset).
		Select("name", "description", "data").
		Updates(asset)
	if res.Error != nil {
		return translate("update asset", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.AssetNotFound(strconv.FormatUint(asset.ID, 10))
	}
	return nil
}
