package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	apperrors "github.com/tropicaldog17/finledger/internal/errors"
	"github.com/tropicaldog17/finledger/internal/logger"
	"github.com/tropicaldog17/finledger/internal/models"
	"github.com/tropicaldog17/finledger/internal/repositories"
)

// CatalogService manages master data: users, assets, accounts and portfolios
type CatalogService struct {
	assets   repositories.AssetRepository
	accounts repositories.AccountRepository
	log      *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(assets repositories.AssetRepository, accounts repositories.AccountRepository, log *zap.Logger) *CatalogService {
	return &CatalogService{assets: assets, accounts: accounts, log: logger.OrNop(log)}
}

// CreateUser creates a user
func (s *CatalogService) CreateUser(ctx context.Context, user *models.User) error {
	if err := s.accounts.CreateUser(ctx, user); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// CreateAsset creates an asset. With ignoreIfExists an asset already
// registered under the same code is returned instead.
func (s *CatalogService) CreateAsset(ctx context.Context, asset *models.Asset, ignoreIfExists bool) (*models.Asset, error) {
	if err := asset.Validate(); err != nil {
		return nil, &apperrors.ErrValidation{Field: "asset", Message: err.Error()}
	}
	err := s.assets.Create(ctx, asset)
	if err == nil {
		s.log.Debug("asset created", zap.Uint64("id", asset.ID), zap.String("symbol", asset.Symbol()))
		return asset, nil
	}
	if ignoreIfExists && errors.Is(err, apperrors.ErrDuplicateRecord) && asset.Code != nil {
		return s.assets.GetByCode(ctx, *asset.Code)
	}
	return nil, fmt.Errorf("failed to create asset: %w", err)
}

// GetAsset returns an asset by id
func (s *CatalogService) GetAsset(ctx context.Context, id uint64) (*models.Asset, error) {
	return s.assets.GetByID(ctx, id)
}

// GetAssetBySymbol returns the asset registered under code
func (s *CatalogService) GetAssetBySymbol(ctx context.Context, symbol string) (*models.Asset, error) {
	return s.assets.GetByCode(ctx, symbol)
}

// GetAssetByISIN returns the first asset carrying isin
func (s *CatalogService) GetAssetByISIN(ctx context.Context, isin string) (*models.Asset, error) {
	return s.assets.GetByISIN(ctx, isin)
}

// ListAssets returns all assets
func (s *CatalogService) ListAssets(ctx context.Context) ([]*models.Asset, error) {
	return s.assets.List(ctx)
}

// DescribeAsset updates the descriptive fields of an asset
func (s *CatalogService) DescribeAsset(ctx context.Context, asset *models.Asset) error {
	return s.assets.UpdateDescription(ctx, asset)
}

// CreateAccount creates an account. With ignoreIfExists an account already
// registered under the same institution and number is returned instead.
func (s *CatalogService) CreateAccount(ctx context.Context, account *models.Account, ignoreIfExists bool) (*models.Account, error) {
	if err := account.Validate(); err != nil {
		return nil, &apperrors.ErrValidation{Field: "account", Message: err.Error()}
	}
	err := s.accounts.Create(ctx, account)
	if err == nil {
		return account, nil
	}
	if ignoreIfExists && errors.Is(err, apperrors.ErrDuplicateRecord) && account.Institution != nil && account.Number != nil {
		return s.accounts.GetByNumber(ctx, *account.Institution, *account.Number)
	}
	return nil, fmt.Errorf("failed to create account: %w", err)
}

// GetAccount returns an account by id
func (s *CatalogService) GetAccount(ctx context.Context, id uint64) (*models.Account, error) {
	return s.accounts.GetByID(ctx, id)
}

// ListAccounts returns the accounts of a user, or all accounts when userID is nil
func (s *CatalogService) ListAccounts(ctx context.Context, userID *uint64) ([]*models.Account, error) {
	return s.accounts.List(ctx, userID)
}

// CreatePortfolio creates a portfolio valued in its base asset
func (s *CatalogService) CreatePortfolio(ctx context.Context, portfolio *models.Portfolio) error {
	if err := portfolio.Validate(); err != nil {
		return &apperrors.ErrValidation{Field: "portfolio", Message: err.Error()}
	}
	if _, err := s.assets.GetByID(ctx, portfolio.BaseAssetID); err != nil {
		return fmt.Errorf("portfolio base asset: %w", err)
	}
	if err := s.accounts.CreatePortfolio(ctx, portfolio); err != nil {
		return fmt.Errorf("failed to create portfolio: %w", err)
	}
	return nil
}

// AddAccounts makes the accounts members of a portfolio
func (s *CatalogService) AddAccounts(ctx context.Context, portfolioID uint64, accountIDs ...uint64) error {
	if _, err := s.accounts.GetPortfolio(ctx, portfolioID); err != nil {
		return err
	}
	if err := s.accounts.AssignPortfolio(ctx, portfolioID, accountIDs); err != nil {
		return fmt.Errorf("failed to add accounts to portfolio %d: %w", portfolioID, err)
	}
	s.log.Info("accounts added to portfolio", zap.Uint64("portfolio_id", portfolioID), zap.Uint64s("account_ids", accountIDs))
	return nil
}

// GetPortfolio returns a portfolio with its member accounts
func (s *CatalogService) GetPortfolio(ctx context.Context, id uint64) (*models.Portfolio, error) {
	return s.accounts.GetPortfolio(ctx, id)
}
