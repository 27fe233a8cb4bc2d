package repositories

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tropicaldog17/finledger/internal/models"
)

// AssetRepository defines the interface for asset data operations
type AssetRepository interface {
	Create(ctx context.Context, asset *models.Asset) error
	GetByID(ctx context.Context, id uint64) (*models.Asset, error)
	GetByCode(ctx context.Context, code string) (*models.Asset, error)
	GetByISIN(ctx context.Context, isin string) (*models.Asset, error)
	List(ctx context.Context) ([]*models.Asset, error)
	UpdateDescription(ctx context.Context, asset *models.Asset) error
}

// AccountRepository defines the interface for user, account and portfolio data operations
type AccountRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uint64) (*models.User, error)

	Create(ctx context.Context, account *models.Account) error
	GetByID(ctx context.Context, id uint64) (*models.Account, error)
	GetByNumber(ctx context.Context, institution, number string) (*models.Account, error)
	List(ctx context.Context, userID *uint64) ([]*models.Account, error)
	AssignPortfolio(ctx context.Context, portfolioID uint64, accountIDs []uint64) error

	CreatePortfolio(ctx context.Context, portfolio *models.Portfolio) error
	GetPortfolio(ctx context.Context, id uint64) (*models.Portfolio, error)
}

// RecordFilter narrows a ledger scan
type RecordFilter struct {
	AccountIDs []uint64
	AssetIDs   []uint64
	AsOf       *time.Time
}

// LedgerRepository defines the interface for ledger data operations
type LedgerRepository interface {
	CreateTransaction(ctx context.Context, tx *models.Transaction) error
	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
	SaveTransaction(ctx context.Context, tx *models.Transaction) error

	CreateRecord(ctx context.Context, record *models.Record) error
	FindRecord(ctx context.Context, accountID, assetID uint64, createdAt time.Time, quantity decimal.Decimal) (*models.Record, error)
	// ListRecords returns records in creation order: created_at, then insertion sequence.
	ListRecords(ctx context.Context, filter RecordFilter) ([]*models.Record, error)
	ListTransactionRecords(ctx context.Context, transactionID string) ([]*models.Record, error)
	// CreateGroup stores tx and all of its records in one storage transaction.
	CreateGroup(ctx context.Context, tx *models.Transaction, records []*models.Record) error
}

// AssetValueRepository defines the interface for price table data operations
type AssetValueRepository interface {
	Create(ctx context.Context, value *models.AssetValue) error
	FindByIdentity(ctx context.Context, assetID uint64, evaluatedAt time.Time, granularity models.Granularity) (*models.AssetValue, error)
	// FindLatestInWindow returns the latest point within [from, to], nil when none.
	FindLatestInWindow(ctx context.Context, assetID, baseAssetID uint64, granularity models.Granularity, from, to time.Time) (*models.AssetValue, error)
	// FindNearestPrior returns the latest point at or before asOf, nil when none.
	FindNearestPrior(ctx context.Context, assetID, baseAssetID uint64, granularity models.Granularity, asOf time.Time) (*models.AssetValue, error)
	ListRange(ctx context.Context, assetID, baseAssetID uint64, granularity models.Granularity, from, to time.Time) ([]*models.AssetValue, error)
	Count(ctx context.Context, assetID uint64) (int64, error)
}
