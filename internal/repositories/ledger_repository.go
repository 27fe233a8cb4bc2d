package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tropicaldog17/finledger/internal/db"
	apperrors "github.com/tropicaldog17/finledger/internal/errors"
	"github.com/tropicaldog17/finledger/internal/models"
)

type ledgerRepository struct {
	db *db.DB
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(database *db.DB) LedgerRepository {
	return &ledgerRepository{db: database}
}

func (r *ledgerRepository) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	return translate("create transaction", r.db.WithContext(ctx).Create(tx).Error)
}

func (r *ledgerRepository) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	if id == "" {
		return nil, apperrors.TransactionNotFound(id)
	}

	var tx models.Transaction
	if err := r.db.WithContext(ctx).First(&tx, "id = ?", id).Error; err != nil {
		if db.IsNotFound(err) {
			return nil, apperrors.TransactionNotFound(id)
		}
		return nil, translate("get transaction", err)
	}
	return &tx, nil
}

func (r *ledgerRepository) SaveTransaction(ctx context.Context, tx *models.Transaction) error {
	res := r.db.WithContext(ctx).Model(tx).
		Select("name", "state", "closed_at").
		Updates(tx)
	if res.Error != nil {
		return translate("save transaction", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.TransactionNotFound(tx.ID)
	}
	return nil
}

func (r *ledgerRepository) CreateRecord(ctx context.Context, record *models.Record) error {
	record.CreatedAt = models.Stamp(record.CreatedAt)
	return translate("create record", r.db.WithContext(ctx).Create(record).Error)
}

// FindRecord looks a record up by its identity tuple. It returns nil, nil when absent.
func (r *ledgerRepository) FindRecord(ctx context.Context, accountID, assetID uint64, createdAt time.Time, quantity decimal.Decimal) (*models.Record, error) {
	return findRecord(r.db.WithContext(ctx), accountID, assetID, createdAt, quantity)
}

func findRecord(tx *gorm.DB, accountID, assetID uint64, createdAt time.Time, quantity decimal.Decimal) (*models.Record, error) {
	var records []*models.Record
	err := tx.
		Where("account_id = ? AND asset_id = ? AND created_at = ? AND quantity = ?",
			accountID, assetID, models.Stamp(createdAt), quantity).
		Limit(1).
		Find(&records).Error
	if err != nil {
		return nil, translate("find record", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

func (r *ledgerRepository) ListRecords(ctx context.Context, filter RecordFilter) ([]*models.Record, error) {
	query := r.db.WithContext(ctx)
	if len(filter.AccountIDs) > 0 {
		query = query.Where("account_id IN ?", filter.AccountIDs)
	}
	if len(filter.AssetIDs) > 0 {
		query = query.Where("asset_id IN ?", filter.AssetIDs)
	}
	if filter.AsOf != nil {
		query = query.Where("created_at <= ?", filter.AsOf.UTC())
	}

	var records []*models.Record
	if err := query.Order("created_at ASC, id ASC").Find(&records).Error; err != nil {
		return nil, translate("list records", err)
	}
	return records, nil
}

func (r *ledgerRepository) ListTransactionRecords(ctx context.Context, transactionID string) ([]*models.Record, error) {
	var records []*models.Record
	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("created_at ASC, id ASC").
		Find(&records).Error
	if err != nil {
		return nil, translate("list transaction records", err)
	}
	return records, nil
}

// CreateGroup inserts tx and its records atomically: either every record is
// stored or none is.
func (r *ledgerRepository) CreateGroup(ctx context.Context, tx *models.Transaction, records []*models.Record) error {
	err := r.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		if err := gtx.Create(tx).Error; err != nil {
			return translate("create transaction", err)
		}
		for i, rec := range records {
			if rec == nil {
				return fmt.Errorf("nil record at position %d", i)
			}
			rec.CreatedAt = models.Stamp(rec.CreatedAt)
			rec.TransactionID = &tx.ID
			if err := gtx.Create(rec).Error; err != nil {
				return translate(fmt.Sprintf("create record %d of %d", i+1, len(records)), err)
			}
		}
		return nil
	})
	if err != nil {
		// drop ids assigned before the rollback
		for _, rec := range records {
			if rec != nil {
				rec.ID = 0
			}
		}
		return err
	}
	return nil
}
