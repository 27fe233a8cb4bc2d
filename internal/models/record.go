package models

import (
	"errors"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// RecordType classifies a ledger record
type RecordType string

const (
	RecordTypeDeposit           RecordType = "deposit"
	RecordTypeWithdraw          RecordType = "withdraw"
	RecordTypeBalanceAdjustment RecordType = "balance_adjustment"
)

// Record is a single signed movement of one asset in one account.
//
// (account_id, asset_id, created_at, quantity) is unique. The constraint guards
// against importing the same statement line twice; importers of day-resolution
// data must perturb created_at to keep identical legs apart.
type Record struct {
	ID            uint64          `json:"id" gorm:"primaryKey;column:id;autoIncrement"`
	AccountID     uint64          `json:"account_id" gorm:"column:account_id;not null;uniqueIndex:uq_record_identity,priority:1"`
	AssetID       uint64          `json:"asset_id" gorm:"column:asset_id;not null;uniqueIndex:uq_record_identity,priority:2"`
	CreatedAt     time.Time       `json:"created_at" gorm:"column:created_at;not null;uniqueIndex:uq_record_identity,priority:3"`
	Quantity      decimal.Decimal `json:"quantity" gorm:"column:quantity;type:decimal(30,18);not null;uniqueIndex:uq_record_identity,priority:4"`
	TransactionID *string         `json:"transaction_id" gorm:"column:transaction_id;type:varchar(36);index"`
	Type          RecordType      `json:"type" gorm:"column:type;type:varchar(20);not null"`
	Category      *string         `json:"category" gorm:"column:category;type:varchar(255)"`
}

// TableName returns the table name for the Record model
func (Record) TableName() string {
	return "records"
}

// ResolveRecordType applies the default classification: negative quantities
// withdraw, everything else deposits, unless a balance adjustment is requested.
func ResolveRecordType(quantity decimal.Decimal, requested RecordType) RecordType {
	if requested == RecordTypeBalanceAdjustment {
		return RecordTypeBalanceAdjustment
	}
	if quantity.IsNegative() {
		return RecordTypeWithdraw
	}
	return RecordTypeDeposit
}

// Validate validates the record data
func (r *Record) Validate() error {
	if r.AccountID == 0 {
		return errors.New("account is required")
	}
	if r.AssetID == 0 {
		return errors.New("asset is required")
	}
	if r.CreatedAt.IsZero() {
		return errors.New("created_at is required")
	}
	switch r.Type {
	case RecordTypeDeposit, RecordTypeWithdraw, RecordTypeBalanceAdjustment:
	default:
		return errors.New("invalid record type")
	}
	return nil
}

// Balance maps an asset id to a quantity
type Balance map[uint64]decimal.Decimal

// Get returns the quantity held for an asset, zero when absent
func (b Balance) Get(assetID uint64) decimal.Decimal {
	if q, ok := b[assetID]; ok {
		return q
	}
	return decimal.Zero
}

// AssetIDs returns the asset ids in ascending order
func (b Balance) AssetIDs() []uint64 {
	ids := make([]uint64, 0, len(b))
	for id := range b {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Merge adds other into a new balance, summing quantities per asset.
// Assets that settle to zero are dropped.
func (b Balance) Merge(other Balance) Balance {
	merged := make(Balance, len(b)+len(other))
	for id, q := range b {
		merged[id] = q
	}
	for id, q := range other {
		merged[id] = merged.Get(id).Add(q)
	}
	for id, q := range merged {
		if q.IsZero() {
			delete(merged, id)
		}
	}
	return merged
}

// Equal compares balances by decimal value
func (b Balance) Equal(other Balance) bool {
	if len(b) != len(other) {
		return false
	}
	for id, q := range b {
		o, ok := other[id]
		if !ok || !q.Equal(o) {
			return false
		}
	}
	return true
}

// ReplayBalance folds records, given in creation order, into a balance.
// A balance adjustment replaces the running sum of its asset.
func ReplayBalance(records []*Record, includeZero bool) Balance {
	balance := make(Balance)
	for _, r := range records {
		if r.Type == RecordTypeBalanceAdjustment {
			balance[r.AssetID] = r.Quantity
			continue
		}
		balance[r.AssetID] = balance.Get(r.AssetID).Add(r.Quantity)
	}
	if !includeZero {
		for id, q := range balance {
			if q.IsZero() {
				delete(balance, id)
			}
		}
	}
	return balance
}
