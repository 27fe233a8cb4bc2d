package models

import (
	"time"

	apperrors "github.com/tropicaldog17/finledger/internal/errors"
)

// TransactionState is the lifecycle state of a ledger transaction
type TransactionState string

const (
	TransactionStateInitiated TransactionState = "initiated"
	TransactionStateClosed    TransactionState = "closed"
	TransactionStatePending   TransactionState = "pending"
	TransactionStateInvalid   TransactionState = "invalid"
)

// Transaction groups the records of one economic event, e.g. "sell gold, deposit cash".
// Records of an initiated transaction are already visible to balance queries.
type Transaction struct {
	ID          string           `json:"id" gorm:"primaryKey;column:id;type:varchar(36)"`
	Name        *string          `json:"name" gorm:"column:name;type:varchar(255)"`
	State       TransactionState `json:"state" gorm:"column:state;type:varchar(20);not null;default:'initiated'"`
	InitiatedAt time.Time        `json:"initiated_at" gorm:"column:initiated_at;not null"`
	ClosedAt    *time.Time       `json:"closed_at" gorm:"column:closed_at"`
}

// TableName returns the table name for the Transaction model
func (Transaction) TableName() string {
	return "ledger_transactions"
}

// IsOpen reports whether records may still join the transaction
func (t *Transaction) IsOpen() bool {
	return t.State == TransactionStateInitiated
}

// Close moves an initiated transaction to closed. Any other state is rejected,
// so closed_at is set exactly once.
func (t *Transaction) Close(closedAt time.Time) error {
	if !t.IsOpen() {
		return apperrors.ErrTransactionClosed
	}
	at := closedAt.UTC()
	t.ClosedAt = &at
	t.State = TransactionStateClosed
	return nil
}
