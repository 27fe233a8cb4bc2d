package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	apperrors "github.com/tropicaldog17/finledger/internal/errors"
	"github.com/tropicaldog17/finledger/internal/models"
	"github.com/tropicaldog17/finledger/internal/repositories"
)

// RecordInput describes one ledger movement to append
type RecordInput struct {
	AccountID uint64
	AssetID   uint64
	Quantity  decimal.Decimal
	// CreatedAt defaults to now
	CreatedAt   time.Time
	Transaction *models.Transaction
	Category    *string
	// Type is inferred from the quantity sign unless balance_adjustment is requested
	Type           models.RecordType
	IgnoreIfExists bool
}

// LedgerService appends records, groups them into transactions and replays
// them into balances.
type LedgerService struct {
	repo repositories.LedgerRepository
	now  Clock
}

// NewLedgerService creates a new ledger service
func NewLedgerService(repo repositories.LedgerRepository) *LedgerService {
	return &LedgerService{repo: repo, now: utcNow}
}

// WithClock replaces the wall clock used for defaults
func (s *LedgerService) WithClock(now Clock) *LedgerService {
	s.now = now
	return s
}

func (s *LedgerService) at(t *time.Time) time.Time {
	if t == nil || t.IsZero() {
		return models.Stamp(s.now())
	}
	return models.Stamp(*t)
}

// OpenTransaction starts a new initiated transaction
func (s *LedgerService) OpenTransaction(ctx context.Context, initiatedAt *time.Time) (*models.Transaction, error) {
	tx := &models.Transaction{
		ID:          uuid.NewString(),
		State:       models.TransactionStateInitiated,
		InitiatedAt: s.at(initiatedAt),
	}
	if err := s.repo.CreateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to open transaction: %w", err)
	}
	return tx, nil
}

// CloseTransaction marks an initiated transaction closed. t is only updated
// once the new state is stored.
func (s *LedgerService) CloseTransaction(ctx context.Context, t *models.Transaction, closedAt *time.Time) error {
	if t == nil {
		return &apperrors.ErrValidation{Field: "transaction", Message: "is required"}
	}
	next := *t
	if err := next.Close(s.at(closedAt)); err != nil {
		return fmt.Errorf("transaction %s: %w", t.ID, err)
	}
	if err := s.repo.SaveTransaction(ctx, &next); err != nil {
		return fmt.Errorf("failed to close transaction: %w", err)
	}
	*t = next
	return nil
}

// WithinTransaction opens a transaction, runs fn and closes the transaction on
// every way out of fn, panics included. fn may close it itself.
func (s *LedgerService) WithinTransaction(ctx context.Context, initiatedAt *time.Time, fn func(t *models.Transaction) error) error {
	t, err := s.OpenTransaction(ctx, initiatedAt)
	if err != nil {
		return err
	}

	closeOpen := func() error {
		if !t.IsOpen() {
			return nil
		}
		return s.CloseTransaction(ctx, t, nil)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = closeOpen()
			panic(p)
		}
	}()

	fnErr := fn(t)
	return errors.Join(fnErr, closeOpen())
}

func (s *LedgerService) newRecord(in RecordInput) (*models.Record, error) {
	if in.Transaction != nil && !in.Transaction.IsOpen() {
		return nil, fmt.Errorf("transaction %s: %w", in.Transaction.ID, apperrors.ErrTransactionClosed)
	}
	rec := &models.Record{
		AccountID: in.AccountID,
		AssetID:   in.AssetID,
		CreatedAt: s.at(&in.CreatedAt),
		Quantity:  in.Quantity,
		Type:      models.ResolveRecordType(in.Quantity, in.Type),
		Category:  in.Category,
	}
	if in.Transaction != nil {
		id := in.Transaction.ID
		rec.TransactionID = &id
	}
	if err := rec.Validate(); err != nil {
		return nil, &apperrors.ErrValidation{Field: "record", Message: err.Error()}
	}
	return rec, nil
}

// AddRecord appends a record. A record with the same account, asset,
// timestamp and quantity fails with ErrDuplicateRecord, or is returned as is
// when IgnoreIfExists is set.
func (s *LedgerService) AddRecord(ctx context.Context, in RecordInput) (*models.Record, error) {
	rec, err := s.newRecord(in)
	if err != nil {
		return nil, err
	}

	err = s.repo.CreateRecord(ctx, rec)
	if err == nil {
		return rec, nil
	}
	if in.IgnoreIfExists && errors.Is(err, apperrors.ErrDuplicateRecord) {
		existing, findErr := s.repo.FindRecord(ctx, rec.AccountID, rec.AssetID, rec.CreatedAt, rec.Quantity)
		if findErr != nil {
			return nil, findErr
		}
		if existing != nil {
			return existing, nil
		}
	}
	return nil, err
}

// Deposit records a movement whose type follows the quantity sign
func (s *LedgerService) Deposit(ctx context.Context, accountID, assetID uint64, quantity decimal.Decimal, at time.Time, t *models.Transaction) (*models.Record, error) {
	return s.AddRecord(ctx, RecordInput{AccountID: accountID, AssetID: assetID, Quantity: quantity, CreatedAt: at, Transaction: t})
}

// BalanceAdjustment sets the holding of an asset to quantity from at onwards
func (s *LedgerService) BalanceAdjustment(ctx context.Context, accountID, assetID uint64, quantity decimal.Decimal, at time.Time, t *models.Transaction) (*models.Record, error) {
	return s.AddRecord(ctx, RecordInput{
		AccountID:   accountID,
		AssetID:     assetID,
		Quantity:    quantity,
		CreatedAt:   at,
		Transaction: t,
		Type:        models.RecordTypeBalanceAdjustment,
	})
}

// RecordGroup stores legs under a new, closed transaction in a single storage
// transaction. Legs flagged IgnoreIfExists that are already
// stored are returned in place of a new record.
func (s *LedgerService) RecordGroup(ctx context.Context, initiatedAt *time.Time, legs []RecordInput) (*models.Transaction, []*models.Record, error) {
	if len(legs) == 0 {
		return nil, nil, &apperrors.ErrValidation{Field: "legs", Message: "at least one record is required"}
	}

	tx := &models.Transaction{
		ID:          uuid.NewString(),
		State:       models.TransactionStateInitiated,
		InitiatedAt: s.at(initiatedAt),
	}

	result := make([]*models.Record, len(legs))
	pending := make([]*models.Record, 0, len(legs))
	for i, leg := range legs {
		leg.Transaction = tx
		rec, err := s.newRecord(leg)
		if err != nil {
			return nil, nil, fmt.Errorf("leg %d: %w", i, err)
		}
		if leg.IgnoreIfExists {
			existing, err := s.repo.FindRecord(ctx, rec.AccountID, rec.AssetID, rec.CreatedAt, rec.Quantity)
			if err != nil {
				return nil, nil, err
			}
			if existing != nil {
				result[i] = existing
				continue
			}
		}
		result[i] = rec
		pending = append(pending, rec)
	}

	// stored already closed, together with its legs
	if err := tx.Close(s.at(nil)); err != nil {
		return nil, nil, err
	}
	if err := s.repo.CreateGroup(ctx, tx, pending); err != nil {
		return nil, nil, fmt.Errorf("failed to record transaction: %w", err)
	}
	return tx, result, nil
}

// TransactionRecords lists the records grouped under a transaction
func (s *LedgerService) TransactionRecords(ctx context.Context, transactionID string) ([]*models.Record, error) {
	if _, err := s.repo.GetTransaction(ctx, transactionID); err != nil {
		return nil, err
	}
	return s.repo.ListTransactionRecords(ctx, transactionID)
}

// Balance replays the records of accountIDs created at or before asOf (now
// when nil) and sums the per-account results. A balance adjustment only resets
// its own account. Assets that net to zero are left out unless includeZero is set.
func (s *LedgerService) Balance(ctx context.Context, accountIDs []uint64, asOf *time.Time, includeZero bool) (models.Balance, error) {
	balance := make(models.Balance)
	if len(accountIDs) == 0 {
		return balance, nil
	}
	at := s.at(asOf)
	records, err := s.repo.ListRecords(ctx, repositories.RecordFilter{AccountIDs: accountIDs, AsOf: &at})
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}

	byAccount := make(map[uint64][]*models.Record)
	for _, r := range records {
		byAccount[r.AccountID] = append(byAccount[r.AccountID], r)
	}
	for _, recs := range byAccount {
		for assetID, q := range models.ReplayBalance(recs, true) {
			balance[assetID] = balance.Get(assetID).Add(q)
		}
	}
	if !includeZero {
		for assetID, q := range balance {
			if q.IsZero() {
				delete(balance, assetID)
			}
		}
	}
	return balance, nil
}
