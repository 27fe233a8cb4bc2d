package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	apperrors "github.com/tropicaldog17/finledger/internal/errors"
	"github.com/tropicaldog17/finledger/internal/logger"
	"github.com/tropicaldog17/finledger/internal/models"
)

// RecordSpec is a normalized statement line. Reserved is carried for
// statement formats that have an extra column and is not stored.
type RecordSpec struct {
	Category *string
	Date     time.Time
	Reserved string
	Quantity decimal.Decimal
}

// AssetValueSpec is a normalized price quote
type AssetValueSpec struct {
	EvaluatedAt time.Time
	Granularity models.Granularity
	Open        decimal.NullDecimal
	High        decimal.NullDecimal
	Low         decimal.NullDecimal
	Close       decimal.Decimal
	Volume      *int64
	Source      models.AssetValueSource
}

// RecordImport is one item of a record batch
type RecordImport struct {
	Spec      RecordSpec
	AccountID uint64
	AssetID   uint64
}

// AssetValueImport is one item of a price batch
type AssetValueImport struct {
	Spec        AssetValueSpec
	AssetID     uint64
	BaseAssetID uint64
}

// ImportResult counts the outcome of a batch import
type ImportResult struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}

// Repayment is one installment paid back on a P2P bond
type Repayment struct {
	Date      time.Time
	Principal decimal.Decimal
	Interest  decimal.Decimal
	Tax       decimal.Decimal
	Fees      decimal.Decimal
}

// Returned is the cash that reaches the lender
func (r Repayment) Returned() decimal.Decimal {
	return r.Principal.Add(r.Interest).Sub(r.Tax.Add(r.Fees))
}

// P2PBondSpec describes a P2P loan and its repayment history
type P2PBondSpec struct {
	Name                  string
	Amount                decimal.Decimal
	AnnualPercentageYield decimal.Decimal
	StartedAt             time.Time
	Grade                 string
	Duration              int
	Originator            string
	Repayments            []Repayment
}

// IngestService is the boundary through which normalized records and quotes
// enter the ledger and the price table.
type IngestService struct {
	ledger  *LedgerService
	prices  *PriceTable
	catalog *CatalogService
	log     *zap.Logger
}

// NewIngestService creates a new ingest service
func NewIngestService(ledger *LedgerService, prices *PriceTable, catalog *CatalogService, log *zap.Logger) *IngestService {
	return &IngestService{ledger: ledger, prices: prices, catalog: catalog, log: logger.OrNop(log)}
}

// InsertRecord appends a statement line to an account, optionally under tx
func (s *IngestService) InsertRecord(ctx context.Context, spec RecordSpec, accountID, assetID uint64, tx *models.Transaction) (*models.Record, error) {
	if spec.Date.IsZero() {
		return nil, &apperrors.ErrValidation{Field: "date", Message: "is required"}
	}
	return s.ledger.AddRecord(ctx, RecordInput{
		AccountID:   accountID,
		AssetID:     assetID,
		Quantity:    spec.Quantity,
		CreatedAt:   spec.Date,
		Transaction: tx,
		Category:    spec.Category,
	})
}

func (spec AssetValueSpec) toModel(assetID, baseAssetID uint64) *models.AssetValue {
	granularity := spec.Granularity
	if granularity == "" {
		granularity = models.GranularityDay
	}
	source := spec.Source
	if source == "" {
		source = models.SourceManual
	}
	return &models.AssetValue{
		AssetID:     assetID,
		BaseAssetID: baseAssetID,
		EvaluatedAt: models.Stamp(spec.EvaluatedAt),
		Granularity: granularity,
		Source:      source,
		Open:        spec.Open,
		High:        spec.High,
		Low:         spec.Low,
		Close:       spec.Close,
		Volume:      spec.Volume,
	}
}

// InsertAssetValue stores a quote of assetID in baseAssetID
func (s *IngestService) InsertAssetValue(ctx context.Context, spec AssetValueSpec, assetID, baseAssetID uint64, ignoreIfExists bool) (*models.AssetValue, error) {
	return s.prices.Put(ctx, spec.toModel(assetID, baseAssetID), ignoreIfExists)
}

// ImportRecords inserts a batch of records. Duplicates are logged and
// skipped; any other error stops the batch.
func (s *IngestService) ImportRecords(ctx context.Context, items []RecordImport) (ImportResult, error) {
	var res ImportResult
	for i, item := range items {
		_, err := s.InsertRecord(ctx, item.Spec, item.AccountID, item.AssetID, nil)
		if errors.Is(err, apperrors.ErrDuplicateRecord) {
			s.log.Warn("skipping duplicate record",
				zap.Int("index", i),
				zap.Uint64("account_id", item.AccountID),
				zap.Uint64("asset_id", item.AssetID),
				zap.Time("date", item.Spec.Date),
				zap.String("quantity", item.Spec.Quantity.String()))
			res.Skipped++
			continue
		}
		if err != nil {
			return res, fmt.Errorf("record %d: %w", i, err)
		}
		res.Inserted++
	}
	s.log.Info("records imported", zap.Int("inserted", res.Inserted), zap.Int("skipped", res.Skipped))
	return res, nil
}

// ImportAssetValues inserts a batch of quotes. Duplicates are logged and
// skipped; any other error stops the batch.
func (s *IngestService) ImportAssetValues(ctx context.Context, items []AssetValueImport) (ImportResult, error) {
	var res ImportResult
	for i, item := range items {
		_, err := s.InsertAssetValue(ctx, item.Spec, item.AssetID, item.BaseAssetID, false)
		if errors.Is(err, apperrors.ErrDuplicateRecord) {
			s.log.Warn("skipping duplicate asset value",
				zap.Int("index", i),
				zap.Uint64("asset_id", item.AssetID),
				zap.Time("evaluated_at", item.Spec.EvaluatedAt))
			res.Skipped++
			continue
		}
		if err != nil {
			return res, fmt.Errorf("asset value %d: %w", i, err)
		}
		res.Inserted++
	}
	s.log.Info("asset values imported", zap.Int("inserted", res.Inserted), zap.Int("skipped", res.Skipped))
	return res, nil
}

// ImportP2PBond registers a P2P bond asset, funds it from the checking
// account and replays its repayments. The bond is valued at its remaining
// principal after every repayment.
func (s *IngestService) ImportP2PBond(ctx context.Context, spec P2PBondSpec, checkingID, bondAccountID, baseAssetID uint64) (*models.Asset, error) {
	if !spec.Amount.IsPositive() {
		return nil, &apperrors.ErrValidation{Field: "amount", Message: "must be positive"}
	}

	asset, err := s.catalog.CreateAsset(ctx, &models.Asset{
		Kind: models.AssetKindP2PBond,
		Name: spec.Name,
		Data: models.P2PBondData(spec.Amount, spec.AnnualPercentageYield, spec.StartedAt, map[string]any{
			"grade":      spec.Grade,
			"duration":   spec.Duration,
			"originator": spec.Originator,
		}),
	}, false)
	if err != nil {
		return nil, err
	}
	tracker, _ := asset.PrincipalTracker()

	startedAt := spec.StartedAt.UTC()
	_, _, err = s.ledger.RecordGroup(ctx, &startedAt, []RecordInput{
		{AccountID: checkingID, AssetID: baseAssetID, Quantity: spec.Amount.Neg(), CreatedAt: startedAt},
		{AccountID: bondAccountID, AssetID: asset.ID, Quantity: decimal.NewFromInt(1), CreatedAt: startedAt},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record bond purchase: %w", err)
	}
	if _, err := s.prices.Put(ctx, &models.AssetValue{
		AssetID: asset.ID, BaseAssetID: baseAssetID, EvaluatedAt: startedAt,
		Granularity: models.GranularityDay, Source: models.Source8Percent, Close: tracker.Principal(),
	}, true); err != nil {
		return nil, err
	}

	repaid := decimal.Zero
	for i, r := range spec.Repayments {
		at := r.Date.UTC()
		repaid = repaid.Add(r.Principal)
		if _, _, err := s.ledger.RecordGroup(ctx, &at, []RecordInput{
			{AccountID: checkingID, AssetID: baseAssetID, Quantity: r.Returned(), CreatedAt: at},
		}); err != nil {
			return nil, fmt.Errorf("repayment %d: %w", i, err)
		}
		if _, err := s.prices.Put(ctx, &models.AssetValue{
			AssetID: asset.ID, BaseAssetID: baseAssetID, EvaluatedAt: at,
			Granularity: models.GranularityDay, Source: models.Source8Percent, Close: tracker.Remaining(repaid),
		}, true); err != nil {
			return nil, fmt.Errorf("repayment %d: %w", i, err)
		}
	}

	s.log.Info("p2p bond imported",
		zap.Uint64("asset_id", asset.ID),
		zap.String("name", spec.Name),
		zap.Int("repayments", len(spec.Repayments)))
	return asset, nil
}
