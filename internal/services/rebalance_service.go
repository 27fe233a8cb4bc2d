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
	"github.com/tropicaldog17/finledger/internal/rebalance"
	"github.com/tropicaldog17/finledger/internal/repositories"
)

// RebalanceRequest selects the holding to rebalance. Targets are keyed by
// asset symbol; the base asset is the cash position.
type RebalanceRequest struct {
	AccountID   uint64
	BaseAssetID uint64
	Targets     map[string]decimal.Decimal
	AsOf        *time.Time
	CashReserve decimal.Decimal
}

// Snapshot is an account holding loaded into a rebalancer
type Snapshot struct {
	Rebalancer *rebalance.Rebalancer
	AsOf       time.Time
	// AssetIDs maps every symbol in the snapshot to its asset
	AssetIDs map[string]uint64
}

// RebalanceService runs the rebalancing calculator against ledger holdings
type RebalanceService struct {
	ledger *LedgerService
	prices *PriceTable
	assets repositories.AssetRepository
	now    Clock
	log    *zap.Logger
}

// NewRebalanceService creates a new rebalance service
func NewRebalanceService(ledger *LedgerService, prices *PriceTable, assets repositories.AssetRepository, log *zap.Logger) *RebalanceService {
	return &RebalanceService{ledger: ledger, prices: prices, assets: assets, now: utcNow, log: logger.OrNop(log)}
}

// WithClock replaces the wall clock used for defaults
func (s *RebalanceService) WithClock(now Clock) *RebalanceService {
	s.now = now
	return s
}

// Snapshot loads the account balance at req.AsOf and prices every held and
// targeted asset with its latest close at or before that time. Assets without
// a price are left unpriced so the calculator can report them.
func (s *RebalanceService) Snapshot(ctx context.Context, req RebalanceRequest) (*Snapshot, error) {
	at := s.now()
	if req.AsOf != nil {
		at = req.AsOf.UTC()
	}
	base, err := s.assets.GetByID(ctx, req.BaseAssetID)
	if err != nil {
		if apperrors.IsStorage(err) {
			return nil, err
		}
		return nil, fmt.Errorf("base asset %d: %w", req.BaseAssetID, apperrors.ErrInvalidTargetAsset)
	}
	cashSymbol := base.Symbol()

	balance, err := s.ledger.Balance(ctx, []uint64{req.AccountID}, &at, false)
	if err != nil {
		return nil, err
	}

	inventory := make(map[string]decimal.Decimal)
	prices := make(map[string]decimal.Decimal)
	ids := map[string]uint64{cashSymbol: base.ID}
	price := func(symbol string, assetID uint64) error {
		v, err := s.prices.LookupNearestPrior(ctx, assetID, base.ID, models.GranularityDay, at)
		if errors.Is(err, apperrors.ErrAssetValueUnavailable) {
			return nil
		}
		if err != nil {
			return err
		}
		prices[symbol] = v.Close
		return nil
	}

	for _, assetID := range balance.AssetIDs() {
		if assetID == base.ID {
			inventory[cashSymbol] = balance[assetID]
			continue
		}
		asset, err := s.assets.GetByID(ctx, assetID)
		if err != nil {
			return nil, err
		}
		symbol := asset.Symbol()
		inventory[symbol] = balance[assetID]
		ids[symbol] = assetID
		if err := price(symbol, assetID); err != nil {
			return nil, err
		}
	}
	for symbol := range req.Targets {
		if _, ok := ids[symbol]; ok {
			continue
		}
		asset, err := s.assets.GetByCode(ctx, symbol)
		if err != nil {
			return nil, fmt.Errorf("target %s: %w", symbol, err)
		}
		ids[symbol] = asset.ID
		if err := price(symbol, asset.ID); err != nil {
			return nil, err
		}
	}

	r, err := rebalance.New(inventory, prices, req.Targets,
		rebalance.WithCashSymbol(cashSymbol),
		rebalance.WithCashReserve(req.CashReserve))
	if err != nil {
		return nil, err
	}
	return &Snapshot{Rebalancer: r, AsOf: at, AssetIDs: ids}, nil
}

// Plan computes the trades that bring the account to its targets
func (s *RebalanceService) Plan(ctx context.Context, req RebalanceRequest) (*Snapshot, rebalance.Plan, error) {
	snap, err := s.Snapshot(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	plan, err := snap.Rebalancer.MakeRebalancingPlan()
	if err != nil {
		return nil, nil, err
	}
	return snap, plan, nil
}

// Execute books plan as one ledger transaction holding a leg per traded
// symbol and a single net cash leg, then applies it to the snapshot. Nothing
// is recorded when the plan would overdraw cash, and the snapshot is left
// as is when booking fails.
func (s *RebalanceService) Execute(ctx context.Context, req RebalanceRequest, snap *Snapshot, plan rebalance.Plan) (*models.Transaction, error) {
	before := snap.Rebalancer.Cash()
	for _, symbol := range plan.Symbols() {
		if _, ok := snap.AssetIDs[symbol]; !ok {
			return nil, apperrors.AssetNotFound(symbol)
		}
	}
	// the snapshot only moves once the legs are booked
	r := snap.Rebalancer.Clone()
	if err := r.ApplyPlan(plan); err != nil {
		return nil, err
	}

	legs := make([]RecordInput, 0, len(plan)+1)
	for _, symbol := range plan.Symbols() {
		if plan[symbol] == 0 {
			continue
		}
		legs = append(legs, RecordInput{
			AccountID: req.AccountID,
			AssetID:   snap.AssetIDs[symbol],
			Quantity:  decimal.NewFromInt(plan[symbol]),
			CreatedAt: snap.AsOf,
		})
	}
	if len(legs) == 0 {
		return nil, nil
	}
	if spent := r.Cash().Sub(before); !spent.IsZero() {
		legs = append(legs, RecordInput{
			AccountID: req.AccountID,
			AssetID:   snap.AssetIDs[r.CashSymbol()],
			Quantity:  spent,
			CreatedAt: snap.AsOf,
		})
	}

	tx, _, err := s.ledger.RecordGroup(ctx, &snap.AsOf, legs)
	if err != nil {
		return nil, err
	}
	snap.Rebalancer = r
	s.log.Info("rebalancing plan executed",
		zap.Uint64("account_id", req.AccountID),
		zap.String("transaction_id", tx.ID),
		zap.Int("legs", len(legs)),
		zap.String("cash_before", before.String()),
		zap.String("cash_after", snap.Rebalancer.Cash().String()))
	return tx, nil
}
