package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	apperrors "github.com/tropicaldog17/finledger/internal/errors"
	"github.com/tropicaldog17/finledger/internal/logger"
	"github.com/tropicaldog17/finledger/internal/models"
	"github.com/tropicaldog17/finledger/internal/rebalance"
	"github.com/tropicaldog17/finledger/internal/services"
)

// AccountRebalancer plans and books rebalancing trades on an account
type AccountRebalancer interface {
	Plan(ctx context.Context, req services.RebalanceRequest) (*services.Snapshot, rebalance.Plan, error)
	Execute(ctx context.Context, req services.RebalanceRequest, snap *services.Snapshot, plan rebalance.Plan) (*models.Transaction, error)
}

type RebalanceHandler struct {
	service AccountRebalancer
	assets  AssetLookup
	log     *zap.Logger
}

func NewRebalanceHandler(service AccountRebalancer, assets AssetLookup, log *zap.Logger) *RebalanceHandler {
	return &RebalanceHandler{service: service, assets: assets, log: logger.OrNop(log)}
}

type rebalanceRequest struct {
	Inventory   map[string]decimal.Decimal `json:"inventory"`
	Prices      map[string]decimal.Decimal `json:"prices"`
	Targets     map[string]decimal.Decimal `json:"targets"`
	CashSymbol  string                     `json:"cash_symbol,omitempty"`
	CashReserve decimal.Decimal            `json:"cash_reserve"`
}

type rebalanceResponse struct {
	NetAssetValue  decimal.Decimal            `json:"net_asset_value"`
	CurrentWeights map[string]decimal.Decimal `json:"current_weights"`
	Plan           rebalance.Plan             `json:"plan"`
	Inventory      map[string]decimal.Decimal `json:"inventory"`
	Cash           decimal.Decimal            `json:"cash"`
	TransactionID  string                     `json:"transaction_id,omitempty"`
}

func summarize(r *rebalance.Rebalancer, plan rebalance.Plan) (*rebalanceResponse, error) {
	nav, err := r.NetAssetValue()
	if err != nil {
		return nil, err
	}
	weights, err := r.CurrentWeights()
	if err != nil {
		return nil, err
	}
	if err := r.ApplyPlan(plan); err != nil {
		return nil, err
	}
	return &rebalanceResponse{
		NetAssetValue:  nav,
		CurrentWeights: weights,
		Plan:           plan,
		Inventory:      r.Inventory(),
		Cash:           r.Cash(),
	}, nil
}

// HandleCalculate handles POST /api/rebalance. It runs the calculator on the
// posted snapshot and returns the plan with the holdings it would leave.
func (h *RebalanceHandler) HandleCalculate(w http.ResponseWriter, r *http.Request) {
	var payload rebalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	opts := []rebalance.Option{rebalance.WithCashReserve(payload.CashReserve)}
	if payload.CashSymbol != "" {
		opts = append(opts, rebalance.WithCashSymbol(payload.CashSymbol))
	}
	calc, err := rebalance.New(payload.Inventory, payload.Prices, payload.Targets, opts...)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	plan, err := calc.MakeRebalancingPlan()
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	resp, err := summarize(calc, plan)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type accountRebalanceRequest struct {
	BaseAsset   string                     `json:"base_asset"`
	Targets     map[string]decimal.Decimal `json:"targets"`
	AsOf        *time.Time                 `json:"as_of,omitempty"`
	CashReserve decimal.Decimal            `json:"cash_reserve"`
	Execute     bool                       `json:"execute"`
}

// HandleAccountRebalance handles POST /api/accounts/{id}/rebalance. Holdings
// and prices come from the ledger; with execute set the plan is booked.
func (h *RebalanceHandler) HandleAccountRebalance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	var payload accountRebalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if payload.BaseAsset == "" {
		writeError(w, h.log, &apperrors.ErrValidation{Field: "base_asset", Message: "is required"})
		return
	}
	base, err := h.assets.GetAssetBySymbol(r.Context(), payload.BaseAsset)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	req := services.RebalanceRequest{
		AccountID:   id,
		BaseAssetID: base.ID,
		Targets:     payload.Targets,
		AsOf:        payload.AsOf,
		CashReserve: payload.CashReserve,
	}
	snap, plan, err := h.service.Plan(r.Context(), req)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	if !payload.Execute {
		resp, err := summarize(snap.Rebalancer, plan)
		if err != nil {
			writeError(w, h.log, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	nav, err := snap.Rebalancer.NetAssetValue()
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	weights, err := snap.Rebalancer.CurrentWeights()
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	tx, err := h.service.Execute(r.Context(), req, snap, plan)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	resp := &rebalanceResponse{
		NetAssetValue:  nav,
		CurrentWeights: weights,
		Plan:           plan,
		Inventory:      snap.Rebalancer.Inventory(),
		Cash:           snap.Rebalancer.Cash(),
	}
	status := http.StatusOK
	if tx != nil {
		resp.TransactionID = tx.ID
		status = http.StatusCreated
	}
	writeJSON(w, status, resp)
}
