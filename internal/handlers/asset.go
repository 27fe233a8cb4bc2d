package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	apperrors "github.com/tropicaldog17/finledger/internal/errors"
	"github.com/tropicaldog17/finledger/internal/logger"
	"github.com/tropicaldog17/finledger/internal/models"
	"github.com/tropicaldog17/finledger/internal/services"
)

// PriceHistory lists stored quotes
type PriceHistory interface {
	Range(ctx context.Context, assetID, baseAssetID uint64, granularity models.Granularity, from, to time.Time) ([]*models.AssetValue, error)
}

// PricePopulator backfills quotes from a provider
type PricePopulator interface {
	Populate(ctx context.Context, assetID, baseAssetID uint64, from, to time.Time) (services.PopulationResult, error)
}

type AssetHandler struct {
	assets    AssetLookup
	prices    PriceHistory
	populator PricePopulator
	log       *zap.Logger
}

// NewAssetHandler creates the asset handler. populator may be nil when no
// price provider is configured.
func NewAssetHandler(assets AssetLookup, prices PriceHistory, populator PricePopulator, log *zap.Logger) *AssetHandler {
	return &AssetHandler{assets: assets, prices: prices, populator: populator, log: logger.OrNop(log)}
}

// HandleAsset handles GET /api/assets/{symbol}
func (h *AssetHandler) HandleAsset(w http.ResponseWriter, r *http.Request) {
	asset, err := h.assets.GetAssetBySymbol(r.Context(), mux.Vars(r)["symbol"])
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

// pair resolves the {symbol} path variable and the base_asset query parameter
func (h *AssetHandler) pair(r *http.Request) (*models.Asset, *models.Asset, error) {
	asset, err := h.assets.GetAssetBySymbol(r.Context(), mux.Vars(r)["symbol"])
	if err != nil {
		return nil, nil, err
	}
	symbol := r.URL.Query().Get("base_asset")
	if symbol == "" {
		return nil, nil, &apperrors.ErrValidation{Field: "base_asset", Message: "is required"}
	}
	base, err := h.assets.GetAssetBySymbol(r.Context(), symbol)
	if err != nil {
		return nil, nil, err
	}
	return asset, base, nil
}

func requiredRange(r *http.Request) (time.Time, time.Time, error) {
	from, err := queryTime(r, "from")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := queryTime(r, "to")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if from == nil || to == nil {
		return time.Time{}, time.Time{}, &apperrors.ErrValidation{Field: "range", Message: "from and to are required"}
	}
	return *from, *to, nil
}

// HandleValues handles GET /api/assets/{symbol}/values?base_asset=KRW&from=&to=
func (h *AssetHandler) HandleValues(w http.ResponseWriter, r *http.Request) {
	asset, base, err := h.pair(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	from, to, err := requiredRange(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	// a date-only upper bound covers that whole day
	if len(r.URL.Query().Get("to")) == len("2006-01-02") {
		_, to, _ = models.GranularityDay.Window(to)
	}

	values, err := h.prices.Range(r.Context(), asset.ID, base.ID, models.GranularityDay, from, to)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, values)
}

// HandlePopulate handles POST /api/assets/{symbol}/populate?base_asset=USD&from=&to=
// Population runs synchronously and reports its counts.
func (h *AssetHandler) HandlePopulate(w http.ResponseWriter, r *http.Request) {
	if h.populator == nil {
		http.Error(w, "price population is not configured", http.StatusNotImplemented)
		return
	}
	asset, base, err := h.pair(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	from, to, err := requiredRange(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	res, err := h.populator.Populate(r.Context(), asset.ID, base.ID, from, to)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
