package handlers

import (
	"context"
	"iter"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	apperrors "github.com/tropicaldog17/finledger/internal/errors"
	"github.com/tropicaldog17/finledger/internal/logger"
	"github.com/tropicaldog17/finledger/internal/models"
	"github.com/tropicaldog17/finledger/internal/services"
)

// Valuator answers balance and net worth queries
type Valuator interface {
	AccountBalance(ctx context.Context, accountID uint64, asOf *time.Time) (models.Balance, error)
	AccountNetWorth(ctx context.Context, accountID uint64, q services.NetWorthQuery) (decimal.Decimal, error)
	PortfolioBalance(ctx context.Context, portfolioID uint64, asOf *time.Time) (models.Balance, error)
	PortfolioNetWorth(ctx context.Context, portfolioID uint64, asOf *time.Time, granularity models.Granularity) (decimal.Decimal, error)
	DailyNetWorth(ctx context.Context, portfolioID uint64, from, to time.Time) iter.Seq2[services.DailyNetWorth, error]
}

// AssetLookup resolves assets by symbol
type AssetLookup interface {
	GetAssetBySymbol(ctx context.Context, symbol string) (*models.Asset, error)
}

type ValuationHandler struct {
	valuator Valuator
	assets   AssetLookup
	log      *zap.Logger
}

func NewValuationHandler(valuator Valuator, assets AssetLookup, log *zap.Logger) *ValuationHandler {
	return &ValuationHandler{valuator: valuator, assets: assets, log: logger.OrNop(log)}
}

type netWorthResponse struct {
	AsOf        *time.Time         `json:"as_of,omitempty"`
	Granularity models.Granularity `json:"granularity"`
	NetWorth    decimal.Decimal    `json:"net_worth"`
}

// HandleAccountBalance handles GET /api/accounts/{id}/balance?as_of=
func (h *ValuationHandler) HandleAccountBalance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	asOf, err := queryTime(r, "as_of")
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	balance, err := h.valuator.AccountBalance(r.Context(), id, asOf)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, holdings(balance))
}

// HandleAccountNetWorth handles
// GET /api/accounts/{id}/net-worth?base_asset=KRW&as_of=&granularity=1day&approximation=true
func (h *ValuationHandler) HandleAccountNetWorth(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	q := r.URL.Query()

	query := services.NetWorthQuery{Granularity: models.GranularityDay}
	if query.AsOf, err = queryTime(r, "as_of"); err != nil {
		writeError(w, h.log, err)
		return
	}
	if g := q.Get("granularity"); g != "" {
		if query.Granularity, err = models.ParseGranularity(g); err != nil {
			writeError(w, h.log, err)
			return
		}
	}
	if a := q.Get("approximation"); a != "" {
		if query.Approximation, err = strconv.ParseBool(a); err != nil {
			writeError(w, h.log, &apperrors.ErrValidation{Field: "approximation", Message: "must be a boolean"})
			return
		}
	}
	symbol := q.Get("base_asset")
	if symbol == "" {
		writeError(w, h.log, &apperrors.ErrValidation{Field: "base_asset", Message: "is required"})
		return
	}
	base, err := h.assets.GetAssetBySymbol(r.Context(), symbol)
	if err != nil {
		if !apperrors.IsStorage(err) {
			err = apperrors.ErrInvalidTargetAsset
		}
		writeError(w, h.log, err)
		return
	}
	query.BaseAssetID = base.ID

	nw, err := h.valuator.AccountNetWorth(r.Context(), id, query)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, netWorthResponse{AsOf: query.AsOf, Granularity: query.Granularity, NetWorth: nw})
}

// HandlePortfolioBalance handles GET /api/portfolios/{id}/balance?as_of=
func (h *ValuationHandler) HandlePortfolioBalance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	asOf, err := queryTime(r, "as_of")
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	balance, err := h.valuator.PortfolioBalance(r.Context(), id, asOf)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, holdings(balance))
}

// HandlePortfolioNetWorth handles GET /api/portfolios/{id}/net-worth?as_of=&granularity=
func (h *ValuationHandler) HandlePortfolioNetWorth(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	asOf, err := queryTime(r, "as_of")
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	granularity := models.GranularityDay
	if g := r.URL.Query().Get("granularity"); g != "" {
		if granularity, err = models.ParseGranularity(g); err != nil {
			writeError(w, h.log, err)
			return
		}
	}
	nw, err := h.valuator.PortfolioNetWorth(r.Context(), id, asOf, granularity)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, netWorthResponse{AsOf: asOf, Granularity: granularity, NetWorth: nw})
}

// HandleDailyNetWorth handles GET /api/portfolios/{id}/daily-net-worth?from=2016-01-01&to=2016-02-01
// The range is half-open. The whole series is computed before anything is written.
func (h *ValuationHandler) HandleDailyNetWorth(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	from, err := queryTime(r, "from")
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	to, err := queryTime(r, "to")
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if from == nil || to == nil {
		writeError(w, h.log, &apperrors.ErrValidation{Field: "range", Message: "from and to are required"})
		return
	}

	series := make([]services.DailyNetWorth, 0)
	for point, err := range h.valuator.DailyNetWorth(r.Context(), id, *from, *to) {
		if err != nil {
			writeError(w, h.log, err)
			return
		}
		series = append(series, point)
	}
	writeJSON(w, http.StatusOK, series)
}
