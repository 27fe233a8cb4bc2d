package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tropicaldog17/finledger/internal/logger"
	"github.com/tropicaldog17/finledger/internal/models"
	"github.com/tropicaldog17/finledger/internal/services"
)

// Importer stores normalized records and quotes
type Importer interface {
	ImportRecords(ctx context.Context, items []services.RecordImport) (services.ImportResult, error)
	ImportAssetValues(ctx context.Context, items []services.AssetValueImport) (services.ImportResult, error)
}

type IngestHandler struct {
	importer Importer
	assets   AssetLookup
	log      *zap.Logger
}

func NewIngestHandler(importer Importer, assets AssetLookup, log *zap.Logger) *IngestHandler {
	return &IngestHandler{importer: importer, assets: assets, log: logger.OrNop(log)}
}

type recordPayload struct {
	Asset    string          `json:"asset"`
	Date     string          `json:"date"`
	Category *string         `json:"category,omitempty"`
	Quantity decimal.Decimal `json:"quantity"`
}

// HandleImportRecords handles POST /api/accounts/{id}/records with a JSON
// array of statement lines. Lines already stored are skipped.
func (h *IngestHandler) HandleImportRecords(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	var payload []recordPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	ids := make(map[string]uint64)
	items := make([]services.RecordImport, 0, len(payload))
	for _, p := range payload {
		assetID, ok := ids[p.Asset]
		if !ok {
			asset, err := h.assets.GetAssetBySymbol(r.Context(), p.Asset)
			if err != nil {
				writeError(w, h.log, err)
				return
			}
			assetID = asset.ID
			ids[p.Asset] = assetID
		}
		at, err := parseTime("date", p.Date)
		if err != nil {
			writeError(w, h.log, err)
			return
		}
		items = append(items, services.RecordImport{
			Spec:      services.RecordSpec{Category: p.Category, Date: at, Quantity: p.Quantity},
			AccountID: accountID,
			AssetID:   assetID,
		})
	}

	res, err := h.importer.ImportRecords(r.Context(), items)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type quotePayload struct {
	Date   string              `json:"date"`
	Open   decimal.NullDecimal `json:"open"`
	High   decimal.NullDecimal `json:"high"`
	Low    decimal.NullDecimal `json:"low"`
	Close  decimal.Decimal     `json:"close"`
	Volume *int64              `json:"volume,omitempty"`
	Source string              `json:"source,omitempty"`
}

// HandleImportValues handles POST /api/assets/{symbol}/values?base_asset=KRW
// with a JSON array of daily quotes. Quotes already stored are skipped.
func (h *IngestHandler) HandleImportValues(w http.ResponseWriter, r *http.Request) {
	asset, err := h.assets.GetAssetBySymbol(r.Context(), mux.Vars(r)["symbol"])
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	base, err := h.assets.GetAssetBySymbol(r.Context(), r.URL.Query().Get("base_asset"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	var payload []quotePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	items := make([]services.AssetValueImport, 0, len(payload))
	for _, p := range payload {
		at, err := parseTime("date", p.Date)
		if err != nil {
			writeError(w, h.log, err)
			return
		}
		items = append(items, services.AssetValueImport{
			Spec: services.AssetValueSpec{
				EvaluatedAt: at,
				Granularity: models.GranularityDay,
				Open:        p.Open,
				High:        p.High,
				Low:         p.Low,
				Close:       p.Close,
				Volume:      p.Volume,
				Source:      models.AssetValueSource(p.Source),
			},
			AssetID:     asset.ID,
			BaseAssetID: base.ID,
		})
	}

	res, err := h.importer.ImportAssetValues(r.Context(), items)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
