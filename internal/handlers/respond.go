package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	apperrors "github.com/tropicaldog17/finledger/internal/errors"
	"github.com/tropicaldog17/finledger/internal/models"
)

// Holding is one line of a balance response
type Holding struct {
	AssetID  uint64          `json:"asset_id"`
	Quantity decimal.Decimal `json:"quantity"`
}

func holdings(b models.Balance) []Holding {
	out := make([]Holding, 0, len(b))
	for _, id := range b.AssetIDs() {
		out = append(out, Holding{AssetID: id, Quantity: b[id]})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	var verr *apperrors.ErrValidation
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &verr),
		errors.Is(err, apperrors.ErrInvalidTargetAsset),
		errors.Is(err, apperrors.ErrUnsupportedGranularity):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrDuplicateRecord):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrAssetValueUnavailable),
		errors.Is(err, apperrors.ErrPriceUnavailable),
		errors.Is(err, apperrors.ErrInsufficientCash),
		errors.Is(err, apperrors.ErrTransactionClosed):
		return http.StatusUnprocessableEntity
	case apperrors.IsStorage(err):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	http.Error(w, err.Error(), status)
}

func pathID(r *http.Request, name string) (uint64, error) {
	id, err := strconv.ParseUint(mux.Vars(r)[name], 10, 64)
	if err != nil || id == 0 {
		return 0, &apperrors.ErrValidation{Field: name, Message: "must be a positive integer"}
	}
	return id, nil
}

// parseTime accepts YYYY-MM-DD (midnight UTC) or RFC3339
func parseTime(field, s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, &apperrors.ErrValidation{Field: field, Message: "use YYYY-MM-DD or RFC3339"}
	}
	return t.UTC(), nil
}

func queryTime(r *http.Request, field string) (*time.Time, error) {
	s := r.URL.Query().Get(field)
	if s == "" {
		return nil, nil
	}
	t, err := parseTime(field, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
