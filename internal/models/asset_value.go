package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/tropicaldog17/finledger/internal/errors"
)

// Granularity is the time-bucket width of a price point
type Granularity string

const (
	GranularitySec     Granularity = "1sec"
	GranularityMin     Granularity = "1min"
	GranularityFiveMin Granularity = "5min"
	GranularityHour    Granularity = "1hour"
	GranularityDay     Granularity = "1day"
	GranularityWeek    Granularity = "1week"
	GranularityMonth   Granularity = "1month"
	GranularityYear    Granularity = "1year"
)

// WindowTick is the smallest step between two window bounds. Postgres keeps
// microseconds, so a nanosecond tick would round the upper bound into the next day.
const WindowTick = time.Microsecond

// Stamp normalizes t to the precision the store keeps: UTC, truncated to WindowTick.
func Stamp(t time.Time) time.Time {
	return t.UTC().Truncate(WindowTick)
}

// IsValid checks if the granularity is known
func (g Granularity) IsValid() bool {
	switch g {
	case GranularitySec, GranularityMin, GranularityFiveMin, GranularityHour,
		GranularityDay, GranularityWeek, GranularityMonth, GranularityYear:
		return true
	}
	return false
}

// ParseGranularity accepts stored values ("1day") and short names ("day")
func ParseGranularity(s string) (Granularity, error) {
	aliases := map[string]Granularity{
		"sec": GranularitySec, "min": GranularityMin, "five_min": GranularityFiveMin,
		"hour": GranularityHour, "day": GranularityDay, "week": GranularityWeek,
		"month": GranularityMonth, "year": GranularityYear,
	}
	if g, ok := aliases[s]; ok {
		return g, nil
	}
	if g := Granularity(s); g.IsValid() {
		return g, nil
	}
	return "", fmt.Errorf("unknown granularity %q: %w", s, apperrors.ErrUnsupportedGranularity)
}

// Window returns the inclusive [from, to] bucket containing t.
// Only daily buckets are defined; other granularities fail with ErrUnsupportedGranularity.
func (g Granularity) Window(t time.Time) (time.Time, time.Time, error) {
	switch g {
	case GranularityDay:
		u := t.UTC()
		from := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
		return from, from.AddDate(0, 0, 1).Add(-WindowTick), nil
	}
	return time.Time{}, time.Time{}, fmt.Errorf("window for %q: %w", g, apperrors.ErrUnsupportedGranularity)
}

// AssetValueSource records where a price point came from
type AssetValueSource string

const (
	SourceYahoo    AssetValueSource = "yahoo"
	SourceGoogle   AssetValueSource = "google"
	SourceKofia    AssetValueSource = "kofia"
	SourceTest     AssetValueSource = "test"
	Source8Percent AssetValueSource = "8percent"
	SourceManual   AssetValueSource = "manual"
	SourceProvider AssetValueSource = "provider"
)

// AssetValue is a quote of one asset in a base asset at a point in time.
// Only Close participates in valuation.
type AssetValue struct {
	ID          uint64              `json:"id" gorm:"primaryKey;column:id;autoIncrement"`
	AssetID     uint64              `json:"asset_id" gorm:"column:asset_id;not null;uniqueIndex:uq_asset_value,priority:1"`
	BaseAssetID uint64              `json:"base_asset_id" gorm:"column:base_asset_id;not null;index"`
	EvaluatedAt time.Time           `json:"evaluated_at" gorm:"column:evaluated_at;not null;uniqueIndex:uq_asset_value,priority:2"`
	Granularity Granularity         `json:"granularity" gorm:"column:granularity;type:varchar(10);not null;uniqueIndex:uq_asset_value,priority:3"`
	Source      AssetValueSource    `json:"source" gorm:"column:source;type:varchar(20);not null"`
	Open        decimal.NullDecimal `json:"open" gorm:"column:open;type:decimal(30,18)"`
	High        decimal.NullDecimal `json:"high" gorm:"column:high;type:decimal(30,18)"`
	Low         decimal.NullDecimal `json:"low" gorm:"column:low;type:decimal(30,18)"`
	Close       decimal.Decimal     `json:"close" gorm:"column:close;type:decimal(30,18);not null"`
	Volume      *int64              `json:"volume" gorm:"column:volume"`
}

// TableName returns the table name for the AssetValue model
func (AssetValue) TableName() string {
	return "asset_values"
}

// Validate validates the asset value data
func (v *AssetValue) Validate() error {
	if v.AssetID == 0 {
		return errors.New("asset is required")
	}
	if v.BaseAssetID == 0 {
		return errors.New("base asset is required")
	}
	if v.EvaluatedAt.IsZero() {
		return errors.New("evaluated_at is required")
	}
	if !v.Granularity.IsValid() {
		return fmt.Errorf("invalid granularity %q", v.Granularity)
	}
	if v.Source == "" {
		return errors.New("source is required")
	}
	if v.Close.IsNegative() {
		return errors.New("close must be non-negative")
	}
	return nil
}
