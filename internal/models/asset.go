package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AssetKind tags the variant of a fungible unit of value.
type AssetKind string

const (
	AssetKindCurrency  AssetKind = "currency"
	AssetKindStock     AssetKind = "stock"
	AssetKindBond      AssetKind = "bond"
	AssetKindP2PBond   AssetKind = "p2p_bond"
	AssetKindSecurity  AssetKind = "security"
	AssetKindFund      AssetKind = "fund"
	AssetKindCommodity AssetKind = "commodity"
)

// IsValid checks if the asset kind is known
func (k AssetKind) IsValid() bool {
	switch k {
	case AssetKindCurrency, AssetKindStock, AssetKindBond, AssetKindP2PBond,
		AssetKindSecurity, AssetKindFund, AssetKindCommodity:
		return true
	}
	return false
}

// Asset represents a currency, security or any other unit a record can move.
// Only descriptive fields (name, description, data) may change after creation.
type Asset struct {
	ID          uint64         `json:"id" gorm:"primaryKey;column:id;autoIncrement"`
	Kind        AssetKind      `json:"kind" gorm:"column:kind;type:varchar(20);not null;index"`
	Name        string         `json:"name" gorm:"column:name;type:varchar(255)"`
	Code        *string        `json:"code" gorm:"column:code;type:varchar(64);uniqueIndex"`
	ISIN        *string        `json:"isin" gorm:"column:isin;type:varchar(12);index"`
	Description *string        `json:"description" gorm:"column:description;type:text"`
	Data        map[string]any `json:"data,omitempty" gorm:"column:data;type:text;serializer:json"`
	CreatedAt   time.Time      `json:"created_at" gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the table name for the Asset model
func (Asset) TableName() string {
	return "assets"
}

// Validate validates the asset data
func (a *Asset) Validate() error {
	if !a.Kind.IsValid() {
		return fmt.Errorf("invalid asset kind %q", a.Kind)
	}
	if a.Name == "" && (a.Code == nil || *a.Code == "") {
		return errors.New("name or code is required")
	}
	if a.Code != nil && len(*a.Code) > 64 {
		return errors.New("code must be 64 characters or less")
	}
	if a.ISIN != nil && len(*a.ISIN) != 12 {
		return errors.New("isin must be 12 characters")
	}
	return nil
}

// Symbol returns the code when present, the name otherwise.
func (a *Asset) Symbol() string {
	if a.Code != nil && *a.Code != "" {
		return *a.Code
	}
	return a.Name
}

// PrincipalTrackable is implemented by assets whose value is an outstanding
// principal amortized by repayments.
type PrincipalTrackable interface {
	Principal() decimal.Decimal
	AnnualPercentageYield() decimal.Decimal
	StartedAt() time.Time
	Remaining(repaid decimal.Decimal) decimal.Decimal
}

// PrincipalTracker returns the principal view of a P2P bond. Other kinds have none.
func (a *Asset) PrincipalTracker() (PrincipalTrackable, bool) {
	if a.Kind != AssetKindP2PBond {
		return nil, false
	}
	return p2pBond{data: a.Data}, true
}

// P2PBondData builds the Data payload stored for a p2p_bond asset.
func P2PBondData(amount, apy decimal.Decimal, startedAt time.Time, extra map[string]any) map[string]any {
	data := make(map[string]any, len(extra)+3)
	for k, v := range extra {
		data[k] = v
	}
	data["amount"] = amount.String()
	data["annual_percentage_yield"] = apy.String()
	data["started_at"] = startedAt.UTC().Format(time.RFC3339)
	return data
}

type p2pBond struct {
	data map[string]any
}

func (b p2pBond) Principal() decimal.Decimal {
	return decimalField(b.data, "amount")
}

func (b p2pBond) AnnualPercentageYield() decimal.Decimal {
	return decimalField(b.data, "annual_percentage_yield")
}

func (b p2pBond) StartedAt() time.Time {
	s, _ := b.data["started_at"].(string)
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (b p2pBond) Remaining(repaid decimal.Decimal) decimal.Decimal {
	rem := b.Principal().Sub(repaid)
	if rem.IsNegative() {
		return decimal.Zero
	}
	return rem
}

// decimalField reads a decimal stored either as a string or as a JSON number.
func decimalField(data map[string]any, key string) decimal.Decimal {
	switch v := data[key].(type) {
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero
		}
		return d
	case float64:
		return decimal.NewFromFloat(v)
	case int:
		return decimal.NewFromInt(int64(v))
	case int64:
		return decimal.NewFromInt(v)
	}
	return decimal.Zero
}
