package models

import (
	"errors"
	"time"
)

// AccountType classifies an account
type AccountType string

// Common account types
const (
	AccountTypeChecking   AccountType = "checking"
	AccountTypeSavings    AccountType = "savings"
	AccountTypeInvestment AccountType = "investment"
	AccountTypeCreditCard AccountType = "credit_card"
	AccountTypeVirtual    AccountType = "virtual"
)

// User owns accounts
type User struct {
	ID         uint64    `json:"id" gorm:"primaryKey;column:id;autoIncrement"`
	GivenName  string    `json:"given_name" gorm:"column:given_name;type:varchar(100)"`
	FamilyName string    `json:"family_name" gorm:"column:family_name;type:varchar(100)"`
	Email      *string   `json:"email" gorm:"column:email;type:varchar(255);uniqueIndex"`
	CreatedAt  time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the table name for the User model
func (User) TableName() string {
	return "users"
}

// Name returns the display name, family name first
func (u *User) Name() string {
	return u.FamilyName + ", " + u.GivenName
}

// Account represents an account where assets are held. It holds no balance:
// balances are always derived from the ledger.
type Account struct {
	ID          uint64      `json:"id" gorm:"primaryKey;column:id;autoIncrement"`
	UserID      *uint64     `json:"user_id" gorm:"column:user_id;index"`
	PortfolioID *uint64     `json:"portfolio_id" gorm:"column:portfolio_id;index"`
	Type        AccountType `json:"type" gorm:"column:type;type:varchar(20);not null"`
	Name        string      `json:"name" gorm:"column:name;type:varchar(100);not null"`
	Institution *string     `json:"institution" gorm:"column:institution;type:varchar(100);uniqueIndex:uq_account_number,priority:1"`
	Number      *string     `json:"number" gorm:"column:number;type:varchar(100);uniqueIndex:uq_account_number,priority:2"`
	Description *string     `json:"description" gorm:"column:description;type:text"`
	CreatedAt   time.Time   `json:"created_at" gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the table name for the Account model
func (Account) TableName() string {
	return "accounts"
}

// Portfolio is a named set of accounts valued in one base asset
type Portfolio struct {
	ID          uint64    `json:"id" gorm:"primaryKey;column:id;autoIncrement"`
	Name        string    `json:"name" gorm:"column:name;type:varchar(100)"`
	Description *string   `json:"description" gorm:"column:description;type:text"`
	BaseAssetID uint64    `json:"base_asset_id" gorm:"column:base_asset_id;not null"`
	Accounts    []Account `json:"accounts,omitempty" gorm:"foreignKey:PortfolioID"`
	CreatedAt   time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the table name for the Portfolio model
func (Portfolio) TableName() string {
	return "portfolios"
}

// AccountIDs returns the ids of the loaded member accounts
func (p *Portfolio) AccountIDs() []uint64 {
	ids := make([]uint64, 0, len(p.Accounts))
	for _, a := range p.Accounts {
		ids = append(ids, a.ID)
	}
	return ids
}

// Validate validates the account data
func (a *Account) Validate() error {
	if a.Name == "" {
		return errors.New("name is required")
	}
	if len(a.Name) > 100 {
		return errors.New("name must be 100 characters or less")
	}
	if !IsValidAccountType(a.Type) {
		return errors.New("invalid account type")
	}
	return nil
}

// Validate validates the portfolio data
func (p *Portfolio) Validate() error {
	if p.BaseAssetID == 0 {
		return errors.New("base asset is required")
	}
	return nil
}

// IsValidAccountType checks if the account type is valid
func IsValidAccountType(accountType AccountType) bool {
	validTypes := []AccountType{
		AccountTypeChecking,
		AccountTypeSavings,
		AccountTypeInvestment,
		AccountTypeCreditCard,
		AccountTypeVirtual,
	}

	for _, validType := range validTypes {
		if accountType == validType {
			return true
		}
	}
	return false
}
