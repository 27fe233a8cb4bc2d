package repositories

import (
	"context"
	"fmt"
	"strconv"

	"gorm.io/gorm"

	"github.com/tropicaldog17/finledger/internal/db"
	apperrors "github.com/tropicaldog17/finledger/internal/errors"
	"github.com/tropicaldog17/finledger/internal/models"
)

type accountRepository struct {
	db *db.DB
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(database *db.DB) AccountRepository {
	return &accountRepository{db: database}
}

func (r *accountRepository) CreateUser(ctx context.Context, user *models.User) error {
	return translate("create user", r.db.WithContext(ctx).Create(user).Error)
}

func (r *accountRepository) GetUser(ctx context.Context, id uint64) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if db.IsNotFound(err) {
			return nil, apperrors.UserNotFound(strconv.FormatUint(id, 10))
		}
		return nil, translate("get user", err)
	}
	return &user, nil
}

func (r *accountRepository) Create(ctx context.Context, account *models.Account) error {
	return translate("create account", r.db.WithContext(ctx).Create(account).Error)
}

func (r *accountRepository) GetByID(ctx context.Context, id uint64) (*models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).First(&account, "id = ?", id).Error; err != nil {
		if db.IsNotFound(err) {
			return nil, apperrors.AccountNotFound(strconv.FormatUint(id, 10))
		}
		return nil, translate("get account", err)
	}
	return &account, nil
}

func (r *accountRepository) GetByNumber(ctx context.Context, institution, number string) (*models.Account, error) {
	var account models.Account
	err := r.db.WithContext(ctx).
		First(&account, "institution = ? AND number = ?", institution, number).Error
	if err != nil {
		if db.IsNotFound(err) {
			return nil, apperrors.AccountNotFound(institution + "/" + number)
		}
		return nil, translate("get account by number", err)
	}
	return &account, nil
}

func (r *accountRepository) List(ctx context.Context, userID *uint64) ([]*models.Account, error) {
	query := r.db.WithContext(ctx).Order("id ASC")
	if userID != nil {
		query = query.Where("user_id = ?", *userID)
	}

	var accounts []*models.Account
	if err := query.Find(&accounts).Error; err != nil {
		return nil, translate("list accounts", err)
	}
	return accounts, nil
}

// AssignPortfolio moves the given accounts into a portfolio. An account
// belongs to at most one portfolio, so this also removes it from any other.
func (r *accountRepository) AssignPortfolio(ctx context.Context, portfolioID uint64, accountIDs []uint64) error {
	if len(accountIDs) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).Model(&models.Account{}).
		Where("id IN ?", accountIDs).
		Update("portfolio_id", portfolioID)
	if res.Error != nil {
		return translate("assign portfolio", res.Error)
	}
	if res.RowsAffected != int64(len(accountIDs)) {
		return apperrors.AccountNotFound(fmt.Sprint(accountIDs))
	}
	return nil
}

func (r *accountRepository) CreatePortfolio(ctx context.Context, portfolio *models.Portfolio) error {
	return translate("create portfolio", r.db.WithContext(ctx).Omit("Accounts").Create(portfolio).Error)
}

// GetPortfolio loads a portfolio with its member accounts
func (r *accountRepository) GetPortfolio(ctx context.Context, id uint64) (*models.Portfolio, error) {
	var portfolio models.Portfolio
	err := r.db.WithContext(ctx).
		Preload("Accounts", func(tx *gorm.DB) *gorm.DB { return tx.Order("accounts.id ASC") }).
		First(&portfolio, "id = ?", id).Error
	if err != nil {
		if db.IsNotFound(err) {
			return nil, apperrors.PortfolioNotFound(strconv.FormatUint(id, 10))
		}
		return nil, translate("get portfolio", err)
	}
	return &portfolio, nil
}
