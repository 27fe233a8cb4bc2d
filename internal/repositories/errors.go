package repositories

import (
	"fmt"

	"github.com/tropicaldog17/finledger/internal/db"
	apperrors "github.com/tropicaldog17/finledger/internal/errors"
)

// translate maps a gorm/driver error onto the domain taxonomy: unique
// violations become ErrDuplicateRecord, everything else is a StorageError.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%s: %w", op, apperrors.ErrDuplicateRecord)
	}
	return apperrors.Storage(op, err)
}
