package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// Domain sentinels. Callers match them with errors.Is.
var (
	ErrNotFound               = stderrors.New("not found")
	ErrDuplicateRecord        = stderrors.New("duplicate record")
	ErrAssetValueUnavailable  = stderrors.New("asset value unavailable")
	ErrInvalidTargetAsset     = stderrors.New("invalid target asset")
	ErrUnsupportedGranularity = stderrors.New("unsupported granularity")
	ErrPriceUnavailable       = stderrors.New("price unavailable")
	ErrInsufficientCash       = stderrors.New("insufficient cash")
	ErrTransactionClosed      = stderrors.New("transaction is not open")
	ErrQuoteNotFound          = stderrors.New("quote not found")
)

type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return e.Field + ": " + e.Message
}

// NotFoundError is returned by lookups keyed on a symbolic or numeric identifier.
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s '%s' not found", e.Kind, e.Key)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func AssetNotFound(key string) error {
	return &NotFoundError{Kind: "asset", Key: key}
}

func AccountNotFound(key string) error {
	return &NotFoundError{Kind: "account", Key: key}
}

func PortfolioNotFound(key string) error {
	return &NotFoundError{Kind: "portfolio", Key: key}
}

func TransactionNotFound(key string) error {
	return &NotFoundError{Kind: "transaction", Key: key}
}

func UserNotFound(key string) error {
	return &NotFoundError{Kind: "user", Key: key}
}

// AssetValueUnavailableError describes the price window that could not be served.
type AssetValueUnavailableError struct {
	AssetID     uint64
	BaseAssetID uint64
	From        time.Time
	To          time.Time
}

func (e *AssetValueUnavailableError) Error() string {
	if e.From.IsZero() {
		return fmt.Sprintf("asset value unavailable: asset %d in base %d at or before %s",
			e.AssetID, e.BaseAssetID, e.To.Format(time.RFC3339Nano))
	}
	return fmt.Sprintf("asset value unavailable: asset %d in base %d within [%s, %s]",
		e.AssetID, e.BaseAssetID, e.From.Format(time.RFC3339Nano), e.To.Format(time.RFC3339Nano))
}

func (e *AssetValueUnavailableError) Is(target error) bool {
	return target == ErrAssetValueUnavailable
}

// StorageError wraps a failure of the durable store. It never wraps a domain sentinel.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "storage: " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Storage wraps err as a StorageError. A nil err yields nil.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// IsStorage reports whether err originates from the durable store.
func IsStorage(err error) bool {
	var se *StorageError
	return stderrors.As(err, &se)
}
