package services

import (
	"context"
	"time"
)

// PriceProvider fetches daily quotes from an external source. Implementations
// return an error wrapping errors.ErrQuoteNotFound when the source has no quote for the day.
type PriceProvider interface {
	Name() string
	FetchDaily(ctx context.Context, symbol, baseSymbol string, date time.Time) (*AssetValueSpec, error)
}

// Clock returns the current time. Services default to time.Now in UTC.
type Clock func() time.Time

func utcNow() time.Time {
	return time.Now().UTC()
}
