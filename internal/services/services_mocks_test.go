package services

import (
	"context"
	"errors"
	"sync"
	"time"

	apperrors "github.com/tropicaldog17/finledger/internal/errors"
	"github.com/tropicaldog17/finledger/internal/models"
	"github.com/tropicaldog17/finledger/internal/repositories"
)

// ---- Mocks for providers and repositories used in unit tests ----

type mockPriceProvider struct {
	mu     sync.Mutex
	closes map[string]string
	// failures are returned, in order, before any quote is served
	failures []error
	calls    []time.Time
}

func (m *mockPriceProvider) Name() string { return "mock" }

func (m *mockPriceProvider) FetchDaily(ctx context.Context, symbol, baseSymbol string, date time.Time) (*AssetValueSpec, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, date)
	if len(m.failures) > 0 {
		err := m.failures[0]
		m.failures = m.failures[1:]
		return nil, err
	}
	c, ok := m.closes[date.Format("2006-01-02")]
	if !ok {
		return nil, apperrors.ErrQuoteNotFound
	}
	return &AssetValueSpec{
		EvaluatedAt: date,
		Granularity: models.GranularityDay,
		Close:       dec(c),
		Source:      models.SourceProvider,
	}, nil
}

// flakyAssetValueRepository fails the first n creates with a storage error
type flakyAssetValueRepository struct {
	repositories.AssetValueRepository
	n int
}

func (r *flakyAssetValueRepository) Create(ctx context.Context, v *models.AssetValue) error {
	if r.n > 0 {
		r.n--
		return apperrors.Storage("create asset value", errors.New("connection reset"))
	}
	return r.AssetValueRepository.Create(ctx, v)
}

// recordingLedgerRepository remembers the transaction state handed to each
// CreateGroup call and counts SaveTransaction calls
type recordingLedgerRepository struct {
	repositories.LedgerRepository
	groups []models.Transaction
	saves  int
}

func (r *recordingLedgerRepository) CreateGroup(ctx context.Context, tx *models.Transaction, records []*models.Record) error {
	r.groups = append(r.groups, *tx)
	return r.LedgerRepository.CreateGroup(ctx, tx, records)
}

func (r *recordingLedgerRepository) SaveTransaction(ctx context.Context, tx *models.Transaction) error {
	r.saves++
	return r.LedgerRepository.SaveTransaction(ctx, tx)
}
