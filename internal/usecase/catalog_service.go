package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/shelfwatch/backend/internal/domain"
	"github.com/shelfwatch/backend/internal/logger"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// CatalogService serves read access to canonical products, the update
// queue and run summaries, plus archival.
type CatalogService struct {
	store   domain.Store
	learner *PatternLearner
	log     logger.Logger
	now     func() time.Time
}

// NewCatalogService creates a new catalog service
func NewCatalogService(store domain.Store, learner *PatternLearner, log logger.Logger) *CatalogService {
	if log == nil {
		log = logger.NewNop()
	}
	return &CatalogService{store: store, learner: learner, log: log, now: time.Now}
}

// ListProducts returns canonical products matching the filter
func (s *CatalogService) ListProducts(ctx context.Context, filter domain.CanonicalFilter) ([]domain.CanonicalProduct, error) {
	if filter.Stage != "" && !filter.Stage.Valid() {
		return nil, fmt.Errorf("%w: unknown lifecycle stage %q", domain.ErrInvalidRequest, filter.Stage)
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	filter.Limit = clampLimit(filter.Limit, defaultListLimit, maxListLimit)
	return s.store.Repositories().Canonical.List(ctx, filter)
}

// GetProduct returns one canonical product
func (s *CatalogService) GetProduct(ctx context.Context, id string) (*domain.CanonicalProduct, error) {
	return s.store.Repositories().Canonical.GetByID(ctx, id)
}

// Archive retires a canonical product. Rows are never deleted.
func (s *CatalogService) Archive(ctx context.Context, id string) (*domain.CanonicalProduct, error) {
	var archived *domain.CanonicalProduct
	err := s.store.WithinTx(ctx, func(tx domain.Repositories) error {
		p, err := advanceStage(ctx, tx, id, domain.StageArchived, s.now())
		archived = p
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("Product archived", logger.String("canonical_id", id))
	return archived, nil
}

// ListUpdates returns queued price changes, newest first
func (s *CatalogService) ListUpdates(ctx context.Context, retailerName string, limit int) ([]domain.UpdateQueueEntry, error) {
	return s.store.Repositories().Updates.List(ctx, retailerName, clampLimit(limit, defaultListLimit, maxListLimit))
}

// GetRun returns one run summary
func (s *CatalogService) GetRun(ctx context.Context, id string) (*domain.RunSummary, error) {
	return s.store.Repositories().Runs.Get(ctx, id)
}

// ListRuns returns run summaries, newest first
func (s *CatalogService) ListRuns(ctx context.Context, retailerName string, limit int) ([]domain.RunSummary, error) {
	return s.store.Repositories().Runs.List(ctx, retailerName, clampLimit(limit, defaultListLimit, maxListLimit))
}

// PatternStats returns the learner's counters for a retailer
func (s *CatalogService) PatternStats(ctx context.Context, retailerName string) ([]domain.PatternStats, error) {
	if s.learner == nil {
		return nil, nil
	}
	return s.learner.Stats(ctx, retailerName)
}
