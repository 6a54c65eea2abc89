package usecase

import (
	"context"
	"sort"

	"github.com/shelfwatch/backend/internal/domain"
	"github.com/shelfwatch/backend/internal/logger"
	"github.com/shelfwatch/backend/internal/retailer"
)

const defaultExploreEvery = 10

// PatternLearner orders a retailer's providers by how often each one has
// produced valid records, and feeds field-level outcomes back into the store.
type PatternLearner struct {
	store        domain.PatternStore
	exploreEvery int64
	log          logger.Logger
}

// NewPatternLearner creates a learner. exploreEvery <= 0 uses the default.
func NewPatternLearner(store domain.PatternStore, exploreEvery int, log logger.Logger) *PatternLearner {
	if exploreEvery <= 0 {
		exploreEvery = defaultExploreEvery
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &PatternLearner{store: store, exploreEvery: int64(exploreEvery), log: log}
}

// Order returns the provider names to try, best first. Retailers flagged as
// anti-automation go straight to the browser tier. Every exploreEvery-th
// call for a retailer demotes the learned best provider by one slot so a
// provider whose rate has recovered can be noticed.
func (l *PatternLearner) Order(ctx context.Context, profile *retailer.Profile) []string {
	if profile.AntiAutomation {
		return []string{domain.ProviderBrowser}
	}

	order := append([]string(nil), profile.Providers...)
	if len(order) < 2 || l.store == nil {
		return order
	}

	stats, err := l.store.Stats(ctx, profile.Name)
	if err != nil {
		l.log.Warn("Pattern stats unavailable, using configured order",
			logger.String("retailer", profile.Name),
			logger.Error(err),
		)
		return order
	}

	rates := make(map[string]float64, len(order))
	for _, name := range order {
		rates[name] = domain.PatternStats{}.SuccessRate()
	}
	for _, s := range stats {
		if s.Field == domain.FieldRecord {
			rates[s.Provider] = s.SuccessRate()
		}
	}

	// Stable keeps the configured order between providers with equal rates
	sort.SliceStable(order, func(i, j int) bool {
		return rates[order[i]] > rates[order[j]]
	})

	seq, err := l.store.NextSequence(ctx, profile.Name)
	if err != nil {
		l.log.Warn("Pattern sequence unavailable",
			logger.String("retailer", profile.Name),
			logger.Error(err),
		)
		return order
	}
	if seq%l.exploreEvery == 0 {
		order[0], order[1] = order[1], order[0]
		l.log.Debug("Exploring demoted provider order",
			logger.String("retailer", profile.Name),
			logger.Strings("order", order),
		)
	}

	return order
}

// Observe records one validation report against the provider's counters
func (l *PatternLearner) Observe(ctx context.Context, retailerName, provider string, fields FieldReport) {
	if l.store == nil {
		return
	}
	for field, ok := range fields {
		if err := l.store.Record(ctx, retailerName, provider, field, ok); err != nil {
			l.log.Warn("Failed to record pattern outcome",
				logger.String("retailer", retailerName),
				logger.String("provider", provider),
				logger.String("field", string(field)),
				logger.Error(err),
			)
		}
	}
}

// Stats returns the raw counters for a retailer
func (l *PatternLearner) Stats(ctx context.Context, retailerName string) ([]domain.PatternStats, error) {
	if l.store == nil {
		return nil, nil
	}
	return l.store.Stats(ctx, retailerName)
}
