// Package patternstore holds the pattern learner's success counters.
package patternstore

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/shelfwatch/backend/internal/domain"
)

type counterKey struct {
	retailer string
	provider string
	field    domain.PatternField
}

type counter struct {
	attempts  atomic.Int64
	successes atomic.Int64
}

// MemoryStore keeps counters in process. Increments are atomic; the map
// lock is only taken to create a counter.
type MemoryStore struct {
	mu       sync.RWMutex
	counters map[counterKey]*counter
	seq      map[string]*atomic.Int64
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counters: make(map[counterKey]*counter),
		seq:      make(map[string]*atomic.Int64),
	}
}

func (s *MemoryStore) counter(k counterKey) *counter {
	s.mu.RLock()
	c, ok := s.counters[k]
	s.mu.RUnlock()
	if ok {
		return c
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok = s.counters[k]; !ok {
		c = &counter{}
		s.counters[k] = c
	}
	return c
}

// Record counts one attempt for (retailer, provider, field)
func (s *MemoryStore) Record(_ context.Context, retailer, provider string, field domain.PatternField, success bool) error {
	c := s.counter(counterKey{retailer: retailer, provider: provider, field: field})
	c.attempts.Add(1)
	if success {
		c.successes.Add(1)
	}
	return nil
}

// Stats returns all counters for a retailer sorted by provider and field
func (s *MemoryStore) Stats(_ context.Context, retailer string) ([]domain.PatternStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.PatternStats, 0)
	for k, c := range s.counters {
		if k.retailer != retailer {
			continue
		}
		out = append(out, domain.PatternStats{
			Retailer:  k.retailer,
			Provider:  k.provider,
			Field:     k.field,
			Attempts:  c.attempts.Load(),
			Successes: c.successes.Load(),
		})
	}
	sortStats(out)
	return out, nil
}

// NextSequence increments and returns the retailer's attempt sequence
func (s *MemoryStore) NextSequence(_ context.Context, retailer string) (int64, error) {
	s.mu.RLock()
	n, ok := s.seq[retailer]
	s.mu.RUnlock()
	if !ok {
		s.mu.Lock()
		if n, ok = s.seq[retailer]; !ok {
			n = &atomic.Int64{}
			s.seq[retailer] = n
		}
		s.mu.Unlock()
	}
	return n.Add(1), nil
}

func sortStats(stats []domain.PatternStats) {
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Provider != stats[j].Provider {
			return stats[i].Provider < stats[j].Provider
		}
		return stats[i].Field < stats[j].Field
	})
}
