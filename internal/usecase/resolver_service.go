package usecase

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shelfwatch/backend/internal/domain"
	"github.com/shelfwatch/backend/internal/retailer"
)

// Price change rules
const (
	minPriceDelta     = 0.01
	highPriorityDelta = 50.0
	floatEpsilon      = 1e-9

	// partial title matches are held this far below auto-accept
	partialMatchMargin = 0.01
)

// ResolverService classifies candidates against the canonical store and the
// active baseline using six ordered strategies. The first level that matches
// wins; canonical entries are consulted before baseline entries at each level.
type ResolverService struct {
	matcher *MatchingService
	now     func() time.Time
}

// NewResolverService creates a new resolver
func NewResolverService(matcher *MatchingService) *ResolverService {
	if matcher == nil {
		matcher = NewMatchingService(MatchConfig{})
	}
	return &ResolverService{matcher: matcher, now: time.Now}
}

// Normalizer returns the title normalizer shared with catalog indexes
func (s *ResolverService) Normalizer() *TitleNormalizer {
	return s.matcher.Normalizer()
}

type exactLevel struct {
	level      domain.MatchLevel
	confidence float64
	key        func(c domain.Candidate) string
	get        func(l Lookup, key string) (*IndexEntry, bool)
}

var exactLevels = []exactLevel{
	{
		level:      domain.LevelExactURL,
		confidence: domain.ConfidenceExactURL,
		key:        func(c domain.Candidate) string { return strings.TrimSpace(c.URL) },
		get:        Lookup.ByURL,
	},
	{
		level:      domain.LevelNormalizedURL,
		confidence: domain.ConfidenceNormalizedURL,
		key:        func(c domain.Candidate) string { return retailer.NormalizeURL(c.URL) },
		get:        Lookup.ByNormalizedURL,
	},
	{
		level:      domain.LevelProductCode,
		confidence: domain.ConfidenceProductCode,
		key:        func(c domain.Candidate) string { return c.ProductCode },
		get:        Lookup.ByProductCode,
	},
	{
		level:      domain.LevelImageURL,
		confidence: domain.ConfidenceImageURL,
		key:        func(c domain.Candidate) string { return retailer.NormalizeImageURL(c.PrimaryImage()) },
		get:        Lookup.ByImageURL,
	},
}

// Resolve classifies one candidate. Either lookup may be nil.
func (s *ResolverService) Resolve(c domain.Candidate, baseline, canonical Lookup, th retailer.Thresholds) domain.MatchResult {
	result := domain.MatchResult{
		Candidate:      c,
		Classification: domain.ClassNew,
	}

	sources := make([]Lookup, 0, 2)
	for _, l := range []Lookup{canonical, baseline} {
		if l != nil {
			sources = append(sources, l)
		}
	}

	for _, lvl := range exactLevels {
		key := lvl.key(c)
		if key == "" {
			continue
		}
		for _, src := range sources {
			if entry, ok := lvl.get(src, key); ok {
				s.fill(&result, entry, lvl.level, lvl.confidence, 0, false, th)
				return result
			}
		}
	}

	tokens := s.matcher.Normalizer().Tokens(c.Title)
	if len(tokens) == 0 {
		return result
	}

	var best5, best6 fuzzyHit
	for _, src := range sources {
		for _, entry := range src.FuzzyPool(tokens) {
			sim := s.matcher.similarityTokens(tokens, entry.tokens)
			partial := !s.matcher.tokensAgree(tokens, entry.tokens)

			if sim >= th.TitlePrice-floatEpsilon {
				if rel, ok := priceWithin(c.Price, entry.Price, th.PriceTolerance); ok {
					confidence := titlePriceConfidence(sim, rel, th)
					if partial {
						confidence = capPartial(confidence, th.AutoAccept)
					}
					best5.offer(entry, confidence, sim, partial)
				}
			}
			if sim >= th.TitleOnly-floatEpsilon {
				best6.offer(entry, titleOnlyConfidence(sim, th), sim, partial)
			}
		}
	}

	switch {
	case best5.entry != nil:
		s.fill(&result, best5.entry, domain.LevelTitlePriceFuzzy, best5.confidence, best5.similarity, best5.partial, th)
	case best6.entry != nil:
		s.fill(&result, best6.entry, domain.LevelFuzzyTitleOnly, best6.confidence, best6.similarity, best6.partial, th)
	}

	return result
}

// fill records the match and applies the classification and price rules.
// Partial title matches never auto-confirm.
func (s *ResolverService) fill(r *domain.MatchResult, e *IndexEntry, level domain.MatchLevel, confidence, similarity float64, partial bool, th retailer.Thresholds) {
	r.Level = level
	r.Confidence = confidence
	r.Similarity = similarity
	r.MatchedCanonical = e.Canonical
	r.MatchedBaseline = e.Baseline
	r.Classification = classify(level, confidence, th.AutoAccept)
	if partial && r.Classification == domain.ClassConfirmedExisting {
		r.Classification = domain.ClassSuspectedDuplicate
	}

	// Title-only matches only move prices once a reviewer confirms them
	if e.Canonical != nil && level != domain.LevelFuzzyTitleOnly {
		r.PriceChange = PriceChange(r.Candidate, e.Canonical, s.now())
	}
}

// classify applies the auto-accept rule. Title-only matches never auto-confirm.
func classify(level domain.MatchLevel, confidence, autoAccept float64) domain.Classification {
	switch {
	case level == domain.LevelNone:
		return domain.ClassNew
	case level == domain.LevelFuzzyTitleOnly:
		return domain.ClassSuspectedDuplicate
	case confidence >= autoAccept-floatEpsilon:
		return domain.ClassConfirmedExisting
	default:
		return domain.ClassSuspectedDuplicate
	}
}

type fuzzyHit struct {
	entry      *IndexEntry
	confidence float64
	similarity float64
	partial    bool
}

// offer keeps the strictly better hit, so canonical entries seen first win ties
func (h *fuzzyHit) offer(e *IndexEntry, confidence, similarity float64, partial bool) {
	if h.entry == nil || confidence > h.confidence+floatEpsilon {
		h.entry = e
		h.confidence = confidence
		h.similarity = similarity
		h.partial = partial
	}
}

// capPartial holds a partial title match below auto-accept, inside the level's range
func capPartial(confidence, autoAccept float64) float64 {
	return math.Max(domain.ConfidenceTitlePriceMin, math.Min(confidence, autoAccept-partialMatchMargin))
}

// priceWithin reports whether price is within tolerance of stored, and the relative difference
func priceWithin(price, stored, tolerance float64) (float64, bool) {
	if stored <= 0 || price <= 0 {
		return 0, false
	}
	rel := math.Abs(price-stored) / stored
	return rel, rel <= tolerance+floatEpsilon
}

// titlePriceConfidence maps similarity and price agreement onto [0.85, 0.95]
func titlePriceConfidence(sim, rel float64, th retailer.Thresholds) float64 {
	t := scale(sim, th.TitlePrice)
	p := 1.0
	if th.PriceTolerance > 0 {
		p = clamp01(1 - rel/th.PriceTolerance)
	}
	span := domain.ConfidenceTitlePriceMax - domain.ConfidenceTitlePriceMin
	return domain.ConfidenceTitlePriceMin + span*t*p
}

// titleOnlyConfidence maps similarity onto [0.80, 0.90]
func titleOnlyConfidence(sim float64, th retailer.Thresholds) float64 {
	span := domain.ConfidenceTitleOnlyMax - domain.ConfidenceTitleOnlyMin
	return domain.ConfidenceTitleOnlyMin + span*scale(sim, th.TitleOnly)
}

// scale maps [threshold, 1] onto [0, 1]
func scale(sim, threshold float64) float64 {
	if threshold >= 1 {
		return 1
	}
	return clamp01((sim - threshold) / (1 - threshold))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// PriceChange returns an update queue entry when the candidate price differs
// from the stored price by at least one cent, or nil.
func PriceChange(c domain.Candidate, p *domain.CanonicalProduct, at time.Time) *domain.UpdateQueueEntry {
	delta := c.Price - p.Price
	if math.Abs(delta) < minPriceDelta-floatEpsilon {
		return nil
	}

	priority := domain.PriorityNormal
	if math.Abs(delta) > highPriorityDelta {
		priority = domain.PriorityHigh
	}

	direction := "increased"
	if delta < 0 {
		direction = "decreased"
	}

	return &domain.UpdateQueueEntry{
		ID:          uuid.NewString(),
		CanonicalID: p.ID,
		ProductURL:  p.URL,
		Retailer:    p.Retailer,
		Priority:    priority,
		Reason:      fmt.Sprintf("price %s from %.2f to %.2f", direction, p.Price, c.Price),
		OldPrice:    p.Price,
		NewPrice:    c.Price,
		DetectedAt:  at,
	}
}
