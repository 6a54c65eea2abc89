package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shelfwatch/backend/internal/domain"
	"github.com/shelfwatch/backend/internal/logger"
	"github.com/shelfwatch/backend/internal/retailer"
)

const defaultAttemptTimeout = 45 * time.Second

// CascadeServiceConfig holds configuration for the extraction cascade
type CascadeServiceConfig struct {
	MinValidRatio     float64
	ExploreEvery      int
	GlobalConcurrency int
	AttemptTimeout    time.Duration

	// CacheEnabled turns on the extraction cache. It is ignored in production.
	CacheEnabled bool
	CacheTTL     time.Duration
	Production   bool
}

// CascadeService tries a retailer's providers in learned order until one
// returns output that passes validation.
type CascadeService struct {
	registry       *retailer.Registry
	providers      map[string]domain.Provider
	validator      *Validator
	learner        *PatternLearner
	limiter        *Limiter
	cache          domain.CacheRepository
	cacheTTL       time.Duration
	useCache       bool
	attemptTimeout time.Duration
	metrics        Metrics
	log            logger.Logger
	now            func() time.Time
}

// NewCascadeService creates a new cascade with dependencies
func NewCascadeService(
	registry *retailer.Registry,
	providers []domain.Provider,
	patterns domain.PatternStore,
	cache domain.CacheRepository,
	config CascadeServiceConfig,
	metrics Metrics,
	log logger.Logger,
) *CascadeService {
	if log == nil {
		log = logger.NewNop()
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}

	byName := make(map[string]domain.Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}

	timeout := config.AttemptTimeout
	if timeout <= 0 {
		timeout = defaultAttemptTimeout
	}

	return &CascadeService{
		registry:       registry,
		providers:      byName,
		validator:      NewValidator(config.MinValidRatio),
		learner:        NewPatternLearner(patterns, config.ExploreEvery, log),
		limiter:        NewLimiter(config.GlobalConcurrency),
		cache:          cache,
		cacheTTL:       config.CacheTTL,
		useCache:       config.CacheEnabled && !config.Production && cache != nil && config.CacheTTL > 0,
		attemptTimeout: timeout,
		metrics:        metrics,
		log:            log,
		now:            time.Now,
	}
}

// Learner returns the pattern learner the cascade reports to
func (s *CascadeService) Learner() *PatternLearner {
	return s.learner
}

// Extract runs the cascade for one target. When every provider fails the
// error is a *domain.ExtractionFailure carrying the attempt log.
// Flow: check cache -> providers in learned order -> validate -> cache -> return
func (s *CascadeService) Extract(ctx context.Context, target domain.Target, mode domain.Mode) (*domain.ExtractionResult, error) {
	if strings.TrimSpace(target.URL) == "" {
		return nil, fmt.Errorf("%w: target url is required", domain.ErrInvalidRequest)
	}
	profile, err := s.registry.Get(target.Retailer)
	if err != nil {
		return nil, err
	}

	cacheKey := generateCacheKey(target, mode)
	if cached := s.getFromCache(ctx, cacheKey); cached != nil {
		return cached, nil
	}

	log := s.log.With(
		logger.String("retailer", profile.Name),
		logger.String("mode", string(mode)),
		logger.String("url", target.URL),
	)

	failure := &domain.ExtractionFailure{Target: target, Mode: mode}
	for _, name := range s.learner.Order(ctx, profile) {
		provider, ok := s.providers[name]
		if !ok {
			failure.Attempts = append(failure.Attempts, domain.Attempt{
				Provider: name,
				Outcome:  domain.AttemptError,
				Reason:   "provider not configured",
			})
			s.learner.Observe(ctx, profile.Name, name, FieldReport{domain.FieldRecord: false})
			log.Warn("Provider not configured", logger.String("provider", name))
			continue
		}

		attempt, payload, err := s.attempt(ctx, profile, provider, target, mode)
		if err != nil {
			// Cancellation stops the cascade; nothing else does
			return nil, err
		}
		failure.Attempts = append(failure.Attempts, attempt)
		failure.Cost += attempt.Cost

		if attempt.Outcome != domain.AttemptAccepted {
			continue
		}

		s.enrich(payload, profile, target, provider.Name())
		result := &domain.ExtractionResult{
			Payload:  payload,
			Provider: provider.Name(),
			Attempts: failure.Attempts,
			Cost:     failure.Cost,
		}
		s.setInCache(ctx, cacheKey, result)
		return result, nil
	}

	log.Warn("Extraction cascade exhausted",
		logger.Int("attempts", len(failure.Attempts)),
		logger.Float64("cost", failure.Cost),
	)
	return nil, failure
}

// attempt runs one provider under the limiter and validates its output.
// The returned error is only set when ctx is done.
func (s *CascadeService) attempt(
	ctx context.Context,
	profile *retailer.Profile,
	provider domain.Provider,
	target domain.Target,
	mode domain.Mode,
) (domain.Attempt, *domain.Payload, error) {
	release, err := s.limiter.Acquire(ctx, profile)
	if err != nil {
		return domain.Attempt{}, nil, fmt.Errorf("waiting for %s slot: %w", profile.Name, err)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, s.attemptTimeout)
	start := s.now()
	payload, err := provider.Attempt(attemptCtx, target, mode)
	elapsed := s.now().Sub(start)
	cancel()
	release()

	attempt := domain.Attempt{
		Provider: provider.Name(),
		Cost:     provider.Cost(),
		Duration: elapsed,
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.Attempt{}, nil, ctxErr
		}
		attempt.Outcome = domain.AttemptError
		attempt.Reason = err.Error()
		s.log.Warn("Provider attempt failed",
			logger.String("retailer", profile.Name),
			logger.String("provider", provider.Name()),
			logger.String("url", target.URL),
			logger.Bool("quota", errors.Is(err, domain.ErrProviderQuota)),
			logger.Error(err),
		)
		s.learner.Observe(ctx, profile.Name, provider.Name(), FieldReport{domain.FieldRecord: false})
		s.metrics.ObserveAttempt(profile.Name, provider.Name(), attempt.Outcome, attempt.Cost, elapsed)
		return attempt, nil, nil
	}

	report := s.validator.Validate(target, mode, payload, profile)
	s.learner.Observe(ctx, profile.Name, provider.Name(), report.Fields)

	if !report.Accepted {
		attempt.Outcome = domain.AttemptRejected
		attempt.Reason = report.Reason
		s.log.Info("Provider output rejected",
			logger.String("retailer", profile.Name),
			logger.String("provider", provider.Name()),
			logger.String("reason", report.Reason),
		)
		s.metrics.ObserveAttempt(profile.Name, provider.Name(), attempt.Outcome, attempt.Cost, elapsed)
		return attempt, nil, nil
	}

	attempt.Outcome = domain.AttemptAccepted
	if report.Payload.Dropped > 0 {
		attempt.Reason = fmt.Sprintf("%d invalid rows dropped", report.Payload.Dropped)
	}
	s.metrics.ObserveAttempt(profile.Name, provider.Name(), attempt.Outcome, attempt.Cost, elapsed)
	return attempt, report.Payload, nil
}

// enrich stamps accepted rows with the keys the resolver relies on
func (s *CascadeService) enrich(payload *domain.Payload, profile *retailer.Profile, target domain.Target, provider string) {
	now := s.now()
	base, _ := url.Parse(target.URL)

	for i := range payload.Candidates {
		c := &payload.Candidates[i]
		c.URL = absoluteURL(base, c.URL)
		c.NormalizedURL = retailer.NormalizeURL(c.URL)
		c.Retailer = profile.Name
		c.Category = target.Category
		c.ExtractionProvider = provider
		if c.DiscoveredAt.IsZero() {
			c.DiscoveredAt = now
		}
		if code := strings.ToUpper(strings.TrimSpace(c.ProductCode)); code != "" {
			c.ProductCode = code
		} else {
			c.ProductCode = profile.ExtractCode(c.URL)
		}
		for j, img := range c.ImageURLs {
			c.ImageURLs[j] = retailer.NormalizeImageURL(absoluteURL(base, img))
		}
	}

	if d := payload.Detail; d != nil {
		if d.URL == "" {
			d.URL = target.URL
		}
		if d.ProductCode == "" {
			d.ProductCode = profile.ExtractCode(d.URL)
		}
	}
}

func absoluteURL(base *url.URL, raw string) string {
	raw = strings.TrimSpace(raw)
	if base == nil || raw == "" {
		return raw
	}
	ref, err := url.Parse(raw)
	if err != nil || ref.IsAbs() || strings.HasPrefix(raw, "//") {
		return raw
	}
	return base.ResolveReference(ref).String()
}

// generateCacheKey creates a cache key from mode, page and normalized URL.
// Format: "extract:{mode}:{page}:{normalized_url}"
func generateCacheKey(target domain.Target, mode domain.Mode) string {
	return fmt.Sprintf("extract:%s:%d:%s", mode, target.Page, retailer.NormalizeURL(target.URL))
}

// getFromCache returns a cached result or nil
func (s *CascadeService) getFromCache(ctx context.Context, key string) *domain.ExtractionResult {
	if !s.useCache {
		return nil
	}

	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		s.metrics.ObserveCacheLookup(false)
		return nil
	}

	var result domain.ExtractionResult
	if err := json.Unmarshal(raw, &result); err != nil {
		s.log.Warn("Discarding unreadable cache entry", logger.String("key", key), logger.Error(err))
		_ = s.cache.Delete(ctx, key)
		s.metrics.ObserveCacheLookup(false)
		return nil
	}

	s.metrics.ObserveCacheLookup(true)
	result.Cached = true
	result.Cost = 0
	return &result
}

// setInCache stores an accepted result. Failures are logged, not returned.
func (s *CascadeService) setInCache(ctx context.Context, key string, result *domain.ExtractionResult) {
	if !s.useCache {
		return
	}
	raw, err := json.Marshal(result)
	if err == nil {
		err = s.cache.Set(ctx, key, raw, s.cacheTTL)
	}
	if err != nil {
		s.log.Warn("Failed to cache extraction result", logger.String("key", key), logger.Error(err))
	}
}
