package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shelfwatch/backend/internal/domain"
	"github.com/shelfwatch/backend/internal/logger"
	"github.com/shelfwatch/backend/internal/retailer"
)

const (
	defaultReviewLimit = 50
	maxReviewLimit     = 500
)

// RunStarter dispatches a background monitor run
type RunStarter interface {
	Dispatch(ctx context.Context, req RunRequest) (*domain.RunSummary, error)
}

// ReviewService applies human decisions posted back from the review queue
type ReviewService struct {
	store     domain.Store
	registry  *retailer.Registry
	extractor Extractor
	resolver  *ResolverService
	publisher domain.Publisher
	runs      RunStarter
	metrics   Metrics
	log       logger.Logger
	now       func() time.Time
}

// NewReviewService creates a new review service. publisher and runs may be
// nil; decisions that need them then fail.
func NewReviewService(
	store domain.Store,
	registry *retailer.Registry,
	extractor Extractor,
	resolver *ResolverService,
	publisher domain.Publisher,
	runs RunStarter,
	metrics Metrics,
	log logger.Logger,
) *ReviewService {
	if resolver == nil {
		resolver = NewResolverService(nil)
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &ReviewService{
		store:     store,
		registry:  registry,
		extractor: extractor,
		resolver:  resolver,
		publisher: publisher,
		runs:      runs,
		metrics:   metrics,
		log:       log,
		now:       time.Now,
	}
}

// ListPending returns pending items, oldest first. An empty kind lists all kinds.
func (s *ReviewService) ListPending(ctx context.Context, kind domain.ReviewKind, limit int) ([]domain.ReviewItem, error) {
	if kind != "" && !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown review kind %q", domain.ErrInvalidRequest, kind)
	}
	return s.store.Repositories().Reviews.ListPending(ctx, kind, clampLimit(limit, defaultReviewLimit, maxReviewLimit))
}

// Get returns one review item
func (s *ReviewService) Get(ctx context.Context, id string) (*domain.ReviewItem, error) {
	return s.store.Repositories().Reviews.Get(ctx, id)
}

// Decide applies a decision. Items that are already resolved fail with
// ErrAlreadyResolved; decisions that do not fit the kind fail with
// ErrInvalidDecision.
func (s *ReviewService) Decide(ctx context.Context, id string, decision domain.ReviewDecision) (*domain.ReviewItem, error) {
	item, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Status != domain.ReviewPending {
		return nil, domain.ErrAlreadyResolved
	}
	if !item.Kind.Allows(decision.Decision) {
		return nil, fmt.Errorf("%w: %s on %s", domain.ErrInvalidDecision, decision.Decision, item.Kind)
	}

	log := s.log.With(
		logger.String("review_id", item.ID),
		logger.String("kind", string(item.Kind)),
		logger.String("decision", string(decision.Decision)),
		logger.String("reviewer", decision.Reviewer),
	)

	switch item.Kind {
	case domain.ReviewDuplicate:
		err = s.decideDuplicate(ctx, item, decision)
	case domain.ReviewQualitative:
		err = s.decideQualitative(ctx, item, decision)
	case domain.ReviewFailedExtraction:
		err = s.decideFailedExtraction(ctx, item, decision)
	}
	if err != nil {
		log.Warn("Review decision not applied", logger.Error(err))
		return nil, err
	}

	s.metrics.ObserveReviewDecision(item.Kind, decision.Decision)
	log.Info("Review decision applied")

	// Publishing happens after the decision is committed; a publish
	// failure leaves the product assessed and retryable.
	if decision.Decision == domain.DecisionModest && s.publisher != nil {
		if _, err := s.Publish(ctx, item.CanonicalID); err != nil {
			log.Warn("Publish after assessment failed", logger.Error(err))
		}
	}

	return s.Get(ctx, id)
}

// resolveWith marks the item resolved and runs fn in the same transaction
func (s *ReviewService) resolveWith(ctx context.Context, item *domain.ReviewItem, decision domain.ReviewDecision, fn func(tx domain.Repositories, at time.Time) error) error {
	return s.store.WithinTx(ctx, func(tx domain.Repositories) error {
		at := s.now()
		if err := tx.Reviews.Resolve(ctx, item.ID, decision, at); err != nil {
			return err
		}
		if fn == nil {
			return nil
		}
		return fn(tx, at)
	})
}

func (s *ReviewService) decideDuplicate(ctx context.Context, item *domain.ReviewItem, decision domain.ReviewDecision) error {
	var judgedNew *domain.CanonicalProduct
	err := s.resolveWith(ctx, item, decision, func(tx domain.Repositories, at time.Time) error {
		judgedNew = nil
		if decision.Decision == domain.DecisionNew {
			p, _, err := insertOrMatch(ctx, tx, newCanonical(item.Candidate, at))
			if err != nil {
				return err
			}
			judgedNew = p
			return nil
		}

		p, err := s.adjudicatedCanonical(ctx, tx, item)
		if err != nil {
			return err
		}
		if p == nil {
			p, _, err = insertOrMatch(ctx, tx, baselineCanonical(item.Candidate, at))
			if err != nil {
				return err
			}
		}
		_, err = refreshCanonical(ctx, tx, p, item.Candidate, at)
		return err
	})
	if err != nil {
		return err
	}

	if judgedNew != nil && judgedNew.LifecycleStage == domain.StageDiscovered && !judgedNew.BaselineInventory {
		// The decision stands either way; the next monitor pass picks up
		// anything left discovered here.
		if err := s.assess(ctx, judgedNew, item.RunID); err != nil {
			s.log.Warn("Assessment after duplicate decision failed",
				logger.String("canonical_id", judgedNew.ID),
				logger.Error(err),
			)
		}
	}
	return nil
}

// assess fetches detail for a product judged new and queues it for
// qualitative review. An exhausted cascade is queued as failed_extraction.
func (s *ReviewService) assess(ctx context.Context, p *domain.CanonicalProduct, runID string) error {
	if s.extractor == nil {
		return errors.New("no extractor configured")
	}
	target := domain.Target{URL: p.URL, Retailer: p.Retailer, Category: p.Category}
	res, err := s.extractor.Extract(ctx, target, domain.ModeSingle)
	if err != nil {
		var failure *domain.ExtractionFailure
		if !errors.As(err, &failure) {
			return err
		}
		item := failedExtraction(p.Retailer, p.Category, runID, p.URL, p.ID, domain.ModeSingle, failure, s.now())
		if _, err := s.store.Repositories().Reviews.Enqueue(ctx, item); err != nil {
			return fmt.Errorf("enqueue failed extraction: %w", err)
		}
		return nil
	}
	return s.store.WithinTx(ctx, func(tx domain.Repositories) error {
		return queueAssessment(ctx, tx, p, res.Payload.Detail, runID, s.now())
	})
}

// adjudicatedCanonical finds the canonical row a confirmed duplicate refers to
func (s *ReviewService) adjudicatedCanonical(ctx context.Context, tx domain.Repositories, item *domain.ReviewItem) (*domain.CanonicalProduct, error) {
	if item.CanonicalID != "" {
		return tx.Canonical.GetByID(ctx, item.CanonicalID)
	}
	if item.Match == nil || item.Match.MatchedBaseline == nil {
		return nil, nil
	}
	b := item.Match.MatchedBaseline
	nurl := b.NormalizedURL
	if nurl == "" {
		nurl = retailer.NormalizeURL(b.URL)
	}
	p, err := tx.Canonical.GetByNormalizedURL(ctx, item.Retailer, nurl)
	if errors.Is(err, domain.ErrCanonicalNotFound) {
		return nil, nil
	}
	return p, err
}

func (s *ReviewService) decideQualitative(ctx context.Context, item *domain.ReviewItem, decision domain.ReviewDecision) error {
	to := domain.StageAssessedRejected
	if decision.Decision == domain.DecisionModest {
		to = domain.StageAssessedModest
	}
	return s.resolveWith(ctx, item, decision, func(tx domain.Repositories, at time.Time) error {
		_, err := advanceStage(ctx, tx, item.CanonicalID, to, at)
		return err
	})
}

func (s *ReviewService) decideFailedExtraction(ctx context.Context, item *domain.ReviewItem, decision domain.ReviewDecision) error {
	if decision.Decision == domain.DecisionDismiss {
		return s.resolveWith(ctx, item, decision, nil)
	}

	// A failed listing page is retried as a fresh monitoring run
	if item.Mode == domain.ModeCatalog {
		if s.runs == nil {
			return fmt.Errorf("%w: runs cannot be dispatched", domain.ErrInvalidDecision)
		}
		run, err := s.runs.Dispatch(ctx, RunRequest{
			Retailer:   item.Retailer,
			Category:   item.Category,
			ListingURL: item.Candidate.URL,
			Pass:       domain.PassMonitor,
		})
		if err != nil {
			return err
		}
		decision.Note = joinNote(decision.Note, "retried as run "+run.ID)
		return s.resolveWith(ctx, item, decision, nil)
	}

	profile, err := s.registry.Get(item.Retailer)
	if err != nil {
		return err
	}
	target := domain.Target{URL: item.Candidate.URL, Retailer: item.Retailer, Category: item.Category}
	res, err := s.extractor.Extract(ctx, target, domain.ModeSingle)
	if err != nil {
		// The item stays pending so it can be retried again
		return err
	}
	detail := res.Payload.Detail

	return s.resolveWith(ctx, item, decision, func(tx domain.Repositories, at time.Time) error {
		var p *domain.CanonicalProduct
		if item.CanonicalID != "" {
			p, err = tx.Canonical.GetByID(ctx, item.CanonicalID)
		} else {
			c := candidateFromDetail(detail, profile, item.Category, res.Provider, at)
			p, _, err = insertOrMatch(ctx, tx, newCanonical(c, at))
		}
		if err != nil {
			return err
		}
		if p.LifecycleStage != domain.StageDiscovered {
			// Already past assessment; only the observation is refreshed
			c := candidateFromDetail(detail, profile, item.Category, res.Provider, at)
			_, err := refreshCanonical(ctx, tx, p, c, at)
			return err
		}
		return queueAssessment(ctx, tx, p, detail, item.RunID, at)
	})
}

// Publish hands an assessed product to the publishing collaborator and
// stores the handle it returns.
func (s *ReviewService) Publish(ctx context.Context, canonicalID string) (*domain.CanonicalProduct, error) {
	if s.publisher == nil {
		return nil, fmt.Errorf("%w: no publisher configured", domain.ErrPublishFailed)
	}

	repos := s.store.Repositories()
	p, err := repos.Canonical.GetByID(ctx, canonicalID)
	if err != nil {
		return nil, err
	}
	if p.LifecycleStage != domain.StageAssessedModest {
		return nil, fmt.Errorf("%w: %s is %s, want %s", domain.ErrInvalidTransition, p.ID, p.LifecycleStage, domain.StageAssessedModest)
	}

	res, err := s.publisher.Publish(ctx, *p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPublishFailed, err)
	}

	err = s.store.WithinTx(ctx, func(tx domain.Repositories) error {
		at := s.now()
		if err := tx.Canonical.UpdateExternal(ctx, p.ID, res.ExternalID, res.Status, at); err != nil {
			return err
		}
		if res.Status == domain.ExternalPublished {
			if _, err := advanceStage(ctx, tx, p.ID, domain.StagePublished, at); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Product published",
		logger.String("canonical_id", p.ID),
		logger.String("external_id", res.ExternalID),
		logger.String("status", string(res.Status)),
	)
	return repos.Canonical.GetByID(ctx, p.ID)
}

func joinNote(note, extra string) string {
	if note == "" {
		return extra
	}
	return note + "; " + extra
}

func clampLimit(limit, def, maxLimit int) int {
	if limit <= 0 {
		return def
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
