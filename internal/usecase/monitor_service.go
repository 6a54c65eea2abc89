package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/shelfwatch/backend/internal/domain"
	"github.com/shelfwatch/backend/internal/logger"
	"github.com/shelfwatch/backend/internal/retailer"
)

// Defaults for run orchestration
const (
	defaultResolveConcurrency = 8
	defaultDetailConcurrency  = 4
)

// Extractor runs an extraction cascade for one target
type Extractor interface {
	Extract(ctx context.Context, target domain.Target, mode domain.Mode) (*domain.ExtractionResult, error)
}

// RunRequest asks for one catalog pass over a retailer category. Either
// ListingURL or CandidateURLs must be set.
type RunRequest struct {
	RunID         string      `json:"-"`
	Retailer      string      `json:"retailer" binding:"required"`
	Category      string      `json:"category" binding:"required"`
	ListingURL    string      `json:"listing_url"`
	CandidateURLs []string    `json:"candidate_urls"`
	Pass          domain.Pass `json:"pass"`
}

// Validate checks the request shape
func (r *RunRequest) Validate() error {
	if r.Pass == "" {
		r.Pass = domain.PassMonitor
	}
	switch {
	case strings.TrimSpace(r.Retailer) == "":
		return fmt.Errorf("%w: retailer is required", domain.ErrInvalidRequest)
	case strings.TrimSpace(r.Category) == "":
		return fmt.Errorf("%w: category is required", domain.ErrInvalidRequest)
	case !r.Pass.Valid():
		return fmt.Errorf("%w: unknown pass %q", domain.ErrInvalidRequest, r.Pass)
	case r.ListingURL == "" && len(r.CandidateURLs) == 0:
		return fmt.Errorf("%w: listing_url or candidate_urls is required", domain.ErrInvalidRequest)
	}
	return nil
}

// MonitorServiceConfig holds configuration for run orchestration
type MonitorServiceConfig struct {
	ResolveConcurrency int
	DetailConcurrency  int
}

// MonitorService runs baseline and monitoring passes: paginated extraction,
// snapshot logging, resolution, per-candidate commits, baseline merge and
// detail extraction for new products.
type MonitorService struct {
	store              domain.Store
	registry           *retailer.Registry
	extractor          Extractor
	resolver           *ResolverService
	resolveConcurrency int
	detailConcurrency  int
	metrics            Metrics
	log                logger.Logger
	now                func() time.Time
}

// NewMonitorService creates a new monitor service with dependencies
func NewMonitorService(
	store domain.Store,
	registry *retailer.Registry,
	extractor Extractor,
	resolver *ResolverService,
	config MonitorServiceConfig,
	metrics Metrics,
	log logger.Logger,
) *MonitorService {
	if resolver == nil {
		resolver = NewResolverService(nil)
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	resolveN := config.ResolveConcurrency
	if resolveN <= 0 {
		resolveN = defaultResolveConcurrency
	}
	detailN := config.DetailConcurrency
	if detailN <= 0 {
		detailN = defaultDetailConcurrency
	}
	return &MonitorService{
		store:              store,
		registry:           registry,
		extractor:          extractor,
		resolver:           resolver,
		resolveConcurrency: resolveN,
		detailConcurrency:  detailN,
		metrics:            metrics,
		log:                log,
		now:                time.Now,
	}
}

// runState is the mutable bookkeeping of one executing run
type runState struct {
	mu      sync.Mutex
	summary *domain.RunSummary
	profile *retailer.Profile
	req     RunRequest
	details map[string]*domain.ProductDetail
	log     logger.Logger
}

func (st *runState) addCost(cost float64) {
	st.mu.Lock()
	st.summary.CostIncurred += cost
	st.mu.Unlock()
}

func (st *runState) addFailed() {
	st.mu.Lock()
	st.summary.FailedExtractions++
	st.mu.Unlock()
}

// Run starts and executes a run synchronously
func (s *MonitorService) Run(ctx context.Context, req RunRequest) (*domain.RunSummary, error) {
	run, err := s.Start(ctx, &req)
	if err != nil {
		return nil, err
	}
	return s.Execute(ctx, run, req)
}

// Start validates the request and records the run as running. Runs for
// unknown or misconfigured retailers refuse to start.
func (s *MonitorService) Start(ctx context.Context, req *RunRequest) (*domain.RunSummary, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.registry.Get(req.Retailer); err != nil {
		return nil, err
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}

	run := &domain.RunSummary{
		ID:        req.RunID,
		Retailer:  req.Retailer,
		Category:  req.Category,
		Pass:      req.Pass,
		Status:    domain.RunRunning,
		StartedAt: s.now(),
	}
	if err := s.store.Repositories().Runs.Start(ctx, run); err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}
	return run, nil
}

// Execute performs a started run. The summary is finalized as completed only
// on clean completion; a cancelled run is left running so it can be told
// apart from a completed run that found nothing.
func (s *MonitorService) Execute(ctx context.Context, run *domain.RunSummary, req RunRequest) (*domain.RunSummary, error) {
	profile, err := s.registry.Get(req.Retailer)
	if err != nil {
		return s.fail(ctx, run, err)
	}

	st := &runState{
		summary: run,
		profile: profile,
		req:     req,
		details: make(map[string]*domain.ProductDetail),
		log: s.log.With(
			logger.String("run_id", run.ID),
			logger.String("retailer", run.Retailer),
			logger.String("category", run.Category),
			logger.String("pass", string(run.Pass)),
		),
	}
	st.log.Info("Run started")

	candidates, err := s.collect(ctx, st)
	if err != nil {
		return s.stop(ctx, st, err)
	}
	run.ItemsScanned = len(candidates)

	repos := s.store.Repositories()
	if err := repos.Snapshots.AppendRows(ctx, snapshotRows(run.ID, run.Retailer, run.Category, candidates, s.now())); err != nil {
		return s.stop(ctx, st, fmt.Errorf("append snapshot log: %w", err))
	}

	unique := dedupCandidates(candidates)
	if dropped := len(candidates) - len(unique); dropped > 0 {
		st.log.Debug("Deduplicated batch", logger.Int("dropped", dropped))
	}

	results, err := s.resolveAll(ctx, st, unique)
	if err != nil {
		return s.stop(ctx, st, err)
	}

	var inserted []*domain.CanonicalProduct
	for i := range results {
		if err := ctx.Err(); err != nil {
			return s.stop(ctx, st, err)
		}
		p, err := s.commit(ctx, st, &results[i])
		if err != nil {
			return s.stop(ctx, st, err)
		}
		if p != nil {
			inserted = append(inserted, p)
		}
	}

	if err := ctx.Err(); err != nil {
		return s.stop(ctx, st, err)
	}
	err = s.store.WithinTx(ctx, func(tx domain.Repositories) error {
		_, err := mergeBaseline(ctx, tx, run.Retailer, run.Category, run.ID, results, s.now())
		return err
	})
	if err != nil {
		return s.stop(ctx, st, err)
	}

	// Baseline passes only establish inventory
	if run.Pass == domain.PassMonitor {
		stranded, err := s.unassessed(ctx, st, inserted)
		if err != nil {
			return s.stop(ctx, st, err)
		}
		if len(stranded) > 0 {
			st.log.Info("Re-queueing unassessed products", logger.Int("count", len(stranded)))
		}
		if due := append(inserted, stranded...); len(due) > 0 {
			if err := s.assessNew(ctx, st, due); err != nil {
				return s.stop(ctx, st, err)
			}
		}
	}

	return s.finish(ctx, st, domain.RunCompleted, nil)
}

// collect gathers the run's candidates from the listing or the URL list
func (s *MonitorService) collect(ctx context.Context, st *runState) ([]domain.Candidate, error) {
	var out []domain.Candidate
	if st.req.ListingURL != "" {
		listed, err := s.paginate(ctx, st)
		if err != nil {
			return nil, err
		}
		out = append(out, listed...)
	}
	if len(st.req.CandidateURLs) > 0 {
		fetched, err := s.fetchCandidates(ctx, st)
		if err != nil {
			return nil, err
		}
		out = append(out, fetched...)
	}
	return out, nil
}

// paginate walks the listing. A failed first page fails the run; a failed
// later page ends pagination. Both are queued for manual handling.
func (s *MonitorService) paginate(ctx context.Context, st *runState) ([]domain.Candidate, error) {
	p := st.profile
	limit := p.Pagination.Limit(st.req.Pass)

	targets := make([]domain.Target, 0, limit)
	if p.Pagination.Strategy == retailer.StrategyInfiniteScroll {
		targets = append(targets, domain.Target{
			URL:         st.req.ListingURL,
			Retailer:    p.Name,
			Category:    st.req.Category,
			Page:        1,
			ScrollSteps: limit,
		})
	} else {
		for page := 1; page <= limit; page++ {
			targets = append(targets, domain.Target{
				URL:      p.Pagination.PageURL(st.req.ListingURL, page),
				Retailer: p.Name,
				Category: st.req.Category,
				Page:     page,
			})
		}
	}

	var out []domain.Candidate
	for _, target := range targets {
		res, err := s.extractor.Extract(ctx, target, domain.ModeCatalog)
		if err != nil {
			var failure *domain.ExtractionFailure
			if !errors.As(err, &failure) {
				return nil, err
			}
			st.addCost(failure.Cost)
			st.addFailed()
			if qerr := s.queueFailure(ctx, st, target.URL, "", domain.ModeCatalog, failure); qerr != nil {
				return nil, qerr
			}
			if target.Page == 1 {
				return nil, err
			}
			st.log.Warn("Stopping pagination after failed page", logger.Int("page", target.Page))
			break
		}

		st.addCost(res.Cost)
		if len(res.Payload.Candidates) == 0 {
			break
		}
		out = append(out, res.Payload.Candidates...)
	}
	return out, nil
}

// fetchCandidates runs single-mode extraction for an explicit URL list
func (s *MonitorService) fetchCandidates(ctx context.Context, st *runState) ([]domain.Candidate, error) {
	urls := st.req.CandidateURLs
	found := make([]*domain.Candidate, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.detailConcurrency)
	for i, raw := range urls {
		g.Go(func() error {
			target := domain.Target{URL: strings.TrimSpace(raw), Retailer: st.profile.Name, Category: st.req.Category}
			res, err := s.extractor.Extract(gctx, target, domain.ModeSingle)
			if err != nil {
				var failure *domain.ExtractionFailure
				if !errors.As(err, &failure) {
					return err
				}
				st.addCost(failure.Cost)
				st.addFailed()
				return s.queueFailure(gctx, st, target.URL, "", domain.ModeSingle, failure)
			}

			st.addCost(res.Cost)
			c := candidateFromDetail(res.Payload.Detail, st.profile, st.req.Category, res.Provider, s.now())
			st.mu.Lock()
			st.details[c.NormalizedURL] = res.Payload.Detail
			st.mu.Unlock()
			found[i] = &c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]domain.Candidate, 0, len(found))
	for _, c := range found {
		if c != nil {
			out = append(out, *c)
		}
	}
	return out, nil
}

func candidateFromDetail(d *domain.ProductDetail, p *retailer.Profile, category, provider string, at time.Time) domain.Candidate {
	code := strings.ToUpper(strings.TrimSpace(d.ProductCode))
	if code == "" {
		code = p.ExtractCode(d.URL)
	}
	return domain.Candidate{
		URL:                d.URL,
		NormalizedURL:      retailer.NormalizeURL(d.URL),
		Retailer:           p.Name,
		Category:           category,
		Title:              d.Title,
		Price:              d.Price,
		OriginalPrice:      d.OriginalPrice,
		ProductCode:        code,
		ImageURLs:          d.ImageURLs,
		StockStatus:        d.StockStatus,
		DiscoveredAt:       at,
		ExtractionProvider: provider,
	}
}

// dedupCandidates keeps the first candidate per normalized URL and per product code
func dedupCandidates(in []domain.Candidate) []domain.Candidate {
	seenURL := make(map[string]bool, len(in))
	seenCode := make(map[string]bool, len(in))
	out := make([]domain.Candidate, 0, len(in))
	for _, c := range in {
		key := baselineKey(c)
		if seenURL[key] || (c.ProductCode != "" && seenCode[c.ProductCode]) {
			continue
		}
		seenURL[key] = true
		if c.ProductCode != "" {
			seenCode[c.ProductCode] = true
		}
		out = append(out, c)
	}
	return out
}

// resolveAll classifies candidates in parallel against read-only indexes
func (s *MonitorService) resolveAll(ctx context.Context, st *runState, candidates []domain.Candidate) ([]domain.MatchResult, error) {
	repos := s.store.Repositories()

	products, err := repos.Canonical.ListByRetailer(ctx, st.profile.Name)
	if err != nil {
		return nil, fmt.Errorf("load canonical products: %w", err)
	}
	active, err := repos.Snapshots.GetActive(ctx, st.profile.Name, st.req.Category)
	if err != nil && !errors.Is(err, domain.ErrSnapshotNotFound) {
		return nil, fmt.Errorf("load active baseline: %w", err)
	}

	normalizer := s.resolver.Normalizer()
	canonical := NewCanonicalIndex(st.profile, normalizer, products)
	baseline := NewBaselineIndex(st.profile, normalizer, active)

	results := make([]domain.MatchResult, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.resolveConcurrency)
	for i := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = s.resolver.Resolve(candidates[i], baseline, canonical, st.profile.Thresholds)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// commit writes one resolved candidate in its own transaction. It returns
// the canonical product when a new row was inserted.
func (s *MonitorService) commit(ctx context.Context, st *runState, r *domain.MatchResult) (*domain.CanonicalProduct, error) {
	var inserted *domain.CanonicalProduct
	var priceChange *domain.UpdateQueueEntry
	final := *r

	err := s.store.WithinTx(ctx, func(tx domain.Repositories) error {
		inserted, priceChange = nil, nil
		final = *r
		at := s.now()

		switch r.Classification {
		case domain.ClassNew:
			fresh := newCanonical(r.Candidate, at)
			fresh.BaselineInventory = st.summary.Pass == domain.PassBaseline
			p, created, err := insertOrMatch(ctx, tx, fresh)
			if err != nil {
				return err
			}
			if created {
				inserted = p
				return nil
			}
			// Someone else committed the same normalized URL first
			idx := NewCanonicalIndex(st.profile, s.resolver.Normalizer(), []domain.CanonicalProduct{*p})
			final = s.resolver.Resolve(r.Candidate, nil, idx, st.profile.Thresholds)
			final.Classification = domain.ClassConfirmedExisting
			final.MatchedCanonical = p
			priceChange, err = refreshCanonical(ctx, tx, p, r.Candidate, at)
			return err

		case domain.ClassConfirmedExisting:
			p, err := s.matchedCanonical(ctx, tx, r)
			if err != nil {
				return err
			}
			if p == nil {
				// Known only to the baseline; give it a canonical row
				p, _, err = insertOrMatch(ctx, tx, baselineCanonical(r.Candidate, at))
				if err != nil {
					return err
				}
			}
			final.MatchedCanonical = p
			priceChange, err = refreshCanonical(ctx, tx, p, r.Candidate, at)
			return err

		case domain.ClassSuspectedDuplicate:
			item := &domain.ReviewItem{
				ID:        uuid.NewString(),
				Kind:      domain.ReviewDuplicate,
				Retailer:  st.profile.Name,
				Category:  st.req.Category,
				RunID:     st.summary.ID,
				Candidate: r.Candidate,
				Match:     r,
				Reason:    fmt.Sprintf("%s match at %.2f confidence", r.Level, r.Confidence),
				Status:    domain.ReviewPending,
				CreatedAt: at,
			}
			if r.MatchedCanonical != nil {
				item.CanonicalID = r.MatchedCanonical.ID
			}
			if _, err := tx.Reviews.Enqueue(ctx, item); err != nil {
				return fmt.Errorf("enqueue duplicate review: %w", err)
			}
			// The listing price is observed even while identity is in doubt
			if r.PriceChange != nil {
				if err := tx.Updates.Enqueue(ctx, r.PriceChange); err != nil {
					return fmt.Errorf("enqueue price update: %w", err)
				}
				priceChange = r.PriceChange
			}
			return nil
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("commit %s: %w", r.Candidate.URL, err)
	}

	final.PriceChange = priceChange
	*r = final
	switch {
	case inserted != nil:
		st.summary.NewFound++
	case final.Classification == domain.ClassConfirmedExisting:
		st.summary.ConfirmedExisting++
	case final.Classification == domain.ClassSuspectedDuplicate:
		st.summary.SuspectedDuplicates++
	}
	if priceChange != nil {
		st.summary.PriceChanges++
		s.metrics.ObservePriceChange(st.profile.Name, priceChange.Priority)
	}
	s.metrics.ObserveClassification(st.profile.Name, final.Level, final.Classification)

	return inserted, nil
}

// matchedCanonical returns the canonical row behind a confirmed match, or nil
// when the match came from a baseline item that has no canonical row.
func (s *MonitorService) matchedCanonical(ctx context.Context, tx domain.Repositories, r *domain.MatchResult) (*domain.CanonicalProduct, error) {
	if r.MatchedCanonical != nil {
		p, err := tx.Canonical.GetByID(ctx, r.MatchedCanonical.ID)
		if err != nil {
			return nil, fmt.Errorf("reload canonical: %w", err)
		}
		return p, nil
	}
	if r.MatchedBaseline == nil {
		return nil, nil
	}

	nurl := r.MatchedBaseline.NormalizedURL
	if nurl == "" {
		nurl = retailer.NormalizeURL(r.MatchedBaseline.URL)
	}
	p, err := tx.Canonical.GetByNormalizedURL(ctx, r.Candidate.Retailer, nurl)
	if errors.Is(err, domain.ErrCanonicalNotFound) {
		return nil, nil
	}
	return p, err
}

// unassessed returns discovered products of the run's category that are owed
// an assessment and have nothing queued for them. These are left behind when
// a run stops between commit and assessment, or when a product judged new in
// review could not be assessed at the time.
func (s *MonitorService) unassessed(ctx context.Context, st *runState, skip []*domain.CanonicalProduct) ([]*domain.CanonicalProduct, error) {
	repos := s.store.Repositories()
	discovered, err := repos.Canonical.List(ctx, domain.CanonicalFilter{
		Retailer: st.profile.Name,
		Category: st.req.Category,
		Stage:    domain.StageDiscovered,
	})
	if err != nil {
		return nil, fmt.Errorf("load discovered products: %w", err)
	}
	if len(discovered) == 0 {
		return nil, nil
	}
	failed, err := repos.Reviews.ListPending(ctx, domain.ReviewFailedExtraction, 0)
	if err != nil {
		return nil, fmt.Errorf("load failed extractions: %w", err)
	}

	queued := make(map[string]bool, len(skip)+len(failed))
	for _, p := range skip {
		queued[p.ID] = true
	}
	for _, item := range failed {
		if item.CanonicalID != "" {
			queued[item.CanonicalID] = true
		}
	}

	var out []*domain.CanonicalProduct
	for i := range discovered {
		p := &discovered[i]
		if p.BaselineInventory || queued[p.ID] {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// assessNew fetches detail for new products and queues them for qualitative
// review. Exhausted cascades become failed_extraction review items.
func (s *MonitorService) assessNew(ctx context.Context, st *runState, products []*domain.CanonicalProduct) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.detailConcurrency)

	for _, p := range products {
		g.Go(func() error {
			st.mu.Lock()
			detail := st.details[p.NormalizedURL]
			st.mu.Unlock()

			if detail == nil {
				target := domain.Target{URL: p.URL, Retailer: p.Retailer, Category: p.Category}
				res, err := s.extractor.Extract(gctx, target, domain.ModeSingle)
				if err != nil {
					var failure *domain.ExtractionFailure
					if !errors.As(err, &failure) {
						return err
					}
					st.addCost(failure.Cost)
					st.addFailed()
					return s.queueFailure(gctx, st, p.URL, p.ID, domain.ModeSingle, failure)
				}
				st.addCost(res.Cost)
				detail = res.Payload.Detail
			}

			return s.store.WithinTx(gctx, func(tx domain.Repositories) error {
				return queueAssessment(gctx, tx, p, detail, st.summary.ID, s.now())
			})
		})
	}
	return g.Wait()
}

// queueAssessment stores detail on a discovered product, moves it to
// pending_assessment and queues a qualitative review item.
func queueAssessment(ctx context.Context, tx domain.Repositories, p *domain.CanonicalProduct, d *domain.ProductDetail, runID string, at time.Time) error {
	if err := tx.Canonical.UpdateObservation(ctx, p.ID, d.Title, d.Price, d.ImageURLs, at); err != nil {
		return fmt.Errorf("store detail: %w", err)
	}
	if _, err := advanceStage(ctx, tx, p.ID, domain.StagePendingAssessment, at); err != nil {
		return err
	}

	candidate := domain.Candidate{
		URL:           p.URL,
		NormalizedURL: p.NormalizedURL,
		Retailer:      p.Retailer,
		Category:      p.Category,
		Title:         d.Title,
		Price:         d.Price,
		OriginalPrice: d.OriginalPrice,
		ProductCode:   p.ProductCode,
		ImageURLs:     d.ImageURLs,
		StockStatus:   d.StockStatus,
		DiscoveredAt:  p.FirstSeen,
	}
	_, err := tx.Reviews.Enqueue(ctx, &domain.ReviewItem{
		ID:          uuid.NewString(),
		Kind:        domain.ReviewQualitative,
		Retailer:    p.Retailer,
		Category:    p.Category,
		RunID:       runID,
		CanonicalID: p.ID,
		Mode:        domain.ModeSingle,
		Candidate:   candidate,
		Status:      domain.ReviewPending,
		CreatedAt:   at,
	})
	if err != nil {
		return fmt.Errorf("enqueue assessment: %w", err)
	}
	return nil
}

// queueFailure records an exhausted cascade for manual handling
func (s *MonitorService) queueFailure(ctx context.Context, st *runState, url, canonicalID string, mode domain.Mode, failure *domain.ExtractionFailure) error {
	st.log.Warn("Extraction failed, queued for manual handling",
		logger.String("url", url),
		logger.String("mode", string(mode)),
		logger.Int("attempts", len(failure.Attempts)),
	)
	item := failedExtraction(st.profile.Name, st.req.Category, st.summary.ID, url, canonicalID, mode, failure, s.now())
	if _, err := s.store.Repositories().Reviews.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("enqueue failed extraction: %w", err)
	}
	return nil
}

// failedExtraction builds the review item for an exhausted cascade
func failedExtraction(retailerName, category, runID, url, canonicalID string, mode domain.Mode, failure *domain.ExtractionFailure, at time.Time) *domain.ReviewItem {
	return &domain.ReviewItem{
		ID:          uuid.NewString(),
		Kind:        domain.ReviewFailedExtraction,
		Retailer:    retailerName,
		Category:    category,
		RunID:       runID,
		CanonicalID: canonicalID,
		Mode:        mode,
		Candidate: domain.Candidate{
			URL:           url,
			NormalizedURL: retailer.NormalizeURL(url),
			Retailer:      retailerName,
			Category:      category,
		},
		Reason:    failure.Error(),
		Status:    domain.ReviewPending,
		CreatedAt: at,
	}
}

// stop ends a run early: cancellation leaves it running, anything else fails it
func (s *MonitorService) stop(ctx context.Context, st *runState, err error) (*domain.RunSummary, error) {
	if ctx.Err() != nil {
		st.log.Warn("Run aborted", logger.Error(err))
		s.metrics.ObserveRun(st.summary.Retailer, st.summary.Pass, domain.RunRunning, s.now().Sub(st.summary.StartedAt))
		return st.summary, fmt.Errorf("run %s aborted: %w", st.summary.ID, ctx.Err())
	}
	return s.finish(ctx, st, domain.RunFailed, err)
}

func (s *MonitorService) fail(ctx context.Context, run *domain.RunSummary, err error) (*domain.RunSummary, error) {
	return s.finish(ctx, &runState{summary: run, log: s.log}, domain.RunFailed, err)
}

func (s *MonitorService) finish(ctx context.Context, st *runState, status domain.RunStatus, cause error) (*domain.RunSummary, error) {
	run := st.summary
	finished := s.now()
	run.Status = status
	run.FinishedAt = &finished
	run.Duration = finished.Sub(run.StartedAt)
	if cause != nil {
		run.Error = cause.Error()
	}

	if err := s.store.Repositories().Runs.Finish(ctx, run); err != nil {
		return run, fmt.Errorf("finish run: %w", err)
	}
	s.metrics.ObserveRun(run.Retailer, run.Pass, status, run.Duration)

	fields := []logger.Field{
		logger.String("status", string(status)),
		logger.Int("items_scanned", run.ItemsScanned),
		logger.Int("new_found", run.NewFound),
		logger.Int("confirmed_existing", run.ConfirmedExisting),
		logger.Int("suspected_duplicates", run.SuspectedDuplicates),
		logger.Int("price_changes", run.PriceChanges),
		logger.Int("failed_extractions", run.FailedExtractions),
		logger.Float64("cost", run.CostIncurred),
		logger.Duration("duration", run.Duration),
	}
	if cause != nil {
		st.log.Error("Run failed", append(fields, logger.Error(cause))...)
		return run, cause
	}
	st.log.Info("Run finished", fields...)
	return run, nil
}
