package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfwatch/backend/internal/domain"
	"github.com/shelfwatch/backend/internal/infrastructure/memstore"
)

type reviewFixture struct {
	svc       *ReviewService
	store     *memstore.Store
	extractor *MockExtractor
	publisher *MockPublisher
	runs      *MockRunStarter
}

func newReviewFixture(t *testing.T, withPublisher bool) *reviewFixture {
	t.Helper()
	f := &reviewFixture{
		store:     memstore.New(),
		extractor: NewMockExtractor(),
		publisher: &MockPublisher{},
		runs:      &MockRunStarter{},
	}
	var publisher domain.Publisher
	if withPublisher {
		publisher = f.publisher
	}
	f.svc = NewReviewService(f.store, testRegistry(), f.extractor, newTestResolver(), publisher, f.runs, nil, nil)
	f.svc.now = func() time.Time { return testNow.Add(time.Hour) }
	return f
}

func (f *reviewFixture) seedProduct(t *testing.T, stage domain.LifecycleStage) *domain.CanonicalProduct {
	t.Helper()
	p := canonicalProduct("c1", "https://shop.example/dp/SELF-WD101", "Burgundy Pleated Midi Dress", 1295)
	p.LifecycleStage = stage
	require.NoError(t, f.store.Repositories().Canonical.Insert(context.Background(), &p))
	return &p
}

func (f *reviewFixture) enqueue(t *testing.T, item domain.ReviewItem) *domain.ReviewItem {
	t.Helper()
	item.ID = uuid.NewString()
	item.Retailer = testRetailer
	item.Category = testCategory
	item.Status = domain.ReviewPending
	item.CreatedAt = testNow
	created, err := f.store.Repositories().Reviews.Enqueue(context.Background(), &item)
	require.NoError(t, err)
	require.True(t, created)
	return &item
}

func decision(d domain.Decision) domain.ReviewDecision {
	return domain.ReviewDecision{Decision: d, Reviewer: "ana"}
}

func (f *reviewFixture) products(t *testing.T) []domain.CanonicalProduct {
	t.Helper()
	out, err := f.store.Repositories().Canonical.ListByRetailer(context.Background(), testRetailer)
	require.NoError(t, err)
	return out
}

func TestReview_DuplicateJudgedNew(t *testing.T) {
	f := newReviewFixture(t, false)
	ctx := context.Background()
	f.seedProduct(t, domain.StageDiscovered)
	f.extractor.details["https://shop.example/new-in/burgundy"] = fullDetail("https://shop.example/new-in/burgundy", "Burgundy Pleated Midi Dress", 2500)
	item := f.enqueue(t, domain.ReviewItem{
		Kind:        domain.ReviewDuplicate,
		RunID:       "run-7",
		CanonicalID: "c1",
		Candidate:   candidate("https://shop.example/new-in/burgundy", "Burgundy Pleated Midi Dress", 2500),
	})

	got, err := f.svc.Decide(ctx, item.ID, decision(domain.DecisionNew))
	require.NoError(t, err)
	assert.Equal(t, domain.ReviewResolved, got.Status)
	assert.Equal(t, domain.DecisionNew, got.Decision)
	assert.Equal(t, "ana", got.Reviewer)
	require.NotNil(t, got.ResolvedAt)

	assert.Len(t, f.products(t), 2)
	created, err := f.store.Repositories().Canonical.GetByNormalizedURL(ctx, testRetailer, "https://shop.example/new-in/burgundy")
	require.NoError(t, err)
	assert.Equal(t, domain.StagePendingAssessment, created.LifecycleStage)
	assert.Equal(t, 2500.0, created.Price)
	assert.Len(t, created.ImageURLs, 2)
	assert.False(t, created.BaselineInventory)

	assessments, err := f.store.Repositories().Reviews.ListPending(ctx, domain.ReviewQualitative, 0)
	require.NoError(t, err)
	require.Len(t, assessments, 1)
	assert.Equal(t, created.ID, assessments[0].CanonicalID)
	assert.Equal(t, "run-7", assessments[0].RunID)
}

func TestReview_DuplicateJudgedNewWithoutDetail(t *testing.T) {
	const newURL = "https://shop.example/new-in/burgundy"

	f := newReviewFixture(t, false)
	ctx := context.Background()
	f.seedProduct(t, domain.StageDiscovered)
	f.extractor.failing[newURL] = true
	item := f.enqueue(t, domain.ReviewItem{
		Kind:        domain.ReviewDuplicate,
		CanonicalID: "c1",
		Candidate:   candidate(newURL, "Burgundy Pleated Midi Dress", 2500),
	})

	got, err := f.svc.Decide(ctx, item.ID, decision(domain.DecisionNew))
	require.NoError(t, err)
	assert.Equal(t, domain.ReviewResolved, got.Status)

	created, err := f.store.Repositories().Canonical.GetByNormalizedURL(ctx, testRetailer, newURL)
	require.NoError(t, err)
	assert.Equal(t, domain.StageDiscovered, created.LifecycleStage)

	failed, err := f.store.Repositories().Reviews.ListPending(ctx, domain.ReviewFailedExtraction, 0)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, created.ID, failed[0].CanonicalID)
	assert.Equal(t, domain.ModeSingle, failed[0].Mode)

	// retrying the failed extraction completes the assessment
	delete(f.extractor.failing, newURL)
	f.extractor.details[newURL] = fullDetail(newURL, "Burgundy Pleated Midi Dress", 2500)
	_, err = f.svc.Decide(ctx, failed[0].ID, decision(domain.DecisionRetry))
	require.NoError(t, err)

	created, err = f.store.Repositories().Canonical.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StagePendingAssessment, created.LifecycleStage)
}

func TestReview_DuplicateConfirmedExistingRefreshesPrice(t *testing.T) {
	f := newReviewFixture(t, false)
	ctx := context.Background()
	f.seedProduct(t, domain.StageDiscovered)
	item := f.enqueue(t, domain.ReviewItem{
		Kind:        domain.ReviewDuplicate,
		CanonicalID: "c1",
		Candidate:   candidate("https://shop.example/new-in/burgundy", "Burgundy Pleated Midi Dress", 1195),
	})

	_, err := f.svc.Decide(ctx, item.ID, decision(domain.DecisionConfirmedExisting))
	require.NoError(t, err)

	products := f.products(t)
	require.Len(t, products, 1)
	assert.Equal(t, 1195.0, products[0].Price)

	updates, err := f.store.Repositories().Updates.List(ctx, testRetailer, 0)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, "c1", updates[0].CanonicalID)
}

func TestReview_ModestIsPublished(t *testing.T) {
	f := newReviewFixture(t, true)
	ctx := context.Background()
	f.seedProduct(t, domain.StagePendingAssessment)
	item := f.enqueue(t, domain.ReviewItem{
		Kind:        domain.ReviewQualitative,
		CanonicalID: "c1",
		Candidate:   candidate("https://shop.example/dp/SELF-WD101", "Burgundy Pleated Midi Dress", 1295),
	})

	_, err := f.svc.Decide(ctx, item.ID, decision(domain.DecisionModest))
	require.NoError(t, err)

	p, err := f.store.Repositories().Canonical.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.StagePublished, p.LifecycleStage)
	assert.Equal(t, "ext-c1", p.ExternalID)
	assert.Equal(t, domain.ExternalPublished, p.ExternalStatus)
	assert.Equal(t, []string{"c1"}, f.publisher.published)
}

func TestReview_PublishFailureLeavesProductAssessed(t *testing.T) {
	f := newReviewFixture(t, true)
	f.publisher.err = errors.New("storefront unavailable")
	ctx := context.Background()
	f.seedProduct(t, domain.StagePendingAssessment)
	item := f.enqueue(t, domain.ReviewItem{Kind: domain.ReviewQualitative, CanonicalID: "c1", Candidate: candidate("https://shop.example/dp/SELF-WD101", "Burgundy Pleated Midi Dress", 1295)})

	got, err := f.svc.Decide(ctx, item.ID, decision(domain.DecisionModest))
	require.NoError(t, err)
	assert.Equal(t, domain.ReviewResolved, got.Status)

	p, err := f.store.Repositories().Canonical.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.StageAssessedModest, p.LifecycleStage)

	f.publisher.err = nil
	published, err := f.svc.Publish(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.StagePublished, published.LifecycleStage)
}

func TestReview_RejectedIsNotPublished(t *testing.T) {
	f := newReviewFixture(t, true)
	ctx := context.Background()
	f.seedProduct(t, domain.StagePendingAssessment)
	item := f.enqueue(t, domain.ReviewItem{Kind: domain.ReviewQualitative, CanonicalID: "c1", Candidate: candidate("https://shop.example/dp/SELF-WD101", "Burgundy Pleated Midi Dress", 1295)})

	_, err := f.svc.Decide(ctx, item.ID, decision(domain.DecisionRejected))
	require.NoError(t, err)

	p, err := f.store.Repositories().Canonical.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.StageAssessedRejected, p.LifecycleStage)
	assert.Empty(t, f.publisher.published)
}

func TestReview_FailedExtraction(t *testing.T) {
	const gownURL = "https://shop.example/dp/SELF-WG303"

	t.Run("dismiss", func(t *testing.T) {
		f := newReviewFixture(t, false)
		item := f.enqueue(t, domain.ReviewItem{Kind: domain.ReviewFailedExtraction, Mode: domain.ModeSingle, Candidate: candidate(gownURL, "", 0)})

		got, err := f.svc.Decide(context.Background(), item.ID, decision(domain.DecisionDismiss))
		require.NoError(t, err)
		assert.Equal(t, domain.DecisionDismiss, got.Decision)
		assert.Empty(t, f.extractor.Calls())
		assert.Empty(t, f.runs.requests)
	})

	t.Run("catalog retry dispatches a monitoring run", func(t *testing.T) {
		f := newReviewFixture(t, false)
		item := f.enqueue(t, domain.ReviewItem{Kind: domain.ReviewFailedExtraction, Mode: domain.ModeCatalog, Candidate: candidate(testListingURL, "", 0)})

		got, err := f.svc.Decide(context.Background(), item.ID, decision(domain.DecisionRetry))
		require.NoError(t, err)
		assert.Equal(t, "retried as run retry-run", got.Note)

		require.Len(t, f.runs.requests, 1)
		req := f.runs.requests[0]
		assert.Equal(t, testListingURL, req.ListingURL)
		assert.Equal(t, testCategory, req.Category)
		assert.Equal(t, domain.PassMonitor, req.Pass)
	})

	t.Run("single retry queues the product for assessment", func(t *testing.T) {
		f := newReviewFixture(t, false)
		f.extractor.details[gownURL] = fullDetail(gownURL, "Emerald Sequin Gown", 3100)
		item := f.enqueue(t, domain.ReviewItem{Kind: domain.ReviewFailedExtraction, Mode: domain.ModeSingle, Candidate: candidate(gownURL, "", 0)})

		_, err := f.svc.Decide(context.Background(), item.ID, decision(domain.DecisionRetry))
		require.NoError(t, err)

		products := f.products(t)
		require.Len(t, products, 1)
		assert.Equal(t, domain.StagePendingAssessment, products[0].LifecycleStage)
		assert.Equal(t, "SELF-WG303", products[0].ProductCode)

		queued, err := f.svc.ListPending(context.Background(), domain.ReviewQualitative, 0)
		require.NoError(t, err)
		require.Len(t, queued, 1)
		assert.Equal(t, products[0].ID, queued[0].CanonicalID)
	})

	t.Run("single retry that fails again stays pending", func(t *testing.T) {
		f := newReviewFixture(t, false)
		item := f.enqueue(t, domain.ReviewItem{Kind: domain.ReviewFailedExtraction, Mode: domain.ModeSingle, Candidate: candidate(gownURL, "", 0)})

		_, err := f.svc.Decide(context.Background(), item.ID, decision(domain.DecisionRetry))
		assert.ErrorIs(t, err, domain.ErrExtractionExhausted)

		still, err := f.svc.Get(context.Background(), item.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ReviewPending, still.Status)
	})
}

func TestReview_DecisionErrors(t *testing.T) {
	f := newReviewFixture(t, false)
	ctx := context.Background()
	f.seedProduct(t, domain.StageDiscovered)
	item := f.enqueue(t, domain.ReviewItem{
		Kind:        domain.ReviewDuplicate,
		CanonicalID: "c1",
		Candidate:   candidate("https://shop.example/new-in/burgundy", "Burgundy Pleated Midi Dress", 2500),
	})

	_, err := f.svc.Decide(ctx, item.ID, decision(domain.DecisionModest))
	assert.ErrorIs(t, err, domain.ErrInvalidDecision)

	_, err = f.svc.Decide(ctx, item.ID, decision(domain.DecisionNew))
	require.NoError(t, err)

	_, err = f.svc.Decide(ctx, item.ID, decision(domain.DecisionConfirmedExisting))
	assert.ErrorIs(t, err, domain.ErrAlreadyResolved)

	_, err = f.svc.Decide(ctx, "missing", decision(domain.DecisionNew))
	assert.ErrorIs(t, err, domain.ErrReviewNotFound)

	_, err = f.svc.ListPending(ctx, "bogus", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestReview_Publish(t *testing.T) {
	t.Run("no publisher configured", func(t *testing.T) {
		f := newReviewFixture(t, false)
		f.seedProduct(t, domain.StageAssessedModest)

		_, err := f.svc.Publish(context.Background(), "c1")
		assert.ErrorIs(t, err, domain.ErrPublishFailed)
	})

	t.Run("only assessed products", func(t *testing.T) {
		f := newReviewFixture(t, true)
		f.seedProduct(t, domain.StageDiscovered)

		_, err := f.svc.Publish(context.Background(), "c1")
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		assert.Empty(t, f.publisher.published)
	})

	t.Run("draft storefront status keeps the stage", func(t *testing.T) {
		f := newReviewFixture(t, true)
		f.publisher.status = domain.ExternalDraft
		f.seedProduct(t, domain.StageAssessedModest)

		p, err := f.svc.Publish(context.Background(), "c1")
		require.NoError(t, err)
		assert.Equal(t, domain.StageAssessedModest, p.LifecycleStage)
		assert.Equal(t, domain.ExternalDraft, p.ExternalStatus)
		assert.Equal(t, "ext-c1", p.ExternalID)
	})
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, 50},
		{-3, 50},
		{20, 20},
		{5000, 500},
	}
	for _, tt := range tests {
		if got := clampLimit(tt.in, defaultReviewLimit, maxReviewLimit); got != tt.want {
			t.Errorf("clampLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
