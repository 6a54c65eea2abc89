package usecase

import (
	"context"
	"regexp"
	"sync"
	"time"

	"github.com/shelfwatch/backend/internal/domain"
	"github.com/shelfwatch/backend/internal/retailer"
)

var testNow = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

const (
	testListingURL = "https://shop.example/women/dresses"
	testRetailer   = "selfridges"
	testCategory   = "dresses"
)

func testProfile() *retailer.Profile {
	return &retailer.Profile{
		Name:        testRetailer,
		Providers:   []string{domain.ProviderJSONAPI, domain.ProviderStaticHTML, domain.ProviderBrowser},
		CodePattern: regexp.MustCompile(`/dp/([A-Z]+-[A-Z]+\d+)`),
		PriceFormat: retailer.PriceDot,
		Thresholds:  retailer.DefaultThresholds(),
		Pagination: retailer.Pagination{
			Strategy:      retailer.StrategyFixedPages,
			PageParam:     "pn",
			BaselinePages: 3,
			MonitorPages:  2,
		},
		Concurrency: 4,
		ListingSelectors: retailer.Selectors{
			Item:  "li.tile",
			Title: ".name",
			Price: ".price",
			Link:  "a",
		},
	}
}

func testRegistry() *retailer.Registry {
	return retailer.NewRegistry(testProfile())
}

func candidate(url, title string, price float64) domain.Candidate {
	return domain.Candidate{
		URL:           url,
		NormalizedURL: retailer.NormalizeURL(url),
		Retailer:      testRetailer,
		Category:      testCategory,
		Title:         title,
		Price:         price,
		DiscoveredAt:  testNow,
	}
}

func canonicalProduct(id, url, title string, price float64) domain.CanonicalProduct {
	return domain.CanonicalProduct{
		ID:             id,
		URL:            url,
		NormalizedURL:  retailer.NormalizeURL(url),
		Retailer:       testRetailer,
		Category:       testCategory,
		Title:          title,
		Price:          price,
		ExternalStatus: domain.ExternalNotUploaded,
		LifecycleStage: domain.StageDiscovered,
		FirstSeen:      testNow,
		LastUpdated:    testNow,
	}
}

func fullDetail(url, title string, price float64) *domain.ProductDetail {
	return &domain.ProductDetail{
		URL:         url,
		Title:       title,
		Price:       price,
		ImageURLs:   []string{url + "/front.jpg", url + "/back.jpg"},
		StockStatus: domain.StockInStock,
	}
}

// MockProvider is a scripted cascade tier
type MockProvider struct {
	name    string
	cost    float64
	payload *domain.Payload
	err     error

	mu    sync.Mutex
	calls int
}

func (m *MockProvider) Name() string  { return m.name }
func (m *MockProvider) Cost() float64 { return m.cost }

func (m *MockProvider) Attempt(ctx context.Context, _ domain.Target, _ domain.Mode) (*domain.Payload, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.err != nil {
		return nil, m.err
	}
	out := *m.payload
	out.Candidates = append([]domain.Candidate(nil), m.payload.Candidates...)
	return &out, nil
}

func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockExtractor serves listing pages and detail records by URL
type MockExtractor struct {
	mu       sync.Mutex
	listings map[string][]domain.Candidate
	details  map[string]*domain.ProductDetail
	failing  map[string]bool
	calls    []domain.Target

	// beforeExtract runs before every call; tests use it to cancel runs
	beforeExtract func(target domain.Target)
}

func NewMockExtractor() *MockExtractor {
	return &MockExtractor{
		listings: make(map[string][]domain.Candidate),
		details:  make(map[string]*domain.ProductDetail),
		failing:  make(map[string]bool),
	}
}

func (m *MockExtractor) Extract(ctx context.Context, target domain.Target, mode domain.Mode) (*domain.ExtractionResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, target)
	hook := m.beforeExtract
	m.mu.Unlock()

	if hook != nil {
		hook(target)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failing[target.URL] {
		return nil, &domain.ExtractionFailure{
			Target: target,
			Mode:   mode,
			Attempts: []domain.Attempt{
				{Provider: domain.ProviderJSONAPI, Outcome: domain.AttemptError, Reason: "HTTP 500", Cost: 0.01},
				{Provider: domain.ProviderBrowser, Outcome: domain.AttemptRejected, Reason: "empty listing", Cost: 0.02},
			},
			Cost: 0.03,
		}
	}

	if mode == domain.ModeSingle {
		d, ok := m.details[target.URL]
		if !ok {
			return nil, &domain.ExtractionFailure{Target: target, Mode: mode}
		}
		copied := *d
		return &domain.ExtractionResult{
			Payload:  &domain.Payload{Detail: &copied},
			Provider: domain.ProviderJSONAPI,
			Cost:     0.01,
		}, nil
	}

	rows := make([]domain.Candidate, 0, len(m.listings[target.URL]))
	for _, c := range m.listings[target.URL] {
		c.NormalizedURL = retailer.NormalizeURL(c.URL)
		c.Retailer = target.Retailer
		c.Category = target.Category
		rows = append(rows, c)
	}
	return &domain.ExtractionResult{
		Payload:  &domain.Payload{Candidates: rows},
		Provider: domain.ProviderJSONAPI,
		Cost:     0.01,
	}, nil
}

func (m *MockExtractor) Calls() []domain.Target {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Target(nil), m.calls...)
}

// MockPublisher records published products
type MockPublisher struct {
	mu        sync.Mutex
	published []string
	status    domain.ExternalStatus
	err       error
}

func (m *MockPublisher) Publish(_ context.Context, p domain.CanonicalProduct) (*domain.PublishResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.published = append(m.published, p.ID)
	status := m.status
	if status == "" {
		status = domain.ExternalPublished
	}
	return &domain.PublishResult{ExternalID: "ext-" + p.ID, Status: status}, nil
}

// MockRunStarter records dispatched retries
type MockRunStarter struct {
	requests []RunRequest
}

func (m *MockRunStarter) Dispatch(_ context.Context, req RunRequest) (*domain.RunSummary, error) {
	m.requests = append(m.requests, req)
	return &domain.RunSummary{ID: "retry-run", Retailer: req.Retailer, Status: domain.RunRunning}, nil
}
