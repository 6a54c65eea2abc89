package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shelfwatch/backend/internal/domain"
)

// newCanonical builds a discovered canonical product from a candidate
func newCanonical(c domain.Candidate, at time.Time) *domain.CanonicalProduct {
	return &domain.CanonicalProduct{
		ID:             uuid.NewString(),
		URL:            c.URL,
		NormalizedURL:  c.NormalizedURL,
		Retailer:       c.Retailer,
		Category:       c.Category,
		Title:          c.Title,
		Price:          c.Price,
		ProductCode:    c.ProductCode,
		ImageURLs:      c.ImageURLs,
		ExternalStatus: domain.ExternalNotUploaded,
		LifecycleStage: domain.StageDiscovered,
		FirstSeen:      at,
		LastUpdated:    at,
	}
}

// baselineCanonical builds a canonical product for existing inventory, which
// is never queued for assessment
func baselineCanonical(c domain.Candidate, at time.Time) *domain.CanonicalProduct {
	p := newCanonical(c, at)
	p.BaselineInventory = true
	return p
}

// insertOrMatch inserts a canonical product keyed by normalized URL. When the
// key is already taken the existing row is returned with inserted=false.
func insertOrMatch(ctx context.Context, repos domain.Repositories, p *domain.CanonicalProduct) (*domain.CanonicalProduct, bool, error) {
	err := repos.Canonical.Insert(ctx, p)
	if err == nil {
		return p, true, nil
	}
	if !errors.Is(err, domain.ErrDuplicateCanonical) {
		return nil, false, fmt.Errorf("insert canonical: %w", err)
	}

	existing, err := repos.Canonical.GetByNormalizedURL(ctx, p.Retailer, p.NormalizedURL)
	if err != nil {
		return nil, false, fmt.Errorf("fetch colliding canonical: %w", err)
	}
	return existing, false, nil
}

// refreshCanonical records a fresh observation of a known product and queues
// a price update when the price moved by a cent or more.
func refreshCanonical(ctx context.Context, repos domain.Repositories, p *domain.CanonicalProduct, c domain.Candidate, at time.Time) (*domain.UpdateQueueEntry, error) {
	change := PriceChange(c, p, at)

	title := c.Title
	if title == "" {
		title = p.Title
	}
	price := c.Price
	if price <= 0 {
		price = p.Price
	}
	images := c.ImageURLs
	if len(images) == 0 {
		images = p.ImageURLs
	}

	if err := repos.Canonical.UpdateObservation(ctx, p.ID, title, price, images, at); err != nil {
		return nil, fmt.Errorf("update observation: %w", err)
	}
	if change != nil {
		if err := repos.Updates.Enqueue(ctx, change); err != nil {
			return nil, fmt.Errorf("enqueue price update: %w", err)
		}
	}
	return change, nil
}

// advanceStage moves a canonical product along the lifecycle table
func advanceStage(ctx context.Context, repos domain.Repositories, id string, to domain.LifecycleStage, at time.Time) (*domain.CanonicalProduct, error) {
	p, err := repos.Canonical.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	from := p.LifecycleStage
	if err := p.Transition(to, at); err != nil {
		return nil, err
	}
	if err := repos.Canonical.UpdateStage(ctx, id, from, to, at); err != nil {
		return nil, err
	}
	return p, nil
}

// snapshotRows tags every scraped candidate with the run for the append-only log
func snapshotRows(runID, retailerName, category string, candidates []domain.Candidate, at time.Time) []domain.SnapshotRow {
	rows := make([]domain.SnapshotRow, 0, len(candidates))
	for _, c := range candidates {
		rows = append(rows, domain.SnapshotRow{
			RunID:      runID,
			Retailer:   retailerName,
			Category:   category,
			Candidate:  c,
			CapturedAt: at,
		})
	}
	return rows
}

// baselineKey identifies an item inside a snapshot
func baselineKey(c domain.Candidate) string {
	if c.NormalizedURL != "" {
		return c.NormalizedURL
	}
	return c.URL
}

// mergeBaseline builds the next baseline from the active one and the run's
// resolved candidates, then swaps it in: the new snapshot is created pending,
// the prior one is marked stale and the new one activated. Call it inside a
// transaction so the swap is atomic.
func mergeBaseline(
	ctx context.Context,
	repos domain.Repositories,
	retailerName, category, runID string,
	resolved []domain.MatchResult,
	at time.Time,
) (*domain.BaselineSnapshot, error) {
	prior, err := repos.Snapshots.GetActive(ctx, retailerName, category)
	if err != nil && !errors.Is(err, domain.ErrSnapshotNotFound) {
		return nil, fmt.Errorf("load active baseline: %w", err)
	}

	items := make([]domain.Candidate, 0)
	pos := make(map[string]int)
	if prior != nil {
		for _, c := range prior.Items {
			pos[baselineKey(c)] = len(items)
			items = append(items, c)
		}
	}

	for _, r := range resolved {
		switch r.Classification {
		case domain.ClassNew, domain.ClassConfirmedExisting:
		default:
			continue
		}

		key := baselineKey(r.Candidate)
		// A retailer that rewrote the URL leaves the old key behind; replace it
		if _, taken := pos[key]; !taken && r.MatchedBaseline != nil {
			if old := baselineKey(*r.MatchedBaseline); old != key {
				if i, ok := pos[old]; ok {
					delete(pos, old)
					items[i] = r.Candidate
					pos[key] = i
					continue
				}
			}
		}
		if i, ok := pos[key]; ok {
			items[i] = r.Candidate
			continue
		}
		pos[key] = len(items)
		items = append(items, r.Candidate)
	}

	next := &domain.BaselineSnapshot{
		ID:        uuid.NewString(),
		Retailer:  retailerName,
		Category:  category,
		Status:    domain.SnapshotPending,
		RunID:     runID,
		Items:     items,
		CreatedAt: at,
	}
	if err := repos.Snapshots.Create(ctx, next); err != nil {
		return nil, fmt.Errorf("create baseline: %w", err)
	}
	if prior != nil {
		if err := repos.Snapshots.MarkStale(ctx, prior.ID); err != nil {
			return nil, fmt.Errorf("mark baseline stale: %w", err)
		}
	}
	if err := repos.Snapshots.Activate(ctx, next.ID, at); err != nil {
		return nil, fmt.Errorf("activate baseline: %w", err)
	}

	next.Status = domain.SnapshotActive
	next.ActivatedAt = &at
	return next, nil
}
