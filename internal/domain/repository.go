package domain

import (
	"context"
	"time"
)

// CacheRepository defines the interface for caching operations
type CacheRepository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// PatternStore holds the pattern learner's counters.
// Implementations must increment atomically; lost updates are tolerable, torn writes are not.
type PatternStore interface {
	Record(ctx context.Context, retailer, provider string, field PatternField, success bool) error
	Stats(ctx context.Context, retailer string) ([]PatternStats, error)
	// NextSequence returns a per-retailer attempt counter used for exploration.
	NextSequence(ctx context.Context, retailer string) (int64, error)
}

// CanonicalRepository persists canonical products
type CanonicalRepository interface {
	GetByID(ctx context.Context, id string) (*CanonicalProduct, error)
	GetByNormalizedURL(ctx context.Context, retailer, normalizedURL string) (*CanonicalProduct, error)
	ListByRetailer(ctx context.Context, retailer string) ([]CanonicalProduct, error)
	List(ctx context.Context, filter CanonicalFilter) ([]CanonicalProduct, error)
	// Insert returns ErrDuplicateCanonical when (retailer, normalized_url) is taken.
	Insert(ctx context.Context, p *CanonicalProduct) error
	UpdateObservation(ctx context.Context, id, title string, price float64, imageURLs []string, at time.Time) error
	// UpdateStage moves from -> to; it fails with ErrInvalidTransition when the row is not in from.
	UpdateStage(ctx context.Context, id string, from, to LifecycleStage, at time.Time) error
	UpdateExternal(ctx context.Context, id, externalID string, status ExternalStatus, at time.Time) error
}

// SnapshotRepository persists baselines and the append-only snapshot log
type SnapshotRepository interface {
	AppendRows(ctx context.Context, rows []SnapshotRow) error
	// GetActive locks the active row when called inside a transaction.
	GetActive(ctx context.Context, retailer, category string) (*BaselineSnapshot, error)
	Create(ctx context.Context, s *BaselineSnapshot) error
	Activate(ctx context.Context, id string, at time.Time) error
	MarkStale(ctx context.Context, id string) error
	ListRows(ctx context.Context, runID string) ([]SnapshotRow, error)
}

// UpdateQueueRepository persists price change events
type UpdateQueueRepository interface {
	Enqueue(ctx context.Context, e *UpdateQueueEntry) error
	List(ctx context.Context, retailer string, limit int) ([]UpdateQueueEntry, error)
}

// ReviewRepository persists the human review queue
type ReviewRepository interface {
	// Enqueue is idempotent per (kind, retailer, candidate normalized url) while pending.
	Enqueue(ctx context.Context, item *ReviewItem) (bool, error)
	Get(ctx context.Context, id string) (*ReviewItem, error)
	ListPending(ctx context.Context, kind ReviewKind, limit int) ([]ReviewItem, error)
	// Resolve fails with ErrAlreadyResolved when the item is not pending.
	Resolve(ctx context.Context, id string, decision ReviewDecision, at time.Time) error
}

// RunRepository persists run summaries
type RunRepository interface {
	Start(ctx context.Context, run *RunSummary) error
	Finish(ctx context.Context, run *RunSummary) error
	Get(ctx context.Context, id string) (*RunSummary, error)
	List(ctx context.Context, retailer string, limit int) ([]RunSummary, error)
}

// Repositories groups the repositories that share one unit of work
type Repositories struct {
	Canonical CanonicalRepository
	Snapshots SnapshotRepository
	Updates   UpdateQueueRepository
	Reviews   ReviewRepository
	Runs      RunRepository
}

// Store provides repositories and transactional units of work.
// Inside WithinTx only the repositories passed to fn may be used.
type Store interface {
	Repositories() Repositories
	WithinTx(ctx context.Context, fn func(Repositories) error) error
}

// PublishResult is returned by the publishing collaborator
type PublishResult struct {
	ExternalID      string         `json:"external_id"`
	Status          ExternalStatus `json:"status"`
	HostedImageURLs []string       `json:"hosted_image_urls,omitempty"`
}

// Publisher pushes assessed products to the downstream storefront
type Publisher interface {
	Publish(ctx context.Context, p CanonicalProduct) (*PublishResult, error)
}
