// Package memstore is an in-process domain.Store. Transactions write to the
// live state under the store lock for their whole duration and keep an undo
// log that is replayed in reverse when they fail.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shelfwatch/backend/internal/domain"
)

type state struct {
	canonical      map[string]domain.CanonicalProduct
	canonicalOrder []string
	byNormalized   map[string]string

	snapshots     map[string]domain.BaselineSnapshot
	snapshotOrder []string
	rows          []domain.SnapshotRow

	updates []domain.UpdateQueueEntry

	reviews     map[string]domain.ReviewItem
	reviewOrder []string

	runs     map[string]domain.RunSummary
	runOrder []string

	// undo is non-nil only while a transaction is open
	undo *[]func()
}

func newState() *state {
	return &state{
		canonical:    make(map[string]domain.CanonicalProduct),
		byNormalized: make(map[string]string),
		snapshots:    make(map[string]domain.BaselineSnapshot),
		reviews:      make(map[string]domain.ReviewItem),
		runs:         make(map[string]domain.RunSummary),
	}
}

func (s *state) record(undo func()) {
	if s.undo != nil {
		*s.undo = append(*s.undo, undo)
	}
}

func (s *state) rollback() {
	entries := *s.undo
	for i := len(entries) - 1; i >= 0; i-- {
		entries[i]()
	}
}

// put sets m[k] and records how to restore the previous entry
func put[K comparable, V any](st *state, m map[K]V, k K, v V) {
	prev, existed := m[k]
	m[k] = v
	st.record(func() {
		if existed {
			m[k] = prev
		} else {
			delete(m, k)
		}
	})
}

// push appends to *list and records how to truncate it back
func push[T any](st *state, list *[]T, v ...T) {
	n := len(*list)
	*list = append(*list, v...)
	st.record(func() { *list = (*list)[:n] })
}

// Store is the in-memory domain.Store
type Store struct {
	mu sync.Mutex
	st *state
}

// New creates an empty store
func New() *Store {
	return &Store{st: newState()}
}

// Repositories returns repositories that lock the store per call
func (s *Store) Repositories() domain.Repositories {
	return s.repositories(&access{store: s})
}

// WithinTx runs fn under the store lock. Its writes are undone if fn fails
// or panics.
func (s *Store) WithinTx(ctx context.Context, fn func(domain.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.st
	st.undo = new([]func())
	committed := false
	defer func() {
		if !committed {
			st.rollback()
		}
		st.undo = nil
	}()

	if err := fn(s.repositories(&access{tx: st})); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *Store) repositories(a *access) domain.Repositories {
	return domain.Repositories{
		Canonical: &canonicalRepo{a},
		Snapshots: &snapshotRepo{a},
		Updates:   &updateRepo{a},
		Reviews:   &reviewRepo{a},
		Runs:      &runRepo{a},
	}
}

// access resolves which state a repository call works on
type access struct {
	store *Store
	tx    *state
}

func (a *access) do(fn func(st *state) error) error {
	if a.tx != nil {
		return fn(a.tx)
	}
	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	return fn(a.store.st)
}

func normalizedKey(retailer, normalizedURL string) string {
	return retailer + "\x00" + normalizedURL
}

type canonicalRepo struct{ a *access }

func (r *canonicalRepo) GetByID(_ context.Context, id string) (*domain.CanonicalProduct, error) {
	var out *domain.CanonicalProduct
	err := r.a.do(func(st *state) error {
		p, ok := st.canonical[id]
		if !ok {
			return domain.ErrCanonicalNotFound
		}
		out = &p
		return nil
	})
	return out, err
}

func (r *canonicalRepo) GetByNormalizedURL(_ context.Context, retailer, normalizedURL string) (*domain.CanonicalProduct, error) {
	var out *domain.CanonicalProduct
	err := r.a.do(func(st *state) error {
		id, ok := st.byNormalized[normalizedKey(retailer, normalizedURL)]
		if !ok {
			return domain.ErrCanonicalNotFound
		}
		p := st.canonical[id]
		out = &p
		return nil
	})
	return out, err
}

func (r *canonicalRepo) ListByRetailer(ctx context.Context, retailer string) ([]domain.CanonicalProduct, error) {
	return r.List(ctx, domain.CanonicalFilter{Retailer: retailer})
}

func (r *canonicalRepo) List(_ context.Context, f domain.CanonicalFilter) ([]domain.CanonicalProduct, error) {
	out := make([]domain.CanonicalProduct, 0)
	err := r.a.do(func(st *state) error {
		skipped := 0
		for _, id := range st.canonicalOrder {
			p := st.canonical[id]
			if (f.Retailer != "" && p.Retailer != f.Retailer) ||
				(f.Category != "" && p.Category != f.Category) ||
				(f.Stage != "" && p.LifecycleStage != f.Stage) {
				continue
			}
			if skipped < f.Offset {
				skipped++
				continue
			}
			out = append(out, p)
			if f.Limit > 0 && len(out) == f.Limit {
				break
			}
		}
		return nil
	})
	return out, err
}

func (r *canonicalRepo) Insert(_ context.Context, p *domain.CanonicalProduct) error {
	return r.a.do(func(st *state) error {
		key := normalizedKey(p.Retailer, p.NormalizedURL)
		if _, taken := st.byNormalized[key]; taken {
			return domain.ErrDuplicateCanonical
		}
		if _, taken := st.canonical[p.ID]; taken {
			return fmt.Errorf("canonical id %s already exists", p.ID)
		}
		put(st, st.canonical, p.ID, *p)
		push(st, &st.canonicalOrder, p.ID)
		put(st, st.byNormalized, key, p.ID)
		return nil
	})
}

func (r *canonicalRepo) update(id string, fn func(p *domain.CanonicalProduct) error) error {
	return r.a.do(func(st *state) error {
		p, ok := st.canonical[id]
		if !ok {
			return domain.ErrCanonicalNotFound
		}
		if err := fn(&p); err != nil {
			return err
		}
		put(st, st.canonical, id, p)
		return nil
	})
}

func (r *canonicalRepo) UpdateObservation(_ context.Context, id, title string, price float64, imageURLs []string, at time.Time) error {
	return r.update(id, func(p *domain.CanonicalProduct) error {
		p.Title = title
		p.Price = price
		p.ImageURLs = append([]string(nil), imageURLs...)
		p.LastUpdated = at
		return nil
	})
}

func (r *canonicalRepo) UpdateStage(_ context.Context, id string, from, to domain.LifecycleStage, at time.Time) error {
	return r.update(id, func(p *domain.CanonicalProduct) error {
		if p.LifecycleStage != from {
			return fmt.Errorf("%w: %s is %s, not %s", domain.ErrInvalidTransition, id, p.LifecycleStage, from)
		}
		p.LifecycleStage = to
		p.LastUpdated = at
		return nil
	})
}

func (r *canonicalRepo) UpdateExternal(_ context.Context, id, externalID string, status domain.ExternalStatus, at time.Time) error {
	return r.update(id, func(p *domain.CanonicalProduct) error {
		p.ExternalID = externalID
		p.ExternalStatus = status
		p.LastUpdated = at
		return nil
	})
}

type snapshotRepo struct{ a *access }

func (r *snapshotRepo) AppendRows(_ context.Context, rows []domain.SnapshotRow) error {
	return r.a.do(func(st *state) error {
		push(st, &st.rows, rows...)
		return nil
	})
}

func (r *snapshotRepo) GetActive(_ context.Context, retailer, category string) (*domain.BaselineSnapshot, error) {
	var out *domain.BaselineSnapshot
	err := r.a.do(func(st *state) error {
		for _, id := range st.snapshotOrder {
			s := st.snapshots[id]
			if s.Retailer == retailer && s.Category == category && s.Status == domain.SnapshotActive {
				out = &s
				return nil
			}
		}
		return domain.ErrSnapshotNotFound
	})
	return out, err
}

func (r *snapshotRepo) Create(_ context.Context, s *domain.BaselineSnapshot) error {
	return r.a.do(func(st *state) error {
		if _, taken := st.snapshots[s.ID]; taken {
			return fmt.Errorf("snapshot id %s already exists", s.ID)
		}
		put(st, st.snapshots, s.ID, *s)
		push(st, &st.snapshotOrder, s.ID)
		return nil
	})
}

func (r *snapshotRepo) Activate(_ context.Context, id string, at time.Time) error {
	return r.a.do(func(st *state) error {
		s, ok := st.snapshots[id]
		if !ok {
			return domain.ErrSnapshotNotFound
		}
		for otherID, other := range st.snapshots {
			if otherID != id && other.Retailer == s.Retailer && other.Category == s.Category && other.Status == domain.SnapshotActive {
				return fmt.Errorf("snapshot %s is still active for %s/%s", otherID, s.Retailer, s.Category)
			}
		}
		s.Status = domain.SnapshotActive
		s.ActivatedAt = &at
		put(st, st.snapshots, id, s)
		return nil
	})
}

func (r *snapshotRepo) MarkStale(_ context.Context, id string) error {
	return r.a.do(func(st *state) error {
		s, ok := st.snapshots[id]
		if !ok {
			return domain.ErrSnapshotNotFound
		}
		s.Status = domain.SnapshotStale
		put(st, st.snapshots, id, s)
		return nil
	})
}

func (r *snapshotRepo) ListRows(_ context.Context, runID string) ([]domain.SnapshotRow, error) {
	out := make([]domain.SnapshotRow, 0)
	err := r.a.do(func(st *state) error {
		for _, row := range st.rows {
			if row.RunID == runID {
				out = append(out, row)
			}
		}
		return nil
	})
	return out, err
}

type updateRepo struct{ a *access }

func (r *updateRepo) Enqueue(_ context.Context, e *domain.UpdateQueueEntry) error {
	return r.a.do(func(st *state) error {
		push(st, &st.updates, *e)
		return nil
	})
}

func (r *updateRepo) List(_ context.Context, retailer string, limit int) ([]domain.UpdateQueueEntry, error) {
	out := make([]domain.UpdateQueueEntry, 0)
	err := r.a.do(func(st *state) error {
		for i := len(st.updates) - 1; i >= 0; i-- {
			e := st.updates[i]
			if retailer != "" && e.Retailer != retailer {
				continue
			}
			out = append(out, e)
			if limit > 0 && len(out) == limit {
				break
			}
		}
		return nil
	})
	return out, err
}

type reviewRepo struct{ a *access }

func reviewKey(item domain.ReviewItem) string {
	u := item.Candidate.NormalizedURL
	if u == "" {
		u = item.Candidate.URL
	}
	return string(item.Kind) + "\x00" + item.Retailer + "\x00" + u
}

func (r *reviewRepo) Enqueue(_ context.Context, item *domain.ReviewItem) (bool, error) {
	created := false
	err := r.a.do(func(st *state) error {
		key := reviewKey(*item)
		for _, id := range st.reviewOrder {
			existing := st.reviews[id]
			if existing.Status == domain.ReviewPending && reviewKey(existing) == key {
				return nil
			}
		}
		put(st, st.reviews, item.ID, *item)
		push(st, &st.reviewOrder, item.ID)
		created = true
		return nil
	})
	return created, err
}

func (r *reviewRepo) Get(_ context.Context, id string) (*domain.ReviewItem, error) {
	var out *domain.ReviewItem
	err := r.a.do(func(st *state) error {
		item, ok := st.reviews[id]
		if !ok {
			return domain.ErrReviewNotFound
		}
		out = &item
		return nil
	})
	return out, err
}

func (r *reviewRepo) ListPending(_ context.Context, kind domain.ReviewKind, limit int) ([]domain.ReviewItem, error) {
	out := make([]domain.ReviewItem, 0)
	err := r.a.do(func(st *state) error {
		for _, id := range st.reviewOrder {
			item := st.reviews[id]
			if item.Status != domain.ReviewPending || (kind != "" && item.Kind != kind) {
				continue
			}
			out = append(out, item)
			if limit > 0 && len(out) == limit {
				break
			}
		}
		return nil
	})
	return out, err
}

func (r *reviewRepo) Resolve(_ context.Context, id string, d domain.ReviewDecision, at time.Time) error {
	return r.a.do(func(st *state) error {
		item, ok := st.reviews[id]
		if !ok {
			return domain.ErrReviewNotFound
		}
		if item.Status != domain.ReviewPending {
			return domain.ErrAlreadyResolved
		}
		item.Status = domain.ReviewResolved
		item.Decision = d.Decision
		item.Reviewer = d.Reviewer
		item.Note = d.Note
		item.ResolvedAt = &at
		put(st, st.reviews, id, item)
		return nil
	})
}

type runRepo struct{ a *access }

func (r *runRepo) Start(_ context.Context, run *domain.RunSummary) error {
	return r.a.do(func(st *state) error {
		if _, taken := st.runs[run.ID]; taken {
			return fmt.Errorf("run %s already exists", run.ID)
		}
		put(st, st.runs, run.ID, *run)
		push(st, &st.runOrder, run.ID)
		return nil
	})
}

func (r *runRepo) Finish(_ context.Context, run *domain.RunSummary) error {
	return r.a.do(func(st *state) error {
		if _, ok := st.runs[run.ID]; !ok {
			return domain.ErrRunNotFound
		}
		put(st, st.runs, run.ID, *run)
		return nil
	})
}

func (r *runRepo) Get(_ context.Context, id string) (*domain.RunSummary, error) {
	var out *domain.RunSummary
	err := r.a.do(func(st *state) error {
		run, ok := st.runs[id]
		if !ok {
			return domain.ErrRunNotFound
		}
		out = &run
		return nil
	})
	return out, err
}

func (r *runRepo) List(_ context.Context, retailer string, limit int) ([]domain.RunSummary, error) {
	out := make([]domain.RunSummary, 0)
	err := r.a.do(func(st *state) error {
		for _, id := range st.runOrder {
			run := st.runs[id]
			if retailer == "" || run.Retailer == retailer {
				out = append(out, run)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
