package memstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfwatch/backend/internal/domain"
	"github.com/shelfwatch/backend/internal/infrastructure/memstore"
)

var t0 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func product(id, nurl string) *domain.CanonicalProduct {
	return &domain.CanonicalProduct{
		ID:             id,
		URL:            "https://" + nurl,
		NormalizedURL:  "https://" + nurl,
		Retailer:       "selfridges",
		Category:       "dresses",
		Title:          "Burgundy Midi Dress",
		Price:          895,
		ExternalStatus: domain.ExternalNotUploaded,
		LifecycleStage: domain.StageDiscovered,
		FirstSeen:      t0,
		LastUpdated:    t0,
	}
}

func TestCanonical_InsertRejectsDuplicateNormalizedURL(t *testing.T) {
	store := memstore.New()
	repo := store.Repositories().Canonical
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, product("p1", "shop.example/dp/1")))
	err := repo.Insert(ctx, product("p2", "shop.example/dp/1"))
	assert.ErrorIs(t, err, domain.ErrDuplicateCanonical)

	got, err := repo.GetByNormalizedURL(ctx, "selfridges", "https://shop.example/dp/1")
	require.NoError(t, err)
	assert.Equal(t, "p1", got.ID)

	_, err = repo.GetByNormalizedURL(ctx, "harrods", "https://shop.example/dp/1")
	assert.ErrorIs(t, err, domain.ErrCanonicalNotFound)
}

func TestCanonical_UpdateStageChecksCurrentStage(t *testing.T) {
	store := memstore.New()
	repo := store.Repositories().Canonical
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, product("p1", "shop.example/dp/1")))
	require.NoError(t, repo.UpdateStage(ctx, "p1", domain.StageDiscovered, domain.StagePendingAssessment, t0))

	err := repo.UpdateStage(ctx, "p1", domain.StageDiscovered, domain.StagePendingAssessment, t0)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestWithinTx_RollsBackOnError(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithinTx(ctx, func(tx domain.Repositories) error {
		require.NoError(t, tx.Canonical.Insert(ctx, product("p1", "shop.example/dp/1")))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = store.Repositories().Canonical.GetByID(ctx, "p1")
	assert.ErrorIs(t, err, domain.ErrCanonicalNotFound)

	err = store.WithinTx(ctx, func(tx domain.Repositories) error {
		return tx.Canonical.Insert(ctx, product("p1", "shop.example/dp/1"))
	})
	require.NoError(t, err)

	got, err := store.Repositories().Canonical.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", got.ID)
}

func TestWithinTx_RollbackRestoresEveryTable(t *testing.T) {
	store := memstore.New()
	repos := store.Repositories()
	ctx := context.Background()

	require.NoError(t, repos.Canonical.Insert(ctx, product("p1", "shop.example/dp/1")))
	_, err := repos.Reviews.Enqueue(ctx, &domain.ReviewItem{
		ID:        "r1",
		Kind:      domain.ReviewQualitative,
		Retailer:  "selfridges",
		Candidate: domain.Candidate{URL: "https://shop.example/dp/1"},
		Status:    domain.ReviewPending,
		CreatedAt: t0,
	})
	require.NoError(t, err)
	require.NoError(t, repos.Runs.Start(ctx, &domain.RunSummary{ID: "run-1", Retailer: "selfridges", Status: domain.RunRunning, StartedAt: t0}))

	boom := errors.New("boom")
	err = store.WithinTx(ctx, func(tx domain.Repositories) error {
		require.NoError(t, tx.Canonical.UpdateStage(ctx, "p1", domain.StageDiscovered, domain.StagePendingAssessment, t0))
		require.NoError(t, tx.Canonical.UpdateObservation(ctx, "p1", "Renamed", 10, nil, t0))
		require.NoError(t, tx.Canonical.Insert(ctx, product("p2", "shop.example/dp/2")))
		require.NoError(t, tx.Reviews.Resolve(ctx, "r1", domain.ReviewDecision{Decision: domain.DecisionModest}, t0))
		require.NoError(t, tx.Updates.Enqueue(ctx, &domain.UpdateQueueEntry{ID: "u1", Retailer: "selfridges"}))
		require.NoError(t, tx.Snapshots.AppendRows(ctx, []domain.SnapshotRow{{RunID: "run-1"}}))
		require.NoError(t, tx.Snapshots.Create(ctx, &domain.BaselineSnapshot{ID: "s1", Retailer: "selfridges", Category: "dresses"}))
		require.NoError(t, tx.Runs.Finish(ctx, &domain.RunSummary{ID: "run-1", Retailer: "selfridges", Status: domain.RunCompleted, StartedAt: t0}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	p1, err := repos.Canonical.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.StageDiscovered, p1.LifecycleStage)
	assert.Equal(t, "Burgundy Midi Dress", p1.Title)
	assert.Equal(t, 895.0, p1.Price)

	_, err = repos.Canonical.GetByNormalizedURL(ctx, "selfridges", "https://shop.example/dp/2")
	assert.ErrorIs(t, err, domain.ErrCanonicalNotFound)
	all, err := repos.Canonical.ListByRetailer(ctx, "selfridges")
	require.NoError(t, err)
	assert.Len(t, all, 1)

	r1, err := repos.Reviews.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.ReviewPending, r1.Status)
	assert.Nil(t, r1.ResolvedAt)

	updates, err := repos.Updates.List(ctx, "", 0)
	require.NoError(t, err)
	assert.Empty(t, updates)

	rows, err := repos.Snapshots.ListRows(ctx, "run-1")
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = repos.Snapshots.GetActive(ctx, "selfridges", "dresses")
	assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)
	require.NoError(t, repos.Snapshots.Create(ctx, &domain.BaselineSnapshot{ID: "s1", Retailer: "selfridges", Category: "dresses"}))

	run, err := repos.Runs.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunRunning, run.Status)

	// the freed normalized URL can be taken again
	require.NoError(t, repos.Canonical.Insert(ctx, product("p2", "shop.example/dp/2")))
}

func TestWithinTx_RollsBackOnPanic(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	assert.Panics(t, func() {
		_ = store.WithinTx(ctx, func(tx domain.Repositories) error {
			require.NoError(t, tx.Canonical.Insert(ctx, product("p1", "shop.example/dp/1")))
			panic("boom")
		})
	})

	_, err := store.Repositories().Canonical.GetByID(ctx, "p1")
	assert.ErrorIs(t, err, domain.ErrCanonicalNotFound)

	// the store is usable afterwards and later writes are kept
	require.NoError(t, store.Repositories().Canonical.Insert(ctx, product("p1", "shop.example/dp/1")))
	err = store.WithinTx(ctx, func(tx domain.Repositories) error {
		return tx.Canonical.UpdateStage(ctx, "p1", domain.StageDiscovered, domain.StagePendingAssessment, t0)
	})
	require.NoError(t, err)
	got, err := store.Repositories().Canonical.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.StagePendingAssessment, got.LifecycleStage)
}

func TestSnapshots_OneActivePerKey(t *testing.T) {
	store := memstore.New()
	repo := store.Repositories().Snapshots
	ctx := context.Background()

	first := &domain.BaselineSnapshot{ID: "s1", Retailer: "selfridges", Category: "dresses", Status: domain.SnapshotPending}
	second := &domain.BaselineSnapshot{ID: "s2", Retailer: "selfridges", Category: "dresses", Status: domain.SnapshotPending}
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))

	_, err := repo.GetActive(ctx, "selfridges", "dresses")
	assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)

	require.NoError(t, repo.Activate(ctx, "s1", t0))
	assert.Error(t, repo.Activate(ctx, "s2", t0))

	require.NoError(t, repo.MarkStale(ctx, "s1"))
	require.NoError(t, repo.Activate(ctx, "s2", t0))

	active, err := repo.GetActive(ctx, "selfridges", "dresses")
	require.NoError(t, err)
	assert.Equal(t, "s2", active.ID)
	require.NotNil(t, active.ActivatedAt)
}

func TestReviews_EnqueueIsIdempotentWhilePending(t *testing.T) {
	store := memstore.New()
	repo := store.Repositories().Reviews
	ctx := context.Background()

	item := func(id string) *domain.ReviewItem {
		return &domain.ReviewItem{
			ID:        id,
			Kind:      domain.ReviewDuplicate,
			Retailer:  "selfridges",
			Candidate: domain.Candidate{NormalizedURL: "https://shop.example/dp/1"},
			Status:    domain.ReviewPending,
		}
	}

	created, err := repo.Enqueue(ctx, item("r1"))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.Enqueue(ctx, item("r2"))
	require.NoError(t, err)
	assert.False(t, created)

	require.NoError(t, repo.Resolve(ctx, "r1", domain.ReviewDecision{Decision: domain.DecisionNew, Reviewer: "ana"}, t0))
	assert.ErrorIs(t, repo.Resolve(ctx, "r1", domain.ReviewDecision{Decision: domain.DecisionNew}, t0), domain.ErrAlreadyResolved)

	created, err = repo.Enqueue(ctx, item("r3"))
	require.NoError(t, err)
	assert.True(t, created)

	pending, err := repo.ListPending(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "r3", pending[0].ID)

	resolved, err := repo.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "ana", resolved.Reviewer)
	assert.Equal(t, domain.ReviewResolved, resolved.Status)
}

func TestRuns_ListNewestFirst(t *testing.T) {
	store := memstore.New()
	repo := store.Repositories().Runs
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Start(ctx, &domain.RunSummary{
			ID:        id,
			Retailer:  "selfridges",
			Status:    domain.RunRunning,
			StartedAt: t0.Add(time.Duration(i) * time.Minute),
		}))
	}

	runs, err := repo.List(ctx, "selfridges", 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)

	assert.ErrorIs(t, repo.Finish(ctx, &domain.RunSummary{ID: "missing"}), domain.ErrRunNotFound)
}
