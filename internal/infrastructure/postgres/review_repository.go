package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/shelfwatch/backend/internal/domain"
)

const reviewColumns = `id, kind, retailer, category, run_id, canonical_id, mode, candidate, match_result,
       reason, status, decision, reviewer, note, created_at, resolved_at`

type reviewRow struct {
	ID          string     `db:"id"`
	Kind        string     `db:"kind"`
	Retailer    string     `db:"retailer"`
	Category    string     `db:"category"`
	RunID       string     `db:"run_id"`
	CanonicalID string     `db:"canonical_id"`
	Mode        string     `db:"mode"`
	Candidate   []byte     `db:"candidate"`
	MatchResult []byte     `db:"match_result"`
	Reason      string     `db:"reason"`
	Status      string     `db:"status"`
	Decision    string     `db:"decision"`
	Reviewer    string     `db:"reviewer"`
	Note        string     `db:"note"`
	CreatedAt   time.Time  `db:"created_at"`
	ResolvedAt  *time.Time `db:"resolved_at"`
}

func (r reviewRow) toDomain() (domain.ReviewItem, error) {
	item := domain.ReviewItem{
		ID:          r.ID,
		Kind:        domain.ReviewKind(r.Kind),
		Retailer:    r.Retailer,
		Category:    r.Category,
		RunID:       r.RunID,
		CanonicalID: r.CanonicalID,
		Mode:        domain.Mode(r.Mode),
		Reason:      r.Reason,
		Status:      domain.ReviewStatus(r.Status),
		Decision:    domain.Decision(r.Decision),
		Reviewer:    r.Reviewer,
		Note:        r.Note,
		CreatedAt:   r.CreatedAt,
		ResolvedAt:  r.ResolvedAt,
	}
	if err := json.Unmarshal(r.Candidate, &item.Candidate); err != nil {
		return item, fmt.Errorf("decode review candidate: %w", err)
	}
	if len(r.MatchResult) > 0 {
		item.Match = &domain.MatchResult{}
		if err := json.Unmarshal(r.MatchResult, item.Match); err != nil {
			return item, fmt.Errorf("decode review match: %w", err)
		}
	}
	return item, nil
}

// ReviewRepository handles database operations for the review queue
type ReviewRepository struct {
	db sqlx.ExtContext
}

// NewReviewRepository creates a new review repository
func NewReviewRepository(db sqlx.ExtContext) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// Enqueue adds a pending review item. It reports false when an equivalent
// item is already pending.
func (r *ReviewRepository) Enqueue(ctx context.Context, item *domain.ReviewItem) (bool, error) {
	candidate, err := json.Marshal(item.Candidate)
	if err != nil {
		return false, fmt.Errorf("encode review candidate: %w", err)
	}
	var match any
	if item.Match != nil {
		encoded, encErr := json.Marshal(item.Match)
		if encErr != nil {
			return false, fmt.Errorf("encode review match: %w", encErr)
		}
		match = encoded
	}

	normalized := item.Candidate.NormalizedURL
	if normalized == "" {
		normalized = item.Candidate.URL
	}

	query := `
		INSERT INTO review_items (
			id, kind, retailer, category, run_id, canonical_id, mode, normalized_url,
			candidate, match_result, reason, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (kind, retailer, normalized_url) WHERE status = 'pending' DO NOTHING
	`
	result, err := r.db.ExecContext(ctx, query,
		item.ID, string(item.Kind), item.Retailer, item.Category, item.RunID, item.CanonicalID,
		string(item.Mode), normalized, candidate, match, item.Reason, string(item.Status), item.CreatedAt,
	)
	err = execRequireRows(result, err, errNoRows)
	if errors.Is(err, errNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to enqueue review item: %w", err)
	}
	return true, nil
}

// Get retrieves a review item by its ID
func (r *ReviewRepository) Get(ctx context.Context, id string) (*domain.ReviewItem, error) {
	var row reviewRow
	err := sqlx.GetContext(ctx, r.db, &row, `SELECT `+reviewColumns+` FROM review_items WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrReviewNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get review item: %w", err)
	}

	item, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ListPending returns pending items oldest first, optionally of one kind
func (r *ReviewRepository) ListPending(ctx context.Context, kind domain.ReviewKind, limit int) ([]domain.ReviewItem, error) {
	query := `SELECT ` + reviewColumns + `
		FROM review_items
		WHERE status = 'pending' AND ($1::text = '' OR kind = $1)
		ORDER BY created_at, id
		LIMIT $2
	`
	var rows []reviewRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, string(kind), limitArg(limit)); err != nil {
		return nil, fmt.Errorf("failed to list review items: %w", err)
	}

	out := make([]domain.ReviewItem, 0, len(rows))
	for _, row := range rows {
		item, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

// Resolve records a decision on a pending item
func (r *ReviewRepository) Resolve(ctx context.Context, id string, d domain.ReviewDecision, at time.Time) error {
	query := `
		UPDATE review_items
		SET status = 'resolved', decision = $2, reviewer = $3, note = $4, resolved_at = $5
		WHERE id = $1 AND status = 'pending'
	`
	result, err := r.db.ExecContext(ctx, query, id, string(d.Decision), d.Reviewer, d.Note, at)
	err = execRequireRows(result, err, errNoRows)
	if errors.Is(err, errNoRows) {
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return getErr
		}
		return domain.ErrAlreadyResolved
	}
	if err != nil {
		return fmt.Errorf("failed to resolve review item: %w", err)
	}
	return nil
}
