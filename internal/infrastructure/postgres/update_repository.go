package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/shelfwatch/backend/internal/domain"
)

// UpdateQueueRepository handles database operations for price change events
type UpdateQueueRepository struct {
	db sqlx.ExtContext
}

// NewUpdateQueueRepository creates a new update queue repository
func NewUpdateQueueRepository(db sqlx.ExtContext) *UpdateQueueRepository {
	return &UpdateQueueRepository{db: db}
}

type updateRow struct {
	ID          string    `db:"id"`
	CanonicalID string    `db:"canonical_id"`
	ProductURL  string    `db:"product_url"`
	Retailer    string    `db:"retailer"`
	Priority    string    `db:"priority"`
	Reason      string    `db:"reason"`
	OldPrice    float64   `db:"old_price"`
	NewPrice    float64   `db:"new_price"`
	DetectedAt  time.Time `db:"detected_at"`
}

// Enqueue stores a price change event
func (r *UpdateQueueRepository) Enqueue(ctx context.Context, e *domain.UpdateQueueEntry) error {
	query := `
		INSERT INTO update_queue (
			id, canonical_id, product_url, retailer, priority, reason, old_price, new_price, detected_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	if _, err := r.db.ExecContext(ctx, query,
		e.ID, e.CanonicalID, e.ProductURL, e.Retailer, string(e.Priority), e.Reason,
		e.OldPrice, e.NewPrice, e.DetectedAt,
	); err != nil {
		return fmt.Errorf("failed to enqueue price change: %w", err)
	}
	return nil
}

// List returns the newest price changes, optionally for one retailer
func (r *UpdateQueueRepository) List(ctx context.Context, retailer string, limit int) ([]domain.UpdateQueueEntry, error) {
	query := `
		SELECT id, canonical_id, product_url, retailer, priority, reason, old_price, new_price, detected_at
		FROM update_queue
		WHERE ($1::text = '' OR retailer = $1)
		ORDER BY detected_at DESC, id
		LIMIT $2
	`
	var rows []updateRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, retailer, limitArg(limit)); err != nil {
		return nil, fmt.Errorf("failed to list price changes: %w", err)
	}

	out := make([]domain.UpdateQueueEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.UpdateQueueEntry{
			ID:          row.ID,
			CanonicalID: row.CanonicalID,
			ProductURL:  row.ProductURL,
			Retailer:    row.Retailer,
			Priority:    domain.UpdatePriority(row.Priority),
			Reason:      row.Reason,
			OldPrice:    row.OldPrice,
			NewPrice:    row.NewPrice,
			DetectedAt:  row.DetectedAt,
		})
	}
	return out, nil
}
