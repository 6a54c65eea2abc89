package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/shelfwatch/backend/internal/domain"
)

const canonicalColumns = `id, url, normalized_url, retailer, category, title, price, product_code,
       image_urls, external_id, external_status, lifecycle_stage, baseline_inventory, first_seen, last_updated`

// canonicalRow is the database shape of a canonical product
type canonicalRow struct {
	ID             string         `db:"id"`
	URL            string         `db:"url"`
	NormalizedURL  string         `db:"normalized_url"`
	Retailer       string         `db:"retailer"`
	Category       string         `db:"category"`
	Title          string         `db:"title"`
	Price          float64        `db:"price"`
	ProductCode    string         `db:"product_code"`
	ImageURLs      pq.StringArray `db:"image_urls"`
	ExternalID     string         `db:"external_id"`
	ExternalStatus string         `db:"external_status"`
	LifecycleStage string         `db:"lifecycle_stage"`
	Baseline       bool           `db:"baseline_inventory"`
	FirstSeen      time.Time      `db:"first_seen"`
	LastUpdated    time.Time      `db:"last_updated"`
}

func (r canonicalRow) toDomain() domain.CanonicalProduct {
	return domain.CanonicalProduct{
		ID:             r.ID,
		URL:            r.URL,
		NormalizedURL:  r.NormalizedURL,
		Retailer:       r.Retailer,
		Category:       r.Category,
		Title:          r.Title,
		Price:          r.Price,
		ProductCode:    r.ProductCode,
		ImageURLs:      []string(r.ImageURLs),
		ExternalID:     r.ExternalID,
		ExternalStatus: domain.ExternalStatus(r.ExternalStatus),
		LifecycleStage: domain.LifecycleStage(r.LifecycleStage),
		FirstSeen:      r.FirstSeen,
		LastUpdated:    r.LastUpdated,

		BaselineInventory: r.Baseline,
	}
}

// CanonicalRepository handles database operations for canonical products
type CanonicalRepository struct {
	db sqlx.ExtContext
}

// NewCanonicalRepository creates a new canonical product repository
func NewCanonicalRepository(db sqlx.ExtContext) *CanonicalRepository {
	return &CanonicalRepository{db: db}
}

func (r *CanonicalRepository) getOne(ctx context.Context, query string, args ...any) (*domain.CanonicalProduct, error) {
	var row canonicalRow
	if err := sqlx.GetContext(ctx, r.db, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrCanonicalNotFound
		}
		return nil, fmt.Errorf("failed to get canonical product: %w", err)
	}
	p := row.toDomain()
	return &p, nil
}

// GetByID retrieves a canonical product by its ID
func (r *CanonicalRepository) GetByID(ctx context.Context, id string) (*domain.CanonicalProduct, error) {
	return r.getOne(ctx, `SELECT `+canonicalColumns+` FROM canonical_products WHERE id = $1`, id)
}

// GetByNormalizedURL retrieves a canonical product by retailer and normalized URL
func (r *CanonicalRepository) GetByNormalizedURL(ctx context.Context, retailer, normalizedURL string) (*domain.CanonicalProduct, error) {
	return r.getOne(ctx,
		`SELECT `+canonicalColumns+` FROM canonical_products WHERE retailer = $1 AND normalized_url = $2`,
		retailer, normalizedURL,
	)
}

// ListByRetailer returns every canonical product of a retailer, oldest first
func (r *CanonicalRepository) ListByRetailer(ctx context.Context, retailer string) ([]domain.CanonicalProduct, error) {
	return r.List(ctx, domain.CanonicalFilter{Retailer: retailer})
}

// List returns canonical products matching the filter, oldest first
func (r *CanonicalRepository) List(ctx context.Context, f domain.CanonicalFilter) ([]domain.CanonicalProduct, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.Retailer != "" {
		add("retailer = $%d", f.Retailer)
	}
	if f.Category != "" {
		add("category = $%d", f.Category)
	}
	if f.Stage != "" {
		add("lifecycle_stage = $%d", string(f.Stage))
	}

	query := `SELECT ` + canonicalColumns + ` FROM canonical_products`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY first_seen, id`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	var rows []canonicalRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list canonical products: %w", err)
	}

	out := make([]domain.CanonicalProduct, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// Insert adds a canonical product keyed by (retailer, normalized_url). A
// collision returns domain.ErrDuplicateCanonical and leaves the transaction usable.
func (r *CanonicalRepository) Insert(ctx context.Context, p *domain.CanonicalProduct) error {
	query := `
		INSERT INTO canonical_products (
			id, url, normalized_url, retailer, category, title, price, product_code,
			image_urls, external_id, external_status, lifecycle_stage, baseline_inventory,
			first_seen, last_updated
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (retailer, normalized_url) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query,
		p.ID, p.URL, p.NormalizedURL, p.Retailer, p.Category, p.Title, p.Price, p.ProductCode,
		pq.StringArray(p.ImageURLs), p.ExternalID, string(p.ExternalStatus), string(p.LifecycleStage),
		p.BaselineInventory, p.FirstSeen, p.LastUpdated,
	)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateCanonical
	}
	if err = execRequireRows(result, err, domain.ErrDuplicateCanonical); err != nil {
		if errors.Is(err, domain.ErrDuplicateCanonical) {
			return err
		}
		return fmt.Errorf("failed to insert canonical product: %w", err)
	}
	return nil
}

// UpdateObservation stores the latest scraped title, price and images
func (r *CanonicalRepository) UpdateObservation(ctx context.Context, id, title string, price float64, imageURLs []string, at time.Time) error {
	query := `
		UPDATE canonical_products
		SET title = $2, price = $3, image_urls = $4, last_updated = $5
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, title, price, pq.StringArray(imageURLs), at)
	if err = execRequireRows(result, err, domain.ErrCanonicalNotFound); err != nil {
		return fmt.Errorf("failed to update canonical product %s: %w", id, err)
	}
	return nil
}

// UpdateStage moves a product between lifecycle stages. The row must still be in from.
func (r *CanonicalRepository) UpdateStage(ctx context.Context, id string, from, to domain.LifecycleStage, at time.Time) error {
	query := `
		UPDATE canonical_products
		SET lifecycle_stage = $3, last_updated = $4
		WHERE id = $1 AND lifecycle_stage = $2
	`
	result, err := r.db.ExecContext(ctx, query, id, string(from), string(to), at)
	err = execRequireRows(result, err, errNoRows)
	if errors.Is(err, errNoRows) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return fmt.Errorf("%w: %s is not %s", domain.ErrInvalidTransition, id, from)
	}
	if err != nil {
		return fmt.Errorf("failed to update lifecycle stage: %w", err)
	}
	return nil
}

// UpdateExternal stores the publishing collaborator's handle
func (r *CanonicalRepository) UpdateExternal(ctx context.Context, id, externalID string, status domain.ExternalStatus, at time.Time) error {
	query := `
		UPDATE canonical_products
		SET external_id = $2, external_status = $3, last_updated = $4
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, externalID, string(status), at)
	if err = execRequireRows(result, err, domain.ErrCanonicalNotFound); err != nil {
		return fmt.Errorf("failed to update external status: %w", err)
	}
	return nil
}
