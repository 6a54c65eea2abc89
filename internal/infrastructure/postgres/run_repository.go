package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/shelfwatch/backend/internal/domain"
)

const runColumns = `id, retailer, category, pass, status, items_scanned, new_found, suspected_duplicates,
       confirmed_existing, price_changes, failed_extractions, cost_incurred, duration_ms, error,
       started_at, finished_at`

type runRow struct {
	ID                  string     `db:"id"`
	Retailer            string     `db:"retailer"`
	Category            string     `db:"category"`
	Pass                string     `db:"pass"`
	Status              string     `db:"status"`
	ItemsScanned        int        `db:"items_scanned"`
	NewFound            int        `db:"new_found"`
	SuspectedDuplicates int        `db:"suspected_duplicates"`
	ConfirmedExisting   int        `db:"confirmed_existing"`
	PriceChanges        int        `db:"price_changes"`
	FailedExtractions   int        `db:"failed_extractions"`
	CostIncurred        float64    `db:"cost_incurred"`
	DurationMS          int64      `db:"duration_ms"`
	Error               string     `db:"error"`
	StartedAt           time.Time  `db:"started_at"`
	FinishedAt          *time.Time `db:"finished_at"`
}

func (r runRow) toDomain() domain.RunSummary {
	return domain.RunSummary{
		ID:                  r.ID,
		Retailer:            r.Retailer,
		Category:            r.Category,
		Pass:                domain.Pass(r.Pass),
		Status:              domain.RunStatus(r.Status),
		ItemsScanned:        r.ItemsScanned,
		NewFound:            r.NewFound,
		SuspectedDuplicates: r.SuspectedDuplicates,
		ConfirmedExisting:   r.ConfirmedExisting,
		PriceChanges:        r.PriceChanges,
		FailedExtractions:   r.FailedExtractions,
		CostIncurred:        r.CostIncurred,
		Duration:            time.Duration(r.DurationMS) * time.Millisecond,
		Error:               r.Error,
		StartedAt:           r.StartedAt,
		FinishedAt:          r.FinishedAt,
	}
}

// RunRepository handles database operations for run summaries
type RunRepository struct {
	db sqlx.ExtContext
}

// NewRunRepository creates a new run repository
func NewRunRepository(db sqlx.ExtContext) *RunRepository {
	return &RunRepository{db: db}
}

// Start records a run that has begun
func (r *RunRepository) Start(ctx context.Context, run *domain.RunSummary) error {
	query := `
		INSERT INTO runs (id, retailer, category, pass, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := r.db.ExecContext(ctx, query,
		run.ID, run.Retailer, run.Category, string(run.Pass), string(run.Status), run.StartedAt,
	); err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}
	return nil
}

// Finish stores the final counters and status of a run
func (r *RunRepository) Finish(ctx context.Context, run *domain.RunSummary) error {
	query := `
		UPDATE runs
		SET status = $2, items_scanned = $3, new_found = $4, suspected_duplicates = $5,
		    confirmed_existing = $6, price_changes = $7, failed_extractions = $8,
		    cost_incurred = $9, duration_ms = $10, error = $11, finished_at = $12
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query,
		run.ID, string(run.Status), run.ItemsScanned, run.NewFound, run.SuspectedDuplicates,
		run.ConfirmedExisting, run.PriceChanges, run.FailedExtractions,
		run.CostIncurred, run.Duration.Milliseconds(), run.Error, run.FinishedAt,
	)
	if err = execRequireRows(result, err, domain.ErrRunNotFound); err != nil {
		return fmt.Errorf("failed to finish run %s: %w", run.ID, err)
	}
	return nil
}

// Get retrieves a run summary by its ID
func (r *RunRepository) Get(ctx context.Context, id string) (*domain.RunSummary, error) {
	var row runRow
	err := sqlx.GetContext(ctx, r.db, &row, `SELECT `+runColumns+` FROM runs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	run := row.toDomain()
	return &run, nil
}

// List returns runs newest first, optionally for one retailer
func (r *RunRepository) List(ctx context.Context, retailer string, limit int) ([]domain.RunSummary, error) {
	query := `SELECT ` + runColumns + `
		FROM runs
		WHERE ($1::text = '' OR retailer = $1)
		ORDER BY started_at DESC
		LIMIT $2
	`
	var rows []runRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, retailer, limitArg(limit)); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	out := make([]domain.RunSummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}
