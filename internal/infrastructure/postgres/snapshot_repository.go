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

// SnapshotRepository handles baselines and the per-run snapshot log
type SnapshotRepository struct {
	db   sqlx.ExtContext
	inTx bool
}

// NewSnapshotRepository creates a new snapshot repository. Inside a
// transaction GetActive takes a row lock on the active baseline.
func NewSnapshotRepository(db sqlx.ExtContext, inTx bool) *SnapshotRepository {
	return &SnapshotRepository{db: db, inTx: inTx}
}

// AppendRows writes the scraped candidates of a run to the append-only log
func (r *SnapshotRepository) AppendRows(ctx context.Context, rows []domain.SnapshotRow) error {
	query := `
		INSERT INTO snapshot_rows (run_id, retailer, category, candidate, captured_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	for i := range rows {
		payload, err := json.Marshal(rows[i].Candidate)
		if err != nil {
			return fmt.Errorf("failed to encode snapshot row: %w", err)
		}
		if _, err = r.db.ExecContext(ctx, query,
			rows[i].RunID, rows[i].Retailer, rows[i].Category, payload, rows[i].CapturedAt,
		); err != nil {
			return fmt.Errorf("failed to append snapshot row: %w", err)
		}
	}
	return nil
}

// GetActive returns the active baseline for a retailer and category
func (r *SnapshotRepository) GetActive(ctx context.Context, retailer, category string) (*domain.BaselineSnapshot, error) {
	query := `
		SELECT id, retailer, category, status, run_id, items, created_at, activated_at
		FROM baseline_snapshots
		WHERE retailer = $1 AND category = $2 AND status = 'active'
	`
	if r.inTx {
		query += ` FOR UPDATE`
	}

	var s domain.BaselineSnapshot
	if err := sqlx.GetContext(ctx, r.db, &s, query, retailer, category); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to get active baseline: %w", err)
	}
	return &s, nil
}

// Create stores a new pending baseline
func (r *SnapshotRepository) Create(ctx context.Context, s *domain.BaselineSnapshot) error {
	query := `
		INSERT INTO baseline_snapshots (id, retailer, category, status, run_id, items, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := r.db.ExecContext(ctx, query,
		s.ID, s.Retailer, s.Category, string(s.Status), s.RunID, s.Items, s.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to create baseline: %w", err)
	}
	return nil
}

// Activate promotes a pending baseline. The partial unique index rejects a
// second active baseline for the same key.
func (r *SnapshotRepository) Activate(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE baseline_snapshots
		SET status = 'active', activated_at = $2
		WHERE id = $1 AND status = 'pending'
	`
	result, err := r.db.ExecContext(ctx, query, id, at)
	if err = execRequireRows(result, err, domain.ErrSnapshotNotFound); err != nil {
		return fmt.Errorf("failed to activate baseline %s: %w", id, err)
	}
	return nil
}

// MarkStale retires an active baseline
func (r *SnapshotRepository) MarkStale(ctx context.Context, id string) error {
	query := `UPDATE baseline_snapshots SET status = 'stale' WHERE id = $1 AND status = 'active'`
	result, err := r.db.ExecContext(ctx, query, id)
	if err = execRequireRows(result, err, domain.ErrSnapshotNotFound); err != nil {
		return fmt.Errorf("failed to mark baseline %s stale: %w", id, err)
	}
	return nil
}

type snapshotRowRecord struct {
	RunID      string    `db:"run_id"`
	Retailer   string    `db:"retailer"`
	Category   string    `db:"category"`
	Candidate  []byte    `db:"candidate"`
	CapturedAt time.Time `db:"captured_at"`
}

// ListRows returns the snapshot log of one run in capture order
func (r *SnapshotRepository) ListRows(ctx context.Context, runID string) ([]domain.SnapshotRow, error) {
	query := `
		SELECT run_id, retailer, category, candidate, captured_at
		FROM snapshot_rows
		WHERE run_id = $1
		ORDER BY id
	`
	var records []snapshotRowRecord
	if err := sqlx.SelectContext(ctx, r.db, &records, query, runID); err != nil {
		return nil, fmt.Errorf("failed to list snapshot rows: %w", err)
	}

	rows := make([]domain.SnapshotRow, 0, len(records))
	for _, rec := range records {
		row := domain.SnapshotRow{
			RunID:      rec.RunID,
			Retailer:   rec.Retailer,
			Category:   rec.Category,
			CapturedAt: rec.CapturedAt,
		}
		if err := json.Unmarshal(rec.Candidate, &row.Candidate); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot row: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
