// Package postgres implements domain.Store on PostgreSQL with sqlx.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/shelfwatch/backend/internal/domain"
)

const (
	// DefaultMaxOpenConns is the default maximum number of open connections
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections
	DefaultMaxIdleConns = 5
	// DefaultConnMaxLifetime is the default maximum connection lifetime
	DefaultConnMaxLifetime = 5 * time.Minute
	// DefaultPingTimeout is the default timeout for ping operations
	DefaultPingTimeout = 5 * time.Second

	uniqueViolation = "23505"
)

// errNoRows marks an update that matched nothing so callers can tell why
var errNoRows = errors.New("no rows affected")

// NewConnection opens a PostgreSQL connection pool and verifies it
func NewConnection(dsn string, maxOpenConns int) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if maxOpenConns <= 0 {
		maxOpenConns = DefaultMaxOpenConns
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), DefaultPingTimeout)
	defer cancel()

	if pingErr := db.PingContext(ctx); pingErr != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", pingErr)
	}

	return db, nil
}

// Store is the PostgreSQL domain.Store
type Store struct {
	db *sqlx.DB
}

// NewStore creates a store over an open pool
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Repositories returns repositories running on the pool
func (s *Store) Repositories() domain.Repositories {
	return newRepositories(s.db, false)
}

// WithinTx runs fn in a transaction, committing only if fn succeeds
func (s *Store) WithinTx(ctx context.Context, fn func(domain.Repositories) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(newRepositories(tx, true)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func newRepositories(db sqlx.ExtContext, inTx bool) domain.Repositories {
	return domain.Repositories{
		Canonical: NewCanonicalRepository(db),
		Snapshots: NewSnapshotRepository(db, inTx),
		Updates:   NewUpdateQueueRepository(db),
		Reviews:   NewReviewRepository(db),
		Runs:      NewRunRepository(db),
	}
}

// execRequireRows validates that an ExecContext result affected at least one row.
// Returns err if non-nil, or notFoundErr if rowsAffected is 0.
func execRequireRows(result sql.Result, err, notFoundErr error) error {
	if err != nil {
		return err
	}
	n, affectedErr := result.RowsAffected()
	if affectedErr != nil {
		return affectedErr
	}
	if n == 0 {
		return notFoundErr
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// limitArg maps a non-positive limit to NULL, which Postgres treats as no limit
func limitArg(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}
