package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/eynsfordcq/aws-s3-file-segregation/internal/domain"
	"github.com/eynsfordcq/aws-s3-file-segregation/internal/repository"
)

const runColumns = `id, source_prefix, process_date, status, dry_run, pages, objects_seen,
	moved, errored, failed, started_at, completed_at, error_message`

const schema = `
	CREATE TABLE IF NOT EXISTS segregation_runs (
		id            BIGSERIAL PRIMARY KEY,
		source_prefix TEXT        NOT NULL,
		process_date  TIMESTAMPTZ NOT NULL,
		status        TEXT        NOT NULL,
		dry_run       BOOLEAN     NOT NULL DEFAULT FALSE,
		pages         INTEGER     NOT NULL DEFAULT 0,
		objects_seen  INTEGER     NOT NULL DEFAULT 0,
		moved         INTEGER     NOT NULL DEFAULT 0,
		errored       INTEGER     NOT NULL DEFAULT 0,
		failed        INTEGER     NOT NULL DEFAULT 0,
		started_at    TIMESTAMPTZ NOT NULL,
		completed_at  TIMESTAMPTZ,
		error_message TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_segregation_runs_started_at ON segregation_runs (started_at DESC);
`

type runRepository struct {
	db *DB
}

func NewRunRepository(db *DB) repository.RunRepository {
	return &runRepository{db: db}
}

// EnsureSchema creates segregation_runs when missing.
func EnsureSchema(ctx context.Context, db *DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create segregation_runs: %w", err)
	}
	return nil
}

func (r *runRepository) Create(ctx context.Context, run *domain.SegregationRun) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO segregation_runs (
				source_prefix, process_date, status, dry_run, started_at
			) VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`
		err := tx.QueryRowContext(ctx, query,
			run.SourcePrefix, run.ProcessDate, run.Status, run.DryRun, run.StartedAt,
		).Scan(&run.ID)
		if err != nil {
			return fmt.Errorf("failed to insert segregation run: %w", err)
		}
		return nil
	})
}

func (r *runRepository) Complete(ctx context.Context, run *domain.SegregationRun) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		query := `
			UPDATE segregation_runs
			SET status = $1, pages = $2, objects_seen = $3, moved = $4,
			    errored = $5, failed = $6, completed_at = $7, error_message = $8
			WHERE id = $9
		`
		res, err := tx.ExecContext(ctx, query,
			run.Status, run.Pages, run.ObjectsSeen, run.Moved,
			run.Errored, run.Failed, run.CompletedAt, run.ErrorMessage, run.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update segregation run: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to update segregation run: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("run %d: %w", run.ID, repository.ErrRunNotFound)
		}
		return nil
	})
}

func (r *runRepository) ListRecent(ctx context.Context, limit int) ([]domain.SegregationRun, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + runColumns + ` FROM segregation_runs ORDER BY started_at DESC, id DESC LIMIT $1`

	runs := make([]domain.SegregationRun, 0, limit)
	if err := r.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list segregation runs: %w", err)
	}
	return runs, nil
}

func (r *runRepository) Latest(ctx context.Context) (*domain.SegregationRun, error) {
	query := `SELECT ` + runColumns + ` FROM segregation_runs ORDER BY started_at DESC, id DESC LIMIT 1`

	var run domain.SegregationRun
	err := r.db.GetContext(ctx, &run, query)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest segregation run: %w", err)
	}
	return &run, nil
}
