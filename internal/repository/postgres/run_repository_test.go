package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eynsfordcq/aws-s3-file-segregation/internal/domain"
	"github.com/eynsfordcq/aws-s3-file-segregation/internal/repository"
)

var columns = []string{
	"id", "source_prefix", "process_date", "status", "dry_run", "pages", "objects_seen",
	"moved", "errored", "failed", "started_at", "completed_at", "error_message",
}

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		conn.Close()
	})
	return Wrap(sqlx.NewDb(conn, "postgres")), mock
}

func TestRunRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRunRepository(db)

	run := &domain.SegregationRun{
		SourcePrefix: "s3://landing/cdr/in/",
		ProcessDate:  time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
		Status:       domain.RunStatusRunning,
		StartedAt:    time.Now(),
	}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO segregation_runs")).
		WithArgs(run.SourcePrefix, run.ProcessDate, run.Status, false, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))
	mock.ExpectCommit()

	require.NoError(t, repo.Create(context.Background(), run))
	assert.Equal(t, int64(42), run.ID)
}

func TestRunRepository_CreateRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRunRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO segregation_runs")).
		WillReturnError(errors.New("relation does not exist"))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &domain.SegregationRun{Status: domain.RunStatusRunning})
	assert.ErrorContains(t, err, "relation does not exist")
}

func TestRunRepository_Complete(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRunRepository(db)

	done := time.Now()
	run := &domain.SegregationRun{
		ID: 7, Status: domain.RunStatusSucceeded,
		Pages: 2, ObjectsSeen: 12, Moved: 10, Errored: 2, CompletedAt: &done,
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE segregation_runs")).
		WithArgs(run.Status, 2, 12, 10, 2, 0, sqlmock.AnyArg(), nil, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Complete(context.Background(), run))
}

func TestRunRepository_CompleteUnknownRun(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRunRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE segregation_runs")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Complete(context.Background(), &domain.SegregationRun{ID: 99})
	assert.ErrorIs(t, err, repository.ErrRunNotFound)
}

func TestRunRepository_ListRecent(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRunRepository(db)

	started := time.Date(2024, 9, 2, 0, 0, 0, 0, time.UTC)
	completed := started.Add(time.Minute)
	rows := sqlmock.NewRows(columns).
		AddRow(2, "s3://landing/in/", started, "failed", false, 1, 3, 0, 0, 0, started, completed, "list failed").
		AddRow(1, "s3://landing/in/", started, "running", true, 0, 0, 0, 0, 0, started, nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM segregation_runs ORDER BY started_at DESC")).
		WithArgs(5).
		WillReturnRows(rows)

	runs, err := repo.ListRecent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, int64(2), runs[0].ID)
	require.NotNil(t, runs[0].ErrorMessage)
	assert.Equal(t, "list failed", *runs[0].ErrorMessage)
	require.NotNil(t, runs[0].CompletedAt)
	assert.True(t, completed.Equal(*runs[0].CompletedAt))

	assert.True(t, runs[1].DryRun)
	assert.Nil(t, runs[1].CompletedAt)
	assert.Nil(t, runs[1].ErrorMessage)
}

func TestRunRepository_LatestEmpty(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRunRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM segregation_runs ORDER BY started_at DESC")).
		WillReturnRows(sqlmock.NewRows(columns))

	run, err := repo.Latest(context.Background())
	require.NoError(t, err)
	assert.Nil(t, run)
}

func TestEnsureSchema(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS segregation_runs")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, EnsureSchema(context.Background(), db))
}

func TestWithTx_CancelledContext(t *testing.T) {
	db, _ := newMockDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// saturate the semaphore so Acquire has to wait on the cancelled context
	require.NoError(t, db.sem.Acquire(context.Background(), maxConcurrentTx))
	defer db.sem.Release(maxConcurrentTx)

	err := db.WithTx(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
