package repository

import (
	"context"
	"errors"
	"sync"

	"github.com/eynsfordcq/aws-s3-file-segregation/internal/domain"
)

// ErrRunNotFound is returned when completing a run that was never created.
var ErrRunNotFound = errors.New("segregation run not found")

// RunRepository records segregation runs.
type RunRepository interface {
	// Create inserts run and sets its ID.
	Create(ctx context.Context, run *domain.SegregationRun) error
	// Complete stores the final status and counters of run.
	Complete(ctx context.Context, run *domain.SegregationRun) error
	// ListRecent returns up to limit runs, newest first.
	ListRecent(ctx context.Context, limit int) ([]domain.SegregationRun, error)
	// Latest returns the newest run, or nil when there is none.
	Latest(ctx context.Context) (*domain.SegregationRun, error)
}

type memoryRunRepository struct {
	mu     sync.RWMutex
	keep   int
	nextID int64
	runs   []domain.SegregationRun // oldest first
}

// NewMemoryRunRepository keeps the last keep runs in process memory.
func NewMemoryRunRepository(keep int) RunRepository {
	if keep <= 0 {
		keep = 100
	}
	return &memoryRunRepository{keep: keep}
}

func (r *memoryRunRepository) Create(ctx context.Context, run *domain.SegregationRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	run.ID = r.nextID
	r.runs = append(r.runs, *run)
	if len(r.runs) > r.keep {
		r.runs = r.runs[len(r.runs)-r.keep:]
	}
	return nil
}

func (r *memoryRunRepository) Complete(ctx context.Context, run *domain.SegregationRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.runs {
		if r.runs[i].ID == run.ID {
			r.runs[i] = *run
			return nil
		}
	}
	return ErrRunNotFound
}

func (r *memoryRunRepository) ListRecent(ctx context.Context, limit int) ([]domain.SegregationRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 || limit > len(r.runs) {
		limit = len(r.runs)
	}
	out := make([]domain.SegregationRun, 0, limit)
	for i := len(r.runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.runs[i])
	}
	return out, nil
}

func (r *memoryRunRepository) Latest(ctx context.Context) (*domain.SegregationRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.runs) == 0 {
		return nil, nil
	}
	run := r.runs[len(r.runs)-1]
	return &run, nil
}
