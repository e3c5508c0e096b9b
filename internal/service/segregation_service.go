package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/eynsfordcq/aws-s3-file-segregation/internal/cache"
	"github.com/eynsfordcq/aws-s3-file-segregation/internal/domain"
	"github.com/eynsfordcq/aws-s3-file-segregation/internal/metrics"
	"github.com/eynsfordcq/aws-s3-file-segregation/internal/repository"
	"github.com/eynsfordcq/aws-s3-file-segregation/internal/segregation"
	"github.com/eynsfordcq/aws-s3-file-segregation/internal/storage"
	"github.com/eynsfordcq/aws-s3-file-segregation/pkg/logger"
)

// ErrRunInProgress is returned when this process is already running.
var ErrRunInProgress = errors.New("a segregation run is already in progress")

type Options struct {
	Store  storage.ObjectStorage
	Engine segregation.Config
	Lock   cache.RunLock
	Runs   repository.RunRepository
	Logger zerolog.Logger
	DryRun bool
	Clock  func() time.Time
}

// SegregationService runs the engine under the run lock and records every run.
type SegregationService struct {
	store   storage.ObjectStorage
	cfg     segregation.Config
	lock    cache.RunLock
	runs    repository.RunRepository
	log     zerolog.Logger
	dryRun  bool
	now     func() time.Time
	running atomic.Bool

	triggered sync.WaitGroup
}

func NewSegregationService(opts Options) *SegregationService {
	s := &SegregationService{
		store:  opts.Store,
		cfg:    opts.Engine,
		lock:   opts.Lock,
		runs:   opts.Runs,
		log:    opts.Logger,
		dryRun: opts.DryRun,
		now:    opts.Clock,
	}
	if s.lock == nil {
		s.lock = cache.NewNoopRunLock()
	}
	if s.runs == nil {
		s.runs = repository.NewMemoryRunRepository(0)
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Runs exposes the run history.
func (s *SegregationService) Runs() repository.RunRepository {
	return s.runs
}

// Running reports whether a run is in progress in this process.
func (s *SegregationService) Running() bool {
	return s.running.Load()
}

// RunOnce performs a single run. A run that finds the lock held elsewhere is
// reported as skipped with a nil error.
func (s *SegregationService) RunOnce(ctx context.Context) (segregation.RunSummary, error) {
	if !s.running.CompareAndSwap(false, true) {
		return segregation.RunSummary{Status: segregation.RunSkipped}, ErrRunInProgress
	}
	defer s.running.Store(false)
	return s.run(ctx)
}

// Trigger starts a run in the background. ctx bounds the run, not the caller.
func (s *SegregationService) Trigger(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrRunInProgress
	}
	s.triggered.Add(1)
	go func() {
		defer s.triggered.Done()
		defer s.running.Store(false)
		if _, err := s.run(ctx); err != nil {
			s.log.Error().Err(err).Msg("triggered run failed")
		}
	}()
	return nil
}

// Wait blocks until every run started by Trigger has been recorded.
func (s *SegregationService) Wait() {
	s.triggered.Wait()
}

// Watch runs immediately and then on every interval until ctx is done.
func (s *SegregationService) Watch(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("watch interval must be positive, got %s", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil {
			if errors.Is(err, ErrRunInProgress) {
				s.log.Info().Msg("previous run still in progress, skipping tick")
			} else if ctx.Err() == nil {
				s.log.Error().Err(err).Msg("scheduled run failed")
			}
		}

		select {
		case <-ctx.Done():
			s.log.Info().Msg("watch stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (s *SegregationService) run(ctx context.Context) (segregation.RunSummary, error) {
	cfg := s.cfg
	if cfg.ProcessDate.IsZero() {
		cfg.ProcessDate = s.now().Add(-cfg.TimeDelay)
	}
	log := s.log.With().Str("run_id", logger.RunID(cfg.ProcessDate)).Logger()

	lockKey := cfg.SourcePrefix
	if src, err := storage.ParseLocator(cfg.SourcePrefix); err == nil {
		lockKey = src.String()
	}

	release, err := s.lock.Acquire(ctx, lockKey)
	if errors.Is(err, cache.ErrRunLocked) {
		log.Warn().Str("source", cfg.SourcePrefix).Msg("run lock held elsewhere, skipping run")
		summary := segregation.RunSummary{
			SourcePrefix: cfg.SourcePrefix,
			ProcessDate:  cfg.ProcessDate,
			Status:       segregation.RunSkipped,
			StartedAt:    s.now(),
		}
		summary.CompletedAt = summary.StartedAt
		s.record(ctx, log, summary)
		metrics.RecordRun(string(summary.Status), 0)
		return summary, nil
	}
	if err != nil {
		return segregation.RunSummary{Status: segregation.RunFailed, Err: err}, fmt.Errorf("acquire run lock: %w", err)
	}
	defer func() {
		// the lease must be returned even when ctx is already cancelled
		if err := release(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Err(err).Msg("failed to release run lock")
		}
	}()

	run := &domain.SegregationRun{
		SourcePrefix: cfg.SourcePrefix,
		ProcessDate:  cfg.ProcessDate,
		Status:       domain.RunStatusRunning,
		DryRun:       s.dryRun,
		StartedAt:    s.now(),
	}
	if err := s.runs.Create(ctx, run); err != nil {
		log.Error().Err(err).Msg("failed to record run start")
		run = nil
	}

	store := s.store
	if s.dryRun {
		store = storage.NewDryRunStore(store, log)
	}
	engine := segregation.NewEngine(store, cfg, log, segregation.WithClock(s.now))
	summary, runErr := engine.Run(ctx)

	if run != nil {
		s.complete(context.WithoutCancel(ctx), log, run, summary)
	}
	metrics.RecordRun(string(summary.Status), summary.Duration())

	return summary, runErr
}

// record stores a run that never started the engine.
func (s *SegregationService) record(ctx context.Context, log zerolog.Logger, summary segregation.RunSummary) {
	run := &domain.SegregationRun{
		SourcePrefix: summary.SourcePrefix,
		ProcessDate:  summary.ProcessDate,
		Status:       domain.RunStatusRunning,
		DryRun:       s.dryRun,
		StartedAt:    summary.StartedAt,
	}
	if err := s.runs.Create(ctx, run); err != nil {
		log.Error().Err(err).Msg("failed to record run start")
		return
	}
	s.complete(ctx, log, run, summary)
}

func (s *SegregationService) complete(ctx context.Context, log zerolog.Logger, run *domain.SegregationRun, summary segregation.RunSummary) {
	completed := summary.CompletedAt
	if completed.IsZero() {
		completed = s.now()
	}
	run.Status = string(summary.Status)
	run.Pages = summary.Pages
	run.ObjectsSeen = summary.Seen
	run.Moved = summary.Moved
	run.Errored = summary.Errored
	run.Failed = summary.Failed
	run.CompletedAt = &completed
	if summary.Err != nil {
		msg := summary.Err.Error()
		run.ErrorMessage = &msg
	}
	if err := s.runs.Complete(ctx, run); err != nil {
		log.Error().Err(err).Int64("run_id", run.ID).Msg("failed to record run result")
	}
}
