// Package segregation moves newly landed objects into date-partitioned
// prefixes derived from their names.
package segregation

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/eynsfordcq/aws-s3-file-segregation/internal/metrics"
	"github.com/eynsfordcq/aws-s3-file-segregation/internal/storage"
)

// Engine drives one run: list a page, classify and route each object, move the
// page through the worker pool, repeat.
type Engine struct {
	store storage.ObjectStorage
	cfg   Config
	log   zerolog.Logger
	now   func() time.Time
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine returns an Engine over store.
func NewEngine(store storage.ObjectStorage, cfg Config, log zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		cfg:   cfg,
		log:   log,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ProcessDate is the default timestamp for objects when no pattern is
// configured: the configured override, or now minus the time delay.
func (e *Engine) ProcessDate() time.Time {
	if !e.cfg.ProcessDate.IsZero() {
		return e.cfg.ProcessDate
	}
	return e.now().Add(-e.cfg.TimeDelay)
}

// Run processes pages until the prefix is drained or the page limit is hit.
// Only listing failures, pool setup and cancellation end a run early; failed
// moves are counted in the summary.
func (e *Engine) Run(ctx context.Context) (RunSummary, error) {
	summary := RunSummary{
		SourcePrefix: e.cfg.SourcePrefix,
		ProcessDate:  e.ProcessDate(),
		StartedAt:    e.now(),
		Status:       RunFailed,
	}
	defaultDate := Dated(summary.ProcessDate)

	fail := func(err error) (RunSummary, error) {
		summary.Err = err
		summary.CompletedAt = e.now()
		e.log.Error().Stack().Err(err).
			Int("pages", summary.Pages).
			Int("seen", summary.Seen).
			Msg("segregation aborted")
		return summary, err
	}

	source, err := storage.ParseLocator(e.cfg.SourcePrefix)
	if err != nil {
		return fail(fmt.Errorf("source prefix: %w", err))
	}

	var extractor *Extractor
	if e.cfg.MatchPattern != "" {
		extractor, err = NewExtractor(e.cfg.MatchPattern, e.cfg.TimeFormat, e.log)
		if err != nil {
			return fail(err)
		}
	}
	router := NewRouter(e.cfg.SegregatedTemplate, e.cfg.ErrorPrefix)

	dispatcher, err := NewDispatcher(NewMover(e.store, e.log), e.cfg.Workers)
	if err != nil {
		return fail(fmt.Errorf("start worker pool: %w", err))
	}
	defer dispatcher.Close()

	e.log.Info().
		Str("source", source.URI()).
		Time("process_date", summary.ProcessDate).
		Int("workers", e.cfg.Workers).
		Msg("start segregation")

	paginator := NewPaginator(e.store, source, e.cfg.PageSize, e.cfg.MaxPages, e.log)
	for {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		page, ok, err := paginator.Next(ctx)
		if err != nil {
			return fail(err)
		}
		if !ok {
			break
		}

		pageStart := time.Now()
		tasks := make([]MoveTask, 0, len(page.Objects))
		for _, obj := range page.Objects {
			c := defaultDate
			if extractor != nil {
				c = extractor.Extract(obj.Base())
			}
			tasks = append(tasks, MoveTask{
				Source:            obj,
				DestinationPrefix: router.Route(c),
				Unclassified:      !c.Dated,
			})
		}

		before := summary
		for _, outcome := range dispatcher.RunPage(ctx, tasks) {
			summary.add(outcome)
			metrics.RecordMove(outcomeResult(outcome))
		}
		summary.Pages++
		summary.Seen += len(page.Objects)
		metrics.RecordPage(len(page.Objects), time.Since(pageStart))

		e.log.Info().
			Int("page", page.Number).
			Int("n_file", len(page.Objects)).
			Int("moved", summary.Moved-before.Moved).
			Int("errored", summary.Errored-before.Errored).
			Int("failed", summary.Failed-before.Failed).
			Dur("elapsed", time.Since(pageStart)).
			Msg("page processed")
	}

	summary.Status = RunSucceeded
	summary.CompletedAt = e.now()
	e.log.Info().
		Time("process_date", summary.ProcessDate).
		Int("pages", summary.Pages).
		Int("seen", summary.Seen).
		Int("moved", summary.Moved).
		Int("errored", summary.Errored).
		Int("failed", summary.Failed).
		Dur("duration", summary.Duration()).
		Msg("finished segregation")

	return summary, nil
}

func outcomeResult(o MoveOutcome) string {
	switch {
	case o.Status == MoveFailed:
		return metrics.ResultFailed
	case o.Task.Unclassified:
		return metrics.ResultError
	default:
		return metrics.ResultDated
	}
}
