package segregation

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/eynsfordcq/aws-s3-file-segregation/internal/storage"
)

// Mover relocates one object with copy-then-delete. The source is deleted only
// after the copy succeeded.
type Mover struct {
	store storage.ObjectStorage
	log   zerolog.Logger
}

// NewMover returns a Mover backed by store.
func NewMover(store storage.ObjectStorage, log zerolog.Logger) *Mover {
	return &Mover{store: store, log: log}
}

// Move never returns an error; failures are reported in the outcome.
func (m *Mover) Move(ctx context.Context, task MoveTask) MoveOutcome {
	out := MoveOutcome{Task: task, Status: MoveFailed}

	dst, err := task.Source.Destination(task.DestinationPrefix)
	if err != nil {
		out.Err = fmt.Errorf("resolve destination: %w", err)
		m.logFailure(out)
		return out
	}
	out.Destination = dst

	m.log.Debug().
		Str("src", task.Source.URI()).
		Str("dst", dst.URI()).
		Msg("moving")

	if err := m.store.CopyObject(ctx, dst, task.Source); err != nil {
		out.Err = err
		m.logFailure(out)
		return out
	}

	if err := m.store.DeleteObject(ctx, task.Source); err != nil {
		out.Err = err
		m.logFailure(out)
		return out
	}

	out.Status = MoveSucceeded
	return out
}

func (m *Mover) logFailure(out MoveOutcome) {
	m.log.Error().
		Err(out.Err).
		Str("src", out.Task.Source.URI()).
		Str("dst_prefix", out.Task.DestinationPrefix).
		Msg("error moving object")
}
