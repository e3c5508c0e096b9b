package segregation

import (
	"context"
	"fmt"
	"sync"
)

type moveJob struct {
	ctx  context.Context
	task MoveTask
	out  *MoveOutcome
	done *sync.WaitGroup
}

// Dispatcher runs moves on a fixed pool of workers that lives for a whole run.
// RunPage is a barrier: it returns only after every move of the page finished.
type Dispatcher struct {
	mover   *Mover
	jobs    chan moveJob
	workers sync.WaitGroup
	once    sync.Once
}

// NewDispatcher starts workerCount workers.
func NewDispatcher(mover *Mover, workerCount int) (*Dispatcher, error) {
	if workerCount < 1 {
		return nil, fmt.Errorf("worker pool needs at least one worker, got %d", workerCount)
	}
	if mover == nil {
		return nil, fmt.Errorf("worker pool needs a mover")
	}

	d := &Dispatcher{
		mover: mover,
		jobs:  make(chan moveJob, workerCount),
	}
	for i := 0; i < workerCount; i++ {
		d.workers.Add(1)
		go d.work()
	}
	return d, nil
}

func (d *Dispatcher) work() {
	defer d.workers.Done()
	for job := range d.jobs {
		// a submitted move always runs to completion so the source is never
		// left behind after its copy landed
		*job.out = d.mover.Move(context.WithoutCancel(job.ctx), job.task)
		job.done.Done()
	}
}

// RunPage submits one move per task and waits for all of them. Outcomes are
// returned in task order. Cancelling ctx stops submission: moves already handed
// to the pool finish, the rest are reported as failed with the context error.
func (d *Dispatcher) RunPage(ctx context.Context, tasks []MoveTask) []MoveOutcome {
	outcomes := make([]MoveOutcome, len(tasks))
	var page sync.WaitGroup
	page.Add(len(tasks))

	cancelFrom := func(i int) {
		for j := i; j < len(tasks); j++ {
			outcomes[j] = MoveOutcome{Task: tasks[j], Status: MoveFailed, Err: ctx.Err()}
			page.Done()
		}
	}

	for i, task := range tasks {
		if ctx.Err() != nil {
			cancelFrom(i)
			break
		}
		job := moveJob{ctx: ctx, task: task, out: &outcomes[i], done: &page}
		select {
		case <-ctx.Done():
			cancelFrom(i)
		case d.jobs <- job:
			continue
		}
		break
	}

	page.Wait()
	return outcomes
}

// Close stops the workers after they drain submitted jobs.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		close(d.jobs)
		d.workers.Wait()
	})
}
