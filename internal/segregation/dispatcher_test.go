package segregation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eynsfordcq/aws-s3-file-segregation/internal/storage"
)

// slowStore delays copies and tracks how many run at once.
type slowStore struct {
	*storage.MemoryStore
	delay   time.Duration
	active  atomic.Int32
	maxSeen atomic.Int32
}

func (s *slowStore) CopyObject(ctx context.Context, dst, src storage.Locator) error {
	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		seen := s.maxSeen.Load()
		if n <= seen || s.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	time.Sleep(s.delay)
	return s.MemoryStore.CopyObject(ctx, dst, src)
}

func pageTasks(store *storage.MemoryStore, n int) []MoveTask {
	tasks := make([]MoveTask, 0, n)
	for i := 0; i < n; i++ {
		src := storage.NewLocator("landing", fmt.Sprintf("cdr/in/f%02d.ber", i))
		store.Put(src, []byte("x"))
		tasks = append(tasks, MoveTask{Source: src, DestinationPrefix: "s3://archive/2024/09/01/"})
	}
	return tasks
}

func TestDispatcher_MoveIsolation(t *testing.T) {
	store := storage.NewMemoryStore()
	tasks := pageTasks(store, 5)
	store.FailCopy(tasks[2].Source, errors.New("access denied"))

	d, err := NewDispatcher(NewMover(store, zerolog.Nop()), 3)
	require.NoError(t, err)
	defer d.Close()

	outcomes := d.RunPage(context.Background(), tasks)

	require.Len(t, outcomes, 5)
	for i, o := range outcomes {
		assert.Equal(t, tasks[i], o.Task)
		if i == 2 {
			assert.Equal(t, MoveFailed, o.Status)
			assert.Error(t, o.Err)
			assert.True(t, store.Exists(tasks[i].Source), "failed source stays in place")
			continue
		}
		assert.Equal(t, MoveSucceeded, o.Status, "task %d", i)
		assert.False(t, store.Exists(tasks[i].Source))
		assert.True(t, store.Exists(storage.NewLocator("archive", "2024/09/01/"+tasks[i].Source.Base())))
	}
}

func TestDispatcher_BoundedConcurrencyAndBarrier(t *testing.T) {
	store := &slowStore{MemoryStore: storage.NewMemoryStore(), delay: 20 * time.Millisecond}
	tasks := pageTasks(store.MemoryStore, 12)

	d, err := NewDispatcher(NewMover(store, zerolog.Nop()), 4)
	require.NoError(t, err)
	defer d.Close()

	outcomes := d.RunPage(context.Background(), tasks)

	// RunPage returned, so nothing may still be running
	assert.Equal(t, int32(0), store.active.Load())
	assert.LessOrEqual(t, store.maxSeen.Load(), int32(4))
	for _, o := range outcomes {
		assert.Equal(t, MoveSucceeded, o.Status)
	}
	assert.Empty(t, store.Keys("landing", "cdr/in/"))
}

func TestDispatcher_CancelledPage(t *testing.T) {
	store := storage.NewMemoryStore()
	tasks := pageTasks(store, 3)

	d, err := NewDispatcher(NewMover(store, zerolog.Nop()), 1)
	require.NoError(t, err)
	defer d.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes := d.RunPage(ctx, tasks)
	require.Len(t, outcomes, 3)
	for _, o := range outcomes {
		assert.Equal(t, MoveFailed, o.Status)
		assert.ErrorIs(t, o.Err, context.Canceled)
	}
}

// cancelOnCopyStore cancels the run right after a copy lands.
type cancelOnCopyStore struct {
	*storage.MemoryStore
	cancel context.CancelFunc
}

func (s *cancelOnCopyStore) CopyObject(ctx context.Context, dst, src storage.Locator) error {
	err := s.MemoryStore.CopyObject(ctx, dst, src)
	s.cancel()
	return err
}

func TestDispatcher_CancelAfterCopyFinishesMove(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := &cancelOnCopyStore{MemoryStore: storage.NewMemoryStore(), cancel: cancel}
	tasks := pageTasks(store.MemoryStore, 3)

	d, err := NewDispatcher(NewMover(store, zerolog.Nop()), 1)
	require.NoError(t, err)
	defer d.Close()

	outcomes := d.RunPage(ctx, tasks)
	require.Len(t, outcomes, 3)

	assert.Equal(t, MoveSucceeded, outcomes[0].Status)
	assert.NoError(t, outcomes[0].Err)

	// every object lives in exactly one place
	for i, task := range tasks {
		dst := storage.NewLocator("archive", "2024/09/01/"+task.Source.Base())
		assert.NotEqual(t, store.Exists(task.Source), store.Exists(dst), "task %d", i)
		if outcomes[i].Status == MoveFailed {
			assert.ErrorIs(t, outcomes[i].Err, context.Canceled)
			assert.True(t, store.Exists(task.Source))
		}
	}
}

func TestDispatcher_DeleteFailureKeepsCopy(t *testing.T) {
	store := storage.NewMemoryStore()
	tasks := pageTasks(store, 1)
	store.FailDelete(tasks[0].Source, errors.New("throttled"))

	d, err := NewDispatcher(NewMover(store, zerolog.Nop()), 1)
	require.NoError(t, err)
	defer d.Close()

	outcomes := d.RunPage(context.Background(), tasks)
	assert.Equal(t, MoveFailed, outcomes[0].Status)
	assert.True(t, store.Exists(tasks[0].Source))
	assert.True(t, store.Exists(outcomes[0].Destination))
}

func TestNewDispatcher_InvalidPool(t *testing.T) {
	_, err := NewDispatcher(NewMover(storage.NewMemoryStore(), zerolog.Nop()), 0)
	assert.Error(t, err)

	_, err = NewDispatcher(nil, 2)
	assert.Error(t, err)
}

func TestDispatcher_CloseIsIdempotent(t *testing.T) {
	d, err := NewDispatcher(NewMover(storage.NewMemoryStore(), zerolog.Nop()), 2)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Close()
		}()
	}
	wg.Wait()
}
