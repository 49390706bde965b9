package worker

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shortlyhq/shortly/internal/database"
	"github.com/shortlyhq/shortly/internal/queue"
	"github.com/stretchr/testify/assert"
)

type countingStore struct {
	clicks sync.Map // id -> *int64
	failID int64    // increments for this id always fail
}

func (s *countingStore) IncrementClicks(_ context.Context, id int64) error {
	if s.failID != 0 && id == s.failID {
		return database.ErrURLNotFound
	}

	counter, _ := s.clicks.LoadOrStore(id, new(int64))
	atomic.AddInt64(counter.(*int64), 1)
	return nil
}

func (s *countingStore) count(id int64) int64 {
	counter, ok := s.clicks.Load(id)
	if !ok {
		return 0
	}
	return atomic.LoadInt64(counter.(*int64))
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClickWorker_Run(t *testing.T) {
	t.Run("concurrent increments all land", func(t *testing.T) {
		const n = 100

		store := new(countingStore)
		tasks := queue.NewMemoryQueue(n)
		w := NewClickWorker(store, tasks, testLogger())

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = w.Run(ctx)
		}()

		// Simulate n concurrent redirects for the same short link.
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = tasks.Enqueue(context.Background(), queue.IncrementTask{URLID: 1})
			}()
		}
		wg.Wait()

		assert.Eventually(t, func() bool {
			return store.count(1) == n
		}, 2*time.Second, 10*time.Millisecond)

		cancel()
		<-done
	})

	t.Run("store failure drops the task", func(t *testing.T) {
		store := &countingStore{failID: 42}
		tasks := queue.NewMemoryQueue(2)
		w := NewClickWorker(store, tasks, testLogger())

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = w.Run(ctx)
		}()

		_ = tasks.Enqueue(context.Background(), queue.IncrementTask{URLID: 42})
		// The failed task is dropped, the worker keeps consuming.
		_ = tasks.Enqueue(context.Background(), queue.IncrementTask{URLID: 7})

		assert.Eventually(t, func() bool {
			return store.count(7) == 1
		}, 2*time.Second, 10*time.Millisecond)
		assert.EqualValues(t, 0, store.count(42))

		cancel()
		<-done
	})
}

func TestClickWorker_apply(t *testing.T) {
	t.Run("never returns an error", func(t *testing.T) {
		store := &countingStore{failID: 1}
		w := NewClickWorker(store, queue.NewMemoryQueue(1), testLogger())

		err := w.apply(context.Background(), queue.IncrementTask{URLID: 1})

		assert.NoError(t, err)
	})
}
