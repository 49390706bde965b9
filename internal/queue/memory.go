package queue

import (
	"context"
	"fmt"
)

// MemoryQueue is a channel-backed TaskQueue for development and tests.
// Tasks are delivered at most once and do not survive a restart; the
// durable choice for production is the RabbitMQ implementation.
type MemoryQueue struct {
	tasks chan IncrementTask
}

func NewMemoryQueue(size int) *MemoryQueue {
	return &MemoryQueue{
		tasks: make(chan IncrementTask, size),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, task IncrementTask) error {
	const op = "queue.MemoryQueue.Enqueue"

	select {
	case q.tasks <- task:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}
}

func (q *MemoryQueue) Consume(ctx context.Context, handler func(ctx context.Context, task IncrementTask) error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case task := <-q.tasks:
			// Failed tasks are dropped, not redelivered. The handler owns
			// logging; a lost increment is non-fatal.
			_ = handler(ctx, task)
		}
	}
}

// Len reports the number of tasks waiting in the queue.
func (q *MemoryQueue) Len() int {
	return len(q.tasks)
}
