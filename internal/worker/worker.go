// Package worker contains the background consumer that applies click
// increments dispatched by the redirect path.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shortlyhq/shortly/internal/queue"
)

// ClickStore is the slice of the repository the worker needs: a single
// atomic increment by record id.
type ClickStore interface {
	IncrementClicks(ctx context.Context, id int64) error
}

// ClickWorker consumes increment tasks and applies them to the store.
// The redirect that enqueued a task has already responded by the time the
// task runs, so failures here are logged and dropped, never surfaced.
type ClickWorker struct {
	store  ClickStore
	tasks  queue.TaskQueue
	logger *slog.Logger
}

func NewClickWorker(store ClickStore, tasks queue.TaskQueue, logger *slog.Logger) *ClickWorker {
	return &ClickWorker{
		store:  store,
		tasks:  tasks,
		logger: logger,
	}
}

// Run consumes tasks until ctx is canceled.
func (w *ClickWorker) Run(ctx context.Context) error {
	const op = "worker.ClickWorker.Run"

	if err := w.tasks.Consume(ctx, w.apply); err != nil {
		return fmt.Errorf("%s: failed to consume tasks: %w", op, err)
	}

	return nil
}

// apply performs the atomic increment for one task. It always returns nil:
// a store failure (including a record deleted out from under the task) is
// non-fatal, and returning an error would only cause a pointless redelivery
// of an increment nobody is waiting for.
func (w *ClickWorker) apply(ctx context.Context, task queue.IncrementTask) error {
	const op = "worker.ClickWorker.apply"

	if err := w.store.IncrementClicks(ctx, task.URLID); err != nil {
		w.logger.Warn(
			"failed to apply click increment, dropping task",
			slog.Group(op, slog.Int64("url_id", task.URLID), slog.Any("err", err)),
		)
	}

	return nil
}
