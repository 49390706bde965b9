// Package queue defines the task queue used to decouple click counting
// from the redirect request cycle.
//
// Delivery is at-least-once: a task may be redelivered after a transient
// consumer failure. The increment applied for each task is a commutative
// atomic add, so redelivery can overcount but never corrupts the counter.
package queue

import "context"

// IncrementTask is a unit of deferred work: apply one click increment to
// the url record with the given id.
type IncrementTask struct {
	URLID int64 `json:"url_id"`
}

// TaskQueue transports increment tasks from the redirect path to the
// click worker.
type TaskQueue interface {
	// Enqueue publishes a task. It may block briefly on queue admission but
	// never waits for the task to be processed.
	Enqueue(ctx context.Context, task IncrementTask) error

	// Consume delivers tasks to handler until ctx is canceled. A handler
	// error marks the delivery as failed; whether it is redelivered is up
	// to the implementation.
	Consume(ctx context.Context, handler func(ctx context.Context, task IncrementTask) error) error
}
