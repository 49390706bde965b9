// Package rabbitmq provides a durable, at-least-once TaskQueue backed by
// RabbitMQ. Increment tasks are published as persistent JSON messages and
// acknowledged only after the handler has run.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shortlyhq/shortly/internal/queue"
)

type Config struct {
	URL       string
	QueueName string
}

type TaskQueue struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   amqp.Queue
}

func New(cfg Config) (*TaskQueue, error) {
	const op = "queue.rabbitmq.New"

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to connect to RabbitMQ: %w", op, err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%s: failed to open channel: %w", op, err)
	}

	q, err := channel.QueueDeclare(
		cfg.QueueName, // name
		true,          // durable
		false,         // delete when unused
		false,         // exclusive
		false,         // no-wait
		nil,           // args
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("%s: failed to declare queue: %w", op, err)
	}

	return &TaskQueue{
		conn:    conn,
		channel: channel,
		queue:   q,
	}, nil
}

func (q *TaskQueue) Enqueue(ctx context.Context, task queue.IncrementTask) error {
	const op = "queue.rabbitmq.TaskQueue.Enqueue"

	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("%s: failed to marshal task: %w", op, err)
	}

	err = q.channel.PublishWithContext(
		ctx,
		"",           // exchange
		q.queue.Name, // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("%s: failed to publish task: %w", op, err)
	}

	return nil
}

func (q *TaskQueue) Consume(ctx context.Context, handler func(ctx context.Context, task queue.IncrementTask) error) error {
	const op = "queue.rabbitmq.TaskQueue.Consume"

	if err := q.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("%s: failed to set QoS: %w", op, err)
	}

	msgs, err := q.channel.Consume(
		q.queue.Name, // queue
		"",           // consumer
		false,        // auto-ack
		false,        // exclusive
		false,        // no-local
		false,        // no-wait
		nil,          // args
	)
	if err != nil {
		return fmt.Errorf("%s: failed to consume messages: %w", op, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}

			var task queue.IncrementTask
			if err := json.Unmarshal(msg.Body, &task); err != nil {
				// Poison message, drop without requeue.
				_ = msg.Nack(false, false)
				continue
			}

			if err := handler(ctx, task); err != nil {
				_ = msg.Nack(false, true)
				continue
			}

			_ = msg.Ack(false)
		}
	}
}

func (q *TaskQueue) Close() error {
	const op = "queue.rabbitmq.TaskQueue.Close"

	if err := q.channel.Close(); err != nil {
		return fmt.Errorf("%s: failed to close channel: %w", op, err)
	}
	if err := q.conn.Close(); err != nil {
		return fmt.Errorf("%s: failed to close connection: %w", op, err)
	}

	return nil
}
