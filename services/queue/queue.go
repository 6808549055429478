// Package queuesvc hands background tasks off to RabbitMQ. Delivery is
// at-least-once: the worker acks only after a task handler succeeds, and
// failed tasks are republished with an incremented attempt count until
// the retry budget runs out.
package queuesvc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shuleapp/shule/core"
)

const taskQueueName = "shule.tasks"

type Dispatcher struct {
	conf   *core.Config
	logger core.Logger
	conn   *amqp.Connection
	ch     *amqp.Channel
}

var _ core.TaskQueue = (*Dispatcher)(nil)

// NewDispatcher connects to the broker and declares the task queue.
func NewDispatcher(conf *core.Config, logger core.Logger) (*Dispatcher, error) {
	conn, err := amqp.Dial(conf.Broker.URL)
	if err != nil {
		return nil, errors.Wrap(err, "dialing broker")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "opening channel")
	}
	// durable so tasks survive broker restarts
	if _, err = ch.QueueDeclare(taskQueueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, errors.Wrap(err, "declaring task queue")
	}
	return &Dispatcher{conf: conf, logger: logger, conn: conn, ch: ch}, nil
}

func (d *Dispatcher) Enqueue(ctx context.Context, task core.Task) error {
	if task.Attempt < 1 {
		task.Attempt = 1
	}
	body, err := json.Marshal(task)
	if err != nil {
		return errors.Wrap(err, "marshaling task")
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err = d.ch.PublishWithContext(ctx, "", taskQueueName, false, false, pub); err != nil {
		return errors.Wrapf(err, "publishing task %q", task.Name)
	}
	return nil
}

func (d *Dispatcher) Close() error {
	if err := d.ch.Close(); err != nil {
		_ = d.conn.Close()
		return err
	}
	return d.conn.Close()
}

// Handler executes one task. A returned error triggers a retry until the
// task's attempt count reaches Worker.MaxRetries; the task is then logged
// and dropped.
type Handler func(ctx context.Context, task core.Task) error

// Consume runs the worker loop until ctx is cancelled. The connection is
// re-established with backoff whenever the broker drops it.
func Consume(ctx context.Context, conf *core.Config, logger core.Logger, handler Handler) error {
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		conn, err := amqp.Dial(conf.Broker.URL)
		if err != nil {
			logger.Warn("worker: dialing broker failed; retrying", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		if err = consumeLoop(ctx, conf, logger, conn, handler); err != nil {
			if ctx.Err() != nil {
				_ = conn.Close()
				return ctx.Err()
			}
			logger.Warn("worker: consume loop ended; reconnecting", err)
		}
		_ = conn.Close()
	}
}

func consumeLoop(ctx context.Context, conf *core.Config, logger core.Logger, conn *amqp.Connection, handler Handler) error {
	ch, err := conn.Channel()
	if err != nil {
		return errors.Wrap(err, "opening channel")
	}
	defer func() { _ = ch.Close() }()

	if err = ch.Qos(10, 0, false); err != nil {
		return errors.Wrap(err, "setting QoS")
	}
	if _, err = ch.QueueDeclare(taskQueueName, true, false, false, false, nil); err != nil {
		return errors.Wrap(err, "declaring task queue")
	}
	msgs, err := ch.Consume(taskQueueName, "", false, false, false, false, nil)
	if err != nil {
		return errors.Wrap(err, "consuming task queue")
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			handleDelivery(ctx, conf, logger, ch, d, handler)
		}
	}
}

func handleDelivery(ctx context.Context, conf *core.Config, logger core.Logger, ch *amqp.Channel, d amqp.Delivery, handler Handler) {
	var task core.Task
	if err := json.Unmarshal(d.Body, &task); err != nil {
		logger.Error("worker: dropping malformed task", err)
		_ = d.Nack(false, false)
		return
	}

	if err := handler(ctx, task); err != nil {
		if task.Attempt >= conf.Worker.MaxRetries {
			logger.Error("worker: task failed, retry budget exhausted; dropping",
				err, map[string]interface{}{"task": task.Name, "tenant": task.TenantID, "attempt": task.Attempt})
			_ = d.Ack(false)
			return
		}
		// republish with an incremented attempt; ack the old delivery
		task.Attempt++
		body, mErr := json.Marshal(task)
		if mErr != nil {
			logger.Error("worker: requeueing task failed", mErr)
			_ = d.Nack(false, false)
			return
		}
		pub := amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		}
		if pErr := ch.PublishWithContext(ctx, "", taskQueueName, false, false, pub); pErr != nil {
			logger.Error("worker: requeueing task failed", pErr)
			_ = d.Nack(false, true) // let the broker redeliver instead
			return
		}
		logger.Warn("worker: task failed; retrying",
			err, map[string]interface{}{"task": task.Name, "attempt": task.Attempt})
		_ = d.Ack(false)
		return
	}
	_ = d.Ack(false)
}
