package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// NewNATS constructs a NATS-based queue. Each worker opens concurrency queue-group subscriptions.
func NewNATS(log *slog.Logger, nc *nats.Conn, concurrency int) Queue {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &natsQueue{log: log, nc: nc, concurrency: concurrency}
}

type natsQueue struct {
	log         *slog.Logger
	nc          *nats.Conn
	concurrency int
}

func (q *natsQueue) Enqueue(_ context.Context, task Task) error {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.Type == "" {
		return errors.New("task type required")
	}
	body, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return q.nc.Publish("tasks."+string(task.Type), body)
}

func (q *natsQueue) Worker(ctx context.Context, taskType TaskType, handler Handler) error {
	subject := "tasks." + string(taskType)
	group := "workers-" + string(taskType)
	subs := make([]*nats.Subscription, 0, q.concurrency)
	defer func() {
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
	}()
	for i := 0; i < q.concurrency; i++ {
		sub, err := q.nc.QueueSubscribe(subject, group, func(msg *nats.Msg) {
			q.handleMessage(ctx, msg, handler)
		})
		if err != nil {
			return err
		}
		subs = append(subs, sub)
	}
	<-ctx.Done()
	return nil
}

func (q *natsQueue) handleMessage(ctx context.Context, msg *nats.Msg, handler Handler) {
	var task Task
	if err := json.Unmarshal(msg.Data, &task); err != nil {
		q.log.Error("failed to decode task", "err", err)
		return
	}
	if err := waitUntil(ctx, task.NotBefore); err != nil {
		return
	}
	if err := handler(ctx, task); err != nil {
		q.retryTask(ctx, task, err)
	}
}

func (q *natsQueue) retryTask(ctx context.Context, task Task, handlerErr error) {
	next, ok := nextAttempt(task, handlerErr, defaultRetryBase)
	if !ok {
		q.log.Error("task permanently failed", "id", task.ID, "type", task.Type, "attempts", next.Attempts, "original_err", handlerErr)
		return
	}
	if err := q.Enqueue(ctx, next); err != nil {
		q.log.Error("failed to re-enqueue task after failure", "id", task.ID, "type", task.Type, "original_err", handlerErr, "enqueue_err", err)
	}
}

// Close drains in-flight messages and closes the connection.
func (q *natsQueue) Close() error {
	return q.nc.Drain()
}
