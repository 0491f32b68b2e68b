package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"testgen/internal/retry"
)

const (
	defaultMaxAttempts = 5
	redeliveryBase     = time.Second
)

// NewNATS constructs a thin NATS-based queue. Workers of one task type share
// a queue group, so each task is handled by a single worker.
func NewNATS(log *slog.Logger, nc *nats.Conn) Queue {
	return &natsQueue{log: log, nc: nc}
}

type natsQueue struct {
	log *slog.Logger
	nc  *nats.Conn
}

func subject(t TaskType) string { return "tasks." + string(t) }
func group(t TaskType) string   { return "workers-" + string(t) }

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
	return q.nc.Publish(subject(task.Type), body)
}

func (q *natsQueue) Worker(ctx context.Context, taskType TaskType, handler Handler) error {
	sub, err := q.nc.QueueSubscribe(subject(taskType), group(taskType), func(msg *nats.Msg) {
		q.handleMessage(ctx, msg, handler)
	})
	if err != nil {
		return err
	}
	q.log.Info("queue worker subscribed", "subject", subject(taskType), "group", group(taskType))
	<-ctx.Done()
	return sub.Unsubscribe()
}

func (q *natsQueue) handleMessage(ctx context.Context, msg *nats.Msg, handler Handler) {
	var task Task
	if err := json.Unmarshal(msg.Data, &task); err != nil {
		q.log.Error("failed to decode task", "err", err)
		return
	}

	if wait := time.Until(task.NotBefore); wait > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}

	if err := handler(ctx, task); err != nil {
		q.log.Warn("task handler failed", "id", task.ID, "type", task.Type, "attempt", task.Attempts+1, "err", err)
		q.redeliver(ctx, task, err)
	}
}

func (q *natsQueue) redeliver(ctx context.Context, task Task, handlerErr error) {
	next, ok := reschedule(task, time.Now())
	if !ok {
		q.log.Error("task permanently failed", "id", task.ID, "type", task.Type, "attempts", next.Attempts, "original_err", handlerErr)
		return
	}
	if err := q.Enqueue(ctx, next); err != nil {
		q.log.Error("failed to re-enqueue task after failure", "id", task.ID, "type", task.Type, "original_err", handlerErr, "enqueue_err", err)
	}
}

// reschedule counts a failed attempt and reports whether the task may run again.
func reschedule(task Task, now time.Time) (Task, bool) {
	task.Attempts++
	if task.MaxAttempts == 0 {
		task.MaxAttempts = defaultMaxAttempts
	}
	if task.Attempts >= task.MaxAttempts {
		return task, false
	}
	task.NotBefore = now.Add(retry.ExponentialBackoff(task.Attempts, redeliveryBase))
	return task, true
}
