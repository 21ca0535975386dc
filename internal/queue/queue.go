package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"insight-agents/internal/retry"
)

// TaskType enumerates supported task categories.
type TaskType string

const (
	TaskTypeSummarize TaskType = "summarize"
)

const (
	defaultMaxAttempts = 5
	defaultRetryBase   = time.Second
)

// Task represents a unit of work handed from the gateway to workers.
type Task struct {
	ID          uuid.UUID
	Type        TaskType
	Payload     []byte
	Attempts    int
	MaxAttempts int
	NotBefore   time.Time
}

// SummarizePayload identifies the record a summarize task works on.
type SummarizePayload struct {
	RecordID uuid.UUID `json:"record_id"`
}

// NewSummarizeTask builds a summarize task for a record.
func NewSummarizeTask(recordID uuid.UUID) (Task, error) {
	body, err := json.Marshal(SummarizePayload{RecordID: recordID})
	if err != nil {
		return Task{}, err
	}
	return Task{ID: uuid.New(), Type: TaskTypeSummarize, Payload: body}, nil
}

// DecodeSummarize reads the payload of a summarize task.
func DecodeSummarize(task Task) (SummarizePayload, error) {
	var p SummarizePayload
	if err := json.Unmarshal(task.Payload, &p); err != nil {
		return p, fmt.Errorf("decode summarize payload: %w", err)
	}
	if p.RecordID == uuid.Nil {
		return p, errors.New("summarize payload missing record_id")
	}
	return p, nil
}

type Handler func(context.Context, Task) error

// Queue exposes a minimal contract to enqueue and consume tasks.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	Worker(ctx context.Context, taskType TaskType, handler Handler) error
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks a handler error as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// EnqueueWithRetry attempts to enqueue with retries and exponential backoff.
func EnqueueWithRetry(ctx context.Context, q Queue, task Task, attempts int, base time.Duration) error {
	return retry.Do(ctx, attempts, base, func(ctx context.Context) error {
		return q.Enqueue(ctx, task)
	})
}

// nextAttempt decides whether a failed task is retried and when.
func nextAttempt(task Task, handlerErr error, base time.Duration) (Task, bool) {
	if IsPermanent(handlerErr) {
		return task, false
	}
	task.Attempts++
	if task.MaxAttempts == 0 {
		task.MaxAttempts = defaultMaxAttempts
	}
	if task.Attempts >= task.MaxAttempts {
		return task, false
	}
	task.NotBefore = time.Now().Add(retry.ExponentialBackoff(task.Attempts, base))
	return task, true
}

// waitUntil blocks until t or until ctx ends, whichever is first.
func waitUntil(ctx context.Context, t time.Time) error {
	d := time.Until(t)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
