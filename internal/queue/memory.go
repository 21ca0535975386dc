package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrQueueFull is returned when the in-process buffer for a task type is full.
var ErrQueueFull = errors.New("queue full")

const memoryBuffer = 1024

// MemoryQueue runs tasks inside the current process. Pending tasks are lost on exit.
type MemoryQueue struct {
	log         *slog.Logger
	concurrency int
	retryBase   time.Duration

	mu    sync.Mutex
	chans map[TaskType]chan Task
	wg    sync.WaitGroup
}

// NewMemory constructs an in-process queue with concurrency workers per task type.
func NewMemory(log *slog.Logger, concurrency int) *MemoryQueue {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &MemoryQueue{log: log, concurrency: concurrency, retryBase: defaultRetryBase, chans: make(map[TaskType]chan Task)}
}

func (q *MemoryQueue) channel(t TaskType) chan Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch, ok := q.chans[t]
	if !ok {
		ch = make(chan Task, memoryBuffer)
		q.chans[t] = ch
	}
	return ch
}

func (q *MemoryQueue) Enqueue(ctx context.Context, task Task) error {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.Type == "" {
		return errors.New("task type required")
	}
	select {
	case q.channel(task.Type) <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

// Worker consumes tasks of taskType until ctx ends, then waits for in-flight handlers.
func (q *MemoryQueue) Worker(ctx context.Context, taskType TaskType, handler Handler) error {
	ch := q.channel(taskType)
	var wg sync.WaitGroup
	for i := 0; i < q.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case task := <-ch:
					q.handle(ctx, task, handler)
				}
			}
		}()
	}
	wg.Wait()
	q.wg.Wait()
	return nil
}

func (q *MemoryQueue) handle(ctx context.Context, task Task, handler Handler) {
	err := handler(ctx, task)
	if err == nil {
		return
	}
	next, ok := nextAttempt(task, err, q.retryBase)
	if !ok {
		q.log.Error("task permanently failed", "id", task.ID, "type", task.Type, "attempts", next.Attempts, "original_err", err)
		return
	}
	// Wait out the backoff without holding a worker.
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		if waitUntil(ctx, next.NotBefore) != nil {
			return
		}
		if err := q.Enqueue(ctx, next); err != nil {
			q.log.Error("failed to re-enqueue task after failure", "id", task.ID, "type", task.Type, "enqueue_err", err)
		}
	}()
}
