package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestSummarizePayloadRoundTrip(t *testing.T) {
	id := uuid.New()
	task, err := NewSummarizeTask(id)
	require.NoError(t, err)
	assert.Equal(t, TaskTypeSummarize, task.Type)
	assert.NotEqual(t, uuid.Nil, task.ID)
	assert.JSONEq(t, `{"record_id":"`+id.String()+`"}`, string(task.Payload))

	p, err := DecodeSummarize(task)
	require.NoError(t, err)
	assert.Equal(t, id, p.RecordID)

	_, err = DecodeSummarize(Task{Payload: []byte(`{}`)})
	assert.Error(t, err)
	_, err = DecodeSummarize(Task{Payload: []byte(`nope`)})
	assert.Error(t, err)
}

func TestNextAttempt(t *testing.T) {
	boom := errors.New("boom")

	next, ok := nextAttempt(Task{}, boom, time.Millisecond)
	assert.True(t, ok)
	assert.Equal(t, 1, next.Attempts)
	assert.Equal(t, defaultMaxAttempts, next.MaxAttempts)
	assert.True(t, next.NotBefore.After(time.Now().Add(-time.Second)))

	_, ok = nextAttempt(Task{Attempts: 4, MaxAttempts: 5}, boom, time.Millisecond)
	assert.False(t, ok)

	_, ok = nextAttempt(Task{}, Permanent(boom), time.Millisecond)
	assert.False(t, ok)
	assert.True(t, IsPermanent(Permanent(boom)))
	assert.ErrorIs(t, Permanent(boom), boom)
	assert.Nil(t, Permanent(nil))
}

func TestEnqueueWithRetry(t *testing.T) {
	q := &MockQueue{}
	task := Task{Type: TaskTypeSummarize}
	q.On("Enqueue", mock.Anything, task).Return(errors.New("nats down")).Once()
	q.On("Enqueue", mock.Anything, task).Return(nil).Once()

	err := EnqueueWithRetry(context.Background(), q, task, 3, time.Millisecond)
	require.NoError(t, err)
	q.AssertNumberOfCalls(t, "Enqueue", 2)
}

func TestEnqueueWithRetryGivesUp(t *testing.T) {
	q := &MockQueue{}
	q.On("Enqueue", mock.Anything, mock.Anything).Return(errors.New("nats down"))

	err := EnqueueWithRetry(context.Background(), q, Task{Type: TaskTypeSummarize}, 3, time.Millisecond)
	require.Error(t, err)
	q.AssertNumberOfCalls(t, "Enqueue", 3)
}

func TestMemoryQueueDelivers(t *testing.T) {
	q := NewMemory(discardLogger(), 3)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	seen := map[uuid.UUID]bool{}
	done := make(chan struct{})
	go func() {
		_ = q.Worker(ctx, TaskTypeSummarize, func(_ context.Context, task Task) error {
			mu.Lock()
			seen[task.ID] = true
			n := len(seen)
			mu.Unlock()
			if n == 10 {
				close(done)
			}
			return nil
		})
	}()

	for i := 0; i < 10; i++ {
		require.NoError(t, q.Enqueue(ctx, Task{Type: TaskTypeSummarize}))
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tasks not delivered")
	}
}

func TestMemoryQueueRetries(t *testing.T) {
	q := NewMemory(discardLogger(), 1)
	q.retryBase = time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int32
	done := make(chan struct{})
	go func() {
		_ = q.Worker(ctx, TaskTypeSummarize, func(_ context.Context, task Task) error {
			if atomic.AddInt32(&calls, 1) < 3 {
				return errors.New("transient")
			}
			close(done)
			return nil
		})
	}()

	require.NoError(t, q.Enqueue(ctx, Task{Type: TaskTypeSummarize}))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected 3 attempts, got %d", atomic.LoadInt32(&calls))
	}
}

func TestMemoryQueuePermanentErrorIsNotRetried(t *testing.T) {
	q := NewMemory(discardLogger(), 1)
	q.retryBase = time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())

	var calls int32
	stopped := make(chan struct{})
	go func() {
		_ = q.Worker(ctx, TaskTypeSummarize, func(context.Context, Task) error {
			atomic.AddInt32(&calls, 1)
			return Permanent(errors.New("bad payload"))
		})
		close(stopped)
	}()

	require.NoError(t, q.Enqueue(ctx, Task{Type: TaskTypeSummarize}))
	time.Sleep(100 * time.Millisecond)
	cancel()
	<-stopped
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestMemoryQueueRejectsUntyped(t *testing.T) {
	q := NewMemory(discardLogger(), 1)
	assert.Error(t, q.Enqueue(context.Background(), Task{}))
}
