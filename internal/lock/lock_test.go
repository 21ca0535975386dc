package lock

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLocker(t *testing.T) {
	runLockerSuite(t, NewMemoryLocker())
}

func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	l, err := NewRedisLocker(addr, os.Getenv("TEST_REDIS_PASSWORD"))
	require.NoError(t, err)
	defer l.Close()
	runLockerSuite(t, l)
}

func runLockerSuite(t *testing.T, l Locker) {
	ctx := context.Background()

	t.Run("exclusive until released", func(t *testing.T) {
		key := uuid.NewString()
		tok, ok, err := l.TryAcquire(ctx, key, time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		_, ok, err = l.TryAcquire(ctx, key, time.Minute)
		require.NoError(t, err)
		assert.False(t, ok, "second acquire must fail while held")

		require.NoError(t, l.Release(ctx, key, "not-the-owner"))
		_, ok, _ = l.TryAcquire(ctx, key, time.Minute)
		assert.False(t, ok, "release with a foreign token must not free the key")

		require.NoError(t, l.Release(ctx, key, tok))
		_, ok, err = l.TryAcquire(ctx, key, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("expires", func(t *testing.T) {
		key := uuid.NewString()
		_, ok, err := l.TryAcquire(ctx, key, 50*time.Millisecond)
		require.NoError(t, err)
		require.True(t, ok)
		time.Sleep(120 * time.Millisecond)
		_, ok, err = l.TryAcquire(ctx, key, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "expired lease should be reacquirable")
	})

	t.Run("one winner under contention", func(t *testing.T) {
		key := uuid.NewString()
		var wins int32
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, ok, _ := l.TryAcquire(ctx, key, time.Minute); ok {
					atomic.AddInt32(&wins, 1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins)
	})
}
