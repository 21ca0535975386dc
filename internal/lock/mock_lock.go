package lock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockLocker is a mock implementation of Locker using testify/mock.
type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockLocker) Release(ctx context.Context, key, token string) error {
	args := m.Called(ctx, key, token)
	return args.Error(0)
}

func (m *MockLocker) Close() error {
	args := m.Called()
	return args.Error(0)
}
