package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"insight-agents/internal/document"
)

// MockStore is a mock implementation of Store using testify/mock.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateRecord(ctx context.Context, meta document.Metadata, data document.Data) (Record, error) {
	args := m.Called(ctx, meta, data)
	return args.Get(0).(Record), args.Error(1)
}

func (m *MockStore) GetRecord(ctx context.Context, id uuid.UUID) (Record, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Record), args.Error(1)
}

func (m *MockStore) ListRecords(ctx context.Context, limit, offset int) ([]Record, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Record), args.Error(1)
}

func (m *MockStore) UpdateSummary(ctx context.Context, id uuid.UUID, upd SummaryUpdate) error {
	args := m.Called(ctx, id, upd)
	return args.Error(0)
}

func (m *MockStore) DeleteRecord(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
