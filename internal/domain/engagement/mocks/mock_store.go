package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/seekreap/engagement-hub/internal/domain/engagement"
)

// MockStore is a mock implementation of engagement.Store
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Insert(ctx context.Context, e *engagement.Engagement) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *MockStore) Update(ctx context.Context, e *engagement.Engagement) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *MockStore) GetByID(ctx context.Context, id uuid.UUID) (*engagement.Engagement, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*engagement.Engagement), args.Error(1)
}

func (m *MockStore) FindActiveBySession(ctx context.Context, sessionID string) (*engagement.Engagement, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*engagement.Engagement), args.Error(1)
}

func (m *MockStore) ListBySession(ctx context.Context, sessionID string) ([]*engagement.Engagement, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*engagement.Engagement), args.Error(1)
}

func (m *MockStore) All(ctx context.Context) ([]*engagement.Engagement, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*engagement.Engagement), args.Error(1)
}
