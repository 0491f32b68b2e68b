package jobs

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockTracker is a mock implementation of Tracker using testify/mock.
type MockTracker struct {
	mock.Mock
}

func (m *MockTracker) SetStatus(ctx context.Context, id string, status Status) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockTracker) GetStatus(ctx context.Context, id string) (*Status, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Status), args.Error(1)
}

func (m *MockTracker) Close() error {
	args := m.Called()
	return args.Error(0)
}
