package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"testgen/internal/testcase"
)

// MockStore is a mock implementation of Store using testify/mock.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateRequirement(ctx context.Context, req NewRequirement) (Requirement, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(Requirement), args.Error(1)
}

func (m *MockStore) GetRequirement(ctx context.Context, id uuid.UUID) (Requirement, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Requirement), args.Error(1)
}

func (m *MockStore) UpdateRequirementStatus(ctx context.Context, id uuid.UUID, status RequirementStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockStore) SaveResult(ctx context.Context, reqID uuid.UUID, res testcase.Result) error {
	args := m.Called(ctx, reqID, res)
	return args.Error(0)
}

func (m *MockStore) ListTestCases(ctx context.Context, reqID uuid.UUID) ([]testcase.TestCase, error) {
	args := m.Called(ctx, reqID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]testcase.TestCase), args.Error(1)
}
