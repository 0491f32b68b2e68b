package generator

import (
	"context"

	"github.com/stretchr/testify/mock"

	"testgen/internal/prompt"
	"testgen/internal/testcase"
)

// MockGenerator is a mock implementation of Generator using testify/mock.
type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, req prompt.Request) (testcase.Result, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(testcase.Result), args.Error(1)
}
