package llm

import (
	"context"

	"github.com/stretchr/testify/mock"

	"testgen/internal/prompt"
)

// MockClient is a mock implementation of Client using testify/mock.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) Complete(ctx context.Context, p prompt.Prompt) (string, error) {
	args := m.Called(ctx, p)
	return args.String(0), args.Error(1)
}
