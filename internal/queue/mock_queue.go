package queue

import (
	"context"
	"slices"

	"github.com/stretchr/testify/mock"
)

// MockQueue is a mock implementation of Queue using testify/mock.
type MockQueue struct {
	mock.Mock
}

func (m *MockQueue) Enqueue(ctx context.Context, task Task) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

func (m *MockQueue) Worker(ctx context.Context, taskType TaskType, handler Handler) error {
	args := m.Called(ctx, taskType, handler)
	return args.Error(0)
}

// Enqueued returns the tasks passed to Enqueue, optionally filtered by type.
func (m *MockQueue) Enqueued(types ...TaskType) []Task {
	var out []Task
	for _, call := range m.Calls {
		if call.Method != "Enqueue" {
			continue
		}
		task := call.Arguments.Get(1).(Task)
		if len(types) == 0 || slices.Contains(types, task.Type) {
			out = append(out, task)
		}
	}
	return out
}
