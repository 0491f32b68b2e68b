package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"testgen/internal/retry"
)

// TaskType enumerates supported task categories.
type TaskType string

const (
	TaskTypeGenerate TaskType = "generate"
)

// Task represents a unit of work shared between gateway and worker.
type Task struct {
	ID          uuid.UUID
	Type        TaskType
	Payload     []byte
	Attempts    int
	MaxAttempts int
	NotBefore   time.Time
}

// GeneratePayload is the body of a TaskTypeGenerate task.
type GeneratePayload struct {
	RequirementID uuid.UUID `json:"requirement_id"`
	Requirement   string    `json:"requirement"`
	TestingType   string    `json:"testing_type"`
	NumCases      int       `json:"num_cases"`
}

type Handler func(context.Context, Task) error

// Queue exposes a minimal contract to enqueue and consume tasks.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	Worker(ctx context.Context, taskType TaskType, handler Handler) error
}

// NewGenerateTask builds a generate task for p. Model calls are not retried,
// so the task runs at most once.
func NewGenerateTask(p GeneratePayload) (Task, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return Task{}, fmt.Errorf("marshal generate payload: %w", err)
	}
	return Task{Type: TaskTypeGenerate, Payload: body, MaxAttempts: 1}, nil
}

// DecodeGenerate reads the payload of a generate task.
func DecodeGenerate(task Task) (GeneratePayload, error) {
	var p GeneratePayload
	if task.Type != TaskTypeGenerate {
		return p, fmt.Errorf("unexpected task type %q", task.Type)
	}
	if err := json.Unmarshal(task.Payload, &p); err != nil {
		return p, fmt.Errorf("decode generate payload: %w", err)
	}
	if p.RequirementID == uuid.Nil {
		return p, fmt.Errorf("generate payload has no requirement id")
	}
	return p, nil
}

// EnqueueWithRetry attempts to publish with retries and exponential backoff.
// Only the publish is retried; the task's handler still runs at most MaxAttempts times.
func EnqueueWithRetry(ctx context.Context, q Queue, task Task, attempts int, base time.Duration) error {
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = q.Enqueue(ctx, task); err == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}
		if werr := retry.Wait(ctx, attempt, base); werr != nil {
			return werr
		}
	}
	return err
}
