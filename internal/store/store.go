package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"testgen/internal/testcase"
)

type RequirementStatus string

const (
	StatusPending    RequirementStatus = "pending"
	StatusProcessing RequirementStatus = "processing"
	StatusDone       RequirementStatus = "done"
	StatusFailed     RequirementStatus = "failed"
)

var ErrRequirementNotFound = errors.New("requirement not found")

// Requirement is a stored generation request.
type Requirement struct {
	ID          uuid.UUID         `json:"id"`
	Source      string            `json:"source"`
	Text        string            `json:"text"`
	TestingType string            `json:"testing_type"`
	NumCases    int               `json:"num_cases"`
	Status      RequirementStatus `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
}

// NewRequirement is the input to CreateRequirement.
type NewRequirement struct {
	Source      string
	Text        string
	TestingType string
	NumCases    int
}

// Store defines the persistence contract for requirements and their parsed results.
type Store interface {
	CreateRequirement(ctx context.Context, req NewRequirement) (Requirement, error)
	GetRequirement(ctx context.Context, id uuid.UUID) (Requirement, error)
	UpdateRequirementStatus(ctx context.Context, id uuid.UUID, status RequirementStatus) error
	SaveResult(ctx context.Context, reqID uuid.UUID, res testcase.Result) error
	ListTestCases(ctx context.Context, reqID uuid.UUID) ([]testcase.TestCase, error)
}
