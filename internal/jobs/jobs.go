package jobs

import (
	"context"
	"time"
)

type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Status is the last known state of an asynchronous generation job.
type Status struct {
	State     State     `json:"state"`
	Accepted  int       `json:"accepted"`
	Rejected  int       `json:"rejected"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Tracker records job status keyed by requirement id.
type Tracker interface {
	// SetStatus stores the status of a job, replacing any previous one.
	SetStatus(ctx context.Context, id string, status Status) error

	// GetStatus returns the stored status, or nil if none is known.
	GetStatus(ctx context.Context, id string) (*Status, error)

	// Close releases the underlying connection.
	Close() error
}
