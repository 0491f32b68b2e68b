package jobs

import "context"

// NoOpTracker stores nothing. It is used when Redis is not configured or
// unreachable; job state is then only visible through the store.
type NoOpTracker struct{}

func NewNoOpTracker() *NoOpTracker {
	return &NoOpTracker{}
}

func (t *NoOpTracker) SetStatus(ctx context.Context, id string, status Status) error {
	return nil
}

// GetStatus always reports an unknown job.
func (t *NoOpTracker) GetStatus(ctx context.Context, id string) (*Status, error) {
	return nil, nil
}

func (t *NoOpTracker) Close() error {
	return nil
}
