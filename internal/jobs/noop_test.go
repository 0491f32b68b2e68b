package jobs

import (
	"context"
	"testing"
)

func TestNoOpTracker(t *testing.T) {
	tracker := NewNoOpTracker()
	ctx := context.Background()

	if err := tracker.SetStatus(ctx, "job-1", Status{State: StateDone, Accepted: 3}); err != nil {
		t.Errorf("Expected no error on SetStatus, got %v", err)
	}

	status, err := tracker.GetStatus(ctx, "job-1")
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if status != nil {
		t.Errorf("Expected nil status (no-op tracker doesn't store), got %v", status)
	}

	if err := tracker.Close(); err != nil {
		t.Errorf("Expected no error on Close, got %v", err)
	}
}
