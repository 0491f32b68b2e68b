package llm

import (
	"context"

	"testgen/internal/prompt"
)

// Client sends a prompt to a completion model and returns the raw reply text.
type Client interface {
	Complete(ctx context.Context, p prompt.Prompt) (string, error)
}
