package llm

import (
	"context"

	"testgen/internal/prompt"
)

// stubReply is a well-formed reply used when LLM_PROVIDER=stub.
const stubReply = `[
  {
    "test_id": "TC001",
    "title": "Happy path",
    "description": "The requirement is satisfied with valid input.",
    "preconditions": ["System is available"],
    "steps": ["Provide valid input", "Submit the request"],
    "expected_result": "The operation succeeds"
  },
  {
    "test_id": "TC002",
    "title": "Invalid input is refused",
    "description": "The requirement rejects invalid input.",
    "preconditions": ["System is available"],
    "steps": ["Provide invalid input", "Submit the request"],
    "expected_result": "A validation error is shown"
  },
  {
    "test_id": "TC003",
    "title": "Empty input is refused",
    "description": "Boundary check with no input.",
    "preconditions": [],
    "steps": ["Leave every field empty", "Submit the request"],
    "expected_result": "Required field errors are shown"
  }
]`

// StubClient returns a canned reply without calling any API.
type StubClient struct{}

func NewStubClient() *StubClient {
	return &StubClient{}
}

func (c *StubClient) Complete(ctx context.Context, _ prompt.Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return stubReply, nil
}
