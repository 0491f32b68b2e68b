// Package prompt builds the chat messages that ask the model for test cases.
package prompt

import (
	"errors"
	"fmt"
	"strings"
)

const (
	DefaultTestingType = "functional"
	DefaultNumCases    = 5

	systemPrompt = "You are a QA expert generating comprehensive test cases."
)

var ErrEmptyRequirement = errors.New("requirement is empty")

// Request describes what to generate.
type Request struct {
	Requirement string
	TestingType string
	NumCases    int
}

// Prompt is a system/user message pair.
type Prompt struct {
	System string
	User   string
}

// Normalize trims the requirement and applies defaults for testing type and count.
func (r Request) Normalize() Request {
	r.Requirement = strings.TrimSpace(r.Requirement)
	r.TestingType = strings.TrimSpace(r.TestingType)
	if r.TestingType == "" {
		r.TestingType = DefaultTestingType
	}
	if r.NumCases <= 0 {
		r.NumCases = DefaultNumCases
	}
	return r
}

// Build renders the prompt for req after applying defaults.
func Build(req Request) (Prompt, error) {
	req = req.Normalize()
	if req.Requirement == "" {
		return Prompt{}, ErrEmptyRequirement
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Generate %d detailed %s test cases for the following requirement:\n\n", req.NumCases, req.TestingType)
	fmt.Fprintf(&b, "Requirement: %s\n\n", req.Requirement)
	b.WriteString("For each test case, provide:\n")
	b.WriteString("1. Test ID (e.g., TC001)\n")
	b.WriteString("2. Title\n")
	b.WriteString("3. Description\n")
	b.WriteString("4. Preconditions\n")
	b.WriteString("5. Steps\n")
	b.WriteString("6. Expected Result\n\n")
	b.WriteString("Format as structured JSON.\n\n")
	b.WriteString("## Output Format\n\n")
	b.WriteString("Respond with ONLY a JSON array, no markdown and no commentary. Each element:\n")
	b.WriteString("{\n")
	b.WriteString("  \"test_id\": \"TC001\",\n")
	b.WriteString("  \"title\": \"<short title>\",\n")
	b.WriteString("  \"description\": \"<what is verified>\",\n")
	b.WriteString("  \"preconditions\": [\"<state before the test>\"],\n")
	b.WriteString("  \"steps\": [\"<action>\"],\n")
	b.WriteString("  \"expected_result\": \"<observable outcome>\",\n")
	fmt.Fprintf(&b, "  \"test_type\": %q\n", req.TestingType)
	b.WriteString("}\n")

	return Prompt{System: systemPrompt, User: b.String()}, nil
}
