package testcase

import (
	"errors"
	"fmt"
)

// ErrMalformedStructure matches any *ParseError caused by undecodable input.
var ErrMalformedStructure = errors.New("malformed structure")

// ParseError aborts a parse. Raw holds the full input for diagnostics.
type ParseError struct {
	Reason Reason
	Raw    string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("testcase: %s", e.Reason)
	}
	return fmt.Sprintf("testcase: %s: %v", e.Reason, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func (e *ParseError) Is(target error) bool {
	return target == ErrMalformedStructure && e.Reason == ReasonMalformedStructure
}

func malformed(raw string, err error) *ParseError {
	return &ParseError{Reason: ReasonMalformedStructure, Raw: raw, Err: err}
}
