// Package presenter renders parsed test cases for people and files.
package presenter

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"

	"testgen/internal/testcase"
)

var (
	idColor     = color.New(color.FgCyan, color.Bold)
	labelColor  = color.New(color.Bold)
	passColor   = color.New(color.FgGreen)
	warnColor   = color.New(color.FgYellow)
	rejectColor = color.New(color.FgRed)
)

// Terminal writes a human-readable rendering of a Result.
type Terminal struct {
	w io.Writer
}

func NewTerminal(w io.Writer) *Terminal {
	return &Terminal{w: w}
}

// Render prints every accepted case, then rejections and a one-line summary.
func (t *Terminal) Render(res testcase.Result) {
	for i, tc := range res.Cases {
		if i > 0 {
			fmt.Fprintln(t.w)
		}
		t.renderCase(tc)
	}
	if len(res.Cases) > 0 {
		fmt.Fprintln(t.w)
	}

	for _, rej := range res.Rejections {
		if rej.Field != "" {
			rejectColor.Fprintf(t.w, "✗ record %d rejected: %s (%s)\n", rej.Index, rej.Reason, rej.Field)
		} else {
			rejectColor.Fprintf(t.w, "✗ record %d rejected: %s\n", rej.Index, rej.Reason)
		}
	}
	t.Summary(res)
}

func (t *Terminal) renderCase(tc testcase.TestCase) {
	idColor.Fprintf(t.w, "%s", tc.TestID)
	fmt.Fprintf(t.w, "  %s ", tc.Title)
	warnColor.Fprintf(t.w, "[%s]\n", tc.TestType)

	if tc.Description != "" {
		fmt.Fprintf(t.w, "  %s\n", tc.Description)
	}
	if len(tc.Preconditions) > 0 {
		labelColor.Fprintln(t.w, "  Preconditions:")
		for _, p := range tc.Preconditions {
			fmt.Fprintf(t.w, "    - %s\n", p)
		}
	}
	labelColor.Fprintln(t.w, "  Steps:")
	for i, s := range tc.Steps {
		fmt.Fprintf(t.w, "    %d. %s\n", i+1, s)
	}
	labelColor.Fprint(t.w, "  Expected: ")
	passColor.Fprintln(t.w, tc.ExpectedResult)

	for _, f := range tc.Flags {
		warnColor.Fprintf(t.w, "  ! %s\n", describeFlag(f))
	}
}

// Summary prints accepted and rejected counts, and a warning when the
// accepted count differs from what was requested.
func (t *Terminal) Summary(res testcase.Result) {
	fmt.Fprintf(t.w, "%s accepted, %s rejected",
		passColor.Sprintf("%d", len(res.Cases)),
		rejectColor.Sprintf("%d", len(res.Rejections)))
	if !res.MeetsExpected() {
		warnColor.Fprintf(t.w, " (requested %d)", res.Expected)
	}
	fmt.Fprintln(t.w)
}

func describeFlag(f testcase.Flag) string {
	switch f {
	case testcase.FlagTypeUnrecognized:
		return "test type is not in the allowed set"
	case testcase.FlagIDDeduplicated:
		return "duplicate test id was renumbered"
	default:
		return strings.ReplaceAll(string(f), "_", " ")
	}
}

// Report is the JSON document written by WriteJSON.
type Report struct {
	Requirement string    `json:"requirement,omitempty"`
	TestingType string    `json:"testing_type,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
	testcase.Result
}

// WriteJSON writes reports to path as indented JSON, creating parent directories.
func WriteJSON(path string, reports []Report) error {
	data, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
