package testcase

// DefaultType is the testing type applied when neither the record nor the caller names one.
const DefaultType = "functional"

// DefaultTypes is the allowed test_type set used when the caller does not supply one.
var DefaultTypes = []string{
	"functional",
	"regression",
	"edge_case",
	"integration",
	"performance",
	"security",
	"usability",
}

// TestCase is a single validated test record. Values are produced only by Parser
// and are not mutated afterwards.
type TestCase struct {
	TestID         string   `json:"test_id"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Preconditions  []string `json:"preconditions"`
	Steps          []string `json:"steps"`
	ExpectedResult string   `json:"expected_result"`
	TestType       string   `json:"test_type"`
	Flags          []Flag   `json:"flags,omitempty"`
}

// Flag marks a non-fatal condition on an accepted record.
type Flag string

const (
	FlagTypeUnrecognized Flag = "type_unrecognized"
	FlagIDDeduplicated   Flag = "id_deduplicated"
)

// HasFlag reports whether f was raised for the record.
func (tc TestCase) HasFlag(f Flag) bool {
	for _, got := range tc.Flags {
		if got == f {
			return true
		}
	}
	return false
}

// Reason explains why a record, or the whole input, was not accepted.
type Reason string

const (
	ReasonMalformedStructure Reason = "malformed_structure"
	ReasonMissingField       Reason = "missing_field"
	ReasonEmptyField         Reason = "empty_field"
	ReasonInvalidField       Reason = "invalid_field"
	ReasonInvalidRecord      Reason = "invalid_record"
)

// Rejection describes one input record that failed validation.
// Index is the record's position in the decoded input array.
type Rejection struct {
	Index  int    `json:"index"`
	Reason Reason `json:"reason"`
	Field  string `json:"field,omitempty"`
}

// Diagnostic is a non-fatal annotation on an accepted record.
type Diagnostic struct {
	Kind       Flag   `json:"kind"`
	Index      int    `json:"index"`
	TestType   string `json:"test_type,omitempty"`
	OriginalID string `json:"original_id,omitempty"`
	NewID      string `json:"new_id,omitempty"`
}

// Result is a successful parse: accepted cases in input order plus what was
// rejected or annotated along the way.
type Result struct {
	Cases       []TestCase   `json:"test_cases"`
	Rejections  []Rejection  `json:"rejections"`
	Diagnostics []Diagnostic `json:"diagnostics"`
	Expected    int          `json:"expected_count"`
}

func newResult(expected int) Result {
	return Result{
		Cases:       []TestCase{},
		Rejections:  []Rejection{},
		Diagnostics: []Diagnostic{},
		Expected:    expected,
	}
}

// Partial reports whether some records were rejected.
func (r Result) Partial() bool {
	return len(r.Rejections) > 0
}

// MeetsExpected reports whether the accepted count matches the requested count.
// A zero expectation always matches.
func (r Result) MeetsExpected() bool {
	return r.Expected == 0 || len(r.Cases) == r.Expected
}
