package testcase

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/tidwall/gjson"
)

// Options configures a Parser.
type Options struct {
	// ExpectedCount is the number of cases that were requested. It is a hint
	// carried into the Result and never enforced.
	ExpectedCount int
	// AllowedTypes is the accepted test_type set. Empty means DefaultTypes.
	AllowedTypes []string
	// DefaultType fills records without a test_type. Empty means DefaultType.
	DefaultType string
}

// Parser converts raw model output into validated test cases.
// A Parser holds no mutable state and may be shared between goroutines.
type Parser struct {
	expected    int
	allowed     map[string]struct{}
	defaultType string
}

// envelopeKeys are object members unwrapped when the model returns an object
// instead of a bare array.
var envelopeKeys = []string{"test_cases", "testCases"}

// record carries the fields that must be non-empty once present.
type record struct {
	Title          string   `json:"title" validate:"required"`
	Steps          []string `json:"steps" validate:"required,min=1,dive,required"`
	ExpectedResult string   `json:"expected_result" validate:"required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// NewParser returns a Parser with defaults applied to opts.
func NewParser(opts Options) *Parser {
	types := opts.AllowedTypes
	if len(types) == 0 {
		types = DefaultTypes
	}
	allowed := make(map[string]struct{}, len(types))
	for _, t := range types {
		if t = strings.TrimSpace(t); t != "" {
			allowed[t] = struct{}{}
		}
	}
	def := strings.TrimSpace(opts.DefaultType)
	if def == "" {
		def = DefaultType
	}
	expected := opts.ExpectedCount
	if expected < 0 {
		expected = 0
	}
	return &Parser{expected: expected, allowed: allowed, defaultType: def}
}

// Parse is shorthand for NewParser(opts).Parse(raw).
func Parse(raw string, opts Options) (Result, error) {
	return NewParser(opts).Parse(raw)
}

// candidate is an accepted record before ids are assigned.
type candidate struct {
	index      int
	explicitID string
	tc         TestCase
}

// Parse decodes raw as an array of test case objects. Only undecodable input
// returns an error (a *ParseError); invalid records are reported in the
// Result and do not affect their siblings.
func (p *Parser) Parse(raw string) (Result, error) {
	res := newResult(p.expected)

	body := unwrapFence(raw)
	if body == "" {
		return res, nil
	}
	if !gjson.Valid(body) {
		return Result{}, malformed(raw, errors.New("invalid JSON"))
	}
	root := gjson.Parse(body)
	if root.IsObject() {
		for _, key := range envelopeKeys {
			if v := root.Get(key); v.IsArray() {
				root = v
				break
			}
		}
	}
	if !root.IsArray() {
		return Result{}, malformed(raw, fmt.Errorf("expected array, got %s", kind(root)))
	}

	var accepted []candidate
	for i, v := range root.Array() {
		c, rej := p.decode(v)
		if rej != nil {
			rej.Index = i
			res.Rejections = append(res.Rejections, *rej)
			continue
		}
		c.index = i
		if c.tc.HasFlag(FlagTypeUnrecognized) {
			res.Diagnostics = append(res.Diagnostics, Diagnostic{
				Kind:     FlagTypeUnrecognized,
				Index:    i,
				TestType: c.tc.TestType,
			})
		}
		accepted = append(accepted, c)
	}

	res.Diagnostics = append(res.Diagnostics, assignIDs(accepted)...)
	slices.SortStableFunc(res.Diagnostics, func(a, b Diagnostic) int {
		return a.Index - b.Index
	})
	for _, c := range accepted {
		res.Cases = append(res.Cases, c.tc)
	}
	return res, nil
}

func (p *Parser) decode(v gjson.Result) (candidate, *Rejection) {
	if !v.IsObject() {
		return candidate{}, &Rejection{Reason: ReasonInvalidRecord}
	}
	r := fieldReader{v: v}
	rec := record{
		Title:          r.str("title", true),
		Steps:          r.list("steps", true),
		ExpectedResult: r.str("expected_result", true),
	}
	if r.rej != nil {
		return candidate{}, r.rej
	}

	if err := validate.Struct(rec); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return candidate{}, &Rejection{Reason: ReasonEmptyField, Field: verrs[0].Field()}
		}
		return candidate{}, &Rejection{Reason: ReasonInvalidRecord}
	}

	testType, typed := r.testType()
	tc := TestCase{
		Title:          rec.Title,
		Description:    r.optStr("description"),
		Preconditions:  r.optList("preconditions"),
		Steps:          rec.Steps,
		ExpectedResult: rec.ExpectedResult,
		TestType:       testType,
	}
	if tc.TestType == "" {
		tc.TestType = p.defaultType
	} else if _, ok := p.allowed[tc.TestType]; !ok || !typed {
		tc.Flags = append(tc.Flags, FlagTypeUnrecognized)
	}
	return candidate{explicitID: r.id("test_id"), tc: tc}, nil
}

// assignIDs fills missing ids and renumbers duplicates. Synthesized ids start
// from the record's 1-based position in the accepted sequence and skip any id
// that is explicitly supplied elsewhere in the batch.
func assignIDs(accepted []candidate) []Diagnostic {
	reserved := make(map[string]struct{}, len(accepted))
	for _, c := range accepted {
		if c.explicitID != "" {
			reserved[c.explicitID] = struct{}{}
		}
	}
	used := make(map[string]struct{}, len(accepted))
	next := func(pos int) string {
		for n := pos; ; n++ {
			id := fmt.Sprintf("TC%03d", n)
			_, taken := reserved[id]
			_, assigned := used[id]
			if !taken && !assigned {
				return id
			}
		}
	}

	var diags []Diagnostic
	for pos := range accepted {
		c := &accepted[pos]
		id := c.explicitID
		_, dup := used[id]
		switch {
		case id == "":
			id = next(pos + 1)
		case dup:
			id = next(pos + 1)
			c.tc.Flags = append(c.tc.Flags, FlagIDDeduplicated)
			diags = append(diags, Diagnostic{
				Kind:       FlagIDDeduplicated,
				Index:      c.index,
				OriginalID: c.explicitID,
				NewID:      id,
			})
		}
		used[id] = struct{}{}
		c.tc.TestID = id
	}
	return diags
}

// fieldReader extracts typed fields from one record. Problems with required
// fields are kept, first one wins; optional fields fall back to empty values.
type fieldReader struct {
	v   gjson.Result
	rej *Rejection
}

func (r *fieldReader) fail(reason Reason, field string) {
	if r.rej == nil {
		r.rej = &Rejection{Reason: reason, Field: field}
	}
}

func (r *fieldReader) lookup(name string, required bool) (gjson.Result, bool) {
	f := r.v.Get(name)
	if !f.Exists() || f.Type == gjson.Null {
		if required {
			r.fail(ReasonMissingField, name)
		}
		return f, false
	}
	return f, true
}

func (r *fieldReader) str(name string, required bool) string {
	f, ok := r.lookup(name, required)
	if !ok {
		return ""
	}
	if f.Type != gjson.String {
		r.fail(ReasonInvalidField, name)
		return ""
	}
	return clean(f.Str)
}

func (r *fieldReader) list(name string, required bool) []string {
	f, ok := r.lookup(name, required)
	if !ok {
		return []string{}
	}
	items, ok := stringArray(f)
	if !ok {
		r.fail(ReasonInvalidField, name)
		return nil
	}
	return items
}

// optStr reads an optional string; any other type reads as empty.
func (r *fieldReader) optStr(name string) string {
	if f := r.v.Get(name); f.Type == gjson.String {
		return clean(f.Str)
	}
	return ""
}

// optList reads an optional string array; anything else reads as empty.
func (r *fieldReader) optList(name string) []string {
	if items, ok := stringArray(r.v.Get(name)); ok {
		return items
	}
	return []string{}
}

// testType returns the record's type. A non-string value is kept as its JSON
// text and reported with typed=false so the caller flags it.
func (r *fieldReader) testType() (value string, typed bool) {
	f := r.v.Get("test_type")
	switch {
	case !f.Exists() || f.Type == gjson.Null:
		return "", true
	case f.Type == gjson.String:
		return clean(f.Str), true
	default:
		return clean(f.Raw), false
	}
}

// id accepts numeric ids as well as strings. Other types count as absent.
func (r *fieldReader) id(name string) string {
	f := r.v.Get(name)
	if f.Type != gjson.String && f.Type != gjson.Number {
		return ""
	}
	return clean(f.String())
}

func stringArray(f gjson.Result) ([]string, bool) {
	if !f.IsArray() {
		return nil, false
	}
	items := f.Array()
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it.Type != gjson.String {
			return nil, false
		}
		out = append(out, clean(it.Str))
	}
	return out, true
}

// clean makes a decoded value safe to store: invalid UTF-8 becomes U+FFFD,
// NUL bytes are dropped and surrounding space is trimmed.
func clean(s string) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	s = strings.ReplaceAll(s, "\x00", "")
	return strings.TrimSpace(s)
}

// unwrapFence strips surrounding whitespace and a byte order mark and, when the payload does not
// already start as JSON, the first markdown code fence around it.
func unwrapFence(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimSpace(strings.TrimPrefix(s, "\ufeff"))
	if s == "" || s[0] == '[' || s[0] == '{' {
		return s
	}
	start := strings.Index(s, "```")
	if start < 0 {
		start = strings.Index(s, "~~~")
	}
	if start < 0 {
		return s
	}
	fence := s[start : start+3]
	rest := s[start+3:]
	nl := strings.IndexByte(rest, '\n')
	if nl < 0 {
		return s
	}
	rest = rest[nl+1:]
	if end := strings.Index(rest, fence); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

func kind(v gjson.Result) string {
	switch {
	case v.IsArray():
		return "array"
	case v.IsObject():
		return "object"
	default:
		return strings.ToLower(v.Type.String())
	}
}
