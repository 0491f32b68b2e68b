package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"testgen/internal/app"
	"testgen/internal/config"
	"testgen/internal/generator"
	"testgen/internal/jobs"
	"testgen/internal/prompt"
	"testgen/internal/queue"
	"testgen/internal/store"
	"testgen/internal/testcase"
)

type mocks struct {
	store *store.MockStore
	queue *queue.MockQueue
	jobs  *jobs.MockTracker
	gen   *generator.MockGenerator
}

func newMocks() mocks {
	return mocks{
		store: new(store.MockStore),
		queue: new(queue.MockQueue),
		jobs:  new(jobs.MockTracker),
		gen:   new(generator.MockGenerator),
	}
}

func (m mocks) assert(t *testing.T) {
	m.store.AssertExpectations(t)
	m.queue.AssertExpectations(t)
	m.jobs.AssertExpectations(t)
	m.gen.AssertExpectations(t)
}

func newTestDeps(m mocks) app.Deps {
	return app.Deps{
		Store:     m.store,
		Queue:     m.queue,
		Jobs:      m.jobs,
		Generator: m.gen,
		Config: config.Config{
			MaxUploadSize:      1024 * 1024, // 1MB for tests
			DefaultTestingType: "functional",
			NumCases:           5,
			TestTypes:          testcase.DefaultTypes,
			ChunkMaxTokens:     400,
		},
		Log: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error
}

func sampleResult() testcase.Result {
	return testcase.Result{
		Cases: []testcase.TestCase{
			{TestID: "TC001", Title: "Valid login", Steps: []string{"Open page"}, ExpectedResult: "Dashboard", TestType: "security"},
		},
		Rejections:  []testcase.Rejection{},
		Diagnostics: []testcase.Diagnostic{},
		Expected:    3,
	}
}

func TestGenerateHandler(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		setup      func(mocks)
		wantStatus int
		wantError  string
	}{
		{
			name: "success",
			body: `{"requirement":"Users can log in","testing_type":"security","num_cases":3}`,
			setup: func(m mocks) {
				m.gen.On("Generate", mock.Anything, prompt.Request{
					Requirement: "Users can log in", TestingType: "security", NumCases: 3,
				}).Return(sampleResult(), nil).Once()
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing requirement",
			body:       `{"num_cases":3}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid request",
		},
		{
			name:       "num_cases out of range",
			body:       `{"requirement":"x","num_cases":500}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "blank requirement",
			body: `{"requirement":"   "}`,
			setup: func(m mocks) {
				m.gen.On("Generate", mock.Anything, mock.Anything).
					Return(testcase.Result{}, prompt.ErrEmptyRequirement).Once()
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "model failure",
			body: `{"requirement":"Users can log in"}`,
			setup: func(m mocks) {
				m.gen.On("Generate", mock.Anything, mock.Anything).
					Return(testcase.Result{}, fmt.Errorf("generate test cases: %w", errors.New("503"))).Once()
			},
			wantStatus: http.StatusBadGateway,
			wantError:  "model call failed",
		},
		{
			name: "malformed model reply",
			body: `{"requirement":"Users can log in"}`,
			setup: func(m mocks) {
				m.gen.On("Generate", mock.Anything, mock.Anything).
					Return(testcase.Result{}, &testcase.ParseError{Reason: testcase.ReasonMalformedStructure}).Once()
			},
			wantStatus: http.StatusBadGateway,
			wantError:  "malformed_structure",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMocks()
			if tt.setup != nil {
				tt.setup(m)
			}

			w := httptest.NewRecorder()
			generateHandler(newTestDeps(m))(w, postJSON("/api/testcases/generate", tt.body))

			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, decodeError(t, w))
			}
			if tt.wantStatus == http.StatusOK {
				var res testcase.Result
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
				assert.Len(t, res.Cases, 1)
				assert.Equal(t, 3, res.Expected)
			}
			m.assert(t)
		})
	}
}

func TestParseHandler(t *testing.T) {
	login := `[{"test_id":"TC001","title":"Valid login","steps":["Open page"],"expected_result":"Dashboard"}]`

	tests := []struct {
		name       string
		body       any
		wantStatus int
		check      func(*testing.T, testcase.Result)
	}{
		{
			name:       "parses raw output with configured defaults",
			body:       map[string]any{"raw": login, "expected_count": 2},
			wantStatus: http.StatusOK,
			check: func(t *testing.T, res testcase.Result) {
				require.Len(t, res.Cases, 1)
				assert.Equal(t, "functional", res.Cases[0].TestType)
				assert.Equal(t, 2, res.Expected)
			},
		},
		{
			name: "custom allowed types flag others",
			body: map[string]any{
				"raw":           `[{"title":"t","steps":["s"],"expected_result":"r","test_type":"security"}]`,
				"allowed_types": []string{"functional"},
			},
			wantStatus: http.StatusOK,
			check: func(t *testing.T, res testcase.Result) {
				require.Len(t, res.Diagnostics, 1)
				assert.Equal(t, testcase.FlagTypeUnrecognized, res.Diagnostics[0].Kind)
				assert.Equal(t, "TC001", res.Cases[0].TestID)
			},
		},
		{
			name:       "empty raw yields empty result",
			body:       map[string]any{"raw": ""},
			wantStatus: http.StatusOK,
			check: func(t *testing.T, res testcase.Result) {
				assert.Empty(t, res.Cases)
				assert.Empty(t, res.Rejections)
			},
		},
		{
			name:       "malformed structure",
			body:       map[string]any{"raw": "not json"},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "negative expected count",
			body:       map[string]any{"raw": login, "expected_count": -1},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMocks()
			body, err := json.Marshal(tt.body)
			require.NoError(t, err)

			w := httptest.NewRecorder()
			parseHandler(newTestDeps(m))(w, postJSON("/api/testcases/parse", string(body)))

			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus == http.StatusUnprocessableEntity {
				assert.Equal(t, "malformed_structure", decodeError(t, w))
			}
			if tt.check != nil {
				var res testcase.Result
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
				tt.check(t, res)
			}
		})
	}
}

func isPending(s jobs.Status) bool { return s.State == jobs.StatePending }
func isFailed(s jobs.Status) bool  { return s.State == jobs.StateFailed && s.Error != "" }

func isGenerateTask(reqID uuid.UUID) func(queue.Task) bool {
	return func(task queue.Task) bool {
		payload, err := queue.DecodeGenerate(task)
		return err == nil && task.MaxAttempts == 1 && payload.RequirementID == reqID
	}
}

func TestCreateRequirementHandler(t *testing.T) {
	reqID := uuid.New()
	defaults := store.NewRequirement{Source: "api", Text: "Users can log in", TestingType: "functional", NumCases: 5}
	created := store.Requirement{ID: reqID, Text: "Users can log in", TestingType: "functional", NumCases: 5, Status: store.StatusPending}

	tests := []struct {
		name       string
		body       string
		setup      func(mocks)
		wantStatus int
	}{
		{
			name: "accepted with defaults",
			body: `{"requirement":"Users can log in"}`,
			setup: func(m mocks) {
				m.store.On("CreateRequirement", mock.Anything, defaults).Return(created, nil).Once()
				m.jobs.On("SetStatus", mock.Anything, reqID.String(), mock.MatchedBy(isPending)).Return(nil).Once()
				m.queue.On("Enqueue", mock.Anything, mock.MatchedBy(isGenerateTask(reqID))).Return(nil).Once()
			},
			wantStatus: http.StatusAccepted,
		},
		{
			name: "job status failure is not fatal",
			body: `{"requirement":"Users can log in"}`,
			setup: func(m mocks) {
				m.store.On("CreateRequirement", mock.Anything, defaults).Return(created, nil).Once()
				m.jobs.On("SetStatus", mock.Anything, reqID.String(), mock.Anything).Return(errors.New("redis down")).Once()
				m.queue.On("Enqueue", mock.Anything, mock.Anything).Return(nil).Once()
			},
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "invalid body",
			body:       `{"requirement":""}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "store failure",
			body: `{"requirement":"Users can log in"}`,
			setup: func(m mocks) {
				m.store.On("CreateRequirement", mock.Anything, defaults).Return(store.Requirement{}, errors.New("db error")).Once()
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name: "enqueue failure marks requirement failed",
			body: `{"requirement":"Users can log in"}`,
			setup: func(m mocks) {
				m.store.On("CreateRequirement", mock.Anything, defaults).Return(created, nil).Once()
				m.jobs.On("SetStatus", mock.Anything, reqID.String(), mock.MatchedBy(isPending)).Return(nil).Once()
				m.queue.On("Enqueue", mock.Anything, mock.Anything).Return(errors.New("queue error")).Times(3)
				m.store.On("UpdateRequirementStatus", mock.Anything, reqID, store.StatusFailed).Return(nil).Once()
				m.jobs.On("SetStatus", mock.Anything, reqID.String(), mock.MatchedBy(isFailed)).Return(nil).Once()
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMocks()
			if tt.setup != nil {
				tt.setup(m)
			}

			w := httptest.NewRecorder()
			createRequirementHandler(newTestDeps(m))(w, postJSON("/api/requirements", tt.body))

			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus == http.StatusAccepted {
				var body map[string]any
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.Equal(t, reqID.String(), body["requirement_id"])
				assert.Equal(t, string(store.StatusPending), body["status"])
			}
			m.assert(t)
		})
	}
}

func TestUploadHandler(t *testing.T) {
	expectSubmissions := func(n int) func(mocks) {
		return func(m mocks) {
			m.store.On("CreateRequirement", mock.Anything, mock.MatchedBy(func(nr store.NewRequirement) bool {
				return strings.HasPrefix(nr.Source, "reqs.txt#") && nr.NumCases == 4
			})).Return(store.Requirement{ID: uuid.New(), Status: store.StatusPending}, nil).Times(n)
			m.jobs.On("SetStatus", mock.Anything, mock.Anything, mock.Anything).Return(nil).Times(n)
			m.queue.On("Enqueue", mock.Anything, mock.Anything).Return(nil).Times(n)
		}
	}

	tests := []struct {
		name        string
		filename    string
		contentType string
		content     []byte
		numCases    string
		chunkSize   int
		setup       func(mocks)
		wantStatus  int
		wantIDs     int
	}{
		{
			name:        "one requirement per chunk",
			filename:    "reqs.txt",
			contentType: "text/plain",
			content:     []byte("Users can log in with email.\n\nUsers can reset a forgotten password."),
			numCases:    "4",
			chunkSize:   6,
			setup:       expectSubmissions(2),
			wantStatus:  http.StatusAccepted,
			wantIDs:     2,
		},
		{
			name:       "missing Content-Type detects from extension",
			filename:   "reqs.txt",
			content:    []byte("Users can log in."),
			numCases:   "4",
			setup:      expectSubmissions(1),
			wantStatus: http.StatusAccepted,
			wantIDs:    1,
		},
		{
			name:        "file too large",
			filename:    "large.txt",
			contentType: "text/plain",
			content:     make([]byte, 2*1024*1024), // 2MB
			wantStatus:  http.StatusBadRequest,
		},
		{
			name:       "unsupported extension",
			filename:   "reqs.docx",
			content:    []byte("content"),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:        "unsupported Content-Type",
			filename:    "reqs.doc",
			contentType: "application/msword",
			content:     []byte("content"),
			wantStatus:  http.StatusBadRequest,
		},
		{
			name:        "invalid num_cases",
			filename:    "reqs.txt",
			contentType: "text/plain",
			content:     []byte("content"),
			numCases:    "lots",
			wantStatus:  http.StatusBadRequest,
		},
		{
			name:        "blank document",
			filename:    "reqs.txt",
			contentType: "text/plain",
			content:     []byte(" \n\n\t"),
			wantStatus:  http.StatusBadRequest,
		},
		{
			name:        "store failure",
			filename:    "reqs.txt",
			contentType: "text/plain",
			content:     []byte("Users can log in."),
			setup: func(m mocks) {
				m.store.On("CreateRequirement", mock.Anything, mock.Anything).
					Return(store.Requirement{}, errors.New("db error")).Once()
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMocks()
			if tt.setup != nil {
				tt.setup(m)
			}
			deps := newTestDeps(m)
			if tt.chunkSize > 0 {
				deps.Config.ChunkMaxTokens = tt.chunkSize
			}

			req, err := createMultipartRequest(tt.filename, tt.contentType, tt.content, tt.numCases)
			require.NoError(t, err)

			w := httptest.NewRecorder()
			uploadHandler(deps)(w, req)

			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantIDs > 0 {
				var body struct {
					RequirementIDs []string `json:"requirement_ids"`
				}
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.Len(t, body.RequirementIDs, tt.wantIDs)

				tasks := m.queue.Enqueued(queue.TaskTypeGenerate)
				require.Len(t, tasks, tt.wantIDs)
				first, err := queue.DecodeGenerate(tasks[0])
				require.NoError(t, err)
				assert.True(t, strings.HasPrefix(first.Requirement, "Users can log in"), first.Requirement)
				assert.Equal(t, 4, first.NumCases)
			}
			m.assert(t)
		})
	}
}

func TestUploadHandlerReportsSubmittedChunksOnFailure(t *testing.T) {
	m := newMocks()
	firstID := uuid.New()
	m.store.On("CreateRequirement", mock.Anything, mock.MatchedBy(func(nr store.NewRequirement) bool {
		return nr.Source == "reqs.txt#0"
	})).Return(store.Requirement{ID: firstID, Status: store.StatusPending}, nil).Once()
	m.store.On("CreateRequirement", mock.Anything, mock.MatchedBy(func(nr store.NewRequirement) bool {
		return nr.Source == "reqs.txt#1"
	})).Return(store.Requirement{}, errors.New("db error")).Once()
	m.jobs.On("SetStatus", mock.Anything, firstID.String(), mock.Anything).Return(nil).Once()
	m.queue.On("Enqueue", mock.Anything, mock.Anything).Return(nil).Once()

	deps := newTestDeps(m)
	deps.Config.ChunkMaxTokens = 6
	req, err := createMultipartRequest("reqs.txt", "text/plain",
		[]byte("Users can log in with email.\n\nUsers can reset a forgotten password."), "")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	uploadHandler(deps)(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code, w.Body.String())
	var body struct {
		Error          string   `json:"error"`
		RequirementIDs []string `json:"requirement_ids"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []string{firstID.String()}, body.RequirementIDs)
	assert.Contains(t, body.Error, "chunk 2 of 2")
	m.assert(t)
}

func TestGetRequirementHandler(t *testing.T) {
	reqID := uuid.New()
	done := store.Requirement{ID: reqID, Text: "Users can log in", Status: store.StatusDone}
	pending := store.Requirement{ID: reqID, Text: "Users can log in", Status: store.StatusPending}

	tests := []struct {
		name       string
		id         string
		setup      func(mocks)
		wantStatus int
		wantCases  int
		wantJob    bool
	}{
		{
			name: "done requirement with cases",
			id:   reqID.String(),
			setup: func(m mocks) {
				m.store.On("GetRequirement", mock.Anything, reqID).Return(done, nil).Once()
				m.jobs.On("GetStatus", mock.Anything, reqID.String()).
					Return(&jobs.Status{State: jobs.StateDone, Accepted: 1}, nil).Once()
				m.store.On("ListTestCases", mock.Anything, reqID).Return(sampleResult().Cases, nil).Once()
			},
			wantStatus: http.StatusOK,
			wantCases:  1,
			wantJob:    true,
		},
		{
			name: "pending requirement skips case lookup",
			id:   reqID.String(),
			setup: func(m mocks) {
				m.store.On("GetRequirement", mock.Anything, reqID).Return(pending, nil).Once()
				m.jobs.On("GetStatus", mock.Anything, reqID.String()).Return(nil, errors.New("redis down")).Once()
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "invalid UUID",
			id:         "not-a-uuid",
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "not found",
			id:   reqID.String(),
			setup: func(m mocks) {
				m.store.On("GetRequirement", mock.Anything, reqID).Return(store.Requirement{}, store.ErrRequirementNotFound).Once()
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name: "store error",
			id:   reqID.String(),
			setup: func(m mocks) {
				m.store.On("GetRequirement", mock.Anything, reqID).Return(store.Requirement{}, errors.New("db error")).Once()
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMocks()
			if tt.setup != nil {
				tt.setup(m)
			}

			req := httptest.NewRequest(http.MethodGet, "/api/requirements/"+tt.id, nil)
			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("id", tt.id)
			req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

			w := httptest.NewRecorder()
			getRequirementHandler(newTestDeps(m))(w, req)

			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus == http.StatusOK {
				var body struct {
					Requirement store.Requirement   `json:"requirement"`
					Job         *jobs.Status        `json:"job"`
					TestCases   []testcase.TestCase `json:"test_cases"`
				}
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.Equal(t, reqID, body.Requirement.ID)
				assert.Len(t, body.TestCases, tt.wantCases)
				assert.Equal(t, tt.wantJob, body.Job != nil)
			}
			m.assert(t)
		})
	}
}

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		contentType, filename, want string
		ok                          bool
	}{
		{"", "a.TXT", "text/plain", true},
		{"", "a.pdf", "application/pdf", true},
		{"application/pdf", "a.bin", "application/pdf", true},
		{"", "a.md", "", false},
		{"image/png", "a.png", "", false},
	}
	for _, tt := range tests {
		got, ok := detectContentType(tt.contentType, tt.filename)
		assert.Equal(t, tt.ok, ok, tt.filename)
		assert.Equal(t, tt.want, got, tt.filename)
	}
}

func TestExtractTextFallsBackOnBadPDF(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	assert.Equal(t, "not a pdf", extractText(log, "application/pdf", "x.pdf", []byte("not a pdf")))
	assert.Equal(t, "plain", extractText(log, "text/plain", "x.txt", []byte("plain")))
}

func createMultipartRequest(filename, contentType string, content []byte, numCases string) (*http.Request, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if numCases != "" {
		if err := writer.WriteField("num_cases", numCases); err != nil {
			return nil, err
		}
	}

	h := make(map[string][]string)
	h["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename)}
	if contentType != "" {
		h["Content-Type"] = []string{contentType}
	}

	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(content); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req := httptest.NewRequest(http.MethodPost, "/api/requirements/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req, nil
}
