package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"

	"testgen/internal/app"
	"testgen/internal/chunker"
	"testgen/internal/httputil"
	"testgen/internal/jobs"
	"testgen/internal/prompt"
	"testgen/internal/queue"
	"testgen/internal/store"
	"testgen/internal/testcase"
)

type generateRequest struct {
	Requirement string `json:"requirement" validate:"required"`
	TestingType string `json:"testing_type" validate:"omitempty,max=64"`
	NumCases    int    `json:"num_cases" validate:"omitempty,min=1,max=50"`
}

type parseRequest struct {
	Raw           string   `json:"raw"`
	TestingType   string   `json:"testing_type" validate:"omitempty,max=64"`
	ExpectedCount int      `json:"expected_count" validate:"min=0"`
	AllowedTypes  []string `json:"allowed_types" validate:"omitempty,dive,required"`
}

func main() {
	deps, err := app.Build()
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	defer deps.Jobs.Close()

	r := httputil.NewRouter(deps.Log)
	r.Post("/api/testcases/generate", generateHandler(deps))
	r.Post("/api/testcases/parse", parseHandler(deps))
	r.Post("/api/requirements", createRequirementHandler(deps))
	r.Post("/api/requirements/upload", uploadHandler(deps))
	r.Get("/api/requirements/{id}", getRequirementHandler(deps))
	r.Get("/healthz", httputil.HealthHandler(deps.Log))

	addr := fmt.Sprintf(":%d", deps.Config.Port)
	deps.Log.Info("gateway listening", "addr", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		deps.Log.Error("server failed", "err", err)
	}
}

func generateHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body generateRequest
		if err := httputil.DecodeJSON(r, &body); err != nil {
			httputil.ValidationError(deps.Log, w, err)
			return
		}

		res, err := deps.Generator.Generate(r.Context(), prompt.Request{
			Requirement: body.Requirement,
			TestingType: body.TestingType,
			NumCases:    body.NumCases,
		})
		switch {
		case errors.Is(err, prompt.ErrEmptyRequirement):
			httputil.ValidationError(deps.Log, w, err)
			return
		case errors.Is(err, testcase.ErrMalformedStructure):
			httputil.Fail(deps.Log, w, string(testcase.ReasonMalformedStructure), err, http.StatusBadGateway)
			return
		case err != nil:
			httputil.Fail(deps.Log, w, "model call failed", err, http.StatusBadGateway)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, res)
	}
}

func parseHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body parseRequest
		if err := httputil.DecodeJSON(r, &body); err != nil {
			httputil.ValidationError(deps.Log, w, err)
			return
		}

		opts := testcase.Options{
			ExpectedCount: body.ExpectedCount,
			AllowedTypes:  body.AllowedTypes,
			DefaultType:   body.TestingType,
		}
		if len(opts.AllowedTypes) == 0 {
			opts.AllowedTypes = deps.Config.TestTypes
		}
		if opts.DefaultType == "" {
			opts.DefaultType = deps.Config.DefaultTestingType
		}

		res, err := testcase.Parse(body.Raw, opts)
		if err != nil {
			deps.Log.Warn("unparseable model output", "err", err, "bytes", len(body.Raw))
			httputil.WriteError(w, http.StatusUnprocessableEntity, string(testcase.ReasonMalformedStructure))
			return
		}
		httputil.WriteJSON(w, http.StatusOK, res)
	}
}

func createRequirementHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body generateRequest
		if err := httputil.DecodeJSON(r, &body); err != nil {
			httputil.ValidationError(deps.Log, w, err)
			return
		}
		req, err := submit(r.Context(), deps, store.NewRequirement{
			Source:      "api",
			Text:        body.Requirement,
			TestingType: body.TestingType,
			NumCases:    body.NumCases,
		})
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to submit requirement; please retry", err, http.StatusInternalServerError)
			return
		}
		httputil.WriteJSON(w, http.StatusAccepted, map[string]any{
			"requirement_id": req.ID.String(),
			"status":         req.Status,
		})
	}
}

func uploadHandler(deps app.Deps) http.HandlerFunc {
	maxFileSize := deps.Config.MaxUploadSize

	return func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > maxFileSize {
			httputil.Fail(deps.Log, w, fmt.Sprintf("file too large (max %d bytes)", maxFileSize), nil, http.StatusBadRequest)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			httputil.Fail(deps.Log, w, "file is required", err, http.StatusBadRequest)
			return
		}
		defer file.Close()

		if header.Size > maxFileSize {
			httputil.Fail(deps.Log, w, fmt.Sprintf("file too large (max %d bytes)", maxFileSize), nil, http.StatusBadRequest)
			return
		}
		contentType, ok := detectContentType(header.Header.Get("Content-Type"), header.Filename)
		if !ok {
			httputil.Fail(deps.Log, w, "unsupported file type (only PDF and TXT allowed)", nil, http.StatusBadRequest)
			return
		}

		numCases := 0
		if v := r.FormValue("num_cases"); v != "" {
			numCases, err = strconv.Atoi(v)
			if err != nil || numCases < 1 || numCases > 50 {
				httputil.Fail(deps.Log, w, "num_cases must be between 1 and 50", err, http.StatusBadRequest)
				return
			}
		}
		testingType := r.FormValue("testing_type")

		content, err := io.ReadAll(file)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to read file", err, http.StatusInternalServerError)
			return
		}
		text := extractText(deps.Log, contentType, header.Filename, content)

		chunks := chunker.ChunkText(text, chunker.Options{
			MaxTokens: deps.Config.ChunkMaxTokens,
			Overlap:   deps.Config.ChunkOverlap,
		})
		if len(chunks) == 0 {
			httputil.Fail(deps.Log, w, "file contains no text", nil, http.StatusBadRequest)
			return
		}

		ids := make([]string, 0, len(chunks))
		for _, c := range chunks {
			req, err := submit(r.Context(), deps, store.NewRequirement{
				Source:      fmt.Sprintf("%s#%d", header.Filename, c.Index),
				Text:        c.Text,
				TestingType: testingType,
				NumCases:    numCases,
			})
			if err != nil {
				// Earlier chunks are already queued; report them so a retry can skip them.
				deps.Log.Error("failed to submit requirement chunk", "err", err, "filename", header.Filename, "chunk", c.Index, "submitted", len(ids))
				httputil.WriteJSON(w, http.StatusInternalServerError, map[string]any{
					"error":           fmt.Sprintf("failed to submit chunk %d of %d; earlier chunks were accepted", c.Index+1, len(chunks)),
					"requirement_ids": ids,
				})
				return
			}
			ids = append(ids, req.ID.String())
		}

		deps.Log.Info("requirement document accepted", "filename", header.Filename, "chunks", len(chunks))
		httputil.WriteJSON(w, http.StatusAccepted, map[string]any{
			"filename":        header.Filename,
			"requirement_ids": ids,
			"status":          store.StatusPending,
		})
	}
}

func getRequirementHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			httputil.Fail(deps.Log, w, "invalid requirement id", err, http.StatusBadRequest)
			return
		}
		ctx := r.Context()

		req, err := deps.Store.GetRequirement(ctx, id)
		if errors.Is(err, store.ErrRequirementNotFound) {
			httputil.Fail(deps.Log, w, "requirement not found", err, http.StatusNotFound)
			return
		}
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to load requirement", err, http.StatusInternalServerError)
			return
		}

		job, err := deps.Jobs.GetStatus(ctx, id.String())
		if err != nil {
			deps.Log.Warn("job status unavailable", "requirement_id", id, "err", err)
		}

		cases := []testcase.TestCase{}
		if req.Status == store.StatusDone {
			cases, err = deps.Store.ListTestCases(ctx, id)
			if err != nil {
				httputil.Fail(deps.Log, w, "failed to load test cases", err, http.StatusInternalServerError)
				return
			}
		}

		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"requirement": req,
			"job":         job,
			"test_cases":  cases,
		})
	}
}

// submit persists a requirement and enqueues its generation task. If the task
// cannot be published the requirement is marked failed.
func submit(ctx context.Context, deps app.Deps, nr store.NewRequirement) (store.Requirement, error) {
	if nr.TestingType == "" {
		nr.TestingType = deps.Config.DefaultTestingType
	}
	if nr.NumCases <= 0 {
		nr.NumCases = deps.Config.NumCases
	}

	req, err := deps.Store.CreateRequirement(ctx, nr)
	if err != nil {
		return store.Requirement{}, fmt.Errorf("persist requirement: %w", err)
	}
	log := deps.Log.With("requirement_id", req.ID)

	if err := deps.Jobs.SetStatus(ctx, req.ID.String(), jobs.Status{State: jobs.StatePending, UpdatedAt: time.Now()}); err != nil {
		log.Warn("failed to record job status", "err", err)
	}

	task, err := queue.NewGenerateTask(queue.GeneratePayload{
		RequirementID: req.ID,
		Requirement:   nr.Text,
		TestingType:   nr.TestingType,
		NumCases:      nr.NumCases,
	})
	if err != nil {
		markFailed(ctx, deps, log, req.ID, err)
		return store.Requirement{}, err
	}
	if err := queue.EnqueueWithRetry(ctx, deps.Queue, task, 3, 200*time.Millisecond); err != nil {
		markFailed(ctx, deps, log, req.ID, err)
		return store.Requirement{}, fmt.Errorf("enqueue requirement: %w", err)
	}
	return req, nil
}

func markFailed(ctx context.Context, deps app.Deps, log *slog.Logger, id uuid.UUID, cause error) {
	if err := deps.Store.UpdateRequirementStatus(ctx, id, store.StatusFailed); err != nil {
		log.Error("failed to mark requirement failed", "err", err)
	}
	status := jobs.Status{State: jobs.StateFailed, Error: cause.Error(), UpdatedAt: time.Now()}
	if err := deps.Jobs.SetStatus(ctx, id.String(), status); err != nil {
		log.Warn("failed to record job status", "err", err)
	}
}

// detectContentType falls back to the file extension when the part has no
// Content-Type header.
func detectContentType(contentType, filename string) (string, bool) {
	if contentType == "" {
		switch strings.ToLower(filepath.Ext(filename)) {
		case ".txt":
			contentType = "text/plain"
		case ".pdf":
			contentType = "application/pdf"
		}
	}
	switch contentType {
	case "text/plain", "application/pdf":
		return contentType, true
	default:
		return "", false
	}
}

// extractText returns the document text, falling back to the raw bytes when
// a PDF cannot be read.
func extractText(log *slog.Logger, contentType, filename string, content []byte) string {
	if contentType == "application/pdf" {
		text, err := extractPDF(content)
		if err != nil {
			log.Warn("pdf extraction failed, using raw bytes", "err", err, "filename", filename)
			return string(content)
		}
		return text
	}
	return string(content)
}

func extractPDF(content []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() || page.V.Key("Contents").Kind() == pdf.Null {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		// Pages are separate paragraphs for the chunker.
		sb.WriteString("\n\n")
	}
	return sb.String(), nil
}
