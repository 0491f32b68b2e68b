// Package generator turns a requirement into parsed test cases with one model call.
package generator

import (
	"context"
	"fmt"
	"log/slog"

	"testgen/internal/llm"
	"testgen/internal/prompt"
	"testgen/internal/testcase"
)

// Generator is the contract the HTTP and queue surfaces depend on.
type Generator interface {
	Generate(ctx context.Context, req prompt.Request) (testcase.Result, error)
}

// Service builds the prompt, calls the model and parses the reply.
type Service struct {
	llm          llm.Client
	log          *slog.Logger
	allowedTypes []string
	defaultType  string
}

// New returns a Service. allowedTypes and defaultType feed the parser;
// defaultType also fills requests that name no testing type.
func New(client llm.Client, log *slog.Logger, allowedTypes []string, defaultType string) *Service {
	if defaultType == "" {
		defaultType = prompt.DefaultTestingType
	}
	return &Service{
		llm:          client,
		log:          log,
		allowedTypes: allowedTypes,
		defaultType:  defaultType,
	}
}

func (s *Service) Generate(ctx context.Context, req prompt.Request) (testcase.Result, error) {
	if req.TestingType == "" {
		req.TestingType = s.defaultType
	}
	req = req.Normalize()
	p, err := prompt.Build(req)
	if err != nil {
		return testcase.Result{}, err
	}

	raw, err := s.llm.Complete(ctx, p)
	if err != nil {
		return testcase.Result{}, fmt.Errorf("generate test cases: %w", err)
	}

	res, err := s.Parse(raw, req.TestingType, req.NumCases)
	if err != nil {
		s.log.Error("model reply is not a test case array", "err", err, "testing_type", req.TestingType)
		return testcase.Result{}, err
	}

	log := s.log.With("testing_type", req.TestingType, "requested", req.NumCases)
	log.Info("test cases generated",
		"accepted", len(res.Cases),
		"rejected", len(res.Rejections),
		"diagnostics", len(res.Diagnostics),
	)
	if !res.MeetsExpected() {
		log.Warn("accepted count differs from requested", "accepted", len(res.Cases))
	}
	return res, nil
}

// Parse runs the response parser with this service's type configuration.
func (s *Service) Parse(raw, testingType string, expected int) (testcase.Result, error) {
	if testingType == "" {
		testingType = s.defaultType
	}
	return testcase.Parse(raw, testcase.Options{
		ExpectedCount: expected,
		AllowedTypes:  s.allowedTypes,
		DefaultType:   testingType,
	})
}
