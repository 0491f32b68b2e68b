package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"testgen/internal/app"
	"testgen/internal/httputil"
	"testgen/internal/jobs"
	"testgen/internal/prompt"
	"testgen/internal/queue"
	"testgen/internal/store"
)

func main() {
	deps, err := app.Build()
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	defer deps.Jobs.Close()
	deps.Log.Info("generation worker starting")

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(sigCtx)

	g.Go(func() error {
		return deps.Queue.Worker(ctx, queue.TaskTypeGenerate, func(ctx context.Context, task queue.Task) error {
			payload, err := queue.DecodeGenerate(task)
			if err != nil {
				return err
			}
			return handleGenerate(ctx, deps, payload)
		})
	})

	g.Go(func() error {
		return httputil.ServeHealth(ctx, deps.Log, deps.Config.Port, "worker")
	})

	if err := g.Wait(); err != nil {
		deps.Log.Error("worker stopped", "err", err)
	}
}

func handleGenerate(ctx context.Context, deps app.Deps, payload queue.GeneratePayload) error {
	id := payload.RequirementID
	log := deps.Log.With("requirement_id", id)

	if err := deps.Store.UpdateRequirementStatus(ctx, id, store.StatusProcessing); err != nil {
		return fmt.Errorf("mark requirement processing: %w", err)
	}
	setJob(ctx, deps, log, id.String(), jobs.Status{State: jobs.StateProcessing})

	res, err := deps.Generator.Generate(ctx, prompt.Request{
		Requirement: payload.Requirement,
		TestingType: payload.TestingType,
		NumCases:    payload.NumCases,
	})
	if err != nil {
		return fail(ctx, deps, log, payload, err)
	}
	if err := deps.Store.SaveResult(ctx, id, res); err != nil {
		return fail(ctx, deps, log, payload, fmt.Errorf("save result: %w", err))
	}
	if err := deps.Store.UpdateRequirementStatus(ctx, id, store.StatusDone); err != nil {
		return fmt.Errorf("mark requirement done: %w", err)
	}
	setJob(ctx, deps, log, id.String(), jobs.Status{
		State:    jobs.StateDone,
		Accepted: len(res.Cases),
		Rejected: len(res.Rejections),
	})

	log.Info("requirement processed", "accepted", len(res.Cases), "rejected", len(res.Rejections))
	return nil
}

// fail records the failure on the requirement and its job, then returns cause
// so the queue logs it.
func fail(ctx context.Context, deps app.Deps, log *slog.Logger, payload queue.GeneratePayload, cause error) error {
	if err := deps.Store.UpdateRequirementStatus(ctx, payload.RequirementID, store.StatusFailed); err != nil {
		log.Error("failed to mark requirement failed", "err", err)
	}
	setJob(ctx, deps, log, payload.RequirementID.String(), jobs.Status{State: jobs.StateFailed, Error: cause.Error()})
	return cause
}

func setJob(ctx context.Context, deps app.Deps, log *slog.Logger, id string, status jobs.Status) {
	status.UpdatedAt = time.Now()
	if err := deps.Jobs.SetStatus(ctx, id, status); err != nil {
		log.Warn("failed to record job status", "state", status.State, "err", err)
	}
}
