// Package main is the maintenance Lambda. EventBridge rules send a
// scheduler.MaintenancePayload and the handler runs that one task under a
// job lock, recording job history. It is the out-of-process alternative to
// cmd/scheduler for deployments that trigger tasks externally.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/google/uuid"

	"placement/internal/app"
	"placement/internal/config"
	"placement/internal/scheduler"
)

// TaskRunner runs one task under the job lock.
type TaskRunner interface {
	Run(ctx context.Context, task scheduler.TaskType, now time.Time) (scheduler.TaskResult, bool, error)
}

// Handler holds the dependencies of the Lambda handler.
type Handler struct {
	Runner TaskRunner
	Now    func() time.Time
	Logger *slog.Logger
}

// Handle runs payload.Task at the payload's reference time, or now.
func (h *Handler) Handle(ctx context.Context, payload scheduler.MaintenancePayload) (string, error) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if payload.Task == "" {
		return "", fmt.Errorf("empty task type in maintenance payload")
	}
	task, err := scheduler.ParseTaskType(string(payload.Task))
	if err != nil {
		return "", err
	}

	now := h.Now().UTC()
	if payload.ReferenceTime != nil {
		now = payload.ReferenceTime.UTC()
	}

	logger.InfoContext(ctx, "maintenance handler invoked",
		"task", string(task),
		"reference_time", now.Format(time.RFC3339),
	)

	res, skipped, err := h.Runner.Run(ctx, task, now)
	if err != nil {
		return "", err
	}
	if skipped {
		return fmt.Sprintf("skipped: lock %s held by another worker", scheduler.LockID(task, now)), nil
	}
	if res.Err != nil {
		return "", fmt.Errorf("task %s failed after %d items: %w", task, res.Items, res.Err)
	}
	return fmt.Sprintf("task %s complete: %d items processed", task, res.Items), nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	logger.Info("maintenance Lambda initializing (cold start)")

	ctx := context.Background()
	cfg, err := config.LoadConfig(config.ProviderForEnv())
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}

	workerID := "lambda-" + uuid.NewString()
	handler := &Handler{
		Runner: &scheduler.LockedRunner{
			Services: a.Services,
			Locks:    a.Locks,
			History:  a.History,
			WorkerID: workerID,
			Logger:   logger,
		},
		Now:    time.Now,
		Logger: logger,
	}

	logger.Info("maintenance Lambda initialized", "worker_id", workerID)
	lambda.Start(handler.Handle)
}
