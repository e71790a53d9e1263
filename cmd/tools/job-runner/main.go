// Package main implements the job-runner CLI for invoking scheduler tasks
// directly, outside both the long-running scheduler and the Lambda shim.
//
// Intended for local development, manual backfills and operational
// debugging. The run takes the same job lock and writes the same job history
// row as the maintenance Lambda, so it is safe to use against a live
// database.
//
// Usage:
//
//	go run ./cmd/tools/job-runner --task=daily_maintenance
//	go run ./cmd/tools/job-runner --task=overdue_interviews --reference-time=2026-01-15T02:00:00Z
//	go run ./cmd/tools/job-runner --dry-run --task=interview_reminders
//	go run ./cmd/tools/job-runner --list
//
// Configuration is read from the environment (or a .env file). In --dry-run
// mode only the JSON payload is printed.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"placement/internal/app"
	"placement/internal/config"
	"placement/internal/scheduler"
)

var taskDescriptions = map[scheduler.TaskType]string{
	scheduler.TaskInterviewReminders: "Send 1 week, 1 day and 1 hour interview reminders",
	scheduler.TaskOverdueInterviews:  "Mark past-due interviews no_show and reject their applications",
	scheduler.TaskEphemeralCleanup:   "Purge expired notifications and stale OTPs",
	scheduler.TaskDailyMaintenance:   "Delete expired applications, archive audit rows, expire jobs",
}

// errUsage marks flag errors that should print usage and exit 2.
var errUsage = errors.New("usage")

type options struct {
	list    bool
	dryRun  bool
	payload scheduler.MaintenancePayload
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	switch {
	case opts.list:
		printAvailableTasks(os.Stdout)
		return
	case opts.dryRun:
		if err := printPayload(os.Stdout, opts.payload); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(opts.payload); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags validates the command line into options.
func parseFlags(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("job-runner", flag.ContinueOnError)
	fs.SetOutput(stderr)
	taskFlag := fs.String("task", "", "Task type to execute (e.g., daily_maintenance)")
	refTimeFlag := fs.String("reference-time", "", "Override reference time (RFC3339, e.g., 2026-01-15T02:00:00Z)")
	listFlag := fs.Bool("list", false, "List all available task types and exit")
	dryRunFlag := fs.Bool("dry-run", false, "Print the JSON payload without executing")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: job-runner [flags]\n\n")
		fmt.Fprintf(stderr, "Run a scheduler task once under the job lock.\n\n")
		fmt.Fprintf(stderr, "Flags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts := options{list: *listFlag, dryRun: *dryRunFlag}
	if opts.list {
		return opts, nil
	}

	if *taskFlag == "" {
		return options{}, fmt.Errorf("%w: --task is required", errUsage)
	}
	task, err := scheduler.ParseTaskType(*taskFlag)
	if err != nil {
		return options{}, fmt.Errorf("%w: %v (see --list)", errUsage, err)
	}
	opts.payload.Task = task

	if *refTimeFlag != "" {
		t, err := time.Parse(time.RFC3339, *refTimeFlag)
		if err != nil {
			return options{}, fmt.Errorf("%w: invalid --reference-time %q, expected RFC3339", errUsage, *refTimeFlag)
		}
		t = t.UTC()
		opts.payload.ReferenceTime = &t
	}
	return opts, nil
}

func run(payload scheduler.MaintenancePayload) error {
	// Local development reads .env; the config loader does the same, but
	// APP_ENV has to be visible before choosing a provider.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.LoadConfig(config.ProviderForEnv())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	now := time.Now().UTC()
	if payload.ReferenceTime != nil {
		now = *payload.ReferenceTime
	}

	runner := &scheduler.LockedRunner{
		Services: a.Services,
		Locks:    a.Locks,
		History:  a.History,
		WorkerID: "job-runner-" + uuid.NewString(),
		Logger:   logger,
	}

	res, skipped, err := runner.Run(ctx, payload.Task, now)
	if err != nil {
		return err
	}
	if skipped {
		logger.Warn("task skipped: lock held by another worker", "lock_id", scheduler.LockID(payload.Task, now))
		return nil
	}
	if res.Err != nil {
		return fmt.Errorf("task %s failed after %d items: %w", payload.Task, res.Items, res.Err)
	}

	logger.Info("task execution succeeded",
		"task", string(payload.Task),
		"items", res.Items,
		"duration", res.Duration.String(),
	)
	return nil
}

func printAvailableTasks(w io.Writer) {
	fmt.Fprintln(w, "Available tasks:")
	for _, t := range scheduler.AllTasks {
		fmt.Fprintf(w, "  %-22s %s\n", t, taskDescriptions[t])
	}
}

func printPayload(w io.Writer, payload scheduler.MaintenancePayload) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}
	return nil
}
