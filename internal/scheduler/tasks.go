package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"placement/internal/config"
	"placement/internal/types"
)

// Services bundles the handlers behind each TaskType.
type Services struct {
	Reminders *ReminderService
	Lifecycle *LifecycleService
	Reaper    *ReaperService
}

// Handler returns the handler for task.
func (s Services) Handler(task TaskType) (Handler, error) {
	switch task {
	case TaskInterviewReminders:
		return s.Reminders.Run, nil
	case TaskOverdueInterviews:
		return s.Lifecycle.Run, nil
	case TaskEphemeralCleanup:
		return s.Reaper.Ephemeral, nil
	case TaskDailyMaintenance:
		return s.Reaper.Daily, nil
	default:
		return nil, fmt.Errorf("unknown task type: %q", task)
	}
}

// Interval returns the configured cadence for task.
func Interval(cfg config.SchedulerConfig, task TaskType) time.Duration {
	switch task {
	case TaskInterviewReminders:
		return cfg.ReminderInterval
	case TaskOverdueInterviews:
		return cfg.OverdueInterval
	case TaskEphemeralCleanup:
		return cfg.CleanupInterval
	case TaskDailyMaintenance:
		return cfg.DailyInterval
	}
	return 0
}

// RegisterTasks registers the four tasks on s in AllTasks order.
func RegisterTasks(s *Scheduler, cfg config.SchedulerConfig, svc Services) error {
	for _, task := range AllTasks {
		h, err := svc.Handler(task)
		if err != nil {
			return err
		}
		if err := s.Register(string(task), Interval(cfg, task), h); err != nil {
			return err
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Locked runs
// -----------------------------------------------------------------------------

// DefaultLockTTL covers a single out-of-process run with margin.
const DefaultLockTTL = 15 * time.Minute

// JobLocker takes a time-bounded lock owned by workerID.
type JobLocker interface {
	Acquire(ctx context.Context, lockID, workerID string, now time.Time, ttl time.Duration) (bool, error)
	Release(ctx context.Context, lockID, workerID string) error
}

// LockedRunner executes one task at a time for out-of-process triggers (the
// maintenance Lambda and the job-runner CLI). Each run takes the job lock
// "<task>:<YYYY-MM-DDTHH>" so a retried trigger in the same hour is skipped,
// and records job history.
type LockedRunner struct {
	Services Services
	Locks    JobLocker
	History  JobHistorian // optional
	WorkerID string
	LockTTL  time.Duration
	Logger   *slog.Logger
}

// LockID is the job lock key for task at now.
func LockID(task TaskType, now time.Time) string {
	return fmt.Sprintf("%s:%s", task, now.UTC().Truncate(time.Hour).Format("2006-01-02T15"))
}

// Run executes task at now. skipped is true when another worker holds the
// lock; the result is then empty and err is nil.
func (r *LockedRunner) Run(ctx context.Context, task TaskType, now time.Time) (res TaskResult, skipped bool, err error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := r.LockTTL
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}

	h, err := r.Services.Handler(task)
	if err != nil {
		return TaskResult{}, false, err
	}

	lockID := LockID(task, now)
	acquired, err := r.Locks.Acquire(ctx, lockID, r.WorkerID, now, ttl)
	if err != nil {
		return TaskResult{}, false, fmt.Errorf("acquiring job lock %s: %w", lockID, err)
	}
	if !acquired {
		logger.InfoContext(ctx, "job lock held by another worker; skipping", "lock_id", lockID)
		return TaskResult{}, true, nil
	}
	defer func() {
		if relErr := r.Locks.Release(context.WithoutCancel(ctx), lockID, r.WorkerID); relErr != nil {
			logger.WarnContext(ctx, "failed to release job lock", "lock_id", lockID, "error", relErr)
		}
	}()

	// A single-task Scheduler gives the run the same recover boundary,
	// history and metrics as an in-process tick.
	s := New(Options{Clock: types.FixedClock{T: now}, History: r.History, Logger: logger})
	if err := s.Register(string(task), time.Hour, h); err != nil {
		return TaskResult{}, false, err
	}
	res = s.RunAll(ctx)[0]
	return res, false, nil
}
