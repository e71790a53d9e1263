// Package scheduler runs the time-driven work of the interview lifecycle:
// reminder scans, the overdue transition with its application cascade, and
// the TTL sweeps. Each piece of work is a service method taking an explicit
// now, so the same code serves the in-process Scheduler, the maintenance
// Lambda and the job-runner CLI.
package scheduler

import (
	"fmt"
	"time"
)

// TaskType names a unit of scheduled work. The value doubles as the job
// history job_type and the Lambda payload task.
type TaskType string

const (
	TaskInterviewReminders TaskType = "interview_reminders"
	TaskOverdueInterviews  TaskType = "overdue_interviews"
	TaskEphemeralCleanup   TaskType = "ephemeral_cleanup"
	TaskDailyMaintenance   TaskType = "daily_maintenance"
)

// AllTasks lists every task in registration order.
var AllTasks = []TaskType{
	TaskInterviewReminders,
	TaskOverdueInterviews,
	TaskEphemeralCleanup,
	TaskDailyMaintenance,
}

// ParseTaskType validates s against AllTasks.
func ParseTaskType(s string) (TaskType, error) {
	for _, t := range AllTasks {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown task %q", s)
}

// MaintenancePayload is the event sent to the maintenance Lambda.
//
//	{
//	  "task": "daily_maintenance",
//	  "reference_time": "2026-03-02T03:00:00Z"  // optional
//	}
type MaintenancePayload struct {
	Task TaskType `json:"task"`
	// ReferenceTime overrides now for backfills and manual runs.
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
}

// TaskResult is the outcome of one task invocation.
type TaskResult struct {
	Task      string        `json:"task"`
	Items     int           `json:"items"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
	StartedAt time.Time     `json:"started_at"`
	Err       error         `json:"-"`
}

// OK reports whether the invocation finished without error.
func (r TaskResult) OK() bool { return r.Err == nil }
