package scheduler

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// TaskRunsTotal counts task invocations by task and status (ok, error, panic).
	TaskRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "placement",
		Subsystem: "scheduler",
		Name:      "task_runs_total",
		Help:      "Scheduled task runs by task and status.",
	}, []string{"task", "status"})

	// TaskDuration observes task wall time.
	TaskDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "placement",
		Subsystem: "scheduler",
		Name:      "task_duration_seconds",
		Help:      "Scheduled task run duration.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"task"})

	// TaskItems counts rows or dispatches handled per task.
	TaskItems = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "placement",
		Subsystem: "scheduler",
		Name:      "task_items_total",
		Help:      "Items processed by scheduled tasks.",
	}, []string{"task"})

	// PendingWork holds the last collected pending-work counts.
	PendingWork = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "placement",
		Name:      "pending_work",
		Help:      "Rows each maintenance sweep would touch at collection time.",
	}, []string{"item"})
)

// RegisterMetrics registers the scheduler collectors with reg. Collectors
// already registered are skipped.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{TaskRunsTotal, TaskDuration, TaskItems, PendingWork} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}
