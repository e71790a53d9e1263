package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"placement/internal/types"
)

// OverdueTransitioner moves scheduled interviews older than cutoff to
// no_show and returns the pairs it moved.
type OverdueTransitioner interface {
	TransitionOverdue(ctx context.Context, cutoff, now time.Time) ([]types.TransitionedInterview, error)
}

// NoShowCascader rejects applications after a missed interview.
type NoShowCascader interface {
	RejectAfterNoShow(ctx context.Context, applicationIDs []int64, reason string, deleteAt, now time.Time) (int64, error)
	RejectMissedNoShows(ctx context.Context, since time.Time, reason string, deleteAt, now time.Time) (int64, error)
}

// LifecycleConfig holds the lifecycle offsets.
type LifecycleConfig struct {
	// OverdueGrace is how long past its start an interview stays scheduled.
	OverdueGrace time.Duration
	// RepairLookback bounds the repair sweep over recent no_show interviews.
	RepairLookback time.Duration
	// ApplicationDelete is added to now for auto_delete_date.
	ApplicationDelete time.Duration
}

// DefaultLifecycleConfig returns a 1h grace, a 24h repair lookback and a 10
// day application retention.
func DefaultLifecycleConfig() LifecycleConfig {
	return LifecycleConfig{
		OverdueGrace:      time.Hour,
		RepairLookback:    24 * time.Hour,
		ApplicationDelete: 10 * 24 * time.Hour,
	}
}

// LifecycleResult reports one overdue run.
type LifecycleResult struct {
	Transitioned []types.TransitionedInterview
	Rejected     int64
	Repaired     int64
}

// Items is the total number of rows changed.
func (r LifecycleResult) Items() int {
	return len(r.Transitioned) + int(r.Rejected) + int(r.Repaired)
}

// LifecycleService transitions overdue interviews and cascades the result
// into their applications.
type LifecycleService struct {
	interviews   OverdueTransitioner
	applications NoShowCascader
	cfg          LifecycleConfig
	logger       *slog.Logger
}

// NewLifecycleService creates a LifecycleService.
func NewLifecycleService(interviews OverdueTransitioner, applications NoShowCascader, cfg LifecycleConfig, logger *slog.Logger) *LifecycleService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LifecycleService{
		interviews:   interviews,
		applications: applications,
		cfg:          cfg,
		logger:       logger,
	}
}

// ProcessOverdue runs the transition, the cascade over the transitioned
// applications, and the repair sweep. A failed cascade does not stop the
// repair sweep, which picks up the same applications on this or a later run.
func (s *LifecycleService) ProcessOverdue(ctx context.Context, now time.Time) (LifecycleResult, error) {
	var res LifecycleResult

	moved, err := s.interviews.TransitionOverdue(ctx, now.Add(-s.cfg.OverdueGrace), now)
	if err != nil {
		return res, fmt.Errorf("transitioning overdue interviews: %w", err)
	}
	res.Transitioned = moved

	deleteAt := now.Add(s.cfg.ApplicationDelete)
	var errs []error

	if ids := applicationIDs(moved); len(ids) > 0 {
		n, err := s.applications.RejectAfterNoShow(ctx, ids, types.NoShowRejectionReason, deleteAt, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("cascading no-show rejections: %w", err))
			s.logger.ErrorContext(ctx, "no-show cascade failed; repair sweep will retry",
				"applications", len(ids),
				"error", err,
			)
		} else {
			res.Rejected = n
		}
	}

	repaired, err := s.applications.RejectMissedNoShows(ctx, now.Add(-s.cfg.RepairLookback), types.NoShowRejectionReason, deleteAt, now)
	if err != nil {
		errs = append(errs, fmt.Errorf("repairing missed no-show rejections: %w", err))
	} else {
		res.Repaired = repaired
		if repaired > 0 {
			s.logger.WarnContext(ctx, "repair sweep rejected applications a previous cascade missed",
				"count", repaired,
			)
		}
	}

	s.logger.InfoContext(ctx, "overdue interviews processed",
		"transitioned", len(res.Transitioned),
		"rejected", res.Rejected,
		"repaired", res.Repaired,
	)
	return res, errors.Join(errs...)
}

// Run adapts ProcessOverdue to a task Handler.
func (s *LifecycleService) Run(ctx context.Context, now time.Time) (int, error) {
	res, err := s.ProcessOverdue(ctx, now)
	return res.Items(), err
}

// applicationIDs returns the distinct application ids in moved.
func applicationIDs(moved []types.TransitionedInterview) []int64 {
	seen := make(map[int64]bool, len(moved))
	ids := make([]int64, 0, len(moved))
	for _, m := range moved {
		if !seen[m.ApplicationID] {
			seen[m.ApplicationID] = true
			ids = append(ids, m.ApplicationID)
		}
	}
	return ids
}
