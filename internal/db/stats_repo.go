package db

import (
	"context"
	"time"

	"placement/internal/types"
)

// StatsCutoffs carries the instants each pending-work count is evaluated
// against. They mirror the predicates of the sweeps being counted.
type StatsCutoffs struct {
	Now           time.Time
	OverdueBefore time.Time
	OTPBefore     time.Time
	FailedSince   time.Time
}

// StatsRepository computes the read-only pending-work counters.
type StatsRepository struct {
	db DBTX
}

// NewStatsRepository creates a new StatsRepository backed by the given
// database connection (pool or transaction).
func NewStatsRepository(db DBTX) *StatsRepository {
	return &StatsRepository{db: db}
}

// PendingWork counts, in one round trip, the rows each sweep would touch if it
// ran at c.Now. CollectedAt is left for the caller to set.
func (r *StatsRepository) PendingWork(ctx context.Context, c StatsCutoffs) (*types.PendingWorkStats, error) {
	var s types.PendingWorkStats
	err := r.db.QueryRow(ctx,
		`SELECT
		   (SELECT COUNT(*) FROM user_notifications WHERE expires_at <= $1),
		   (SELECT COUNT(*) FROM job_applications
		      WHERE auto_delete_date IS NOT NULL AND auto_delete_date <= $1),
		   (SELECT COUNT(*) FROM interviews
		      WHERE status = 'scheduled' AND interview_date < $2),
		   (SELECT COUNT(*) FROM otp_verifications WHERE created_at < $3),
		   (SELECT COUNT(*) FROM jobs
		      WHERE status = 'active' AND deadline IS NOT NULL AND deadline < $1),
		   (SELECT COUNT(*) FROM email_logs
		      WHERE is_sent = FALSE AND created_at >= $4)`,
		c.Now,
		c.OverdueBefore,
		c.OTPBefore,
		c.FailedSince,
	).Scan(
		&s.ExpiredNotifications,
		&s.ApplicationsToDelete,
		&s.OverdueInterviews,
		&s.ExpiredOTPs,
		&s.ExpiredActiveJobs,
		&s.FailedEmailsLast24h,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to collect pending work stats", err)
	}
	return &s, nil
}
