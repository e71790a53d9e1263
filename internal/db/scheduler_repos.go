package db

import (
	"context"
	"time"

	"placement/internal/types"
)

// ============================================================
// JobLockRepository
// ============================================================

// JobLockRepository provides mutual exclusion for maintenance runs via the
// job_locks table. A lock is a row keyed by "task:hour"; acquiring it is an
// INSERT ... ON CONFLICT DO UPDATE that only succeeds when the row is absent
// or already expired.
type JobLockRepository struct {
	db DBTX
}

// NewJobLockRepository creates a new JobLockRepository backed by the given
// database connection (pool or transaction).
func NewJobLockRepository(db DBTX) *JobLockRepository {
	return &JobLockRepository{db: db}
}

// Acquire attempts to take lockID for workerID until now+ttl. Returns true if
// acquired, false if another worker holds an unexpired lock.
//
// SQL pattern:
//
//	INSERT INTO job_locks (id, worker_id, locked_at, expires_at)
//	VALUES ($1, $2, $3, $4)
//	ON CONFLICT (id) DO UPDATE
//	  SET worker_id = EXCLUDED.worker_id,
//	      locked_at = EXCLUDED.locked_at,
//	      expires_at = EXCLUDED.expires_at
//	  WHERE job_locks.expires_at < $3
//
// expires_at is computed in Go; Go duration strings are not valid PostgreSQL
// intervals.
func (r *JobLockRepository) Acquire(ctx context.Context, lockID, workerID string, now time.Time, ttl time.Duration) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO job_locks (id, worker_id, locked_at, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE
		   SET worker_id = EXCLUDED.worker_id,
		       locked_at = EXCLUDED.locked_at,
		       expires_at = EXCLUDED.expires_at
		   WHERE job_locks.expires_at < $3`,
		lockID,
		workerID,
		now,
		now.Add(ttl),
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to acquire job lock", err)
	}

	// 1 when inserted or reclaimed, 0 when held by someone else.
	return tag.RowsAffected() > 0, nil
}

// Release drops the lock if workerID still owns it. Releasing a lock owned by
// someone else, or one that no longer exists, is not an error.
func (r *JobLockRepository) Release(ctx context.Context, lockID, workerID string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM job_locks WHERE id = $1 AND worker_id = $2`,
		lockID,
		workerID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to release job lock", err)
	}
	return nil
}

// ============================================================
// JobHistoryRepository
// ============================================================

// JobHistoryRepository records scheduler task runs in the job_history table.
type JobHistoryRepository struct {
	db DBTX
}

// NewJobHistoryRepository creates a new JobHistoryRepository backed by the
// given database connection (pool or transaction).
func NewJobHistoryRepository(db DBTX) *JobHistoryRepository {
	return &JobHistoryRepository{db: db}
}

// Job history statuses.
const (
	JobStatusRunning = "running"
	JobStatusSuccess = "success"
	JobStatusFailed  = "failed"
)

// Start inserts a 'running' row for jobType and returns its id.
func (r *JobHistoryRepository) Start(ctx context.Context, jobType string, startedAt time.Time) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO job_history (job_type, started_at, status)
		 VALUES ($1, $2, $3)
		 RETURNING id`,
		jobType,
		startedAt,
		JobStatusRunning,
	).Scan(&id)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to start job history entry", err)
	}
	return id, nil
}

// Finish closes the row with the outcome. The status is derived from jobErr:
// nil means success. items is the number of rows the task touched.
func (r *JobHistoryRepository) Finish(ctx context.Context, id int64, finishedAt time.Time, items int, jobErr error) error {
	status := JobStatusSuccess
	var errMsg *string
	if jobErr != nil {
		status = JobStatusFailed
		s := jobErr.Error()
		errMsg = &s
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE job_history
		 SET finished_at = $2, status = $3, items_count = $4, error = $5
		 WHERE id = $1`,
		id,
		finishedAt,
		status,
		items,
		errMsg,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to finish job history entry", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundJobHistory, "job history entry not found", nil)
	}
	return nil
}
