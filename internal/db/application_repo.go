package db

import (
	"context"
	"time"

	"placement/internal/types"
)

// ApplicationRepository provides data access for the job_applications table.
type ApplicationRepository struct {
	db DBTX
}

// NewApplicationRepository creates a new ApplicationRepository backed by the
// given database connection (pool or transaction).
func NewApplicationRepository(db DBTX) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// RejectAfterNoShow rejects the given applications and schedules them for
// deletion. An application is only rejected while it is still
// 'interview_scheduled' and has no other interview in 'scheduled' state, so a
// hired candidate or one with a rescheduled interview is left alone.
//
// SQL:
//
//	UPDATE job_applications a
//	SET status = 'rejected', rejection_reason = $2, auto_delete_date = $3, updated_at = $4
//	WHERE a.id = ANY($1) AND a.status = 'interview_scheduled'
//	  AND NOT EXISTS (SELECT 1 FROM interviews o
//	                  WHERE o.application_id = a.id AND o.status = 'scheduled')
func (r *ApplicationRepository) RejectAfterNoShow(ctx context.Context, applicationIDs []int64, reason string, deleteAt, now time.Time) (int64, error) {
	if len(applicationIDs) == 0 {
		return 0, nil
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE job_applications a
		 SET status = 'rejected', rejection_reason = $2, auto_delete_date = $3, updated_at = $4
		 WHERE a.id = ANY($1)
		   AND a.status = 'interview_scheduled'
		   AND NOT EXISTS (
		     SELECT 1 FROM interviews o
		     WHERE o.application_id = a.id AND o.status = 'scheduled'
		   )`,
		applicationIDs,
		reason,
		deleteAt,
		now,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to reject no-show applications", err)
	}
	return tag.RowsAffected(), nil
}

// RejectMissedNoShows applies the same guarded rejection to applications whose
// interview moved to no_show at or after since. It picks up applications a
// previous run transitioned but failed to cascade.
//
// SQL:
//
//	UPDATE job_applications a SET ...
//	WHERE a.status = 'interview_scheduled'
//	  AND EXISTS (SELECT 1 FROM interviews i WHERE i.application_id = a.id
//	              AND i.status = 'no_show' AND i.updated_at >= $1)
//	  AND NOT EXISTS (... o.status = 'scheduled')
func (r *ApplicationRepository) RejectMissedNoShows(ctx context.Context, since time.Time, reason string, deleteAt, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE job_applications a
		 SET status = 'rejected', rejection_reason = $2, auto_delete_date = $3, updated_at = $4
		 WHERE a.status = 'interview_scheduled'
		   AND EXISTS (
		     SELECT 1 FROM interviews i
		     WHERE i.application_id = a.id AND i.status = 'no_show' AND i.updated_at >= $1
		   )
		   AND NOT EXISTS (
		     SELECT 1 FROM interviews o
		     WHERE o.application_id = a.id AND o.status = 'scheduled'
		   )`,
		since,
		reason,
		deleteAt,
		now,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to repair no-show applications", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteAutoExpired hard-deletes applications whose auto_delete_date has been
// reached. Rows with a NULL auto_delete_date are never deleted.
//
// SQL: DELETE FROM job_applications WHERE auto_delete_date IS NOT NULL AND auto_delete_date <= $1
func (r *ApplicationRepository) DeleteAutoExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM job_applications
		 WHERE auto_delete_date IS NOT NULL AND auto_delete_date <= $1`,
		now,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to delete expired applications", err)
	}
	return tag.RowsAffected(), nil
}
