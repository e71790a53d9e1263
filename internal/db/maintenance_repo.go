package db

import (
	"context"
	"time"

	"placement/internal/types"
)

// MaintenanceRepository groups the sweeps over tables this subsystem does not
// otherwise own: OTP codes, the application audit trail and job postings.
type MaintenanceRepository struct {
	db DBTX
}

// NewMaintenanceRepository creates a new MaintenanceRepository backed by the
// given database connection (pool or transaction).
func NewMaintenanceRepository(db DBTX) *MaintenanceRepository {
	return &MaintenanceRepository{db: db}
}

// DeleteOTPsCreatedBefore removes OTP verification rows strictly older than
// cutoff.
//
// SQL: DELETE FROM otp_verifications WHERE created_at < $1
func (r *MaintenanceRepository) DeleteOTPsCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM otp_verifications WHERE created_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to delete expired otps", err)
	}
	return tag.RowsAffected(), nil
}

// ListActionsBefore returns up to limit audit rows created strictly before
// cutoff, oldest first.
func (r *MaintenanceRepository) ListActionsBefore(ctx context.Context, cutoff time.Time, limit int) ([]types.ApplicationAction, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, application_id, actor_id, action, notes, created_at
		 FROM application_actions
		 WHERE created_at < $1
		 ORDER BY created_at ASC, id ASC
		 LIMIT $2`,
		cutoff,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list application actions", err)
	}
	defer rows.Close()

	var actions []types.ApplicationAction
	for rows.Next() {
		var a types.ApplicationAction
		if err := rows.Scan(
			&a.ID,
			&a.ApplicationID,
			&a.ActorID,
			&a.Action,
			&a.Notes,
			&a.CreatedAt,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan application action", err)
		}
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating application actions", err)
	}

	return actions, nil
}

// DeleteActionsByID removes the given audit rows. Used after a batch has been
// archived.
func (r *MaintenanceRepository) DeleteActionsByID(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx,
		`DELETE FROM application_actions WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to delete archived application actions", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteActionsBefore removes every audit row created strictly before cutoff
// without archiving.
//
// SQL: DELETE FROM application_actions WHERE created_at < $1
func (r *MaintenanceRepository) DeleteActionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM application_actions WHERE created_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to delete old application actions", err)
	}
	return tag.RowsAffected(), nil
}

// ExpireJobsPastDeadline flips active postings whose deadline has passed to
// 'expired'. Postings without a deadline are never expired.
//
// SQL:
//
//	UPDATE jobs SET status = 'expired', updated_at = $1
//	WHERE status = 'active' AND deadline IS NOT NULL AND deadline < $1
func (r *MaintenanceRepository) ExpireJobsPastDeadline(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE jobs
		 SET status = $2, updated_at = $1
		 WHERE status = $3 AND deadline IS NOT NULL AND deadline < $1`,
		now,
		types.JobStatusExpired,
		types.JobStatusActive,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to expire jobs", err)
	}
	return tag.RowsAffected(), nil
}
