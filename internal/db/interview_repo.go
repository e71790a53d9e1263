package db

import (
	"context"
	"fmt"
	"time"

	"placement/internal/types"
)

// InterviewRepository provides data access for the interviews table and the
// joins the reminder scan needs.
type InterviewRepository struct {
	db DBTX
}

// NewInterviewRepository creates a new InterviewRepository backed by the given
// database connection (pool or transaction).
func NewInterviewRepository(db DBTX) *InterviewRepository {
	return &InterviewRepository{db: db}
}

// ListReminderCandidates returns scheduled interviews whose start lies in
// (now, until] and that still have at least one reminder flag unset, joined
// with the candidate, job and company needed to render a message. Band
// membership is decided by the caller; this query only bounds the scan.
//
// SQL:
//
//	SELECT i.*, a.user_id, u.full_name, u.email, j.title, c.company_name
//	FROM interviews i
//	JOIN job_applications a ON a.id = i.application_id
//	JOIN users u ON u.id = a.user_id
//	JOIN jobs j ON j.id = i.job_id
//	LEFT JOIN companies c ON c.id = j.company_id
//	WHERE i.status = 'scheduled' AND i.interview_date > $1 AND i.interview_date <= $2
func (r *InterviewRepository) ListReminderCandidates(ctx context.Context, now, until time.Time) ([]types.ReminderCandidate, error) {
	rows, err := r.db.Query(ctx,
		`SELECT i.id, i.application_id, i.job_id, i.scheduled_by_type, i.scheduled_by_id,
		        i.interview_date, i.mode, COALESCE(i.location_or_link, ''), i.status,
		        i.reminder_1week_sent, i.reminder_1day_sent, i.reminder_1hour_sent, i.updated_at,
		        a.user_id, COALESCE(u.full_name, ''), u.email, j.title, COALESCE(c.company_name, '')
		 FROM interviews i
		 JOIN job_applications a ON a.id = i.application_id
		 JOIN users u ON u.id = a.user_id
		 JOIN jobs j ON j.id = i.job_id
		 LEFT JOIN companies c ON c.id = j.company_id
		 WHERE i.status = 'scheduled'
		   AND i.interview_date > $1
		   AND i.interview_date <= $2
		   AND (i.reminder_1week_sent = FALSE
		        OR i.reminder_1day_sent = FALSE
		        OR i.reminder_1hour_sent = FALSE)
		 ORDER BY i.interview_date ASC, i.id ASC`,
		now,
		until,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query reminder candidates", err)
	}
	defer rows.Close()

	var candidates []types.ReminderCandidate
	for rows.Next() {
		var (
			c           types.ReminderCandidate
			scheduledBy string
			mode        string
			status      string
		)
		if err := rows.Scan(
			&c.ID,
			&c.ApplicationID,
			&c.JobID,
			&scheduledBy,
			&c.ScheduledByID,
			&c.InterviewDate,
			&mode,
			&c.LocationOrLink,
			&status,
			&c.Reminders.Week,
			&c.Reminders.Day,
			&c.Reminders.Hour,
			&c.UpdatedAt,
			&c.UserID,
			&c.CandidateName,
			&c.CandidateEmail,
			&c.JobTitle,
			&c.CompanyName,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan reminder candidate", err)
		}
		c.ScheduledByType = types.SchedulerType(scheduledBy)
		c.Mode = types.InterviewMode(mode)
		c.Status = types.InterviewStatus(status)
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating reminder candidates", err)
	}

	return candidates, nil
}

// MarkReminderSent sets the flag column for kind, but only while it is still
// FALSE. It returns true when this call flipped the flag and false when the
// flag was already set (or the interview no longer exists).
//
// SQL:
//
//	UPDATE interviews SET reminder_<kind>_sent = TRUE, updated_at = $2
//	WHERE id = $1 AND reminder_<kind>_sent = FALSE
func (r *InterviewRepository) MarkReminderSent(ctx context.Context, interviewID int64, kind types.ReminderKind, now time.Time) (bool, error) {
	col, err := kind.FlagColumn()
	if err != nil {
		return false, types.NewAppError(types.ErrCodeValidationInvalidWindow, "unknown reminder kind", err)
	}

	// col comes from a closed switch, never from input.
	query := fmt.Sprintf(
		`UPDATE interviews SET %[1]s = TRUE, updated_at = $2
		 WHERE id = $1 AND %[1]s = FALSE`, col)

	tag, err := r.db.Exec(ctx, query, interviewID, now)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to mark reminder flag", err)
	}
	return tag.RowsAffected() > 0, nil
}

// TransitionOverdue moves every scheduled interview that started before cutoff
// to no_show and returns the ids it moved together with their applications.
// Rows that are not 'scheduled' are never touched, so completed and cancelled
// interviews are safe and a second call returns nothing.
//
// SQL:
//
//	UPDATE interviews SET status = 'no_show', updated_at = $2
//	WHERE status = 'scheduled' AND interview_date < $1
//	RETURNING id, application_id
func (r *InterviewRepository) TransitionOverdue(ctx context.Context, cutoff, now time.Time) ([]types.TransitionedInterview, error) {
	rows, err := r.db.Query(ctx,
		`UPDATE interviews
		 SET status = 'no_show', updated_at = $2
		 WHERE status = 'scheduled' AND interview_date < $1
		 RETURNING id, application_id`,
		cutoff,
		now,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to transition overdue interviews", err)
	}
	defer rows.Close()

	var moved []types.TransitionedInterview
	for rows.Next() {
		var t types.TransitionedInterview
		if err := rows.Scan(&t.InterviewID, &t.ApplicationID); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan transitioned interview", err)
		}
		moved = append(moved, t)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating transitioned interviews", err)
	}

	return moved, nil
}
