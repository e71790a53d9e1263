package db

import (
	"context"
	"time"

	"placement/internal/types"
)

// EmailLogRepository provides data access for the email_logs table. A row is
// written before every send attempt and updated with the outcome afterwards,
// so the table is a complete ledger of attempts.
type EmailLogRepository struct {
	db DBTX
}

// NewEmailLogRepository creates a new EmailLogRepository backed by the given
// database connection (pool or transaction).
func NewEmailLogRepository(db DBTX) *EmailLogRepository {
	return &EmailLogRepository{db: db}
}

// Create inserts a pending (is_sent = FALSE) log row and returns its id.
//
// SQL:
//
//	INSERT INTO email_logs (interview_id, template_name, recipient, subject, body, is_sent, created_at)
//	VALUES ($1, $2, $3, $4, $5, FALSE, $6) RETURNING id
func (r *EmailLogRepository) Create(ctx context.Context, entry *types.EmailLog) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO email_logs
		 (interview_id, template_name, recipient, subject, body, is_sent, created_at)
		 VALUES ($1, $2, $3, $4, $5, FALSE, $6)
		 RETURNING id`,
		entry.InterviewID,
		nilIfEmpty(entry.TemplateName),
		entry.Recipient,
		entry.Subject,
		entry.Body,
		entry.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to create email log", err)
	}
	return id, nil
}

// MarkSent records a successful delivery.
//
// SQL: UPDATE email_logs SET is_sent = TRUE, sent_at = $2, error_message = NULL WHERE id = $1
func (r *EmailLogRepository) MarkSent(ctx context.Context, id int64, sentAt time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE email_logs
		 SET is_sent = TRUE, sent_at = $2, error_message = NULL
		 WHERE id = $1`,
		id,
		sentAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark email log sent", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundEmailLog, "email log not found", nil)
	}
	return nil
}

// MarkFailed records the transport error for a failed delivery. is_sent stays
// FALSE.
//
// SQL: UPDATE email_logs SET error_message = $2 WHERE id = $1
func (r *EmailLogRepository) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE email_logs SET error_message = $2 WHERE id = $1`,
		id,
		errMsg,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark email log failed", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundEmailLog, "email log not found", nil)
	}
	return nil
}
