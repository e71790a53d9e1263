package db

import (
	"context"
	"time"

	"placement/internal/types"
)

// UserNotificationRepository provides data access for the user_notifications
// table.
type UserNotificationRepository struct {
	db DBTX
}

// NewUserNotificationRepository creates a new UserNotificationRepository
// backed by the given database connection (pool or transaction).
func NewUserNotificationRepository(db DBTX) *UserNotificationRepository {
	return &UserNotificationRepository{db: db}
}

// Create inserts an unread notification and returns its id.
func (r *UserNotificationRepository) Create(ctx context.Context, n *types.UserNotification) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO user_notifications
		 (user_id, title, message, type, related_id, is_read, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, FALSE, $6, $7)
		 RETURNING id`,
		n.UserID,
		n.Title,
		n.Message,
		n.Type,
		n.RelatedID,
		n.ExpiresAt,
		n.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to create user notification", err)
	}
	return id, nil
}

// DeleteExpired removes notifications whose expires_at has been reached. A row
// expiring exactly at now is deleted.
//
// SQL: DELETE FROM user_notifications WHERE expires_at <= $1
func (r *UserNotificationRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM user_notifications WHERE expires_at <= $1`,
		now,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to delete expired notifications", err)
	}
	return tag.RowsAffected(), nil
}
