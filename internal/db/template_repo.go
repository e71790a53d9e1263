package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"placement/internal/types"
)

// EmailTemplateRepository reads operator-managed overrides from the
// email_templates table.
type EmailTemplateRepository struct {
	db DBTX
}

// NewEmailTemplateRepository creates a new EmailTemplateRepository backed by
// the given database connection (pool or transaction).
func NewEmailTemplateRepository(db DBTX) *EmailTemplateRepository {
	return &EmailTemplateRepository{db: db}
}

// GetActive returns the active template stored under name. It returns
// (nil, nil) when no active row exists so callers can fall back to the
// built-in set.
func (r *EmailTemplateRepository) GetActive(ctx context.Context, name string) (*types.EmailTemplate, error) {
	t := types.EmailTemplate{Name: name}
	err := r.db.QueryRow(ctx,
		`SELECT subject, body_html, COALESCE(body_text, '')
		 FROM email_templates
		 WHERE name = $1 AND is_active = TRUE`,
		name,
	).Scan(&t.Subject, &t.BodyHTML, &t.BodyText)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load email template", err)
	}
	return &t, nil
}
