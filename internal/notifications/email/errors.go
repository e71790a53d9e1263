// Package email resolves and renders the interview reminder templates. A
// template is a subject, an HTML body and a plain-text body carrying {key}
// placeholders. Built-in templates are embedded in the binary; operators can
// override any of them per name through the email_templates table.
package email

import (
	"errors"

	"placement/internal/types"
)

// ErrTemplateNotFound is returned by Store.Resolve when neither an override
// nor a built-in template exists for the requested name. Match it with
// errors.Is; wrapped instances carry the template name in their message.
var ErrTemplateNotFound = types.NewAppError(types.ErrCodeNotFoundTemplate, "email template not found", nil)

// IsBlocklistError reports whether err means the provider refused the
// recipient (suppression list, hard bounce). Such failures are terminal and
// are recorded but never retried.
func IsBlocklistError(err error) bool {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr.Code == types.ErrCodeEmailBlocked
	}
	return false
}
