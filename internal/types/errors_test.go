package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

// TestAppErrorImplementsError verifies that *AppError satisfies the error interface.
func TestAppErrorImplementsError(t *testing.T) {
	var _ error = (*AppError)(nil)
}

func TestAppErrorErrorFormat(t *testing.T) {
	appErr := &AppError{
		Code:    ErrCodeNotFoundTemplate,
		Message: "template interview_reminder_1day not found",
	}

	expected := "not_found_template: template interview_reminder_1day not found"
	if appErr.Error() != expected {
		t.Errorf("Error() = %q, want %q", appErr.Error(), expected)
	}
}

func TestAppErrorErrorFormatIncludesCause(t *testing.T) {
	appErr := NewAppError(ErrCodeUpstreamEmailProvider, "smtp send failed", errors.New("421 try again later"))

	expected := "upstream_email_provider_unavailable: smtp send failed: 421 try again later"
	if appErr.Error() != expected {
		t.Errorf("Error() = %q, want %q", appErr.Error(), expected)
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	underlying := errors.New("database connection failed")
	appErr := NewAppError(ErrCodeInternalDB, "failed to list interviews", underlying)

	if !errors.Is(appErr, underlying) {
		t.Errorf("errors.Is should find the wrapped cause")
	}
	if appErr.Unwrap() != underlying {
		t.Errorf("Unwrap() = %v, want %v", appErr.Unwrap(), underlying)
	}
}

// TestAppErrorIsMatchesByCode verifies that a sentinel AppError matches any
// AppError with the same code, even through fmt.Errorf wrapping.
func TestAppErrorIsMatchesByCode(t *testing.T) {
	sentinel := NewAppError(ErrCodeNotFoundTemplate, "template not found", nil)
	specific := NewAppError(ErrCodeNotFoundTemplate, "template interview_reminder_1hour not found", nil)
	wrapped := fmt.Errorf("rendering reminder: %w", specific)

	if !errors.Is(wrapped, sentinel) {
		t.Errorf("errors.Is(wrapped, sentinel) = false, want true")
	}

	other := NewAppError(ErrCodeInternalDB, "boom", nil)
	if errors.Is(other, sentinel) {
		t.Errorf("errors.Is should not match a different code")
	}
}

func TestErrorCodeHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeValidationInvalidTask, http.StatusBadRequest},
		{ErrCodeValidationInvalidWindow, http.StatusBadRequest},
		{ErrCodeNotFoundTemplate, http.StatusNotFound},
		{ErrCodeConflictAlreadyRunning, http.StatusConflict},
		{ErrCodeEmailBlocked, http.StatusForbidden},
		{ErrCodeUpstreamEmailProvider, http.StatusBadGateway},
		{ErrCodeUpstreamRateLimited, http.StatusBadGateway},
		{ErrCodeInternalDB, http.StatusInternalServerError},
		{ErrorCode("something_else"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAppErrorWithDetailsDoesNotMutate(t *testing.T) {
	base := NewAppError(ErrCodeInternalDB, "failed", nil)
	withDetails := base.WithDetails(map[string]any{"table": "interviews"})

	if base.Details != nil {
		t.Errorf("original Details mutated: %v", base.Details)
	}
	if withDetails.Details["table"] != "interviews" {
		t.Errorf("Details[table] = %v, want interviews", withDetails.Details["table"])
	}
}
