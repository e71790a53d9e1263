package external

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"placement/internal/types"
)

// mockSESAPI implements SESAPI for testing.
type mockSESAPI struct {
	sendEmailFunc  func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
	getAccountFunc func(ctx context.Context, params *sesv2.GetAccountInput, optFns ...func(*sesv2.Options)) (*sesv2.GetAccountOutput, error)
}

func (m *mockSESAPI) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	return m.sendEmailFunc(ctx, params, optFns...)
}

func (m *mockSESAPI) GetAccount(ctx context.Context, params *sesv2.GetAccountInput, optFns ...func(*sesv2.Options)) (*sesv2.GetAccountOutput, error) {
	return m.getAccountFunc(ctx, params, optFns...)
}

// ---------------------------------------------------------------------------
// Send
// ---------------------------------------------------------------------------

func TestSESSend_Success(t *testing.T) {
	var captured *sesv2.SendEmailInput
	mock := &mockSESAPI{
		sendEmailFunc: func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
			captured = params
			return &sesv2.SendEmailOutput{MessageId: aws.String("ses-msg-abc123")}, nil
		},
	}

	transport := NewSESTransportWithAPI(mock, SESConfig{ConfigSetName: "placement-tracking"})

	id, err := transport.Send(context.Background(), testMailMessage())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if id != "ses-msg-abc123" {
		t.Errorf("message id = %q", id)
	}

	if got := aws.ToString(captured.FromEmailAddress); got != "Placement Team <noreply@placement.test>" {
		t.Errorf("from = %q", got)
	}
	if got := captured.Destination.ToAddresses; len(got) != 1 || got[0] != "dana@example.com" {
		t.Errorf("to = %v", got)
	}
	if aws.ToString(captured.ConfigurationSetName) != "placement-tracking" {
		t.Errorf("configuration set = %v", captured.ConfigurationSetName)
	}
	body := captured.Content.Simple.Body
	if body.Html == nil || aws.ToString(body.Html.Data) != "<p>See you tomorrow</p>" {
		t.Errorf("html body = %+v", body.Html)
	}
	if body.Text == nil || aws.ToString(body.Text.Data) != "See you tomorrow" {
		t.Errorf("text body = %+v", body.Text)
	}
	if len(captured.EmailTags) != 1 || aws.ToString(captured.EmailTags[0].Value) != "email_log_42" {
		t.Errorf("tags = %+v", captured.EmailTags)
	}
}

func TestSESSend_OptionalFieldsOmitted(t *testing.T) {
	var captured *sesv2.SendEmailInput
	mock := &mockSESAPI{
		sendEmailFunc: func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
			captured = params
			return &sesv2.SendEmailOutput{MessageId: aws.String("id")}, nil
		},
	}

	msg := testMailMessage()
	msg.From.Name = ""
	msg.BodyText = ""
	msg.ReferenceID = ""

	if _, err := NewSESTransportWithAPI(mock, SESConfig{}).Send(context.Background(), msg); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if got := aws.ToString(captured.FromEmailAddress); got != "noreply@placement.test" {
		t.Errorf("from = %q", got)
	}
	if captured.Content.Simple.Body.Text != nil {
		t.Error("text body should be nil")
	}
	if captured.ConfigurationSetName != nil {
		t.Error("configuration set should be nil")
	}
	if captured.EmailTags != nil {
		t.Error("tags should be nil")
	}
}

func TestSESSend_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode types.ErrorCode
	}{
		{"rejected", &sestypes.MessageRejected{Message: aws.String("suppressed")}, types.ErrCodeEmailBlocked},
		{"throttled", &sestypes.TooManyRequestsException{Message: aws.String("Rate exceeded")}, types.ErrCodeUpstreamRateLimited},
		{"paused", &sestypes.SendingPausedException{Message: aws.String("paused")}, types.ErrCodeUpstreamUnavailable},
		{"deadline", fmt.Errorf("operation error: %w", context.DeadlineExceeded), types.ErrCodeUpstreamUnavailable},
		{"generic", errors.New("something broke"), types.ErrCodeUpstreamEmailProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockSESAPI{
				sendEmailFunc: func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
					return nil, tt.err
				},
			}

			_, err := NewSESTransportWithAPI(mock, SESConfig{}).Send(context.Background(), testMailMessage())

			var appErr *types.AppError
			if !errors.As(err, &appErr) {
				t.Fatalf("expected *types.AppError, got %T", err)
			}
			if appErr.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", appErr.Code, tt.wantCode)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Verify
// ---------------------------------------------------------------------------

func TestSESVerify(t *testing.T) {
	tests := []struct {
		name    string
		out     *sesv2.GetAccountOutput
		err     error
		wantErr bool
	}{
		{"sending enabled", &sesv2.GetAccountOutput{SendingEnabled: true}, nil, false},
		{"sending disabled", &sesv2.GetAccountOutput{SendingEnabled: false}, nil, true},
		{"api error", nil, errors.New("access denied"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockSESAPI{
				getAccountFunc: func(ctx context.Context, params *sesv2.GetAccountInput, optFns ...func(*sesv2.Options)) (*sesv2.GetAccountOutput, error) {
					return tt.out, tt.err
				},
			}

			err := NewSESTransportWithAPI(mock, SESConfig{}).Verify(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("Verify() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
