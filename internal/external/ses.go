package external

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"placement/internal/types"
)

// SESAPI is the subset of the SES v2 client used by SESTransport.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
	GetAccount(ctx context.Context, params *sesv2.GetAccountInput, optFns ...func(*sesv2.Options)) (*sesv2.GetAccountOutput, error)
}

// SESConfig holds the configuration for creating an SESTransport.
type SESConfig struct {
	// ConfigSetName is the SES configuration set used for event tracking.
	// Optional.
	ConfigSetName string
	Logger        *slog.Logger
}

// SESTransport delivers mail through AWS SES v2 using IAM credentials. The SDK
// retries internally, so no BaseClient is involved.
type SESTransport struct {
	api           SESAPI
	configSetName string
	logger        *slog.Logger
}

// NewSESTransport creates an SESTransport from an AWS config.
func NewSESTransport(awsCfg aws.Config, cfg SESConfig) *SESTransport {
	return NewSESTransportWithAPI(sesv2.NewFromConfig(awsCfg), cfg)
}

// NewSESTransportWithAPI creates an SESTransport on a caller-supplied API.
func NewSESTransportWithAPI(api SESAPI, cfg SESConfig) *SESTransport {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &SESTransport{
		api:           api,
		configSetName: cfg.ConfigSetName,
		logger:        logger,
	}
}

// Name implements MailTransport.
func (s *SESTransport) Name() string { return "ses" }

// Send implements MailTransport using SendEmail with simple content.
//
// Error mapping:
//   - MessageRejected -> ErrCodeEmailBlocked
//   - TooManyRequestsException -> ErrCodeUpstreamRateLimited
//   - SendingPausedException -> ErrCodeUpstreamUnavailable
//   - Other -> ErrCodeUpstreamEmailProvider
func (s *SESTransport) Send(ctx context.Context, msg types.MailMessage) (string, error) {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From.Header()),
		Destination: &sestypes.Destination{
			ToAddresses: []string{msg.To},
		},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: utf8Content(msg.Subject),
				Body:    &sestypes.Body{},
			},
		},
	}

	if msg.BodyHTML != "" {
		input.Content.Simple.Body.Html = utf8Content(msg.BodyHTML)
	}
	if msg.BodyText != "" {
		input.Content.Simple.Body.Text = utf8Content(msg.BodyText)
	}
	if s.configSetName != "" {
		input.ConfigurationSetName = aws.String(s.configSetName)
	}
	if msg.ReferenceID != "" {
		input.EmailTags = []sestypes.MessageTag{
			{Name: aws.String("ReferenceID"), Value: aws.String(msg.ReferenceID)},
		}
	}

	out, err := s.api.SendEmail(ctx, input)
	if err != nil {
		return "", mapSESError(err)
	}
	return aws.ToString(out.MessageId), nil
}

// Verify implements MailTransport. It fails when the account cannot be read
// or when sending is disabled on it.
func (s *SESTransport) Verify(ctx context.Context) error {
	out, err := s.api.GetAccount(ctx, &sesv2.GetAccountInput{})
	if err != nil {
		return mapSESError(err)
	}
	if !out.SendingEnabled {
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, "SES sending is disabled for this account", nil)
	}
	return nil
}

func utf8Content(data string) *sestypes.Content {
	return &sestypes.Content{Data: aws.String(data), Charset: aws.String("UTF-8")}
}

// mapSESError translates AWS SES errors into AppErrors.
func mapSESError(err error) error {
	var msgRejected *sestypes.MessageRejected
	if errors.As(err, &msgRejected) {
		return types.NewAppError(types.ErrCodeEmailBlocked, fmt.Sprintf("SES rejected message: %v", err), err)
	}

	var tooManyReqs *sestypes.TooManyRequestsException
	if errors.As(err, &tooManyReqs) {
		return types.NewAppError(types.ErrCodeUpstreamRateLimited, fmt.Sprintf("SES rate limit exceeded: %v", err), err)
	}

	var sendingPaused *sestypes.SendingPausedException
	if errors.As(err, &sendingPaused) {
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, fmt.Sprintf("SES account sending paused: %v", err), err)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, "SES request did not complete", err)
	}

	return types.NewAppError(types.ErrCodeUpstreamEmailProvider, fmt.Sprintf("SES error: %v", err), err)
}

var _ MailTransport = (*SESTransport)(nil)
