package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"placement/internal/types"
)

// sendGridAPIBase is the default SendGrid API base URL.
const sendGridAPIBase = "https://api.sendgrid.com"

// SendGridConfig holds the configuration for creating a SendGridTransport.
type SendGridConfig struct {
	APIKey  string
	BaseURL string // defaults to sendGridAPIBase
	Logger  *slog.Logger
}

// SendGridTransport delivers mail through the SendGrid v3 Mail Send API. All
// requests go through BaseClient.
type SendGridTransport struct {
	base    *BaseClient
	apiKey  string
	baseURL string
	logger  *slog.Logger
}

// NewSendGridTransport creates a SendGridTransport. The caller bounds each
// send with its own context deadline; httpClient.Timeout is a backstop.
func NewSendGridTransport(httpClient *http.Client, cfg SendGridConfig) *SendGridTransport {
	base := NewBaseClient(
		httpClient,
		"sendgrid",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"PlacementScheduler/1.0",
	)
	return NewSendGridTransportWithBase(base, cfg)
}

// NewSendGridTransportWithBase creates a SendGridTransport on a pre-configured
// BaseClient.
func NewSendGridTransportWithBase(base *BaseClient, cfg SendGridConfig) *SendGridTransport {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = sendGridAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &SendGridTransport{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// Name implements MailTransport.
func (s *SendGridTransport) Name() string { return "sendgrid" }

// Send implements MailTransport. SendGrid answers 202 Accepted and returns
// the message id in the X-Message-Id header.
//
// Error mapping:
//   - 403 Forbidden -> types.ErrCodeEmailBlocked
//   - 429 / 5xx -> handled by BaseClient (retry, then rate limited / unavailable)
//   - Other 4xx -> types.ErrCodeUpstreamEmailProvider
func (s *SendGridTransport) Send(ctx context.Context, msg types.MailMessage) (string, error) {
	body, err := json.Marshal(buildSendGridPayload(msg))
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to marshal SendGrid mail payload",
			err,
		)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v3/mail/send", bytes.NewReader(body))
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create SendGrid mail send request",
			err,
		)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.base.Do(req)
	if err != nil {
		return "", wrapSendGridError("Send", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted {
		return resp.Header.Get("X-Message-Id"), nil
	}
	return "", handleSendGridErrorResponse(resp, "Send")
}

// Verify implements MailTransport by listing the API key's scopes. A key
// without mail.send is reported as a provider error.
func (s *SendGridTransport) Verify(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/v3/scopes", nil)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create SendGrid scopes request", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.base.Do(req)
	if err != nil {
		return wrapSendGridError("Verify", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return handleSendGridErrorResponse(resp, "Verify")
	}

	var scopes struct {
		Scopes []string `json:"scopes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&scopes); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamEmailProvider, "Verify: unreadable SendGrid scopes response", err)
	}
	for _, sc := range scopes.Scopes {
		if sc == "mail.send" {
			return nil
		}
	}
	return types.NewAppError(types.ErrCodeUpstreamEmailProvider, "Verify: SendGrid API key lacks the mail.send scope", nil)
}

// ---------------------------------------------------------------------------
// Payload Construction
// ---------------------------------------------------------------------------

type sendGridMailPayload struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
	CustomArgs       map[string]string         `json:"custom_args,omitempty"`
}

type sendGridPersonalization struct {
	To []sendGridAddress `json:"to"`
}

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// buildSendGridPayload maps a MailMessage to the v3 payload. SendGrid
// requires text/plain to precede text/html when both are present.
func buildSendGridPayload(msg types.MailMessage) sendGridMailPayload {
	p := sendGridMailPayload{
		Personalizations: []sendGridPersonalization{{To: []sendGridAddress{{Email: msg.To}}}},
		From:             sendGridAddress{Email: msg.From.Address, Name: msg.From.Name},
		Subject:          msg.Subject,
	}
	if msg.BodyText != "" {
		p.Content = append(p.Content, sendGridContent{Type: "text/plain", Value: msg.BodyText})
	}
	if msg.BodyHTML != "" {
		p.Content = append(p.Content, sendGridContent{Type: "text/html", Value: msg.BodyHTML})
	}
	if msg.ReferenceID != "" {
		p.CustomArgs = map[string]string{"reference_id": msg.ReferenceID}
	}
	return p
}

// ---------------------------------------------------------------------------
// Error Handling
// ---------------------------------------------------------------------------

type sendGridErrorResponse struct {
	Errors []struct {
		Message string `json:"message"`
		Field   string `json:"field"`
	} `json:"errors"`
}

// handleSendGridErrorResponse reads an error body and maps the status code.
func handleSendGridErrorResponse(resp *http.Response, operation string) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamEmailProvider,
			fmt.Sprintf("%s: SendGrid returned status %d and response body was unreadable", operation, resp.StatusCode),
			readErr,
		)
	}

	errMsg := string(body)
	var sgErr sendGridErrorResponse
	if json.Unmarshal(body, &sgErr) == nil && len(sgErr.Errors) > 0 {
		errMsg = sgErr.Errors[0].Message
	}

	return mapSendGridStatus(operation, resp.StatusCode, errMsg)
}

func mapSendGridStatus(operation string, statusCode int, message string) error {
	switch {
	case statusCode == http.StatusForbidden:
		return types.NewAppError(
			types.ErrCodeEmailBlocked,
			fmt.Sprintf("%s: SendGrid blocked delivery: %s", operation, message),
			nil,
		)
	case statusCode == http.StatusTooManyRequests:
		return types.NewAppError(
			types.ErrCodeUpstreamRateLimited,
			fmt.Sprintf("%s: SendGrid rate limit exceeded", operation),
			nil,
		)
	case statusCode >= 500:
		return types.NewAppError(
			types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("%s: SendGrid server error: %s", operation, message),
			nil,
		)
	default:
		return types.NewAppError(
			types.ErrCodeUpstreamEmailProvider,
			fmt.Sprintf("%s: SendGrid error (%d): %s", operation, statusCode, message),
			nil,
		)
	}
}

// wrapSendGridError passes BaseClient AppErrors through and wraps anything
// else as a provider error.
func wrapSendGridError(operation string, err error) error {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return types.NewAppError(
		types.ErrCodeUpstreamEmailProvider,
		fmt.Sprintf("%s: SendGrid request failed", operation),
		err,
	)
}

var _ MailTransport = (*SendGridTransport)(nil)
