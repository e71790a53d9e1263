package external

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"placement/internal/notifications/email"
	"placement/internal/types"
)

// StubTransport implements MailTransport by logging each message and keeping
// it in memory. Used when MAIL_PROVIDER=stub (local runs and dry runs).
type StubTransport struct {
	logger *slog.Logger

	mu   sync.Mutex
	sent []types.MailMessage
}

// NewStubTransport creates a new StubTransport.
func NewStubTransport(logger *slog.Logger) *StubTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubTransport{logger: logger}
}

// Name implements MailTransport.
func (s *StubTransport) Name() string { return "stub" }

// Send records msg and returns a fake message id.
func (s *StubTransport) Send(ctx context.Context, msg types.MailMessage) (string, error) {
	id := "stub-" + uuid.NewString()
	s.logger.InfoContext(ctx, "stub: Send email called",
		"to", email.RedactEmail(msg.To),
		"subject", msg.Subject,
		"reference_id", msg.ReferenceID,
		"message_id", id,
	)

	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()
	return id, nil
}

// Verify always succeeds.
func (s *StubTransport) Verify(context.Context) error { return nil }

// Sent returns a copy of every message recorded so far.
func (s *StubTransport) Sent() []types.MailMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.MailMessage, len(s.sent))
	copy(out, s.sent)
	return out
}

var _ MailTransport = (*StubTransport)(nil)
