package external

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"

	"placement/internal/types"
)

// SMTPConfig holds the configuration for creating an SMTPTransport.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// TLSConfig overrides the default (ServerName = Host).
	TLSConfig   *tls.Config
	DialTimeout time.Duration
	Logger      *slog.Logger
}

// SMTPTransport delivers mail over SMTP. Port 465 uses implicit TLS; every
// other port upgrades with STARTTLS when the server advertises it. Auth is
// only attempted when a username is configured.
type SMTPTransport struct {
	cfg     SMTPConfig
	breaker *gobreaker.CircuitBreaker[string]
	dial    func(ctx context.Context, network, addr string) (net.Conn, error)
	logger  *slog.Logger
}

// NewSMTPTransport creates an SMTPTransport.
func NewSMTPTransport(cfg SMTPConfig) *SMTPTransport {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// A permanent recipient rejection says nothing about the server's health.
	settings := breakerSettings("smtp")
	settings.IsSuccessful = func(err error) bool {
		return err == nil || isRecipientRejection(err)
	}

	d := &net.Dialer{Timeout: cfg.DialTimeout}
	return &SMTPTransport{
		cfg:     cfg,
		breaker: gobreaker.NewCircuitBreaker[string](settings),
		dial:    d.DialContext,
		logger:  logger,
	}
}

// Name implements MailTransport.
func (s *SMTPTransport) Name() string { return "smtp" }

func (s *SMTPTransport) addr() string {
	return net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
}

func (s *SMTPTransport) tlsConfig() *tls.Config {
	if s.cfg.TLSConfig != nil {
		return s.cfg.TLSConfig
	}
	return &tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}
}

// connect dials the server and returns a client that is past EHLO, TLS and
// auth. The connection deadline follows ctx.
func (s *SMTPTransport) connect(ctx context.Context) (*smtp.Client, error) {
	conn, err := s.dial(ctx, "tcp", s.addr())
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if s.cfg.Port == 465 {
		conn = tls.Client(conn, s.tlsConfig())
	}

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return nil, err
	}

	if s.cfg.Port != 465 {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(s.tlsConfig()); err != nil {
				c.Close()
				return nil, fmt.Errorf("starttls: %w", err)
			}
		}
	}

	if s.cfg.Username != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := c.Auth(auth); err != nil {
			c.Close()
			return nil, fmt.Errorf("auth: %w", err)
		}
	}
	return c, nil
}

// Send implements MailTransport. The returned id is the Message-ID header
// this transport generated.
func (s *SMTPTransport) Send(ctx context.Context, msg types.MailMessage) (string, error) {
	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), s.cfg.Host)
	raw, err := buildMIMEMessage(msg, messageID, time.Now())
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build MIME message", err)
	}

	id, err := s.breaker.Execute(func() (string, error) {
		c, err := s.connect(ctx)
		if err != nil {
			return "", err
		}
		defer c.Close()

		if err := c.Mail(msg.From.Address); err != nil {
			return "", err
		}
		if err := c.Rcpt(msg.To); err != nil {
			return "", &rcptError{err: err}
		}
		w, err := c.Data()
		if err != nil {
			return "", err
		}
		if _, err := w.Write(raw); err != nil {
			return "", err
		}
		if err := w.Close(); err != nil {
			return "", err
		}
		return messageID, c.Quit()
	})
	if err != nil {
		return "", mapSMTPError(ctx, err)
	}
	return id, nil
}

// Verify implements MailTransport by completing the handshake (and auth when
// configured) and then quitting.
func (s *SMTPTransport) Verify(ctx context.Context) error {
	c, err := s.connect(ctx)
	if err != nil {
		return mapSMTPError(ctx, err)
	}
	defer c.Close()
	if err := c.Quit(); err != nil {
		return mapSMTPError(ctx, err)
	}
	return nil
}

// rcptError marks a failure of the RCPT TO command.
type rcptError struct{ err error }

func (e *rcptError) Error() string { return "rcpt: " + e.err.Error() }
func (e *rcptError) Unwrap() error { return e.err }

// isRecipientRejection reports a 5xx reply to RCPT TO.
func isRecipientRejection(err error) bool {
	var re *rcptError
	if !errors.As(err, &re) {
		return false
	}
	var tpErr *textproto.Error
	return errors.As(re.err, &tpErr) && tpErr.Code >= 500 && tpErr.Code < 600
}

// mapSMTPError classifies SMTP failures. 5xx replies on RCPT or DATA are
// permanent rejections; everything network-shaped is unavailability.
func mapSMTPError(ctx context.Context, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, "circuit breaker is open; SMTP server unavailable", err)
	}
	if ctx.Err() != nil {
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, "SMTP send did not complete", err)
	}

	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		switch {
		case tpErr.Code == 550 || tpErr.Code == 551 || tpErr.Code == 553:
			return types.NewAppError(types.ErrCodeEmailBlocked, fmt.Sprintf("SMTP rejected recipient: %s", tpErr.Msg), err)
		case tpErr.Code == 421 || tpErr.Code == 450 || tpErr.Code == 451 || tpErr.Code == 452:
			return types.NewAppError(types.ErrCodeUpstreamRateLimited, fmt.Sprintf("SMTP deferred: %s", tpErr.Msg), err)
		default:
			return types.NewAppError(types.ErrCodeUpstreamEmailProvider, fmt.Sprintf("SMTP error (%d): %s", tpErr.Code, tpErr.Msg), err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, "SMTP server unreachable", err)
	}
	return types.NewAppError(types.ErrCodeUpstreamEmailProvider, "SMTP send failed", err)
}

// buildMIMEMessage renders msg as a multipart/alternative message with
// quoted-printable parts. A message with a single body is sent as that part
// alone.
func buildMIMEMessage(msg types.MailMessage, messageID string, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	hdr := func(k, v string) { fmt.Fprintf(&buf, "%s: %s\r\n", k, v) }

	if msg.From.Name != "" {
		hdr("From", mime.QEncoding.Encode("utf-8", msg.From.Name)+" <"+msg.From.Address+">")
	} else {
		hdr("From", msg.From.Address)
	}
	hdr("To", msg.To)
	hdr("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	hdr("Date", now.Format(time.RFC1123Z))
	hdr("Message-ID", messageID)
	hdr("MIME-Version", "1.0")
	if msg.ReferenceID != "" {
		hdr("X-Reference-ID", msg.ReferenceID)
	}

	type part struct{ contentType, body string }
	var parts []part
	if msg.BodyText != "" {
		parts = append(parts, part{"text/plain; charset=UTF-8", msg.BodyText})
	}
	if msg.BodyHTML != "" {
		parts = append(parts, part{"text/html; charset=UTF-8", msg.BodyHTML})
	}
	if len(parts) == 0 {
		parts = append(parts, part{"text/plain; charset=UTF-8", ""})
	}

	if len(parts) == 1 {
		hdr("Content-Type", parts[0].contentType)
		hdr("Content-Transfer-Encoding", "quoted-printable")
		buf.WriteString("\r\n")
		if err := writeQP(&buf, parts[0].body); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	mw := multipart.NewWriter(&buf)
	hdr("Content-Type", "multipart/alternative; boundary="+mw.Boundary())
	buf.WriteString("\r\n")
	for _, p := range parts {
		pw, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {p.contentType},
			"Content-Transfer-Encoding": {"quoted-printable"},
		})
		if err != nil {
			return nil, err
		}
		if err := writeQP(pw, p.body); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeQP(w io.Writer, body string) error {
	qp := quotedprintable.NewWriter(w)
	if _, err := qp.Write([]byte(body)); err != nil {
		return err
	}
	return qp.Close()
}

var _ MailTransport = (*SMTPTransport)(nil)
