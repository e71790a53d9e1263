// Package core dispatches interview reminders: it renders the template for a
// band, writes the email log row ahead of the send, invokes the transport,
// marks the reminder flag and leaves an in-app notification pointing at the
// log row. Each dispatch returns an explicit DispatchResult.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"placement/internal/external"
	"placement/internal/notifications/email"
	"placement/internal/types"
)

// Outcome is the terminal state of one dispatch.
type Outcome string

const (
	// OutcomeSent means the transport accepted the message.
	OutcomeSent Outcome = "sent"
	// OutcomeSendFailed means the log row exists but the transport failed.
	OutcomeSendFailed Outcome = "send_failed"
	// OutcomeSkipped means no template was found; nothing was written.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeLogFailed means the email log row could not be written, so
	// nothing was sent and the flag was left alone.
	OutcomeLogFailed Outcome = "log_failed"
)

// DispatchResult describes what a single (interview, kind) dispatch did.
// EmailLogID and NotificationID are zero when the row was not created.
type DispatchResult struct {
	InterviewID    int64
	Kind           types.ReminderKind
	Outcome        Outcome
	EmailLogID     int64
	NotificationID int64
	FlagMarked     bool
	Err            error
}

// TemplateResolver looks up a template by name. A missing template is
// reported with an error matching email.ErrTemplateNotFound.
type TemplateResolver interface {
	Resolve(ctx context.Context, name string) (*types.EmailTemplate, error)
}

// EmailLogStore persists the outbound ledger.
type EmailLogStore interface {
	Create(ctx context.Context, entry *types.EmailLog) (int64, error)
	MarkSent(ctx context.Context, id int64, sentAt time.Time) error
	MarkFailed(ctx context.Context, id int64, errMsg string) error
}

// ReminderMarker sets a reminder flag with a conditional update. It returns
// false when the flag was already set.
type ReminderMarker interface {
	MarkReminderSent(ctx context.Context, interviewID int64, kind types.ReminderKind, now time.Time) (bool, error)
}

// NotificationStore persists in-app notifications.
type NotificationStore interface {
	Create(ctx context.Context, n *types.UserNotification) (int64, error)
}

// DispatcherConfig holds the delivery settings.
type DispatcherConfig struct {
	Sender      types.SenderIdentity
	SendTimeout time.Duration
	// NotificationTTL is added to now for UserNotification.ExpiresAt.
	NotificationTTL time.Duration
	// Location is the zone interview times are rendered in. Nil means UTC.
	Location *time.Location
}

// Dispatcher delivers one reminder at a time. It is safe for sequential use
// by a single task goroutine.
type Dispatcher struct {
	templates     TemplateResolver
	logs          EmailLogStore
	flags         ReminderMarker
	notifications NotificationStore
	transport     external.MailTransport
	metrics       DispatchMetrics
	cfg           DispatcherConfig
	logger        *slog.Logger
}

// NewDispatcher wires a Dispatcher. A nil metrics sink records to Prometheus.
func NewDispatcher(
	templates TemplateResolver,
	logs EmailLogStore,
	flags ReminderMarker,
	notifications NotificationStore,
	transport external.MailTransport,
	metrics DispatchMetrics,
	cfg DispatcherConfig,
	logger *slog.Logger,
) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = PrometheusMetrics{}
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.NotificationTTL <= 0 {
		cfg.NotificationTTL = 7 * 24 * time.Hour
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Dispatcher{
		templates:     templates,
		logs:          logs,
		flags:         flags,
		notifications: notifications,
		transport:     transport,
		metrics:       metrics,
		cfg:           cfg,
		logger:        logger,
	}
}

// Dispatch sends the kind reminder for c. It never panics and never returns
// an error directly; failures are reported in the result.
//
// Ordering:
//  1. resolve template (missing -> skipped)
//  2. render
//  3. insert email log (failure -> log_failed)
//  4. send, then mark the log sent or failed
//  5. with a log id, regardless of the send: mark the flag, create the
//     notification
func (d *Dispatcher) Dispatch(ctx context.Context, c types.ReminderCandidate, kind types.ReminderKind, now time.Time) (res DispatchResult) {
	res = DispatchResult{InterviewID: c.ID, Kind: kind}
	log := d.logger.With("interview_id", c.ID, "kind", string(kind))

	defer func() {
		if r := recover(); r != nil {
			res.Err = errors.Join(res.Err, types.NewAppError(
				types.ErrCodeInternalTaskPanic,
				fmt.Sprintf("dispatch panicked: %v", r),
				nil,
			))
			if res.Outcome == "" {
				res.Outcome = OutcomeLogFailed
				if res.EmailLogID != 0 {
					res.Outcome = OutcomeSendFailed
				}
			}
			log.ErrorContext(ctx, "dispatch panicked", "panic", r)
		}
		d.metrics.RecordDispatch(ctx, kind, res.Outcome)
	}()

	tpl, err := d.templates.Resolve(ctx, kind.TemplateName())
	if err != nil {
		res.Outcome = OutcomeSkipped
		if !errors.Is(err, email.ErrTemplateNotFound) {
			res.Err = fmt.Errorf("resolve template %s: %w", kind.TemplateName(), err)
		}
		log.WarnContext(ctx, "reminder skipped: no template", "template", kind.TemplateName(), "error", err)
		return res
	}

	vars := email.ReminderVars(c, kind, d.cfg.Location)
	rendered := email.Render(tpl, vars)

	body := rendered.BodyHTML
	if body == "" {
		body = rendered.BodyText
	}
	interviewID := c.ID
	logID, err := d.logs.Create(ctx, &types.EmailLog{
		InterviewID:  &interviewID,
		TemplateName: tpl.Name,
		Recipient:    c.CandidateEmail,
		Subject:      rendered.Subject,
		Body:         body,
		CreatedAt:    now,
	})
	if err != nil {
		res.Outcome = OutcomeLogFailed
		res.Err = fmt.Errorf("create email log: %w", err)
		log.ErrorContext(ctx, "email log insert failed; reminder not sent", "error", err)
		return res
	}
	res.EmailLogID = logID
	log = log.With("email_log_id", logID)

	sendErr := d.send(ctx, types.MailMessage{
		To:          c.CandidateEmail,
		From:        d.cfg.Sender,
		Subject:     rendered.Subject,
		BodyHTML:    rendered.BodyHTML,
		BodyText:    rendered.BodyText,
		ReferenceID: strconv.FormatInt(logID, 10),
	})

	if sendErr == nil {
		res.Outcome = OutcomeSent
		if err := d.logs.MarkSent(ctx, logID, now); err != nil {
			res.Err = errors.Join(res.Err, fmt.Errorf("mark email log sent: %w", err))
			log.ErrorContext(ctx, "failed to mark email log sent", "error", err)
		}
		log.InfoContext(ctx, "reminder sent", "to", email.RedactEmail(c.CandidateEmail))
	} else {
		res.Outcome = OutcomeSendFailed
		res.Err = errors.Join(res.Err, fmt.Errorf("send: %w", sendErr))
		if err := d.logs.MarkFailed(ctx, logID, sendErr.Error()); err != nil {
			res.Err = errors.Join(res.Err, fmt.Errorf("mark email log failed: %w", err))
			log.ErrorContext(ctx, "failed to record send error", "error", err)
		}
		log.WarnContext(ctx, "reminder send failed",
			"to", email.RedactEmail(c.CandidateEmail),
			"blocked", email.IsBlocklistError(sendErr),
			"error", sendErr,
		)
	}

	marked, err := d.flags.MarkReminderSent(ctx, c.ID, kind, now)
	switch {
	case err != nil:
		res.Err = errors.Join(res.Err, fmt.Errorf("mark reminder flag: %w", err))
		log.ErrorContext(ctx, "failed to mark reminder flag", "error", err)
	case !marked:
		log.WarnContext(ctx, "reminder flag was already set")
	}
	res.FlagMarked = marked

	notifID, err := d.notifications.Create(ctx, &types.UserNotification{
		UserID:    c.UserID,
		Title:     "Upcoming interview",
		Message:   email.Substitute("Your interview for {job_title} at {company_name} is in {time_until}: {interview_date} at {interview_time}.", vars),
		Type:      types.NotificationTypeInterviewReminder,
		RelatedID: &logID,
		ExpiresAt: now.Add(d.cfg.NotificationTTL),
		CreatedAt: now,
	})
	if err != nil {
		res.Err = errors.Join(res.Err, fmt.Errorf("create notification: %w", err))
		log.ErrorContext(ctx, "failed to create in-app notification", "error", err)
		return res
	}
	res.NotificationID = notifID
	return res
}

// send bounds the transport call with the configured timeout. A transport
// panic is returned as a send error so the log row, flag and notification are
// still settled by the caller.
func (d *Dispatcher) send(ctx context.Context, msg types.MailMessage) (err error) {
	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = types.NewAppError(
				types.ErrCodeInternalTaskPanic,
				fmt.Sprintf("mail transport %s panicked: %v", d.transport.Name(), r),
				nil,
			)
		}
		d.metrics.RecordSendLatency(ctx, d.transport.Name(), time.Since(start))
	}()
	_, err = d.transport.Send(sendCtx, msg)
	return err
}
