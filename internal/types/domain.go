package types

import (
	"fmt"
	"time"
)

// ---------------------------------------------------------------------------
// Interviews
// ---------------------------------------------------------------------------

// InterviewStatus is the lifecycle state of an interview. Transitions only run
// scheduled -> {no_show, completed, cancelled}.
type InterviewStatus string

const (
	InterviewScheduled InterviewStatus = "scheduled"
	InterviewNoShow    InterviewStatus = "no_show"
	InterviewCompleted InterviewStatus = "completed"
	InterviewCancelled InterviewStatus = "cancelled"
)

// InterviewMode describes where the interview takes place.
type InterviewMode string

const (
	InterviewOnsite InterviewMode = "onsite"
	InterviewOnline InterviewMode = "online"
)

// SchedulerType identifies who scheduled an interview.
type SchedulerType string

const (
	ScheduledByCompany     SchedulerType = "company"
	ScheduledByCoordinator SchedulerType = "coordinator"
)

// ReminderKind names one of the three reminder bands. The string value is also
// the suffix of the email template name ("interview_reminder_" + kind).
type ReminderKind string

const (
	Reminder1Week ReminderKind = "1week"
	Reminder1Day  ReminderKind = "1day"
	Reminder1Hour ReminderKind = "1hour"
)

// AllReminderKinds lists the kinds in evaluation order (farthest first).
var AllReminderKinds = []ReminderKind{Reminder1Week, Reminder1Day, Reminder1Hour}

// Valid reports whether k is one of the known kinds.
func (k ReminderKind) Valid() bool {
	switch k {
	case Reminder1Week, Reminder1Day, Reminder1Hour:
		return true
	}
	return false
}

// FlagColumn returns the interviews column that records the reminder.
func (k ReminderKind) FlagColumn() (string, error) {
	switch k {
	case Reminder1Week:
		return "reminder_1week_sent", nil
	case Reminder1Day:
		return "reminder_1day_sent", nil
	case Reminder1Hour:
		return "reminder_1hour_sent", nil
	}
	return "", fmt.Errorf("unknown reminder kind %q", k)
}

// TemplateName returns the email template used for this kind.
func (k ReminderKind) TemplateName() string {
	return "interview_reminder_" + string(k)
}

// Label is the human-readable lead time ("1 week").
func (k ReminderKind) Label() string {
	switch k {
	case Reminder1Week:
		return "1 week"
	case Reminder1Day:
		return "1 day"
	case Reminder1Hour:
		return "1 hour"
	}
	return string(k)
}

// ReminderFlags are the three monotonic "attempt logged" flags on an interview.
type ReminderFlags struct {
	Week bool `json:"reminder_1week_sent"`
	Day  bool `json:"reminder_1day_sent"`
	Hour bool `json:"reminder_1hour_sent"`
}

// Sent reports whether the flag for kind is already set.
func (f ReminderFlags) Sent(kind ReminderKind) bool {
	switch kind {
	case Reminder1Week:
		return f.Week
	case Reminder1Day:
		return f.Day
	case Reminder1Hour:
		return f.Hour
	}
	return false
}

// Interview is one scheduled meeting tied to a job application.
type Interview struct {
	ID              int64           `json:"id"`
	ApplicationID   int64           `json:"application_id"`
	JobID           int64           `json:"job_id"`
	ScheduledByType SchedulerType   `json:"scheduled_by_type"`
	ScheduledByID   int64           `json:"scheduled_by_id"`
	InterviewDate   time.Time       `json:"interview_date"`
	Mode            InterviewMode   `json:"mode"`
	LocationOrLink  string          `json:"location_or_link"`
	Status          InterviewStatus `json:"status"`
	Reminders       ReminderFlags   `json:"reminders"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// ReminderCandidate is an upcoming interview joined with the context needed to
// address and render a reminder: the candidate, the job and the company.
type ReminderCandidate struct {
	Interview
	UserID         int64  `json:"user_id"`
	CandidateName  string `json:"candidate_name"`
	CandidateEmail string `json:"candidate_email"`
	JobTitle       string `json:"job_title"`
	CompanyName    string `json:"company_name"`
}

// TransitionedInterview is an interview that was just moved to no_show along
// with the application it belongs to.
type TransitionedInterview struct {
	InterviewID   int64
	ApplicationID int64
}

// ---------------------------------------------------------------------------
// Applications
// ---------------------------------------------------------------------------

// ApplicationStatus is the status of a job application. Only the values this
// subsystem reads or writes are declared.
type ApplicationStatus string

const (
	ApplicationInterviewScheduled ApplicationStatus = "interview_scheduled"
	ApplicationRejected           ApplicationStatus = "rejected"
	ApplicationHired              ApplicationStatus = "hired"
)

// NoShowRejectionReason is written to applications rejected because the
// candidate missed their interview.
const NoShowRejectionReason = "Automatically rejected: the candidate did not attend the scheduled interview."

// JobApplication is the subset of the application row this subsystem touches.
type JobApplication struct {
	ID              int64             `json:"id"`
	UserID          int64             `json:"user_id"`
	JobID           int64             `json:"job_id"`
	Status          ApplicationStatus `json:"status"`
	RejectionReason *string           `json:"rejection_reason,omitempty"`
	AutoDeleteDate  *time.Time        `json:"auto_delete_date,omitempty"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// ---------------------------------------------------------------------------
// Email log and in-app notifications
// ---------------------------------------------------------------------------

// EmailLog is the write-ahead ledger row for an outbound message attempt.
type EmailLog struct {
	ID           int64      `json:"id"`
	InterviewID  *int64     `json:"interview_id,omitempty"`
	TemplateName string     `json:"template_name"`
	Recipient    string     `json:"recipient"`
	Subject      string     `json:"subject"`
	Body         string     `json:"body"`
	IsSent       bool       `json:"is_sent"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// NotificationType values for user_notifications.type.
const (
	NotificationTypeInterviewReminder = "interview_reminder"
)

// UserNotification is an ephemeral in-app notice.
type UserNotification struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Type      string    `json:"type"`
	RelatedID *int64    `json:"related_id,omitempty"`
	IsRead    bool      `json:"is_read"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// EmailTemplate is a stored subject and body pair. Placeholders use the
// {name} form.
type EmailTemplate struct {
	Name     string
	Subject  string
	BodyHTML string
	BodyText string
}

// MailMessage is a fully rendered message handed to a mail transport.
type MailMessage struct {
	To       string
	From     SenderIdentity
	Subject  string
	BodyHTML string
	BodyText string
	// ReferenceID correlates the provider message with the email_logs row.
	ReferenceID string
}

// SenderIdentity defines the sender for outgoing emails.
type SenderIdentity struct {
	Name    string
	Address string
}

// Header renders the identity as an RFC 5322 address.
func (s SenderIdentity) Header() string {
	if s.Name == "" {
		return s.Address
	}
	return fmt.Sprintf("%s <%s>", s.Name, s.Address)
}

// ---------------------------------------------------------------------------
// Jobs
// ---------------------------------------------------------------------------

// Job posting statuses touched by the expiry sweep.
const (
	JobStatusActive  = "active"
	JobStatusExpired = "expired"
)

// ApplicationAction is one audit row from application_actions.
type ApplicationAction struct {
	ID            int64     `json:"id"`
	ApplicationID int64     `json:"application_id"`
	ActorID       *int64    `json:"actor_id,omitempty"`
	Action        string    `json:"action"`
	Notes         *string   `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// ---------------------------------------------------------------------------
// Stats
// ---------------------------------------------------------------------------

// PendingWorkStats counts the work each sweep would pick up right now.
type PendingWorkStats struct {
	ExpiredNotifications int64     `json:"expired_notifications"`
	ApplicationsToDelete int64     `json:"applications_pending_delete"`
	OverdueInterviews    int64     `json:"overdue_interviews"`
	ExpiredOTPs          int64     `json:"expired_otps"`
	ExpiredActiveJobs    int64     `json:"expired_active_jobs"`
	FailedEmailsLast24h  int64     `json:"failed_emails_24h"`
	CollectedAt          time.Time `json:"collected_at"`
}
