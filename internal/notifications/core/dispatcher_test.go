package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"placement/internal/notifications/email"
	"placement/internal/types"
)

var dispatchNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// callLog is shared by every fake so tests can assert the global ordering.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, s)
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type fakeTemplates struct {
	log *callLog
	err error
}

func (f *fakeTemplates) Resolve(_ context.Context, name string) (*types.EmailTemplate, error) {
	f.log.add("resolve")
	if f.err != nil {
		return nil, f.err
	}
	return &types.EmailTemplate{
		Name:     name,
		Subject:  "Reminder: {job_title} at {company_name}",
		BodyHTML: "<p>Hi {candidate_name}, your interview is in {time_until}.</p>",
		BodyText: "Hi {candidate_name}, your interview is in {time_until}.",
	}, nil
}

type fakeEmailLogs struct {
	log       *callLog
	createErr error
	markErr   error
	nextID    int64

	created  []types.EmailLog
	sentIDs  []int64
	failures map[int64]string
}

func (f *fakeEmailLogs) Create(_ context.Context, e *types.EmailLog) (int64, error) {
	f.log.add("log.create")
	if f.createErr != nil {
		return 0, f.createErr
	}
	f.nextID++
	f.created = append(f.created, *e)
	return f.nextID, nil
}

func (f *fakeEmailLogs) MarkSent(_ context.Context, id int64, _ time.Time) error {
	f.log.add("log.sent")
	f.sentIDs = append(f.sentIDs, id)
	return f.markErr
}

func (f *fakeEmailLogs) MarkFailed(_ context.Context, id int64, msg string) error {
	f.log.add("log.failed")
	if f.failures == nil {
		f.failures = map[int64]string{}
	}
	f.failures[id] = msg
	return f.markErr
}

type fakeFlags struct {
	log     *callLog
	already bool
	err     error
	marked  []types.ReminderKind
}

func (f *fakeFlags) MarkReminderSent(_ context.Context, _ int64, kind types.ReminderKind, _ time.Time) (bool, error) {
	f.log.add("flag")
	if f.err != nil {
		return false, f.err
	}
	f.marked = append(f.marked, kind)
	return !f.already, nil
}

type fakeNotifications struct {
	log     *callLog
	err     error
	created []types.UserNotification
}

func (f *fakeNotifications) Create(_ context.Context, n *types.UserNotification) (int64, error) {
	f.log.add("notification")
	if f.err != nil {
		return 0, f.err
	}
	f.created = append(f.created, *n)
	return int64(100 + len(f.created)), nil
}

type fakeTransport struct {
	log      *callLog
	err      error
	panicMsg string
	msgs     []types.MailMessage
	deadline bool
}

func (f *fakeTransport) Name() string                 { return "fake" }
func (f *fakeTransport) Verify(context.Context) error { return nil }

func (f *fakeTransport) Send(ctx context.Context, msg types.MailMessage) (string, error) {
	f.log.add("send")
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	_, f.deadline = ctx.Deadline()
	f.msgs = append(f.msgs, msg)
	if f.err != nil {
		return "", f.err
	}
	return "msg-1", nil
}

type recordingMetrics struct {
	outcomes []Outcome
	latency  int
}

func (m *recordingMetrics) RecordDispatch(_ context.Context, _ types.ReminderKind, o Outcome) {
	m.outcomes = append(m.outcomes, o)
}

func (m *recordingMetrics) RecordSendLatency(context.Context, string, time.Duration) {
	m.latency++
}

type dispatchFixture struct {
	calls         *callLog
	templates     *fakeTemplates
	logs          *fakeEmailLogs
	flags         *fakeFlags
	notifications *fakeNotifications
	transport     *fakeTransport
	metrics       *recordingMetrics
}

func newDispatchFixture() *dispatchFixture {
	calls := &callLog{}
	return &dispatchFixture{
		calls:         calls,
		templates:     &fakeTemplates{log: calls},
		logs:          &fakeEmailLogs{log: calls},
		flags:         &fakeFlags{log: calls},
		notifications: &fakeNotifications{log: calls},
		transport:     &fakeTransport{log: calls},
		metrics:       &recordingMetrics{},
	}
}

func (f *dispatchFixture) dispatcher() *Dispatcher {
	return NewDispatcher(
		f.templates, f.logs, f.flags, f.notifications, f.transport, f.metrics,
		DispatcherConfig{
			Sender:      types.SenderIdentity{Name: "Placement Team", Address: "noreply@placement.test"},
			SendTimeout: 3 * time.Second,
		},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

func testCandidate() types.ReminderCandidate {
	return types.ReminderCandidate{
		Interview: types.Interview{
			ID:            7,
			ApplicationID: 70,
			InterviewDate: dispatchNow.Add(24 * time.Hour),
			Mode:          types.InterviewOnline,
			Status:        types.InterviewScheduled,
		},
		UserID:         42,
		CandidateName:  "Dana <b>",
		CandidateEmail: "dana@example.com",
		JobTitle:       "Backend Engineer",
		CompanyName:    "Acme",
	}
}

// ============================================================
// Happy path
// ============================================================

func TestDispatch_SentFollowsLedgerOrder(t *testing.T) {
	f := newDispatchFixture()

	res := f.dispatcher().Dispatch(context.Background(), testCandidate(), types.Reminder1Day, dispatchNow)

	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeSent, res.Outcome)
	assert.Equal(t, int64(7), res.InterviewID)
	assert.Equal(t, types.Reminder1Day, res.Kind)
	assert.Equal(t, int64(1), res.EmailLogID)
	assert.Equal(t, int64(101), res.NotificationID)
	assert.True(t, res.FlagMarked)

	assert.Equal(t,
		[]string{"resolve", "log.create", "send", "log.sent", "flag", "notification"},
		f.calls.list(),
	)
	assert.Equal(t, []Outcome{OutcomeSent}, f.metrics.outcomes)
	assert.Equal(t, 1, f.metrics.latency)
}

func TestDispatch_RendersMessageAndLogRow(t *testing.T) {
	f := newDispatchFixture()

	f.dispatcher().Dispatch(context.Background(), testCandidate(), types.Reminder1Day, dispatchNow)

	require.Len(t, f.logs.created, 1)
	entry := f.logs.created[0]
	require.NotNil(t, entry.InterviewID)
	assert.Equal(t, int64(7), *entry.InterviewID)
	assert.Equal(t, "interview_reminder_1day", entry.TemplateName)
	assert.Equal(t, "dana@example.com", entry.Recipient)
	assert.Equal(t, "Reminder: Backend Engineer at Acme", entry.Subject)
	assert.Equal(t, "<p>Hi Dana &lt;b&gt;, your interview is in 1 day.</p>", entry.Body)
	assert.Equal(t, dispatchNow, entry.CreatedAt)

	require.Len(t, f.transport.msgs, 1)
	msg := f.transport.msgs[0]
	assert.Equal(t, "dana@example.com", msg.To)
	assert.Equal(t, "noreply@placement.test", msg.From.Address)
	assert.Equal(t, "Hi Dana <b>, your interview is in 1 day.", msg.BodyText)
	assert.Equal(t, "1", msg.ReferenceID)
	assert.True(t, f.transport.deadline, "send must run under a deadline")
}

func TestDispatch_NotificationPointsAtLogRow(t *testing.T) {
	f := newDispatchFixture()

	res := f.dispatcher().Dispatch(context.Background(), testCandidate(), types.Reminder1Hour, dispatchNow)

	require.Len(t, f.notifications.created, 1)
	n := f.notifications.created[0]
	assert.Equal(t, int64(42), n.UserID)
	assert.Equal(t, types.NotificationTypeInterviewReminder, n.Type)
	require.NotNil(t, n.RelatedID)
	assert.Equal(t, res.EmailLogID, *n.RelatedID)
	assert.Equal(t, dispatchNow.Add(7*24*time.Hour), n.ExpiresAt)
	assert.Contains(t, n.Message, "Backend Engineer at Acme is in 1 hour")
}

// ============================================================
// Failure paths
// ============================================================

func TestDispatch_SendFailureStillMarksFlagAndNotifies(t *testing.T) {
	f := newDispatchFixture()
	f.transport.err = types.NewAppError(types.ErrCodeUpstreamUnavailable, "smtp down", nil)

	res := f.dispatcher().Dispatch(context.Background(), testCandidate(), types.Reminder1Week, dispatchNow)

	assert.Equal(t, OutcomeSendFailed, res.Outcome)
	require.Error(t, res.Err)
	assert.True(t, res.FlagMarked)
	assert.NotZero(t, res.NotificationID)
	assert.Equal(t,
		[]string{"resolve", "log.create", "send", "log.failed", "flag", "notification"},
		f.calls.list(),
	)
	assert.Contains(t, f.logs.failures[res.EmailLogID], "smtp down")
	assert.Empty(t, f.logs.sentIDs, "is_sent must stay false")
}

func TestDispatch_MissingTemplateSkipsWithoutWrites(t *testing.T) {
	f := newDispatchFixture()
	f.templates.err = fmt.Errorf("lookup: %w", email.ErrTemplateNotFound)

	res := f.dispatcher().Dispatch(context.Background(), testCandidate(), types.Reminder1Day, dispatchNow)

	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.NoError(t, res.Err)
	assert.Zero(t, res.EmailLogID)
	assert.False(t, res.FlagMarked)
	assert.Equal(t, []string{"resolve"}, f.calls.list())
}

func TestDispatch_TemplateLookupErrorIsReported(t *testing.T) {
	f := newDispatchFixture()
	f.templates.err = errors.New("boom")

	res := f.dispatcher().Dispatch(context.Background(), testCandidate(), types.Reminder1Day, dispatchNow)

	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.Error(t, res.Err)
	assert.Equal(t, []string{"resolve"}, f.calls.list())
}

func TestDispatch_LogInsertFailureSendsNothing(t *testing.T) {
	f := newDispatchFixture()
	f.logs.createErr = types.NewAppError(types.ErrCodeInternalDB, "insert failed", nil)

	res := f.dispatcher().Dispatch(context.Background(), testCandidate(), types.Reminder1Day, dispatchNow)

	assert.Equal(t, OutcomeLogFailed, res.Outcome)
	assert.Error(t, res.Err)
	assert.False(t, res.FlagMarked)
	assert.Zero(t, res.NotificationID)
	assert.Equal(t, []string{"resolve", "log.create"}, f.calls.list())
	assert.Empty(t, f.transport.msgs)
}

func TestDispatch_FlagAlreadySet(t *testing.T) {
	f := newDispatchFixture()
	f.flags.already = true

	res := f.dispatcher().Dispatch(context.Background(), testCandidate(), types.Reminder1Day, dispatchNow)

	assert.Equal(t, OutcomeSent, res.Outcome)
	assert.NoError(t, res.Err)
	assert.False(t, res.FlagMarked)
}

func TestDispatch_FlagErrorIsReportedAndNotificationStillCreated(t *testing.T) {
	f := newDispatchFixture()
	f.flags.err = errors.New("deadlock")

	res := f.dispatcher().Dispatch(context.Background(), testCandidate(), types.Reminder1Day, dispatchNow)

	assert.Equal(t, OutcomeSent, res.Outcome)
	assert.ErrorContains(t, res.Err, "mark reminder flag")
	assert.False(t, res.FlagMarked)
	assert.NotZero(t, res.NotificationID)
}

func TestDispatch_NotificationErrorIsReported(t *testing.T) {
	f := newDispatchFixture()
	f.notifications.err = errors.New("fk violation")

	res := f.dispatcher().Dispatch(context.Background(), testCandidate(), types.Reminder1Day, dispatchNow)

	assert.Equal(t, OutcomeSent, res.Outcome)
	assert.ErrorContains(t, res.Err, "create notification")
	assert.True(t, res.FlagMarked)
	assert.Zero(t, res.NotificationID)
}

func TestDispatch_TransportPanicIsContained(t *testing.T) {
	f := newDispatchFixture()
	f.transport.panicMsg = "nil map"

	var res DispatchResult
	require.NotPanics(t, func() {
		res = f.dispatcher().Dispatch(context.Background(), testCandidate(), types.Reminder1Day, dispatchNow)
	})

	require.Error(t, res.Err)
	var appErr *types.AppError
	require.ErrorAs(t, res.Err, &appErr)
	assert.Equal(t, types.ErrCodeInternalTaskPanic, appErr.Code)

	assert.Equal(t, OutcomeSendFailed, res.Outcome)
	assert.Equal(t, int64(1), res.EmailLogID)
	assert.True(t, res.FlagMarked)
	assert.NotZero(t, res.NotificationID)
	assert.Contains(t, f.logs.failures[1], "nil map")
	assert.Equal(t, []string{"resolve", "log.create", "send", "log.failed", "flag", "notification"}, f.calls.list())
	assert.Equal(t, []Outcome{OutcomeSendFailed}, f.metrics.outcomes)
	assert.Equal(t, 1, f.metrics.latency)
}

func TestDispatch_RepeatedTransportPanicWritesOneLogRow(t *testing.T) {
	f := newDispatchFixture()
	f.transport.panicMsg = "boom"
	flags := &onceFlags{}
	d := NewDispatcher(
		f.templates, f.logs, flags, f.notifications, f.transport, f.metrics,
		DispatcherConfig{SendTimeout: time.Second},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)

	// Later scans only see the candidate while its flag is still false.
	for range 3 {
		if flags.sent[types.Reminder1Day] {
			continue
		}
		d.Dispatch(context.Background(), testCandidate(), types.Reminder1Day, dispatchNow)
	}

	assert.Len(t, f.logs.created, 1)
	assert.Len(t, f.logs.failures, 1)
	assert.True(t, flags.sent[types.Reminder1Day])
	assert.Len(t, f.notifications.created, 1)
}

// onceFlags flips each flag at most once, like the conditional update.
type onceFlags struct {
	sent map[types.ReminderKind]bool
}

func (f *onceFlags) MarkReminderSent(_ context.Context, _ int64, kind types.ReminderKind, _ time.Time) (bool, error) {
	if f.sent == nil {
		f.sent = map[types.ReminderKind]bool{}
	}
	if f.sent[kind] {
		return false, nil
	}
	f.sent[kind] = true
	return true, nil
}
