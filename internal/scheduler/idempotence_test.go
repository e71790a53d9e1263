package scheduler

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"placement/internal/external"
	"placement/internal/notifications/core"
	"placement/internal/notifications/email"
	"placement/internal/types"
)

// ============================================================
// In-memory store
// ============================================================

// memStore keeps interviews, applications, email logs and notifications
// across runs. Every write honours the same guards as the SQL repositories.
type memStore struct {
	mu           sync.Mutex
	interviews   map[int64]*types.ReminderCandidate
	applications map[int64]*types.JobApplication

	emailLogs     []types.EmailLog
	notifications []types.UserNotification
	flagFlips     map[types.ReminderKind]int
	transitions   map[int64]int
}

func newMemStore() *memStore {
	return &memStore{
		interviews:   map[int64]*types.ReminderCandidate{},
		applications: map[int64]*types.JobApplication{},
		flagFlips:    map[types.ReminderKind]int{},
		transitions:  map[int64]int{},
	}
}

func (s *memStore) addInterview(id, applicationID int64, date time.Time) {
	c := candidate(id, date, types.ReminderFlags{})
	c.ApplicationID = applicationID
	s.interviews[id] = &c
}

func (s *memStore) addApplication(id int64, status types.ApplicationStatus) {
	s.applications[id] = &types.JobApplication{ID: id, Status: status}
}

func (s *memStore) ListReminderCandidates(_ context.Context, now, until time.Time) ([]types.ReminderCandidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.ReminderCandidate
	for _, iv := range s.interviews {
		f := iv.Reminders
		if iv.Status != types.InterviewScheduled || !iv.InterviewDate.After(now) || iv.InterviewDate.After(until) {
			continue
		}
		if f.Week && f.Day && f.Hour {
			continue
		}
		out = append(out, *iv)
	}
	slices.SortFunc(out, func(a, b types.ReminderCandidate) int { return int(a.ID - b.ID) })
	return out, nil
}

func (s *memStore) MarkReminderSent(_ context.Context, interviewID int64, kind types.ReminderKind, _ time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	iv := s.interviews[interviewID]
	if iv.Reminders.Sent(kind) {
		return false, nil
	}
	switch kind {
	case types.Reminder1Week:
		iv.Reminders.Week = true
	case types.Reminder1Day:
		iv.Reminders.Day = true
	case types.Reminder1Hour:
		iv.Reminders.Hour = true
	}
	s.flagFlips[kind]++
	return true, nil
}

func (s *memStore) TransitionOverdue(_ context.Context, cutoff, now time.Time) ([]types.TransitionedInterview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var moved []types.TransitionedInterview
	for _, iv := range s.interviews {
		if iv.Status != types.InterviewScheduled || !iv.InterviewDate.Before(cutoff) {
			continue
		}
		iv.Status = types.InterviewNoShow
		iv.UpdatedAt = now
		s.transitions[iv.ID]++
		moved = append(moved, types.TransitionedInterview{InterviewID: iv.ID, ApplicationID: iv.ApplicationID})
	}
	return moved, nil
}

// rejectable applies the cascade guard: still interview_scheduled and no
// other scheduled interview for the application.
func (s *memStore) rejectable(applicationID int64) bool {
	app, ok := s.applications[applicationID]
	if !ok || app.Status != types.ApplicationInterviewScheduled {
		return false
	}
	for _, iv := range s.interviews {
		if iv.ApplicationID == applicationID && iv.Status == types.InterviewScheduled {
			return false
		}
	}
	return true
}

func (s *memStore) reject(applicationID int64, reason string, deleteAt, now time.Time) {
	app := s.applications[applicationID]
	app.Status = types.ApplicationRejected
	app.RejectionReason = &reason
	app.AutoDeleteDate = &deleteAt
	app.UpdatedAt = now
}

func (s *memStore) RejectAfterNoShow(_ context.Context, applicationIDs []int64, reason string, deleteAt, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, id := range applicationIDs {
		if s.rejectable(id) {
			s.reject(id, reason, deleteAt, now)
			n++
		}
	}
	return n, nil
}

func (s *memStore) RejectMissedNoShows(_ context.Context, since time.Time, reason string, deleteAt, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, iv := range s.interviews {
		if iv.Status != types.InterviewNoShow || iv.UpdatedAt.Before(since) {
			continue
		}
		if s.rejectable(iv.ApplicationID) {
			s.reject(iv.ApplicationID, reason, deleteAt, now)
			n++
		}
	}
	return n, nil
}

// memEmailLogs and memNotifications expose the store through the
// dispatcher's Create signatures.
type memEmailLogs struct{ s *memStore }

func (l memEmailLogs) Create(_ context.Context, e *types.EmailLog) (int64, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	l.s.emailLogs = append(l.s.emailLogs, *e)
	return int64(len(l.s.emailLogs)), nil
}

func (l memEmailLogs) MarkSent(_ context.Context, id int64, sentAt time.Time) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	l.s.emailLogs[id-1].IsSent = true
	l.s.emailLogs[id-1].SentAt = &sentAt
	return nil
}

func (l memEmailLogs) MarkFailed(_ context.Context, id int64, errMsg string) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	l.s.emailLogs[id-1].ErrorMessage = &errMsg
	return nil
}

type memNotifications struct{ s *memStore }

func (n memNotifications) Create(_ context.Context, un *types.UserNotification) (int64, error) {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()
	n.s.notifications = append(n.s.notifications, *un)
	return int64(len(n.s.notifications)), nil
}

// ============================================================
// Reminder idempotence
// ============================================================

func TestReminderScan_RepeatedScansSendOncePerKind(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	store := newMemStore()
	store.addInterview(1, 10, now.Add(168*time.Hour))
	store.addInterview(2, 20, now.Add(24*time.Hour))
	store.addInterview(3, 30, now.Add(60*time.Minute))

	templates, err := email.NewStore(nil, discardLogger())
	require.NoError(t, err)
	transport := external.NewStubTransport(discardLogger())
	dispatcher := core.NewDispatcher(
		templates, memEmailLogs{store}, store, memNotifications{store}, transport, nil,
		core.DispatcherConfig{Sender: types.SenderIdentity{Address: "noreply@placement.test"}},
		discardLogger(),
	)
	svc := NewReminderService(store, dispatcher, nil, discardLogger())

	// Every interview stays inside its band for both scans.
	first, err := svc.Scan(context.Background(), now)
	require.NoError(t, err)
	second, err := svc.Scan(context.Background(), now.Add(5*time.Minute))
	require.NoError(t, err)

	assert.Equal(t, 3, first.Count(core.OutcomeSent))
	assert.Empty(t, second.Results)

	assert.Len(t, store.emailLogs, 3)
	assert.Len(t, store.notifications, 3)
	assert.Len(t, transport.Sent(), 3)
	assert.Equal(t, map[types.ReminderKind]int{
		types.Reminder1Week: 1,
		types.Reminder1Day:  1,
		types.Reminder1Hour: 1,
	}, store.flagFlips)
	for _, l := range store.emailLogs {
		assert.True(t, l.IsSent)
	}
}

// ============================================================
// Overdue idempotence
// ============================================================

func TestProcessOverdue_RepeatedRunsTransitionOnce(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	store := newMemStore()

	// Missed interview of an application still waiting on it.
	store.addApplication(10, types.ApplicationInterviewScheduled)
	store.addInterview(1, 10, now.Add(-2*time.Hour))
	// Missed interview of an application that was already hired.
	store.addApplication(20, types.ApplicationHired)
	store.addInterview(2, 20, now.Add(-3*time.Hour))
	// Missed interview whose application has another one scheduled.
	store.addApplication(30, types.ApplicationInterviewScheduled)
	store.addInterview(3, 30, now.Add(-2*time.Hour))
	store.addInterview(4, 30, now.Add(48*time.Hour))
	// Inside the grace period on both runs.
	store.addApplication(50, types.ApplicationInterviewScheduled)
	store.addInterview(5, 50, now.Add(-30*time.Minute))

	svc := NewLifecycleService(store, store, DefaultLifecycleConfig(), discardLogger())

	first, err := svc.ProcessOverdue(context.Background(), now)
	require.NoError(t, err)
	second, err := svc.ProcessOverdue(context.Background(), now.Add(30*time.Minute))
	require.NoError(t, err)

	assert.Len(t, first.Transitioned, 3)
	assert.Equal(t, int64(1), first.Rejected)
	assert.Empty(t, second.Transitioned)
	assert.Zero(t, second.Rejected)
	assert.Zero(t, second.Repaired)

	assert.Equal(t, map[int64]int{1: 1, 2: 1, 3: 1}, store.transitions)
	assert.Equal(t, types.InterviewScheduled, store.interviews[5].Status)

	rejected := store.applications[10]
	assert.Equal(t, types.ApplicationRejected, rejected.Status)
	require.NotNil(t, rejected.AutoDeleteDate)
	assert.Equal(t, now.Add(10*24*time.Hour), *rejected.AutoDeleteDate)

	hired := store.applications[20]
	assert.Equal(t, types.ApplicationHired, hired.Status)
	assert.Nil(t, hired.RejectionReason)
	assert.True(t, hired.UpdatedAt.IsZero())

	assert.Equal(t, types.ApplicationInterviewScheduled, store.applications[30].Status)
	assert.Equal(t, types.ApplicationInterviewScheduled, store.applications[50].Status)
}
