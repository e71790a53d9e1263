package db

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"placement/internal/types"
)

var repoNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// ============================================================
// ListReminderCandidates
// ============================================================

func TestInterviewRepository_ListReminderCandidates(t *testing.T) {
	db := new(mockDBTX)
	repo := NewInterviewRepository(db)
	ctx := context.Background()

	until := repoNow.Add(169 * time.Hour)
	interviewAt := repoNow.Add(24 * time.Hour)

	rows := newMockRows([][]any{
		{
			int64(7), int64(70), int64(700), "company", int64(5),
			interviewAt, "online", "https://meet.example.com/abc", "scheduled",
			true, false, false, repoNow,
			int64(11), "Dana Reyes", "dana@example.com", "Backend Engineer", "Acme",
		},
	})

	db.On("Query", ctx, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "i.status = 'scheduled'") &&
			strings.Contains(sql, "i.interview_date > $1") &&
			strings.Contains(sql, "i.interview_date <= $2")
	}), []any{repoNow, until}).Return(rows, nil)

	got, err := repo.ListReminderCandidates(ctx, repoNow, until)
	require.NoError(t, err)
	require.Len(t, got, 1)

	c := got[0]
	assert.Equal(t, int64(7), c.ID)
	assert.Equal(t, int64(70), c.ApplicationID)
	assert.Equal(t, types.ScheduledByCompany, c.ScheduledByType)
	assert.Equal(t, types.InterviewOnline, c.Mode)
	assert.Equal(t, types.InterviewScheduled, c.Status)
	assert.True(t, c.Reminders.Week)
	assert.False(t, c.Reminders.Day)
	assert.Equal(t, "dana@example.com", c.CandidateEmail)
	assert.Equal(t, "Acme", c.CompanyName)
	assert.True(t, rows.closed, "rows must be closed")
	db.AssertExpectations(t)
}

func TestInterviewRepository_ListReminderCandidates_QueryError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewInterviewRepository(db)
	ctx := context.Background()

	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(nil, errors.New("connection refused"))

	_, err := repo.ListReminderCandidates(ctx, repoNow, repoNow.Add(time.Hour))
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestInterviewRepository_ListReminderCandidates_RowsError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewInterviewRepository(db)
	ctx := context.Background()

	rows := newMockRows(nil)
	rows.errVal = errors.New("network blip")
	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).Return(rows, nil)

	_, err := repo.ListReminderCandidates(ctx, repoNow, repoNow.Add(time.Hour))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error iterating reminder candidates")
}

// ============================================================
// MarkReminderSent
// ============================================================

func TestInterviewRepository_MarkReminderSent_FlipsOnce(t *testing.T) {
	db := new(mockDBTX)
	repo := NewInterviewRepository(db)
	ctx := context.Background()

	isDayFlagUpdate := mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "SET reminder_1day_sent = TRUE") &&
			strings.Contains(sql, "AND reminder_1day_sent = FALSE")
	})

	db.On("Exec", ctx, isDayFlagUpdate, []any{int64(7), repoNow}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil).Once()
	db.On("Exec", ctx, isDayFlagUpdate, []any{int64(7), repoNow}).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil).Once()

	first, err := repo.MarkReminderSent(ctx, 7, types.Reminder1Day, repoNow)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := repo.MarkReminderSent(ctx, 7, types.Reminder1Day, repoNow)
	require.NoError(t, err)
	assert.False(t, second, "flag already set must report false")
	db.AssertExpectations(t)
}

func TestInterviewRepository_MarkReminderSent_UnknownKind(t *testing.T) {
	db := new(mockDBTX)
	repo := NewInterviewRepository(db)

	_, err := repo.MarkReminderSent(context.Background(), 7, types.ReminderKind("2hour"), repoNow)
	require.Error(t, err)
	db.AssertNotCalled(t, "Exec", mock.Anything, mock.Anything, mock.Anything)
}

// ============================================================
// TransitionOverdue
// ============================================================

func TestInterviewRepository_TransitionOverdue(t *testing.T) {
	db := new(mockDBTX)
	repo := NewInterviewRepository(db)
	ctx := context.Background()

	cutoff := repoNow.Add(-time.Hour)
	rows := newMockRows([][]any{
		{int64(1), int64(10)},
		{int64(2), int64(20)},
	})

	db.On("Query", ctx, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "SET status = 'no_show'") &&
			strings.Contains(sql, "WHERE status = 'scheduled' AND interview_date < $1") &&
			strings.Contains(sql, "RETURNING id, application_id")
	}), []any{cutoff, repoNow}).Return(rows, nil)

	moved, err := repo.TransitionOverdue(ctx, cutoff, repoNow)
	require.NoError(t, err)
	assert.Equal(t, []types.TransitionedInterview{
		{InterviewID: 1, ApplicationID: 10},
		{InterviewID: 2, ApplicationID: 20},
	}, moved)
	db.AssertExpectations(t)
}

func TestInterviewRepository_TransitionOverdue_NoneDue(t *testing.T) {
	db := new(mockDBTX)
	repo := NewInterviewRepository(db)
	ctx := context.Background()

	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).Return(newMockRows(nil), nil)

	moved, err := repo.TransitionOverdue(ctx, repoNow, repoNow)
	require.NoError(t, err)
	assert.Empty(t, moved)
}

func TestInterviewRepository_TransitionOverdue_ScanError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewInterviewRepository(db)
	ctx := context.Background()

	rows := newMockRows([][]any{{int64(1), int64(10)}})
	rows.scanErr = errors.New("bad column")
	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).Return(rows, nil)

	_, err := repo.TransitionOverdue(ctx, repoNow, repoNow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to scan transitioned interview")
}
