package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"placement/internal/types"
)

func TestStatsRepository_PendingWork(t *testing.T) {
	db := new(mockDBTX)
	repo := NewStatsRepository(db)
	ctx := context.Background()

	cutoffs := StatsCutoffs{
		Now:           repoNow,
		OverdueBefore: repoNow.Add(-time.Hour),
		OTPBefore:     repoNow.Add(-24 * time.Hour),
		FailedSince:   repoNow.Add(-24 * time.Hour),
	}

	db.On("QueryRow", ctx, mock.AnythingOfType("string"),
		[]any{cutoffs.Now, cutoffs.OverdueBefore, cutoffs.OTPBefore, cutoffs.FailedSince},
	).Return(&mockRow{scanFn: func(dest ...any) error {
		require.Len(t, dest, 6)
		for i, d := range dest {
			*d.(*int64) = int64(i + 1)
		}
		return nil
	}})

	s, err := repo.PendingWork(ctx, cutoffs)
	require.NoError(t, err)
	assert.Equal(t, types.PendingWorkStats{
		ExpiredNotifications: 1,
		ApplicationsToDelete: 2,
		OverdueInterviews:    3,
		ExpiredOTPs:          4,
		ExpiredActiveJobs:    5,
		FailedEmailsLast24h:  6,
	}, *s)
	assert.True(t, s.CollectedAt.IsZero())
	db.AssertExpectations(t)
}

func TestStatsRepository_PendingWork_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewStatsRepository(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: errors.New("statement timeout")})

	s, err := repo.PendingWork(ctx, StatsCutoffs{Now: repoNow})
	assert.Nil(t, s)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}
