package main

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"placement/internal/scheduler"
)

func TestParseFlags_Task(t *testing.T) {
	opts, err := parseFlags([]string{"--task=overdue_interviews", "--reference-time=2026-01-15T07:30:00+05:30"}, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, scheduler.TaskOverdueInterviews, opts.payload.Task)
	require.NotNil(t, opts.payload.ReferenceTime)
	assert.Equal(t, time.Date(2026, 1, 15, 2, 0, 0, 0, time.UTC), *opts.payload.ReferenceTime)
}

func TestParseFlags_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing task", nil},
		{"unknown task", []string{"--task=aggregate_usage"}},
		{"bad reference time", []string{"--task=daily_maintenance", "--reference-time=yesterday"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseFlags(tt.args, io.Discard)
			assert.True(t, errors.Is(err, errUsage), "got %v", err)
		})
	}
}

func TestParseFlags_ListNeedsNoTask(t *testing.T) {
	opts, err := parseFlags([]string{"--list"}, io.Discard)
	require.NoError(t, err)
	assert.True(t, opts.list)
}

func TestPrintPayload(t *testing.T) {
	ref := time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC)
	var buf bytes.Buffer

	require.NoError(t, printPayload(&buf, scheduler.MaintenancePayload{Task: scheduler.TaskDailyMaintenance, ReferenceTime: &ref}))

	assert.JSONEq(t, `{"task":"daily_maintenance","reference_time":"2026-03-02T03:00:00Z"}`, buf.String())
}

func TestPrintAvailableTasks_ListsEveryTask(t *testing.T) {
	var buf bytes.Buffer
	printAvailableTasks(&buf)

	for _, task := range scheduler.AllTasks {
		assert.True(t, strings.Contains(buf.String(), string(task)), "missing %s", task)
		assert.NotEmpty(t, taskDescriptions[task])
	}
}
