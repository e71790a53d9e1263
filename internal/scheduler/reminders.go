package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"placement/internal/notifications/core"
	"placement/internal/types"
)

// CandidateSource lists scheduled interviews in (now, until] with at least
// one reminder flag still false.
type CandidateSource interface {
	ListReminderCandidates(ctx context.Context, now, until time.Time) ([]types.ReminderCandidate, error)
}

// ReminderDispatcher delivers one reminder and reports what happened.
type ReminderDispatcher interface {
	Dispatch(ctx context.Context, c types.ReminderCandidate, kind types.ReminderKind, now time.Time) core.DispatchResult
}

// ReminderSummary tallies one reminder scan.
type ReminderSummary struct {
	Candidates int
	Results    []core.DispatchResult
}

// Count returns the number of results with outcome o.
func (s ReminderSummary) Count(o core.Outcome) int {
	n := 0
	for _, r := range s.Results {
		if r.Outcome == o {
			n++
		}
	}
	return n
}

// ReminderService evaluates every upcoming interview against the bands and
// dispatches the reminders that are due.
type ReminderService struct {
	interviews CandidateSource
	dispatcher ReminderDispatcher
	bands      []Band
	logger     *slog.Logger
}

// NewReminderService creates a ReminderService. A nil bands slice uses
// DefaultBands.
func NewReminderService(interviews CandidateSource, dispatcher ReminderDispatcher, bands []Band, logger *slog.Logger) *ReminderService {
	if logger == nil {
		logger = slog.Default()
	}
	if bands == nil {
		bands = DefaultBands()
	}
	return &ReminderService{
		interviews: interviews,
		dispatcher: dispatcher,
		bands:      bands,
		logger:     logger,
	}
}

// Scan loads candidates, evaluates them at now and dispatches sequentially.
// A failed dispatch never stops the scan; only a failed candidate query is
// returned as an error.
func (s *ReminderService) Scan(ctx context.Context, now time.Time) (ReminderSummary, error) {
	candidates, err := s.interviews.ListReminderCandidates(ctx, now, now.Add(Lookahead(s.bands)))
	if err != nil {
		return ReminderSummary{}, fmt.Errorf("listing reminder candidates: %w", err)
	}

	summary := ReminderSummary{Candidates: len(candidates)}
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		for _, kind := range Evaluate(s.bands, now, c.Interview) {
			res := s.dispatcher.Dispatch(ctx, c, kind, now)
			summary.Results = append(summary.Results, res)
		}
	}

	s.logger.InfoContext(ctx, "reminder scan complete",
		"candidates", summary.Candidates,
		"sent", summary.Count(core.OutcomeSent),
		"send_failed", summary.Count(core.OutcomeSendFailed),
		"skipped", summary.Count(core.OutcomeSkipped),
		"log_failed", summary.Count(core.OutcomeLogFailed),
	)
	return summary, nil
}

// Run adapts Scan to a task Handler. The item count is the number of
// dispatches attempted.
func (s *ReminderService) Run(ctx context.Context, now time.Time) (int, error) {
	summary, err := s.Scan(ctx, now)
	return len(summary.Results), err
}
