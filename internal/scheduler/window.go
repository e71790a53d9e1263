package scheduler

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"placement/internal/types"
)

// Band is the eligibility window for one reminder kind. The time until the
// interview is truncated to Resolution, then compared inclusively against
// [Nominal-Tolerance, Nominal+Tolerance].
type Band struct {
	Kind       types.ReminderKind
	Nominal    time.Duration
	Tolerance  time.Duration
	Resolution time.Duration
}

// DefaultBands returns the 1 week, 1 day and 1 hour bands.
func DefaultBands() []Band {
	return []Band{
		{Kind: types.Reminder1Week, Nominal: 168 * time.Hour, Tolerance: time.Hour, Resolution: time.Minute},
		{Kind: types.Reminder1Day, Nominal: 24 * time.Hour, Tolerance: time.Hour, Resolution: time.Hour},
		{Kind: types.Reminder1Hour, Nominal: 60 * time.Minute, Tolerance: 5 * time.Minute, Resolution: time.Minute},
	}
}

// Contains reports whether until falls in the band.
func (b Band) Contains(until time.Duration) bool {
	t := until.Truncate(b.Resolution)
	return t >= b.Nominal-b.Tolerance && t <= b.Nominal+b.Tolerance
}

// Lower is the smallest real duration the band accepts.
func (b Band) Lower() time.Duration { return b.Nominal - b.Tolerance }

// Upper is the exclusive upper bound of real durations the band accepts.
func (b Band) Upper() time.Duration { return b.Nominal + b.Tolerance + b.Resolution }

// EffectiveWidth is the span of real durations that land in the band. A scan
// cadence wider than this can step over the band entirely.
func (b Band) EffectiveWidth() time.Duration { return b.Upper() - b.Lower() }

// ValidateBands rejects malformed bands, bands that a scan every cadence
// could miss, and bands that reach into their neighbour. A band narrower than
// two cadences is accepted with a warning: a single skipped or slow scan
// misses it.
func ValidateBands(bands []Band, cadence time.Duration, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if cadence <= 0 {
		return types.NewAppError(types.ErrCodeValidationInvalidWindow, "scan cadence must be positive", nil)
	}
	if len(bands) == 0 {
		return types.NewAppError(types.ErrCodeValidationInvalidWindow, "no reminder bands configured", nil)
	}

	seen := make(map[types.ReminderKind]bool, len(bands))
	for _, b := range bands {
		switch {
		case !b.Kind.Valid():
			return invalidBand(b, "unknown kind")
		case seen[b.Kind]:
			return invalidBand(b, "duplicate kind")
		case b.Resolution <= 0:
			return invalidBand(b, "resolution must be positive")
		case b.Tolerance < 0 || b.Tolerance >= b.Nominal:
			return invalidBand(b, "tolerance must be in [0, nominal)")
		case b.EffectiveWidth() < cadence:
			return invalidBand(b, fmt.Sprintf("effective width %s is narrower than the scan cadence %s", b.EffectiveWidth(), cadence))
		}
		seen[b.Kind] = true

		if b.EffectiveWidth() < 2*cadence {
			logger.Warn("reminder band is narrower than two scan intervals",
				"kind", string(b.Kind),
				"width", b.EffectiveWidth().String(),
				"cadence", cadence.String(),
			)
		}
	}

	sorted := slices.SortedFunc(slices.Values(bands), func(a, b Band) int {
		return cmp.Compare(a.Nominal, b.Nominal)
	})
	for i := 1; i < len(sorted); i++ {
		lo, hi := sorted[i-1], sorted[i]
		if hi.Lower() <= lo.Nominal || lo.Upper() > hi.Lower() {
			return invalidBand(hi, fmt.Sprintf("overlaps the %s band", lo.Kind))
		}
	}
	return nil
}

func invalidBand(b Band, reason string) error {
	return types.NewAppError(
		types.ErrCodeValidationInvalidWindow,
		fmt.Sprintf("reminder band %s: %s", b.Kind, reason),
		nil,
	).WithDetails(map[string]any{"kind": string(b.Kind)})
}

// Lookahead is the farthest interview offset any band can accept. The
// reminder scan only loads interviews within now+Lookahead.
func Lookahead(bands []Band) time.Duration {
	var longest time.Duration
	for _, b := range bands {
		longest = max(longest, b.Upper())
	}
	return longest
}

// Evaluate returns the kinds due for iv at now. It is pure: the interview
// must be scheduled, in the future, inside a band and with that band's flag
// still false.
func Evaluate(bands []Band, now time.Time, iv types.Interview) []types.ReminderKind {
	if iv.Status != types.InterviewScheduled {
		return nil
	}
	until := iv.InterviewDate.Sub(now)
	if until <= 0 {
		return nil
	}

	var due []types.ReminderKind
	for _, b := range bands {
		if iv.Reminders.Sent(b.Kind) {
			continue
		}
		if b.Contains(until) {
			due = append(due, b.Kind)
		}
	}
	return due
}
