package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/klauspost/compress/zstd"

	"placement/internal/external"
	"placement/internal/types"
)

// -----------------------------------------------------------------------------
// Reaper stores
// -----------------------------------------------------------------------------

// NotificationPurger deletes in-app notifications with expires_at <= now.
type NotificationPurger interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// ApplicationPurger deletes applications whose auto_delete_date <= now.
type ApplicationPurger interface {
	DeleteAutoExpired(ctx context.Context, now time.Time) (int64, error)
}

// MaintenanceStore covers the daily-only sweeps.
type MaintenanceStore interface {
	DeleteOTPsCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	ListActionsBefore(ctx context.Context, cutoff time.Time, limit int) ([]types.ApplicationAction, error)
	DeleteActionsByID(ctx context.Context, ids []int64) (int64, error)
	DeleteActionsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	ExpireJobsPastDeadline(ctx context.Context, now time.Time) (int64, error)
}

// ReaperConfig holds the retention cutoffs.
type ReaperConfig struct {
	OTPMaxAge    time.Duration
	AuditMaxAge  time.Duration
	ArchiveBatch int
}

// DefaultReaperConfig returns 24h OTP retention, 90d audit retention and
// 1000-row archive batches.
func DefaultReaperConfig() ReaperConfig {
	return ReaperConfig{
		OTPMaxAge:    24 * time.Hour,
		AuditMaxAge:  90 * 24 * time.Hour,
		ArchiveBatch: 1000,
	}
}

// Sweep names, also used as SweepReport keys.
const (
	SweepNotifications = "notifications"
	SweepApplications  = "applications"
	SweepOTPs          = "otps"
	SweepAuditRows     = "audit_rows"
	SweepJobs          = "jobs"
)

// SweepReport records the outcome of each sweep in a run.
type SweepReport struct {
	Counts map[string]int64
	Errors map[string]error
}

func newSweepReport() SweepReport {
	return SweepReport{
		Counts: make(map[string]int64),
		Errors: make(map[string]error),
	}
}

// Total sums the affected rows over all sweeps.
func (r SweepReport) Total() int {
	var n int64
	for _, c := range r.Counts {
		n += c
	}
	return int(n)
}

// Err joins the sweep errors, nil when every sweep succeeded.
func (r SweepReport) Err() error {
	var errs []error
	for _, name := range []string{SweepNotifications, SweepApplications, SweepOTPs, SweepAuditRows, SweepJobs} {
		if err, ok := r.Errors[name]; ok {
			errs = append(errs, fmt.Errorf("%s sweep: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// -----------------------------------------------------------------------------
// Reaper Service
// -----------------------------------------------------------------------------

// ReaperService deletes and expires rows past their retention. Sweeps are
// independent; a failure in one is recorded and the next still runs.
type ReaperService struct {
	notifications NotificationPurger
	applications  ApplicationPurger
	store         MaintenanceStore
	archiver      external.Archiver // nil deletes audit rows without archiving
	cfg           ReaperConfig
	logger        *slog.Logger
}

// NewReaperService creates a ReaperService. archiver may be nil.
func NewReaperService(
	notifications NotificationPurger,
	applications ApplicationPurger,
	store MaintenanceStore,
	archiver external.Archiver,
	cfg ReaperConfig,
	logger *slog.Logger,
) *ReaperService {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ArchiveBatch <= 0 {
		cfg.ArchiveBatch = DefaultReaperConfig().ArchiveBatch
	}
	return &ReaperService{
		notifications: notifications,
		applications:  applications,
		store:         store,
		archiver:      archiver,
		cfg:           cfg,
		logger:        logger,
	}
}

// PurgeNotifications deletes notifications with expires_at <= now.
func (s *ReaperService) PurgeNotifications(ctx context.Context, now time.Time) (int64, error) {
	return s.notifications.DeleteExpired(ctx, now)
}

// PurgeApplications deletes applications whose auto-delete date has passed.
func (s *ReaperService) PurgeApplications(ctx context.Context, now time.Time) (int64, error) {
	return s.applications.DeleteAutoExpired(ctx, now)
}

// PurgeOTPs deletes OTP rows created strictly before now - OTPMaxAge.
func (s *ReaperService) PurgeOTPs(ctx context.Context, now time.Time) (int64, error) {
	return s.store.DeleteOTPsCreatedBefore(ctx, now.Add(-s.cfg.OTPMaxAge))
}

// ExpireJobs flips active jobs whose deadline has passed to expired.
func (s *ReaperService) ExpireJobs(ctx context.Context, now time.Time) (int64, error) {
	return s.store.ExpireJobsPastDeadline(ctx, now)
}

// ArchiveAuditRows moves application_actions rows older than AuditMaxAge to
// the archiver in zstd-compressed JSON-lines batches, deleting each batch
// once its upload succeeds. Without an archiver the rows are deleted in one
// statement.
//
// A batch is only deleted by the ids it uploaded, so a failed upload leaves
// the rows for the next run.
func (s *ReaperService) ArchiveAuditRows(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-s.cfg.AuditMaxAge)

	if s.archiver == nil {
		n, err := s.store.DeleteActionsBefore(ctx, cutoff)
		if err != nil {
			return 0, fmt.Errorf("deleting audit rows: %w", err)
		}
		return n, nil
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return 0, fmt.Errorf("creating zstd encoder: %w", err)
	}
	defer enc.Close()

	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		batch, err := s.store.ListActionsBefore(ctx, cutoff, s.cfg.ArchiveBatch)
		if err != nil {
			return total, fmt.Errorf("listing audit rows: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		payload, err := encodeActions(enc, batch)
		if err != nil {
			return total, fmt.Errorf("encoding audit batch: %w", err)
		}

		key := archiveKey(now, batch)
		if err := s.archiver.Put(ctx, key, payload); err != nil {
			return total, fmt.Errorf("uploading audit batch %s: %w", key, err)
		}

		ids := make([]int64, len(batch))
		for i, a := range batch {
			ids[i] = a.ID
		}
		deleted, err := s.store.DeleteActionsByID(ctx, ids)
		if err != nil {
			return total, fmt.Errorf("deleting archived audit rows: %w", err)
		}
		total += deleted

		s.logger.InfoContext(ctx, "archived audit batch",
			"key", key,
			"count", len(batch),
			"compressed_bytes", len(payload),
		)

		if len(batch) < s.cfg.ArchiveBatch || deleted == 0 {
			break
		}
	}
	return total, nil
}

// RunEphemeral runs the hourly sweeps.
func (s *ReaperService) RunEphemeral(ctx context.Context, now time.Time) SweepReport {
	report := newSweepReport()
	s.sweep(ctx, &report, SweepNotifications, func() (int64, error) { return s.PurgeNotifications(ctx, now) })
	s.sweep(ctx, &report, SweepApplications, func() (int64, error) { return s.PurgeApplications(ctx, now) })
	return report
}

// RunDaily runs every sweep.
func (s *ReaperService) RunDaily(ctx context.Context, now time.Time) SweepReport {
	report := newSweepReport()
	s.sweep(ctx, &report, SweepNotifications, func() (int64, error) { return s.PurgeNotifications(ctx, now) })
	s.sweep(ctx, &report, SweepApplications, func() (int64, error) { return s.PurgeApplications(ctx, now) })
	s.sweep(ctx, &report, SweepOTPs, func() (int64, error) { return s.PurgeOTPs(ctx, now) })
	s.sweep(ctx, &report, SweepAuditRows, func() (int64, error) { return s.ArchiveAuditRows(ctx, now) })
	s.sweep(ctx, &report, SweepJobs, func() (int64, error) { return s.ExpireJobs(ctx, now) })
	return report
}

// Ephemeral adapts RunEphemeral to a task Handler.
func (s *ReaperService) Ephemeral(ctx context.Context, now time.Time) (int, error) {
	r := s.RunEphemeral(ctx, now)
	return r.Total(), r.Err()
}

// Daily adapts RunDaily to a task Handler.
func (s *ReaperService) Daily(ctx context.Context, now time.Time) (int, error) {
	r := s.RunDaily(ctx, now)
	return r.Total(), r.Err()
}

func (s *ReaperService) sweep(ctx context.Context, report *SweepReport, name string, fn func() (int64, error)) {
	n, err := fn()
	report.Counts[name] = n
	if err != nil {
		report.Errors[name] = err
		s.logger.ErrorContext(ctx, "sweep failed", "sweep", name, "count", n, "error", err)
		return
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "sweep complete", "sweep", name, "count", n)
	}
}

// encodeActions serializes batch as JSON lines and compresses it.
func encodeActions(enc *zstd.Encoder, batch []types.ApplicationAction) ([]byte, error) {
	var buf bytes.Buffer
	jw := json.NewEncoder(&buf)
	for i := range batch {
		if err := jw.Encode(&batch[i]); err != nil {
			return nil, err
		}
	}
	return enc.EncodeAll(buf.Bytes(), nil), nil
}

// archiveKey is application_actions/YYYY/MM/DD/batch_<first>-<last>.jsonl.zst
// under the run date, named by the first and last row ids of the batch.
func archiveKey(now time.Time, batch []types.ApplicationAction) string {
	return fmt.Sprintf("application_actions/%s/batch_%d-%d.jsonl.zst",
		now.UTC().Format("2006/01/02"),
		batch[0].ID,
		batch[len(batch)-1].ID,
	)
}
