package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"placement/internal/db"
	"placement/internal/notifications/core"
	"placement/internal/types"
)

// PendingWorkCounter runs the read-only pending-work query.
type PendingWorkCounter interface {
	PendingWork(ctx context.Context, c db.StatsCutoffs) (*types.PendingWorkStats, error)
}

// StatsPublisher receives every successful collection.
type StatsPublisher interface {
	Publish(ctx context.Context, stats *types.PendingWorkStats)
}

// StatsConfig mirrors the sweep predicates so the counts match what the
// sweeps would touch.
type StatsConfig struct {
	OverdueGrace time.Duration
	OTPMaxAge    time.Duration
	FailedWindow time.Duration
}

// StatsService answers the operator stats query.
type StatsService struct {
	counter    PendingWorkCounter
	publishers []StatsPublisher
	cfg        StatsConfig
	logger     *slog.Logger
}

// NewStatsService creates a StatsService. Publishers run in order after each
// collection.
func NewStatsService(counter PendingWorkCounter, cfg StatsConfig, logger *slog.Logger, publishers ...StatsPublisher) *StatsService {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FailedWindow <= 0 {
		cfg.FailedWindow = 24 * time.Hour
	}
	return &StatsService{
		counter:    counter,
		publishers: publishers,
		cfg:        cfg,
		logger:     logger,
	}
}

// Collect counts pending work as of now. It writes nothing to the database.
func (s *StatsService) Collect(ctx context.Context, now time.Time) (*types.PendingWorkStats, error) {
	stats, err := s.counter.PendingWork(ctx, db.StatsCutoffs{
		Now:           now,
		OverdueBefore: now.Add(-s.cfg.OverdueGrace),
		OTPBefore:     now.Add(-s.cfg.OTPMaxAge),
		FailedSince:   now.Add(-s.cfg.FailedWindow),
	})
	if err != nil {
		return nil, fmt.Errorf("collecting pending work: %w", err)
	}
	stats.CollectedAt = now

	for _, p := range s.publishers {
		p.Publish(ctx, stats)
	}
	return stats, nil
}

// -----------------------------------------------------------------------------
// Publishers
// -----------------------------------------------------------------------------

// pendingItems flattens stats into stable metric names.
func pendingItems(s *types.PendingWorkStats) []struct {
	name  string
	value int64
} {
	return []struct {
		name  string
		value int64
	}{
		{"expired_notifications", s.ExpiredNotifications},
		{"applications_pending_delete", s.ApplicationsToDelete},
		{"overdue_interviews", s.OverdueInterviews},
		{"expired_otps", s.ExpiredOTPs},
		{"expired_active_jobs", s.ExpiredActiveJobs},
		{"failed_emails_24h", s.FailedEmailsLast24h},
	}
}

// PrometheusStatsPublisher sets the PendingWork gauges.
type PrometheusStatsPublisher struct{}

func (PrometheusStatsPublisher) Publish(_ context.Context, stats *types.PendingWorkStats) {
	for _, item := range pendingItems(stats) {
		PendingWork.WithLabelValues(item.name).Set(float64(item.value))
	}
}

// MetricPendingWork is the CloudWatch metric name for pending-work gauges.
const MetricPendingWork = "PendingWork"

// CloudWatchStatsPublisher pushes the counts as one PutMetricData call with
// an Item dimension per count. Failures are logged and dropped.
type CloudWatchStatsPublisher struct {
	client    core.CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchStatsPublisher creates a CloudWatchStatsPublisher.
func NewCloudWatchStatsPublisher(client core.CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchStatsPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchStatsPublisher{client: client, namespace: namespace, logger: logger}
}

func (p *CloudWatchStatsPublisher) Publish(ctx context.Context, stats *types.PendingWorkStats) {
	items := pendingItems(stats)
	data := make([]cwtypes.MetricDatum, 0, len(items))
	for _, item := range items {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String(MetricPendingWork),
			Value:      aws.Float64(float64(item.value)),
			Unit:       cwtypes.StandardUnitCount,
			Timestamp:  aws.Time(stats.CollectedAt),
			Dimensions: []cwtypes.Dimension{
				{Name: aws.String("Item"), Value: aws.String(item.name)},
			},
		})
	}

	_, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(p.namespace),
		MetricData: data,
	})
	if err != nil {
		p.logger.WarnContext(ctx, "failed to publish pending-work metrics", "error", err)
	}
}
