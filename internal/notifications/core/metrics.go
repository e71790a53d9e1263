package core

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/prometheus/client_golang/prometheus"

	"placement/internal/types"
)

// DispatchMetrics receives one call per dispatch outcome and one per
// transport send. Implementations must not block the dispatcher on failure.
type DispatchMetrics interface {
	RecordDispatch(ctx context.Context, kind types.ReminderKind, outcome Outcome)
	RecordSendLatency(ctx context.Context, transport string, d time.Duration)
}

// ---------------------------------------------------------------------------
// Prometheus
// ---------------------------------------------------------------------------

var DispatchOutcomesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "reminder_dispatch_total",
		Help: "Reminder dispatch attempts by band and outcome",
	},
	[]string{"kind", "outcome"},
)

var MailSendDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "mail_send_duration_seconds",
		Help:    "Time spent in the mail transport per message",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"transport"},
)

// RegisterMetrics registers the dispatch collectors with reg. Registering
// twice is not an error.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{DispatchOutcomesTotal, MailSendDuration} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// PrometheusMetrics records into the package-level collectors.
type PrometheusMetrics struct{}

func (PrometheusMetrics) RecordDispatch(_ context.Context, kind types.ReminderKind, outcome Outcome) {
	DispatchOutcomesTotal.WithLabelValues(string(kind), string(outcome)).Inc()
}

func (PrometheusMetrics) RecordSendLatency(_ context.Context, transport string, d time.Duration) {
	MailSendDuration.WithLabelValues(transport).Observe(d.Seconds())
}

// ---------------------------------------------------------------------------
// CloudWatch
// ---------------------------------------------------------------------------

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Metric and dimension names pushed to CloudWatch.
const (
	MetricReminderDispatch = "ReminderDispatch"
	MetricMailSendLatency  = "MailSendLatency"
	DimKind                = "Kind"
	DimOutcome             = "Outcome"
	DimTransport           = "Transport"
)

// CloudWatchMetrics pushes dispatch metrics to CloudWatch.
//
// Metrics emitted:
//   - ReminderDispatch: Dims {Kind, Outcome}, Count
//   - MailSendLatency: Dims {Transport}, Milliseconds
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchMetrics creates a CloudWatchMetrics publishing to namespace.
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchMetrics{client: client, namespace: namespace, logger: logger}
}

func (m *CloudWatchMetrics) RecordDispatch(ctx context.Context, kind types.ReminderKind, outcome Outcome) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(MetricReminderDispatch),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(DimKind), Value: aws.String(string(kind))},
			{Name: aws.String(DimOutcome), Value: aws.String(string(outcome))},
		},
	})
}

func (m *CloudWatchMetrics) RecordSendLatency(ctx context.Context, transport string, d time.Duration) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(MetricMailSendLatency),
		Value:      aws.Float64(float64(d.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(DimTransport), Value: aws.String(transport)},
		},
	})
}

func (m *CloudWatchMetrics) put(ctx context.Context, datum cwtypes.MetricDatum) {
	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{datum},
	})
	if err != nil {
		m.logger.WarnContext(ctx, "failed to push metric",
			"metric", aws.ToString(datum.MetricName),
			"error", err,
		)
	}
}

// MultiMetrics fans each call out to every sink.
type MultiMetrics []DispatchMetrics

func (mm MultiMetrics) RecordDispatch(ctx context.Context, kind types.ReminderKind, outcome Outcome) {
	for _, m := range mm {
		m.RecordDispatch(ctx, kind, outcome)
	}
}

func (mm MultiMetrics) RecordSendLatency(ctx context.Context, transport string, d time.Duration) {
	for _, m := range mm {
		m.RecordSendLatency(ctx, transport, d)
	}
}

var (
	_ DispatchMetrics = PrometheusMetrics{}
	_ DispatchMetrics = (*CloudWatchMetrics)(nil)
	_ DispatchMetrics = MultiMetrics(nil)
)
