// Package app wires configuration into the concrete stores, transport and
// services shared by the scheduler process, the maintenance Lambda and the
// job-runner CLI.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/jackc/pgx/v5/pgxpool"

	"placement/internal/config"
	"placement/internal/db"
	"placement/internal/external"
	"placement/internal/notifications/core"
	"placement/internal/notifications/email"
	"placement/internal/scheduler"
	"placement/internal/types"
)

// App holds everything built from a Config. Close releases the pool.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Pool      *pgxpool.Pool
	Transport external.MailTransport
	Bands     []scheduler.Band
	Services  scheduler.Services
	Stats     *scheduler.StatsService
	Locks     *db.JobLockRepository
	History   *db.JobHistoryRepository
}

// New opens the database, builds the mail transport and archiver, and wires
// the scheduler services. The reminder bands are validated against the
// configured reminder cadence before anything is returned.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	bands := scheduler.DefaultBands()
	if err := scheduler.ValidateBands(bands, cfg.Scheduler.ReminderInterval, logger); err != nil {
		return nil, fmt.Errorf("validating reminder bands: %w", err)
	}

	loc, err := time.LoadLocation(cfg.Mail.DisplayTimezone)
	if err != nil {
		return nil, fmt.Errorf("loading display timezone: %w", err)
	}

	awsCfg, err := LoadAWSConfig(ctx, cfg.AWS)
	if err != nil {
		return nil, err
	}

	transport, err := external.NewMailTransport(cfg.Mail, awsCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating mail transport: %w", err)
	}

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	interviews := db.NewInterviewRepository(pool)
	applications := db.NewApplicationRepository(pool)
	notifications := db.NewUserNotificationRepository(pool)

	templates, err := email.NewStore(db.NewEmailTemplateRepository(pool), logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("loading email templates: %w", err)
	}

	var cw *cloudwatch.Client
	dispatchMetrics := core.DispatchMetrics(core.PrometheusMetrics{})
	statsPublishers := []scheduler.StatsPublisher{scheduler.PrometheusStatsPublisher{}}
	if cfg.Observability.EnableCloudWatch {
		cw = cloudwatch.NewFromConfig(awsCfg)
		dispatchMetrics = core.MultiMetrics{
			core.PrometheusMetrics{},
			core.NewCloudWatchMetrics(cw, cfg.Observability.MetricNamespace, logger),
		}
		statsPublishers = append(statsPublishers,
			scheduler.NewCloudWatchStatsPublisher(cw, cfg.Observability.MetricNamespace, logger))
	}

	dispatcher := core.NewDispatcher(
		templates,
		db.NewEmailLogRepository(pool),
		interviews,
		notifications,
		transport,
		dispatchMetrics,
		core.DispatcherConfig{
			Sender:          types.SenderIdentity{Name: cfg.Mail.FromName, Address: cfg.Mail.FromAddress},
			SendTimeout:     cfg.Mail.SendTimeout,
			NotificationTTL: cfg.Retention.NotificationTTL,
			Location:        loc,
		},
		logger,
	)

	ret := cfg.Retention
	services := scheduler.Services{
		Reminders: scheduler.NewReminderService(interviews, dispatcher, bands, logger),
		Lifecycle: scheduler.NewLifecycleService(interviews, applications, scheduler.LifecycleConfig{
			OverdueGrace:      ret.OverdueGrace,
			RepairLookback:    ret.RepairLookback,
			ApplicationDelete: ret.ApplicationDelete,
		}, logger),
		Reaper: scheduler.NewReaperService(
			notifications,
			applications,
			db.NewMaintenanceRepository(pool),
			external.NewArchiver(cfg.Archive, awsCfg, logger),
			scheduler.ReaperConfig{
				OTPMaxAge:    ret.OTPMaxAge,
				AuditMaxAge:  ret.AuditMaxAge,
				ArchiveBatch: ret.AuditArchiveBatch,
			},
			logger,
		),
	}

	stats := scheduler.NewStatsService(db.NewStatsRepository(pool), scheduler.StatsConfig{
		OverdueGrace: ret.OverdueGrace,
		OTPMaxAge:    ret.OTPMaxAge,
	}, logger, statsPublishers...)

	logger.InfoContext(ctx, "application wired",
		"mail_provider", transport.Name(),
		"archive_bucket", cfg.Archive.Bucket,
		"archive_dir", cfg.Archive.Dir,
		"cloudwatch", cw != nil,
		"display_timezone", loc.String(),
	)

	return &App{
		Config:    cfg,
		Logger:    logger,
		Pool:      pool,
		Transport: transport,
		Bands:     bands,
		Services:  services,
		Stats:     stats,
		Locks:     db.NewJobLockRepository(pool),
		History:   db.NewJobHistoryRepository(pool),
	}, nil
}

// Close releases the database pool.
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
	}
}

// LoadAWSConfig loads the SDK configuration for cfg.Region. A non-empty
// EndpointURL points every client at it (LocalStack).
func LoadAWSConfig(ctx context.Context, cfg config.AWSConfig) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS SDK config: %w", err)
	}
	if cfg.EndpointURL != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.EndpointURL)
	}
	return awsCfg, nil
}
