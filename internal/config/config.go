// Package config defines the configuration structure for the interview
// scheduler. Configuration is loaded once at process start and is immutable
// thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Any missing required value or invalid format fails startup.
package config

import (
	"time"

	"placement/internal/types"
)

// SecretString is an alias for types.SecretString so config consumers do not
// need to import the types package for credentials.
type SecretString = types.SecretString

// Mail provider identifiers accepted by MAIL_PROVIDER.
const (
	MailProviderSMTP     = "smtp"
	MailProviderSendGrid = "sendgrid"
	MailProviderSES      = "ses"
	MailProviderStub     = "stub"
)

// Config is the top-level configuration struct. Sub-components receive only
// the section they need.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"placement-scheduler"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Mail          MailConfig
	Scheduler     SchedulerConfig
	Retention     RetentionConfig
	Archive       ArchiveConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds the ops HTTP listener configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8081"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"5"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds regional configuration shared by the SSM, SES, S3 and
// CloudWatch clients.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// MailConfig selects and configures the mail transport.
type MailConfig struct {
	Provider    string        `envconfig:"MAIL_PROVIDER" default:"smtp" validate:"oneof=smtp sendgrid ses stub"`
	FromAddress string        `envconfig:"MAIL_FROM_ADDRESS" default:"noreply@placement.local" validate:"required,email"`
	FromName    string        `envconfig:"MAIL_FROM_NAME" default:"Placement Team"`
	SendTimeout time.Duration `envconfig:"MAIL_SEND_TIMEOUT" default:"10s" validate:"gt=0"`
	// DisplayTimezone is the IANA zone interview times are rendered in.
	DisplayTimezone string `envconfig:"MAIL_DISPLAY_TIMEZONE" default:"UTC"`

	SMTPHost     string       `envconfig:"SMTP_HOST" validate:"required_if=Provider smtp"`
	SMTPPort     int          `envconfig:"SMTP_PORT" default:"587"`
	SMTPUsername string       `envconfig:"SMTP_USERNAME"`
	SMTPPassword SecretString `envconfig:"SMTP_PASSWORD"`

	SendGridAPIKey SecretString `envconfig:"SENDGRID_API_KEY" validate:"required_if=Provider sendgrid"`

	SESConfigurationSet string `envconfig:"SES_CONFIGURATION_SET"`
}

// SchedulerConfig holds the task cadences. Cadences are configuration so a
// change is validated against the reminder bands at startup.
type SchedulerConfig struct {
	ReminderInterval time.Duration `envconfig:"SCHEDULER_REMINDER_INTERVAL" default:"10m" validate:"gt=0"`
	OverdueInterval  time.Duration `envconfig:"SCHEDULER_OVERDUE_INTERVAL" default:"30m" validate:"gt=0"`
	CleanupInterval  time.Duration `envconfig:"SCHEDULER_CLEANUP_INTERVAL" default:"1h" validate:"gt=0"`
	DailyInterval    time.Duration `envconfig:"SCHEDULER_DAILY_INTERVAL" default:"24h" validate:"gt=0"`
	RunOnStart       bool          `envconfig:"SCHEDULER_RUN_ON_START" default:"false"`
}

// RetentionConfig holds the TTLs and grace periods used by the lifecycle and
// reaper services.
type RetentionConfig struct {
	OverdueGrace      time.Duration `envconfig:"RETENTION_OVERDUE_GRACE" default:"1h"`
	RepairLookback    time.Duration `envconfig:"RETENTION_REPAIR_LOOKBACK" default:"24h"`
	ApplicationDelete time.Duration `envconfig:"RETENTION_APPLICATION_DELETE" default:"240h"`
	NotificationTTL   time.Duration `envconfig:"RETENTION_NOTIFICATION_TTL" default:"168h"`
	OTPMaxAge         time.Duration `envconfig:"RETENTION_OTP_MAX_AGE" default:"24h"`
	AuditMaxAge       time.Duration `envconfig:"RETENTION_AUDIT_MAX_AGE" default:"2160h"`
	AuditArchiveBatch int           `envconfig:"RETENTION_AUDIT_BATCH" default:"500" validate:"gt=0"`
}

// ArchiveConfig selects where audit rows are archived before deletion. When
// both are empty audit rows are deleted without archival.
type ArchiveConfig struct {
	Bucket string `envconfig:"ARCHIVE_BUCKET"`
	Dir    string `envconfig:"ARCHIVE_DIR"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace  string `envconfig:"METRIC_NAMESPACE" default:"Placement/Scheduler"`
	EnableCloudWatch bool   `envconfig:"ENABLE_CLOUDWATCH" default:"false"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
