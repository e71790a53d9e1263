package external

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"placement/internal/config"
)

// NewMailTransport builds the transport selected by cfg.Provider. awsCfg is
// only read for the SES provider.
func NewMailTransport(cfg config.MailConfig, awsCfg aws.Config, logger *slog.Logger) (MailTransport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("mail_provider", cfg.Provider)

	switch cfg.Provider {
	case config.MailProviderSMTP:
		return NewSMTPTransport(SMTPConfig{
			Host:        cfg.SMTPHost,
			Port:        cfg.SMTPPort,
			Username:    cfg.SMTPUsername,
			Password:    cfg.SMTPPassword.Unmask(),
			DialTimeout: cfg.SendTimeout,
			Logger:      logger,
		}), nil
	case config.MailProviderSendGrid:
		httpClient := &http.Client{Timeout: cfg.SendTimeout + 5*time.Second}
		return NewSendGridTransport(httpClient, SendGridConfig{
			APIKey: cfg.SendGridAPIKey.Unmask(),
			Logger: logger,
		}), nil
	case config.MailProviderSES:
		return NewSESTransport(awsCfg, SESConfig{
			ConfigSetName: cfg.SESConfigurationSet,
			Logger:        logger,
		}), nil
	case config.MailProviderStub:
		return NewStubTransport(logger), nil
	default:
		return nil, fmt.Errorf("unknown mail provider %q", cfg.Provider)
	}
}
