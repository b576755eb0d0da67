package notice

import (
	"github.com/vaultshare/mfa/pkg/notification"
)

// Config holds email service configuration
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	TLS      bool
}

// NewNotificationManager builds a notification manager with the email notifier
// and every default second-factor notice template registered.
func NewNotificationManager(smtpConfig notification.SMTPConfig) (*notification.NotificationManager, error) {
	return notification.NewNotificationManagerWithOptions(
		notification.WithSMTP(smtpConfig),
		notification.WithDefaultTemplates(),
	)
}

// ToSMTPConfig converts the notice config to a notification.SMTPConfig
func (c Config) ToSMTPConfig() notification.SMTPConfig {
	return notification.SMTPConfig{
		Host:     c.Host,
		Port:     c.Port,
		Username: c.Username,
		Password: c.Password,
		From:     c.From,
		TLS:      c.TLS,
	}
}
