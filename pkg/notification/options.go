package notification

import (
	"embed"
	"log/slog"
)

//go:embed templates/*
var templateFiles embed.FS

func loadTemplate(filename string) string {
	content, err := templateFiles.ReadFile(filename)
	if err != nil {
		slog.Error("Error reading template file!", "err", err, "filename", filename)
		return ""
	}
	return string(content)
}

// NotificationManagerOption is a function that configures a NotificationManager
type NotificationManagerOption func(*NotificationManager) error

// WithSMTP adds an email notifier with the provided SMTP configuration
func WithSMTP(config SMTPConfig) NotificationManagerOption {
	return func(nm *NotificationManager) error {
		emailNotifier, err := NewEmailNotifier(config)
		if err != nil {
			return err
		}
		nm.RegisterNotifier(EmailSystem, emailNotifier)
		return nil
	}
}

// WithTwofaEnabledTemplate registers the 2FA enabled notice template
func WithTwofaEnabledTemplate() NotificationManagerOption {
	return func(nm *NotificationManager) error {
		return nm.RegisterNotification(TwofaEnabledNotice, EmailSystem, NoticeTemplate{
			Subject: "Two-Factor Authentication Enabled",
			Html:    loadTemplate("templates/email/twofa_enabled.html"),
		})
	}
}

// WithTwofaDisabledTemplate registers the 2FA disabled notice template
func WithTwofaDisabledTemplate() NotificationManagerOption {
	return func(nm *NotificationManager) error {
		return nm.RegisterNotification(TwofaDisabledNotice, EmailSystem, NoticeTemplate{
			Subject: "Two-Factor Authentication Disabled",
			Html:    loadTemplate("templates/email/twofa_disabled.html"),
		})
	}
}

// WithTwofaResetTemplate registers the 2FA reset notice template
func WithTwofaResetTemplate() NotificationManagerOption {
	return func(nm *NotificationManager) error {
		return nm.RegisterNotification(TwofaResetNotice, EmailSystem, NoticeTemplate{
			Subject: "Two-Factor Authentication Reset",
			Html:    loadTemplate("templates/email/twofa_reset.html"),
		})
	}
}

// WithBackupCodesGeneratedTemplate registers the backup codes notice template
func WithBackupCodesGeneratedTemplate() NotificationManagerOption {
	return func(nm *NotificationManager) error {
		return nm.RegisterNotification(BackupCodesGeneratedNotice, EmailSystem, NoticeTemplate{
			Subject: "New Recovery Codes Generated",
			Html:    loadTemplate("templates/email/backup_codes_generated.html"),
		})
	}
}

// WithEnrollmentInviteTemplate registers the enrollment invitation template
func WithEnrollmentInviteTemplate() NotificationManagerOption {
	return func(nm *NotificationManager) error {
		return nm.RegisterNotification(EnrollmentInviteNotice, EmailSystem, NoticeTemplate{
			Subject: "Set Up Two-Factor Authentication",
			Html:    loadTemplate("templates/email/enrollment_invite.html"),
		})
	}
}

// WithDefaultTemplates registers all default notice templates
func WithDefaultTemplates() NotificationManagerOption {
	return func(nm *NotificationManager) error {
		options := []NotificationManagerOption{
			WithTwofaEnabledTemplate(),
			WithTwofaDisabledTemplate(),
			WithTwofaResetTemplate(),
			WithBackupCodesGeneratedTemplate(),
			WithEnrollmentInviteTemplate(),
		}

		for _, opt := range options {
			if err := opt(nm); err != nil {
				return err
			}
		}

		return nil
	}
}

// NewNotificationManagerWithOptions creates a new notification manager with the provided options
func NewNotificationManagerWithOptions(opts ...NotificationManagerOption) (*NotificationManager, error) {
	notificationManager := NewNotificationManager()

	for _, opt := range opts {
		if err := opt(notificationManager); err != nil {
			return nil, err
		}
	}

	return notificationManager, nil
}
