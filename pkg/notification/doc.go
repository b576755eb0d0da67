// Package notification provides a unified interface for sending account notices.
//
// This package defines the Notifier interface with an email (SMTP) implementation
// built on go-mail. Notices are registered as templates keyed by notice type and
// delivery system; Send renders the template with per-notice data and hands the
// result to the registered notifier.
//
// # Basic Usage
//
//	nm, err := notification.NewNotificationManagerWithOptions(
//		notification.WithSMTP(smtpConfig),
//		notification.WithDefaultTemplates(),
//	)
//	if err != nil {
//		return err
//	}
//
//	err = nm.Send(notification.TwofaEnabledNotice, notification.EmailSystem,
//		notification.NotificationData{
//			To:   "user@example.com",
//			Data: map[string]string{"Username": "alice", "Method": "totp"},
//		})
//
// Default templates are embedded under templates/email and cover enable,
// disable, reset, recovery-code generation, and enrollment invitations.
package notification
