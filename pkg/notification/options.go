package notification

import (
	"embed"
	"log/slog"
)

//go:embed templates/*
var templateFiles embed.FS

const (
	DeviceOTPSubject      = "Verify New Device Login"
	ActivationTestSubject = "Device Login Limit: Test Email"
)

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

// WithNotifier registers an arbitrary notifier, mostly useful for tests.
func WithNotifier(system NotificationSystem, notifier Notifier) NotificationManagerOption {
	return func(nm *NotificationManager) error {
		nm.RegisterNotifier(system, notifier)
		return nil
	}
}

// WithDeviceOTPTemplate registers the new-device verification code email.
// Template values: Name, Code.
func WithDeviceOTPTemplate() NotificationManagerOption {
	return func(nm *NotificationManager) error {
		return nm.RegisterNotification(DeviceOTPNotice, EmailSystem, NoticeTemplate{
			Subject: DeviceOTPSubject,
			Text:    loadTemplate("templates/email/device_otp.txt"),
		})
	}
}

// WithActivationTestTemplate registers the SMTP check sent when the gate is activated.
func WithActivationTestTemplate() NotificationManagerOption {
	return func(nm *NotificationManager) error {
		return nm.RegisterNotification(ActivationTestNotice, EmailSystem, NoticeTemplate{
			Subject: ActivationTestSubject,
			Text:    loadTemplate("templates/email/activation_test.txt"),
		})
	}
}

// WithDefaultTemplates registers every template the gate sends.
func WithDefaultTemplates() NotificationManagerOption {
	return func(nm *NotificationManager) error {
		if err := WithDeviceOTPTemplate()(nm); err != nil {
			return err
		}
		return WithActivationTestTemplate()(nm)
	}
}
