// Package notification delivers the emails the device gate depends on.
//
// A NotificationManager maps a NoticeType to a NoticeTemplate per NotificationSystem
// and dispatches to the Notifier registered for that system. Only email is wired:
//
//	nm, err := notification.NewNotificationManager(
//	    notification.WithSMTP(smtpConfig),
//	    notification.WithDefaultTemplates(),
//	)
//	err = nm.Send(notification.DeviceOTPNotice, notification.EmailSystem, notification.NotificationData{
//	    To:   "user@example.com",
//	    Data: map[string]string{"Name": "Alice", "Code": "482913"},
//	})
//
// Templates live under templates/email and are embedded into the binary.
// MockNotifier records sends and can be told to fail, for tests of callers.
package notification
