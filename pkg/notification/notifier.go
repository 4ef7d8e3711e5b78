package notification

// NotificationSystem identifies a delivery channel.
type NotificationSystem string

// NoticeType identifies which message is being sent.
type NoticeType string

const (
	EmailSystem NotificationSystem = "email"

	DeviceOTPNotice      NoticeType = "device_otp"
	ActivationTestNotice NoticeType = "activation_test"
)

type NotificationData struct {
	To   string            // Recipient address
	Data map[string]string // Template values
}

// NoticeTemplate holds the templates for one notice. Text and Html are optional but at
// least one must be set.
type NoticeTemplate struct {
	Subject string
	Text    string
	Html    string
}

type Notifier interface {
	Send(noticeType NoticeType, notification NotificationData, template NoticeTemplate) error
}
