package notification

import "sync"

// SentNotification is one call recorded by MockNotifier.
type SentNotification struct {
	Type     NoticeType
	Data     NotificationData
	Template NoticeTemplate
}

// MockNotifier records notifications instead of sending them. When Err is set every
// Send fails with it and nothing is recorded.
type MockNotifier struct {
	mu                sync.Mutex
	Err               error
	SentNotifications []SentNotification
}

func (m *MockNotifier) Send(noticeType NoticeType, notification NotificationData, template NoticeTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.SentNotifications = append(m.SentNotifications, SentNotification{
		Type:     noticeType,
		Data:     notification,
		Template: template,
	})
	return nil
}

// Sent returns a copy of the recorded notifications.
func (m *MockNotifier) Sent() []SentNotification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentNotification, len(m.SentNotifications))
	copy(out, m.SentNotifications)
	return out
}

// SetErr switches failure injection on (non-nil) or off (nil).
func (m *MockNotifier) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}
