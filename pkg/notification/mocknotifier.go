package notification

// MockNotifier records notifications instead of delivering them. It can
// be told to fail to exercise delivery-failure paths.
type MockNotifier struct {
	SentNotifications []NotificationData
	SentTypes         []NoticeType
	FailNext          error
}

func (m *MockNotifier) Send(noticeType NoticeType, notification NotificationData, template NoticeTemplate) error {
	if m.FailNext != nil {
		err := m.FailNext
		m.FailNext = nil
		return err
	}
	m.SentNotifications = append(m.SentNotifications, notification)
	m.SentTypes = append(m.SentTypes, noticeType)
	return nil
}
