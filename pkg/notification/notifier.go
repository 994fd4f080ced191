package notification

// NotificationSystem represents a delivery channel (e.g. email, slack).
type NotificationSystem string

// NoticeType identifies a kind of notice sent to users.
type NoticeType string

const (
	EmailSystem NotificationSystem = "email"
	SlackSystem NotificationSystem = "slack"
)

const (
	// TwofaCodeNotice carries a one-time verification code.
	TwofaCodeNotice NoticeType = "twofa_code"
	// TwofaEnabledNotice informs the user that 2FA was turned on.
	TwofaEnabledNotice NoticeType = "twofa_enabled"
	// TwofaDisabledNotice informs the user that 2FA was turned off.
	TwofaDisabledNotice NoticeType = "twofa_disabled"
	// BackupCodesNotice informs the user that backup codes were regenerated.
	BackupCodesNotice NoticeType = "backup_codes_regenerated"
)

// NotificationData is the payload handed to a notifier.
type NotificationData struct {
	To      string            // Recipient identifier (e.g. email address)
	Subject string            // Optional subject override
	Body    string            // Optional raw body
	Data    map[string]string // Template data
}

// NoticeTemplate holds the renderable content registered for a notice.
type NoticeTemplate struct {
	Subject string
	Text    string
	Html    string
}

// Notifier delivers a rendered notice over one system.
type Notifier interface {
	Send(noticeType NoticeType, notification NotificationData, template NoticeTemplate) error
}
