package twofa

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Two-factor method values stored on a profile.
const (
	MethodDisabled = "disabled"
	MethodEmail    = "email"
)

// Profile is the per-user two-factor state. A profile exists implicitly
// for every user: reading an unknown user yields the disabled defaults.
type Profile struct {
	UserID               uuid.UUID  `json:"user_id"`
	Enabled              bool       `json:"enabled"`
	Method               string     `json:"method"`
	BackupEmail          string     `json:"backup_email,omitempty"`
	PendingCode          string     `json:"pending_code,omitempty"`
	PendingCodeExpiresAt *time.Time `json:"pending_code_expires_at,omitempty"`
	CodeAttemptCount     int        `json:"code_attempt_count"`
	LastCodeSentAt       *time.Time `json:"last_code_sent_at,omitempty"`
	SendWindowStartedAt  *time.Time `json:"send_window_started_at,omitempty"`
	SendWindowCount      int        `json:"send_window_count"`
	BackupCodes          []string   `json:"backup_codes,omitempty"`
	SetupDate            *time.Time `json:"setup_date,omitempty"`
	LastVerifiedAt       *time.Time `json:"last_verified_at,omitempty"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// HasPendingCode reports whether a code is outstanding. PendingCode and
// PendingCodeExpiresAt are set and cleared together.
func (p Profile) HasPendingCode() bool {
	return p.PendingCode != "" && p.PendingCodeExpiresAt != nil
}

// ClearPendingCode drops the outstanding code and its attempt counter.
func (p *Profile) ClearPendingCode() {
	p.PendingCode = ""
	p.PendingCodeExpiresAt = nil
	p.CodeAttemptCount = 0
}

// TwoFactorRepository is the credential-store access used by the service.
// Every update is a single atomic profile write.
type TwoFactorRepository interface {
	// GetProfile returns the profile for a user, creating the disabled
	// default implicitly when none is stored yet.
	GetProfile(ctx context.Context, userID uuid.UUID) (Profile, error)

	// UpdateProfile persists the whole profile in one write.
	UpdateProfile(ctx context.Context, profile Profile) error

	// ConsumeBackupCode atomically removes the code from the user's set
	// and stamps last-verified. It returns false when the code is not in
	// the set, so two racing submissions cannot both succeed.
	ConsumeBackupCode(ctx context.Context, userID uuid.UUID, code string, verifiedAt time.Time) (bool, error)
}
