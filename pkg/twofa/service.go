package twofa

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/taskhub/taskhub/pkg/notification"
	"github.com/taskhub/taskhub/pkg/sessiontrust"
)

// Default policy values. All are configurable through options.
const (
	DefaultCodeExpiry      = 10 * time.Minute
	DefaultMaxAttempts     = 5
	DefaultRateLimitWindow = 15 * time.Minute
	DefaultRateLimitMax    = 3
	DefaultBackupCodeCount = 8
)

// lockStripes bounds the per-user mutex table.
const lockStripes = 64

// EmailResolver returns the primary email address for a user account.
type EmailResolver interface {
	PrimaryEmail(ctx context.Context, userID uuid.UUID) (string, error)
}

// EmailResolverFunc adapts a function to the EmailResolver interface.
type EmailResolverFunc func(ctx context.Context, userID uuid.UUID) (string, error)

func (f EmailResolverFunc) PrimaryEmail(ctx context.Context, userID uuid.UUID) (string, error) {
	return f(ctx, userID)
}

// TwoFactorService is the surface consumed by the login flow and the API.
type TwoFactorService interface {
	SendCode(ctx context.Context, userID uuid.UUID) error
	Resend(ctx context.Context, userID uuid.UUID) error
	VerifyCode(ctx context.Context, userID uuid.UUID, submittedCode string) (VerifyResult, error)
	VerifyBackupCode(ctx context.Context, userID uuid.UUID, submittedCode string) error
	EnableEmailTwoFactor(ctx context.Context, userID uuid.UUID, altEmail string) error
	Disable(ctx context.Context, userID uuid.UUID) error
	RegenerateBackupCodes(ctx context.Context, userID uuid.UUID) ([]string, error)
	RequiresVerification(ctx context.Context, userID uuid.UUID) (bool, error)
	Status(ctx context.Context, userID uuid.UUID) (Status, error)
}

// VerifyResult reports a successful email-code verification. When the
// verification completed enrollment, BackupCodes holds the freshly
// issued set; this is the only time the caller sees them.
type VerifyResult struct {
	EnrollmentCompleted bool
	BackupCodes         []string
}

// Status is the client-visible view of a profile. Internal timestamps
// and counters are reduced to the countdowns a UI needs.
type Status struct {
	Enabled                  bool   `json:"enabled"`
	Method                   string `json:"method"`
	BackupEmail              string `json:"backup_email,omitempty"`
	BackupCodesRemaining     int    `json:"backup_codes_remaining"`
	CodePending              bool   `json:"code_pending"`
	CodeExpiresInSeconds     int    `json:"code_expires_in_seconds,omitempty"`
	ResendAvailableInSeconds int    `json:"resend_available_in_seconds,omitempty"`
}

type TwoFaService struct {
	repo                TwoFactorRepository
	notificationManager *notification.NotificationManager
	trustStore          sessiontrust.Store
	emailResolver       EmailResolver

	codeExpiry      time.Duration
	maxAttempts     int
	rateLimitWindow time.Duration
	rateLimitMax    int
	trustDuration   time.Duration
	backupCodeCount int
	nowFunc         func() time.Time

	listenerMutex sync.Mutex
	listeners     []func(Event)

	// Per-user serialization of read-evaluate-mutate-persist sequences.
	userLocks [lockStripes]sync.Mutex
}

// TwoFaServiceOption configures a TwoFaService.
type TwoFaServiceOption func(*TwoFaService)

// WithCodeExpiry sets how long an issued code stays valid.
func WithCodeExpiry(expiry time.Duration) TwoFaServiceOption {
	return func(s *TwoFaService) { s.codeExpiry = expiry }
}

// WithMaxAttempts sets the failed-attempt cap per code.
func WithMaxAttempts(max int) TwoFaServiceOption {
	return func(s *TwoFaService) { s.maxAttempts = max }
}

// WithRateLimitWindow sets the sliding window bounding code sends.
func WithRateLimitWindow(window time.Duration) TwoFaServiceOption {
	return func(s *TwoFaService) { s.rateLimitWindow = window }
}

// WithRateLimitMax sets how many codes may be sent per window.
func WithRateLimitMax(max int) TwoFaServiceOption {
	return func(s *TwoFaService) { s.rateLimitMax = max }
}

// WithTrustDuration sets how long a verification suppresses re-challenge.
func WithTrustDuration(d time.Duration) TwoFaServiceOption {
	return func(s *TwoFaService) { s.trustDuration = d }
}

// WithBackupCodeCount sets how many backup codes are issued per batch.
func WithBackupCodeCount(n int) TwoFaServiceOption {
	return func(s *TwoFaService) { s.backupCodeCount = n }
}

// WithClock injects the time source, for tests.
func WithClock(nowFunc func() time.Time) TwoFaServiceOption {
	return func(s *TwoFaService) { s.nowFunc = nowFunc }
}

// NewTwoFaService creates a two-factor service.
func NewTwoFaService(
	repo TwoFactorRepository,
	notificationManager *notification.NotificationManager,
	trustStore sessiontrust.Store,
	emailResolver EmailResolver,
	opts ...TwoFaServiceOption,
) *TwoFaService {
	service := &TwoFaService{
		repo:                repo,
		notificationManager: notificationManager,
		trustStore:          trustStore,
		emailResolver:       emailResolver,
		codeExpiry:          DefaultCodeExpiry,
		maxAttempts:         DefaultMaxAttempts,
		rateLimitWindow:     DefaultRateLimitWindow,
		rateLimitMax:        DefaultRateLimitMax,
		trustDuration:       sessiontrust.DefaultTrustDuration,
		backupCodeCount:     DefaultBackupCodeCount,
		nowFunc:             func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(service)
	}

	return service
}

func (s *TwoFaService) userLock(userID uuid.UUID) *sync.Mutex {
	return &s.userLocks[int(userID[15])%lockStripes]
}

// SendCode issues a new verification code and emails it to the user's
// configured address (backup email when set, primary otherwise). It is
// subject to the send rate limit, and rolls back the issued code when
// delivery fails.
func (s *TwoFaService) SendCode(ctx context.Context, userID uuid.UUID) error {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	profile, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get two-factor profile: %w", err)
	}

	target := profile.BackupEmail
	if target == "" {
		target, err = s.emailResolver.PrimaryEmail(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to resolve email for user: %w", err)
		}
	}

	return s.sendCodeLocked(ctx, profile, target)
}

// Resend re-invokes SendCode with the configured target email. It is
// bounded by the same rate limit, not a separate allowance.
func (s *TwoFaService) Resend(ctx context.Context, userID uuid.UUID) error {
	return s.SendCode(ctx, userID)
}

// sendCodeLocked performs the rate-limit check, code issuance, persist
// and dispatch. The caller must hold the user lock.
func (s *TwoFaService) sendCodeLocked(ctx context.Context, profile Profile, targetEmail string) error {
	now := s.nowFunc()

	if profile.SendWindowStartedAt != nil && now.Sub(*profile.SendWindowStartedAt) < s.rateLimitWindow {
		if profile.SendWindowCount >= s.rateLimitMax {
			slog.Warn("Code send rate limit exceeded", "userID", profile.UserID, "count", profile.SendWindowCount)
			return ErrRateLimitExceeded
		}
		profile.SendWindowCount++
	} else {
		windowStart := now
		profile.SendWindowStartedAt = &windowStart
		profile.SendWindowCount = 1
	}

	previous, err := s.repo.GetProfile(ctx, profile.UserID)
	if err != nil {
		return fmt.Errorf("failed to snapshot two-factor profile: %w", err)
	}

	code, err := GenerateEmailCode()
	if err != nil {
		return err
	}

	expiresAt := now.Add(s.codeExpiry)
	sentAt := now
	profile.PendingCode = code
	profile.PendingCodeExpiresAt = &expiresAt
	profile.CodeAttemptCount = 0
	profile.LastCodeSentAt = &sentAt

	if err := s.repo.UpdateProfile(ctx, profile); err != nil {
		return fmt.Errorf("failed to persist verification code: %w", err)
	}

	err = s.notificationManager.Send(notification.TwofaCodeNotice, notification.NotificationData{
		To: targetEmail,
		Data: map[string]string{
			"Passcode":  code,
			"ExpiresAt": expiresAt.Format(time.RFC3339),
		},
	})
	if err != nil {
		slog.Error("Failed to send verification code, rolling back", "userID", profile.UserID, "err", err)
		// Restore the pre-issue state so a retry is not rate-limited by a
		// code nobody received.
		if rbErr := s.repo.UpdateProfile(ctx, previous); rbErr != nil {
			slog.Error("Failed to roll back pending code", "userID", profile.UserID, "err", rbErr)
		}
		return ErrDeliveryFailed
	}

	slog.Info("Verification code sent", "userID", profile.UserID, "expiresAt", expiresAt)
	return nil
}

// VerifyCode checks a submitted code against the outstanding one. The
// check order is fixed: no code, expiry, attempt cap, then comparison.
// A success while 2FA is not yet enabled completes enrollment and
// returns the freshly issued backup codes.
func (s *TwoFaService) VerifyCode(ctx context.Context, userID uuid.UUID, submittedCode string) (VerifyResult, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	profile, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("failed to get two-factor profile: %w", err)
	}

	if !profile.HasPendingCode() {
		return VerifyResult{}, ErrNoCodeIssued
	}

	now := s.nowFunc()
	if now.After(*profile.PendingCodeExpiresAt) {
		profile.ClearPendingCode()
		if err := s.repo.UpdateProfile(ctx, profile); err != nil {
			return VerifyResult{}, fmt.Errorf("failed to clear expired code: %w", err)
		}
		return VerifyResult{}, ErrCodeExpired
	}

	if profile.CodeAttemptCount >= s.maxAttempts {
		// Lockout of the code, not the account: the code is purged even
		// though it has not expired yet.
		profile.ClearPendingCode()
		if err := s.repo.UpdateProfile(ctx, profile); err != nil {
			return VerifyResult{}, fmt.Errorf("failed to clear locked code: %w", err)
		}
		slog.Warn("Verification code locked after too many attempts", "userID", userID)
		return VerifyResult{}, ErrTooManyAttempts
	}

	if strings.TrimSpace(submittedCode) != profile.PendingCode {
		profile.CodeAttemptCount++
		if err := s.repo.UpdateProfile(ctx, profile); err != nil {
			return VerifyResult{}, fmt.Errorf("failed to record failed attempt: %w", err)
		}
		return VerifyResult{}, ErrInvalidCode
	}

	completingEnrollment := !profile.Enabled

	profile.ClearPendingCode()
	verifiedAt := now
	profile.LastVerifiedAt = &verifiedAt

	result := VerifyResult{EnrollmentCompleted: completingEnrollment}
	if completingEnrollment {
		backupCodes, err := GenerateBackupCodes(s.backupCodeCount, nil)
		if err != nil {
			return VerifyResult{}, err
		}
		profile.Enabled = true
		profile.Method = MethodEmail
		profile.BackupCodes = backupCodes
		setupDate := now
		profile.SetupDate = &setupDate
		result.BackupCodes = backupCodes
	}

	if err := s.repo.UpdateProfile(ctx, profile); err != nil {
		return VerifyResult{}, fmt.Errorf("failed to persist verification: %w", err)
	}

	s.trustStore.Put(sessiontrust.Record{
		UserID:     userID,
		VerifiedAt: now,
		ExpiresAt:  now.Add(s.trustDuration),
	})

	if completingEnrollment {
		slog.Info("Two-factor enrollment completed", "userID", userID)
		s.emit(Event{Type: EventEnabled, UserID: userID, At: now})
		s.sendNotice(ctx, notification.TwofaEnabledNotice, userID, profile)
	}

	return result, nil
}

// VerifyBackupCode consumes a single-use backup code. There is no
// attempt counter here; the shrinking set is the bound.
func (s *TwoFaService) VerifyBackupCode(ctx context.Context, userID uuid.UUID, submittedCode string) error {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	profile, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get two-factor profile: %w", err)
	}

	if !profile.Enabled {
		return ErrNotEnrolled
	}

	normalized := strings.ToUpper(strings.TrimSpace(submittedCode))
	now := s.nowFunc()

	consumed, err := s.repo.ConsumeBackupCode(ctx, userID, normalized, now)
	if err != nil {
		return fmt.Errorf("failed to consume backup code: %w", err)
	}
	if !consumed {
		return ErrInvalidBackupCode
	}

	s.trustStore.Put(sessiontrust.Record{
		UserID:     userID,
		VerifiedAt: now,
		ExpiresAt:  now.Add(s.trustDuration),
	})

	slog.Info("Backup code consumed", "userID", userID)
	return nil
}

// EnableEmailTwoFactor starts enrollment by sending a test code to the
// chosen address. 2FA is not enabled until that code is verified.
func (s *TwoFaService) EnableEmailTwoFactor(ctx context.Context, userID uuid.UUID, altEmail string) error {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	profile, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get two-factor profile: %w", err)
	}

	if profile.Enabled {
		return ErrAlreadyEnrolled
	}

	primaryEmail, err := s.emailResolver.PrimaryEmail(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to resolve email for user: %w", err)
	}

	target := primaryEmail
	if altEmail != "" && altEmail != primaryEmail {
		target = altEmail
		profile.BackupEmail = altEmail
	} else {
		profile.BackupEmail = ""
	}

	return s.sendCodeLocked(ctx, profile, target)
}

// Disable wipes all two-factor state and clears session trust, taking
// effect immediately for the current session. It is idempotent.
func (s *TwoFaService) Disable(ctx context.Context, userID uuid.UUID) error {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	profile, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get two-factor profile: %w", err)
	}

	wasEnabled := profile.Enabled

	cleared := Profile{
		UserID: userID,
		Method: MethodDisabled,
	}
	if err := s.repo.UpdateProfile(ctx, cleared); err != nil {
		return fmt.Errorf("failed to disable two-factor: %w", err)
	}

	s.trustStore.Delete(userID)

	if wasEnabled {
		now := s.nowFunc()
		slog.Info("Two-factor disabled", "userID", userID)
		s.emit(Event{Type: EventDisabled, UserID: userID, At: now})
		s.sendNotice(ctx, notification.TwofaDisabledNotice, userID, profile)
	}

	return nil
}

// RegenerateBackupCodes replaces the backup code set wholesale; the old
// codes stop working immediately.
func (s *TwoFaService) RegenerateBackupCodes(ctx context.Context, userID uuid.UUID) ([]string, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	profile, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get two-factor profile: %w", err)
	}

	if !profile.Enabled {
		return nil, ErrNotEnrolled
	}

	backupCodes, err := GenerateBackupCodes(s.backupCodeCount, profile.BackupCodes)
	if err != nil {
		return nil, err
	}

	profile.BackupCodes = backupCodes
	if err := s.repo.UpdateProfile(ctx, profile); err != nil {
		return nil, fmt.Errorf("failed to persist backup codes: %w", err)
	}

	now := s.nowFunc()
	slog.Info("Backup codes regenerated", "userID", userID)
	s.emit(Event{Type: EventBackupCodesRegenerated, UserID: userID, At: now})
	s.sendNotice(ctx, notification.BackupCodesNotice, userID, profile)

	return backupCodes, nil
}

// RequiresVerification reports whether login must be held pending a
// 2FA challenge: enabled and no valid session trust record.
func (s *TwoFaService) RequiresVerification(ctx context.Context, userID uuid.UUID) (bool, error) {
	profile, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("failed to get two-factor profile: %w", err)
	}

	if !profile.Enabled {
		return false, nil
	}

	if _, trusted := s.trustStore.Get(userID); trusted {
		return false, nil
	}

	return true, nil
}

// Status returns the client-visible view of the user's profile.
func (s *TwoFaService) Status(ctx context.Context, userID uuid.UUID) (Status, error) {
	profile, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		return Status{}, fmt.Errorf("failed to get two-factor profile: %w", err)
	}

	method := profile.Method
	if method == "" {
		method = MethodDisabled
	}

	status := Status{
		Enabled:              profile.Enabled,
		Method:               method,
		BackupEmail:          profile.BackupEmail,
		BackupCodesRemaining: len(profile.BackupCodes),
	}

	now := s.nowFunc()
	if profile.HasPendingCode() && profile.PendingCodeExpiresAt.After(now) {
		status.CodePending = true
		status.CodeExpiresInSeconds = int(profile.PendingCodeExpiresAt.Sub(now).Seconds())
	}

	if profile.SendWindowStartedAt != nil && profile.SendWindowCount >= s.rateLimitMax {
		windowEnds := profile.SendWindowStartedAt.Add(s.rateLimitWindow)
		if windowEnds.After(now) {
			status.ResendAvailableInSeconds = int(windowEnds.Sub(now).Seconds())
		}
	}

	return status, nil
}

// sendNotice delivers an informational notice best effort; failures are
// logged, never surfaced to the caller.
func (s *TwoFaService) sendNotice(ctx context.Context, noticeType notification.NoticeType, userID uuid.UUID, profile Profile) {
	target := profile.BackupEmail
	if target == "" {
		resolved, err := s.emailResolver.PrimaryEmail(ctx, userID)
		if err != nil {
			slog.Warn("Failed to resolve email for notice", "userID", userID, "notice", noticeType, "err", err)
			return
		}
		target = resolved
	}

	if err := s.notificationManager.Send(noticeType, notification.NotificationData{To: target}); err != nil {
		slog.Warn("Failed to send notice", "userID", userID, "notice", noticeType, "err", err)
	}
}
