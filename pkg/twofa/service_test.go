package twofa

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskhub/taskhub/pkg/notification"
	"github.com/taskhub/taskhub/pkg/sessiontrust"
)

type testEnv struct {
	service  *TwoFaService
	repo     *FileTwoFactorRepository
	notifier *notification.MockNotifier
	trust    *sessiontrust.InMemoryStore
	now      time.Time
}

func (e *testEnv) advance(d time.Duration) {
	e.now = e.now.Add(d)
}

func newTestEnv(t *testing.T, opts ...TwoFaServiceOption) *testEnv {
	t.Helper()

	repo, err := NewFileTwoFactorRepository(t.TempDir())
	require.NoError(t, err)

	env := &testEnv{
		repo:     repo,
		notifier: &notification.MockNotifier{},
		now:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return env.now }
	env.trust = sessiontrust.NewInMemoryStoreWithClock(clock)

	notificationManager, err := notification.NewNotificationManagerWithOptions(
		notification.WithNotifier(notification.EmailSystem, env.notifier),
		notification.WithDefaultTemplates(),
	)
	require.NoError(t, err)

	resolver := EmailResolverFunc(func(ctx context.Context, userID uuid.UUID) (string, error) {
		return "user@example.com", nil
	})

	allOpts := append([]TwoFaServiceOption{WithClock(clock)}, opts...)
	env.service = NewTwoFaService(repo, notificationManager, env.trust, resolver, allOpts...)
	return env
}

// pendingCode reads the code the service just issued, the way the email
// body would carry it.
func (e *testEnv) pendingCode(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	profile, err := e.repo.GetProfile(context.Background(), userID)
	require.NoError(t, err)
	require.True(t, profile.HasPendingCode(), "expected an outstanding code")
	return profile.PendingCode
}

// enroll walks a user through setup and returns the issued backup codes.
func (e *testEnv) enroll(t *testing.T, userID uuid.UUID) []string {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.service.EnableEmailTwoFactor(ctx, userID, ""))
	result, err := e.service.VerifyCode(ctx, userID, e.pendingCode(t, userID))
	require.NoError(t, err)
	require.True(t, result.EnrollmentCompleted)
	return result.BackupCodes
}

func TestEnrollmentRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	err := env.service.EnableEmailTwoFactor(ctx, userID, "")
	require.NoError(t, err)

	// Not enabled until the code is verified
	status, err := env.service.Status(ctx, userID)
	require.NoError(t, err)
	assert.False(t, status.Enabled)
	assert.True(t, status.CodePending)

	code := env.pendingCode(t, userID)
	result, err := env.service.VerifyCode(ctx, userID, code)
	require.NoError(t, err)
	assert.True(t, result.EnrollmentCompleted)
	require.Len(t, result.BackupCodes, 8)

	codeFormat := regexp.MustCompile(`^[A-Z0-9]{8,}$`)
	seen := make(map[string]bool)
	for _, backupCode := range result.BackupCodes {
		assert.Regexp(t, codeFormat, backupCode)
		assert.False(t, seen[backupCode], "backup codes must be unique")
		seen[backupCode] = true
	}

	status, err = env.service.Status(ctx, userID)
	require.NoError(t, err)
	assert.True(t, status.Enabled)
	assert.Equal(t, MethodEmail, status.Method)
	assert.Equal(t, 8, status.BackupCodesRemaining)
	assert.False(t, status.CodePending)

	// The verification that completed enrollment also established trust
	required, err := env.service.RequiresVerification(ctx, userID)
	require.NoError(t, err)
	assert.False(t, required)
}

func TestEnableWhileAlreadyEnrolled(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.New()
	env.enroll(t, userID)

	err := env.service.EnableEmailTwoFactor(context.Background(), userID, "")
	assert.ErrorIs(t, err, ErrAlreadyEnrolled)
}

func TestEnableWithAlternateEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	err := env.service.EnableEmailTwoFactor(ctx, userID, "alt@example.com")
	require.NoError(t, err)

	require.Len(t, env.notifier.SentNotifications, 1)
	assert.Equal(t, "alt@example.com", env.notifier.SentNotifications[0].To)

	status, err := env.service.Status(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "alt@example.com", status.BackupEmail)

	// Later sends keep going to the configured address
	env.advance(20 * time.Minute)
	require.NoError(t, env.service.SendCode(ctx, userID))
	assert.Equal(t, "alt@example.com", env.notifier.SentNotifications[1].To)
}

func TestVerifyWithoutCode(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.New()

	_, err := env.service.VerifyCode(context.Background(), userID, "123456")
	assert.ErrorIs(t, err, ErrNoCodeIssued)
}

func TestVerifyExpiredCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, env.service.SendCode(ctx, userID))
	code := env.pendingCode(t, userID)

	env.advance(10*time.Minute + time.Second)
	_, err := env.service.VerifyCode(ctx, userID, code)
	assert.ErrorIs(t, err, ErrCodeExpired)

	// The expired code was purged, not left around
	_, err = env.service.VerifyCode(ctx, userID, code)
	assert.ErrorIs(t, err, ErrNoCodeIssued)
}

func TestVerifyCodeValidUntilExpiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, env.service.SendCode(ctx, userID))
	code := env.pendingCode(t, userID)

	env.advance(10*time.Minute - time.Second)
	_, err := env.service.VerifyCode(ctx, userID, code)
	assert.NoError(t, err)
}

func TestVerifyAttemptCap(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, env.service.SendCode(ctx, userID))
	code := env.pendingCode(t, userID)
	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	for i := 0; i < 5; i++ {
		_, err := env.service.VerifyCode(ctx, userID, wrong)
		assert.ErrorIs(t, err, ErrInvalidCode, "attempt %d", i+1)
	}

	// The sixth attempt trips the cap and purges the code, even when
	// the submitted code is the correct one
	_, err := env.service.VerifyCode(ctx, userID, code)
	assert.ErrorIs(t, err, ErrTooManyAttempts)

	// Even the correct code is gone now
	_, err = env.service.VerifyCode(ctx, userID, code)
	assert.ErrorIs(t, err, ErrNoCodeIssued)
}

func TestVerifyTrimsWhitespace(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, env.service.SendCode(ctx, userID))
	code := env.pendingCode(t, userID)

	_, err := env.service.VerifyCode(ctx, userID, "  "+code+"\n")
	assert.NoError(t, err)
}

func TestSendRateLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	for i := 0; i < 3; i++ {
		require.NoError(t, env.service.SendCode(ctx, userID), "send %d", i+1)
	}

	err := env.service.SendCode(ctx, userID)
	assert.ErrorIs(t, err, ErrRateLimitExceeded)

	status, err := env.service.Status(ctx, userID)
	require.NoError(t, err)
	assert.Greater(t, status.ResendAvailableInSeconds, 0)

	// A fresh window opens once the old one has fully elapsed
	env.advance(15*time.Minute + time.Second)
	assert.NoError(t, env.service.SendCode(ctx, userID))
}

func TestResendSharesRateLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, env.service.SendCode(ctx, userID))
	require.NoError(t, env.service.Resend(ctx, userID))
	require.NoError(t, env.service.Resend(ctx, userID))

	err := env.service.Resend(ctx, userID)
	assert.ErrorIs(t, err, ErrRateLimitExceeded)
}

func TestResendInvalidatesPreviousCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, env.service.SendCode(ctx, userID))
	first := env.pendingCode(t, userID)

	require.NoError(t, env.service.Resend(ctx, userID))
	second := env.pendingCode(t, userID)

	if first != second {
		_, err := env.service.VerifyCode(ctx, userID, first)
		assert.ErrorIs(t, err, ErrInvalidCode)
	}
	_, err := env.service.VerifyCode(ctx, userID, second)
	assert.NoError(t, err)
}

func TestDeliveryFailureRollsBack(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	env.notifier.FailNext = errors.New("smtp connection refused")
	err := env.service.SendCode(ctx, userID)
	assert.ErrorIs(t, err, ErrDeliveryFailed)

	// No pending code survives a failed delivery
	profile, err := env.repo.GetProfile(ctx, userID)
	require.NoError(t, err)
	assert.False(t, profile.HasPendingCode())

	// And the failed send does not count against the rate limit
	for i := 0; i < 3; i++ {
		require.NoError(t, env.service.SendCode(ctx, userID), "send %d", i+1)
	}
	err = env.service.SendCode(ctx, userID)
	assert.ErrorIs(t, err, ErrRateLimitExceeded)
}

func TestBackupCodeSingleUse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	backupCodes := env.enroll(t, userID)
	env.trust.Delete(userID)

	err := env.service.VerifyBackupCode(ctx, userID, backupCodes[0])
	require.NoError(t, err)

	status, err := env.service.Status(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 7, status.BackupCodesRemaining)

	// Spent codes never work again
	err = env.service.VerifyBackupCode(ctx, userID, backupCodes[0])
	assert.ErrorIs(t, err, ErrInvalidBackupCode)

	// Consuming a code establishes trust like an email verification
	required, err := env.service.RequiresVerification(ctx, userID)
	require.NoError(t, err)
	assert.False(t, required)
}

func TestBackupCodeCaseInsensitive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	backupCodes := env.enroll(t, userID)

	lowered := " " + strings.ToLower(backupCodes[1]) + " "
	err := env.service.VerifyBackupCode(ctx, userID, lowered)
	assert.NoError(t, err)
}

func TestBackupCodeRequiresEnrollment(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.New()

	err := env.service.VerifyBackupCode(context.Background(), userID, "ABCDEFGH12")
	assert.ErrorIs(t, err, ErrNotEnrolled)
}

func TestRegenerateBackupCodes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	oldCodes := env.enroll(t, userID)

	newCodes, err := env.service.RegenerateBackupCodes(ctx, userID)
	require.NoError(t, err)
	require.Len(t, newCodes, 8)

	// Old codes are dead immediately
	err = env.service.VerifyBackupCode(ctx, userID, oldCodes[0])
	assert.ErrorIs(t, err, ErrInvalidBackupCode)

	err = env.service.VerifyBackupCode(ctx, userID, newCodes[0])
	assert.NoError(t, err)

	// Regeneration does not disturb enrollment
	status, err := env.service.Status(ctx, userID)
	require.NoError(t, err)
	assert.True(t, status.Enabled)
}

func TestRegenerateRequiresEnrollment(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.New()

	_, err := env.service.RegenerateBackupCodes(context.Background(), userID)
	assert.ErrorIs(t, err, ErrNotEnrolled)
}

func TestDisable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	backupCodes := env.enroll(t, userID)

	require.NoError(t, env.service.Disable(ctx, userID))

	status, err := env.service.Status(ctx, userID)
	require.NoError(t, err)
	assert.False(t, status.Enabled)
	assert.Equal(t, MethodDisabled, status.Method)
	assert.Equal(t, 0, status.BackupCodesRemaining)

	required, err := env.service.RequiresVerification(ctx, userID)
	require.NoError(t, err)
	assert.False(t, required)

	// Backup codes die with the enrollment
	err = env.service.VerifyBackupCode(ctx, userID, backupCodes[0])
	assert.ErrorIs(t, err, ErrNotEnrolled)

	// Disabling twice is fine
	assert.NoError(t, env.service.Disable(ctx, userID))
}

func TestDisableWhileNeverEnrolled(t *testing.T) {
	env := newTestEnv(t)
	assert.NoError(t, env.service.Disable(context.Background(), uuid.New()))
}

func TestRequiresVerification(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	// Unenrolled users are never challenged
	required, err := env.service.RequiresVerification(ctx, userID)
	require.NoError(t, err)
	assert.False(t, required)

	env.enroll(t, userID)
	env.trust.Delete(userID)

	required, err = env.service.RequiresVerification(ctx, userID)
	require.NoError(t, err)
	assert.True(t, required)

	// A verification suppresses the challenge for the trust window
	require.NoError(t, env.service.SendCode(ctx, userID))
	_, err = env.service.VerifyCode(ctx, userID, env.pendingCode(t, userID))
	require.NoError(t, err)

	required, err = env.service.RequiresVerification(ctx, userID)
	require.NoError(t, err)
	assert.False(t, required)

	env.advance(24*time.Hour + time.Second)
	required, err = env.service.RequiresVerification(ctx, userID)
	require.NoError(t, err)
	assert.True(t, required)
}

func TestStatusCountdowns(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, env.service.SendCode(ctx, userID))
	env.advance(4 * time.Minute)

	status, err := env.service.Status(ctx, userID)
	require.NoError(t, err)
	assert.True(t, status.CodePending)
	assert.Equal(t, 6*60, status.CodeExpiresInSeconds)
	assert.Equal(t, 0, status.ResendAvailableInSeconds)
}

func TestEvents(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	var events []Event
	env.service.Subscribe(func(event Event) {
		events = append(events, event)
	})

	env.enroll(t, userID)
	_, err := env.service.RegenerateBackupCodes(ctx, userID)
	require.NoError(t, err)
	require.NoError(t, env.service.Disable(ctx, userID))

	// Disabling an already-disabled profile emits nothing
	require.NoError(t, env.service.Disable(ctx, userID))

	require.Len(t, events, 3)
	assert.Equal(t, EventEnabled, events[0].Type)
	assert.Equal(t, EventBackupCodesRegenerated, events[1].Type)
	assert.Equal(t, EventDisabled, events[2].Type)
	for _, event := range events {
		assert.Equal(t, userID, event.UserID)
	}
}

func TestNoticeEmailsSent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	env.enroll(t, userID)
	require.NoError(t, env.service.Disable(ctx, userID))

	assert.Contains(t, env.notifier.SentTypes, notification.TwofaCodeNotice)
	assert.Contains(t, env.notifier.SentTypes, notification.TwofaEnabledNotice)
	assert.Contains(t, env.notifier.SentTypes, notification.TwofaDisabledNotice)
}
