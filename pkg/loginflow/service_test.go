package loginflow

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskhub/taskhub/pkg/login"
	"github.com/taskhub/taskhub/pkg/notification"
	"github.com/taskhub/taskhub/pkg/sessiontrust"
	tg "github.com/taskhub/taskhub/pkg/tokengenerator"
	"github.com/taskhub/taskhub/pkg/twofa"
)

type flowEnv struct {
	flow       *LoginFlowService
	twoFa      *twofa.TwoFaService
	twoFaRepo  *twofa.FileTwoFactorRepository
	trustStore *sessiontrust.InMemoryStore
	notifier   *notification.MockNotifier
	user       login.User
}

func newFlowEnv(t *testing.T) *flowEnv {
	t.Helper()
	ctx := context.Background()

	userRepo, err := login.NewFileUserRepository(t.TempDir())
	require.NoError(t, err)
	loginService := login.NewLoginService(userRepo)

	user, err := loginService.Register(ctx, "alice", "alice@example.com", "s3cret-pass")
	require.NoError(t, err)

	twoFaRepo, err := twofa.NewFileTwoFactorRepository(t.TempDir())
	require.NoError(t, err)

	notifier := &notification.MockNotifier{}
	notificationManager, err := notification.NewNotificationManagerWithOptions(
		notification.WithNotifier(notification.EmailSystem, notifier),
		notification.WithDefaultTemplates(),
	)
	require.NoError(t, err)

	trustStore := sessiontrust.NewInMemoryStore()
	twoFaService := twofa.NewTwoFaService(twoFaRepo, notificationManager, trustStore, loginService)

	jwtService := tg.NewJwtService(
		tg.WithDefaultTokenGenerator(tg.NewJwtTokenGenerator("test-secret", "taskhub", "taskhub")),
		tg.WithTokenGenerator(tg.TEMP_TOKEN_NAME, tg.NewTempTokenGenerator("test-temp-secret", "taskhub", "taskhub")),
	)

	return &flowEnv{
		flow:       NewLoginFlowService(loginService, twoFaService, jwtService, trustStore),
		twoFa:      twoFaService,
		twoFaRepo:  twoFaRepo,
		trustStore: trustStore,
		notifier:   notifier,
		user:       user,
	}
}

// enroll turns on email 2FA for the test user and clears the trust the
// enrollment verification established.
func (e *flowEnv) enroll(t *testing.T) []string {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.twoFa.EnableEmailTwoFactor(ctx, e.user.ID, ""))
	result, err := e.twoFa.VerifyCode(ctx, e.user.ID, e.pendingCode(t))
	require.NoError(t, err)
	e.trustStore.Delete(e.user.ID)
	return result.BackupCodes
}

func (e *flowEnv) pendingCode(t *testing.T) string {
	t.Helper()
	profile, err := e.twoFaRepo.GetProfile(context.Background(), e.user.ID)
	require.NoError(t, err)
	require.True(t, profile.HasPendingCode())
	return profile.PendingCode
}

func TestLoginWithoutTwoFactor(t *testing.T) {
	env := newFlowEnv(t)

	result := env.flow.ProcessLogin(context.Background(), Request{Username: "alice", Password: "s3cret-pass"})
	require.Nil(t, result.ErrorResponse)
	assert.True(t, result.Success)
	assert.False(t, result.RequiresTwoFA)
	assert.NotEmpty(t, result.Tokens[tg.ACCESS_TOKEN_NAME].Token)
	assert.NotEmpty(t, result.Tokens[tg.REFRESH_TOKEN_NAME].Token)

	// No code is ever sent for an unenrolled account
	assert.Empty(t, env.notifier.SentNotifications)
}

func TestLoginInvalidCredentials(t *testing.T) {
	env := newFlowEnv(t)

	result := env.flow.ProcessLogin(context.Background(), Request{Username: "alice", Password: "wrong"})
	require.NotNil(t, result.ErrorResponse)
	assert.Equal(t, ErrorTypeInvalidCredentials, result.ErrorResponse.Type)
	assert.False(t, result.Success)
	assert.Empty(t, result.Tokens)
}

func TestLoginHeldForTwoFactor(t *testing.T) {
	env := newFlowEnv(t)
	env.enroll(t)
	ctx := context.Background()

	result := env.flow.ProcessLogin(ctx, Request{Username: "alice", Password: "s3cret-pass"})
	require.Nil(t, result.ErrorResponse)
	assert.False(t, result.Success)
	assert.True(t, result.RequiresTwoFA)
	assert.NotEmpty(t, result.TempToken)
	assert.Empty(t, result.Tokens, "no auth tokens before verification")

	// The held login dispatched a fresh code; submitting it with the
	// temp token completes the flow.
	validated := env.flow.Process2FAValidation(ctx, Request{
		TempToken: result.TempToken,
		TwoFACode: env.pendingCode(t),
		TwoFAType: TwoFATypeEmail,
	})
	require.Nil(t, validated.ErrorResponse)
	assert.True(t, validated.Success)
	assert.Equal(t, env.user.ID, validated.User.ID)
	assert.NotEmpty(t, validated.Tokens[tg.ACCESS_TOKEN_NAME].Token)
}

func TestValidationWithBackupCode(t *testing.T) {
	env := newFlowEnv(t)
	backupCodes := env.enroll(t)
	ctx := context.Background()

	result := env.flow.ProcessLogin(ctx, Request{Username: "alice", Password: "s3cret-pass"})
	require.True(t, result.RequiresTwoFA)

	validated := env.flow.Process2FAValidation(ctx, Request{
		TempToken: result.TempToken,
		TwoFACode: backupCodes[0],
		TwoFAType: TwoFATypeBackup,
	})
	require.Nil(t, validated.ErrorResponse)
	assert.True(t, validated.Success)
}

func TestValidationWrongCode(t *testing.T) {
	env := newFlowEnv(t)
	env.enroll(t)
	ctx := context.Background()

	result := env.flow.ProcessLogin(ctx, Request{Username: "alice", Password: "s3cret-pass"})
	require.True(t, result.RequiresTwoFA)

	code := env.pendingCode(t)
	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	validated := env.flow.Process2FAValidation(ctx, Request{
		TempToken: result.TempToken,
		TwoFACode: wrong,
	})
	require.NotNil(t, validated.ErrorResponse)
	assert.Equal(t, ErrorTypeInvalidCode, validated.ErrorResponse.Type)
	assert.False(t, validated.Success)
}

func TestValidationBadTempToken(t *testing.T) {
	env := newFlowEnv(t)
	env.enroll(t)

	validated := env.flow.Process2FAValidation(context.Background(), Request{
		TempToken: "not-a-token",
		TwoFACode: "123456",
	})
	require.NotNil(t, validated.ErrorResponse)
	assert.Equal(t, ErrorTypeInvalidToken, validated.ErrorResponse.Type)
}

func TestResendForHeldLogin(t *testing.T) {
	env := newFlowEnv(t)
	env.enroll(t)
	ctx := context.Background()

	held := env.flow.ProcessLogin(ctx, Request{Username: "alice", Password: "s3cret-pass"})
	require.True(t, held.RequiresTwoFA)

	// The temp token is the only credential the held user has; it must
	// be enough to request a fresh code.
	resent := env.flow.ProcessResend(ctx, Request{TempToken: held.TempToken})
	require.Nil(t, resent.ErrorResponse)
	assert.True(t, resent.RequiresTwoFA)

	// The re-dispatched code completes the login
	validated := env.flow.Process2FAValidation(ctx, Request{
		TempToken: held.TempToken,
		TwoFACode: env.pendingCode(t),
	})
	require.Nil(t, validated.ErrorResponse)
	assert.True(t, validated.Success)
}

func TestResendRateLimited(t *testing.T) {
	env := newFlowEnv(t)
	env.enroll(t)
	ctx := context.Background()

	held := env.flow.ProcessLogin(ctx, Request{Username: "alice", Password: "s3cret-pass"})
	require.True(t, held.RequiresTwoFA)

	// Enrollment and the held login already sent two codes; one resend
	// fits in the window, the next is refused.
	resent := env.flow.ProcessResend(ctx, Request{TempToken: held.TempToken})
	require.Nil(t, resent.ErrorResponse)

	limited := env.flow.ProcessResend(ctx, Request{TempToken: held.TempToken})
	require.NotNil(t, limited.ErrorResponse)
	assert.Equal(t, ErrorTypeRateLimited, limited.ErrorResponse.Type)
}

func TestResendBadTempToken(t *testing.T) {
	env := newFlowEnv(t)
	env.enroll(t)

	result := env.flow.ProcessResend(context.Background(), Request{TempToken: "not-a-token"})
	require.NotNil(t, result.ErrorResponse)
	assert.Equal(t, ErrorTypeInvalidToken, result.ErrorResponse.Type)
}

func TestTrustedSessionSkipsChallenge(t *testing.T) {
	env := newFlowEnv(t)
	env.enroll(t)
	ctx := context.Background()

	held := env.flow.ProcessLogin(ctx, Request{Username: "alice", Password: "s3cret-pass"})
	require.True(t, held.RequiresTwoFA)
	validated := env.flow.Process2FAValidation(ctx, Request{
		TempToken: held.TempToken,
		TwoFACode: env.pendingCode(t),
	})
	require.True(t, validated.Success)

	// Within the trust window a fresh login is not challenged
	again := env.flow.ProcessLogin(ctx, Request{Username: "alice", Password: "s3cret-pass"})
	require.Nil(t, again.ErrorResponse)
	assert.True(t, again.Success)
	assert.False(t, again.RequiresTwoFA)
}

func TestLogoutClearsTrust(t *testing.T) {
	env := newFlowEnv(t)
	env.enroll(t)
	ctx := context.Background()

	held := env.flow.ProcessLogin(ctx, Request{Username: "alice", Password: "s3cret-pass"})
	require.True(t, held.RequiresTwoFA)
	validated := env.flow.Process2FAValidation(ctx, Request{
		TempToken: held.TempToken,
		TwoFACode: env.pendingCode(t),
	})
	require.True(t, validated.Success)

	env.flow.Logout(ctx, env.user.ID)

	result := env.flow.ProcessLogin(ctx, Request{Username: "alice", Password: "s3cret-pass"})
	assert.True(t, result.RequiresTwoFA)
}

func TestLogoutForUnknownUserIsHarmless(t *testing.T) {
	env := newFlowEnv(t)
	env.flow.Logout(context.Background(), uuid.New())
}
