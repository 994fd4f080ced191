package loginflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/taskhub/taskhub/pkg/login"
	"github.com/taskhub/taskhub/pkg/sessiontrust"
	tg "github.com/taskhub/taskhub/pkg/tokengenerator"
	"github.com/taskhub/taskhub/pkg/twofa"
)

// Error type constants
const (
	ErrorTypeInvalidCredentials = "invalid_credentials"
	ErrorTypeNoCodeIssued       = "no_code_issued"
	ErrorTypeCodeExpired        = "code_expired"
	ErrorTypeTooManyAttempts    = "too_many_attempts"
	ErrorTypeInvalidCode        = "invalid_code"
	ErrorTypeRateLimited        = "rate_limited"
	ErrorTypeDeliveryFailed     = "delivery_failed"
	ErrorTypeInvalidToken       = "invalid_token"
	ErrorTypeInternalError      = "internal_error"
)

// Two-factor validation types accepted on resumption.
const (
	TwoFATypeEmail  = "email"
	TwoFATypeBackup = "backup"
)

// Request contains the data for one login flow step.
type Request struct {
	// Primary login fields
	Username string
	Password string

	// Resumption fields
	TempToken string
	TwoFACode string
	TwoFAType string
}

// Result contains the result of a login flow operation
type Result struct {
	Success       bool
	RequiresTwoFA bool

	// Set when RequiresTwoFA: carries the login across the challenge
	TempToken       string
	TempTokenExpiry time.Time

	// Set on success
	User   login.User
	Tokens map[string]tg.TokenValue

	// Set when a 2FA validation completed enrollment
	BackupCodes []string

	ErrorResponse *Error
}

// Error represents structured errors from the login flow
type Error struct {
	Type    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// LoginFlowService orchestrates primary authentication, the 2FA
// challenge, and token issuance.
type LoginFlowService struct {
	loginService     *login.LoginService
	twoFactorService twofa.TwoFactorService
	jwtService       *tg.JwtService
	trustStore       sessiontrust.Store
}

// NewLoginFlowService creates a new login flow service
func NewLoginFlowService(
	loginService *login.LoginService,
	twoFactorService twofa.TwoFactorService,
	jwtService *tg.JwtService,
	trustStore sessiontrust.Store,
) *LoginFlowService {
	return &LoginFlowService{
		loginService:     loginService,
		twoFactorService: twoFactorService,
		jwtService:       jwtService,
		trustStore:       trustStore,
	}
}

// ProcessLogin validates primary credentials. When the account has 2FA
// enabled and no valid session trust, the login is held: a code is
// dispatched and a temp token is returned instead of auth tokens.
func (s *LoginFlowService) ProcessLogin(ctx context.Context, request Request) Result {
	user, err := s.loginService.Authenticate(ctx, request.Username, request.Password)
	if err != nil {
		if errors.Is(err, login.ErrInvalidCredentials) {
			return errorResult(ErrorTypeInvalidCredentials, err.Error())
		}
		slog.Error("Login failed", "username", request.Username, "err", err)
		return errorResult(ErrorTypeInternalError, "login failed")
	}

	required, err := s.twoFactorService.RequiresVerification(ctx, user.ID)
	if err != nil {
		slog.Error("Failed to evaluate 2FA requirement", "userID", user.ID, "err", err)
		return errorResult(ErrorTypeInternalError, "login failed")
	}

	if !required {
		return s.issueTokens(user)
	}

	if err := s.twoFactorService.SendCode(ctx, user.ID); err != nil {
		if errors.Is(err, twofa.ErrRateLimitExceeded) {
			// A code from an earlier send is likely still outstanding;
			// hand out the temp token and let the user submit it.
			slog.Warn("2FA code send rate limited during login", "userID", user.ID)
		} else {
			slog.Error("Failed to send 2FA code during login", "userID", user.ID, "err", err)
			return errorResult(ErrorTypeDeliveryFailed, "failed to deliver verification code")
		}
	}

	tempToken, expiry, err := s.jwtService.GenerateToken(tg.TEMP_TOKEN_NAME, user.ID.String(), map[string]interface{}{
		"user_id": user.ID.String(),
	})
	if err != nil {
		slog.Error("Failed to generate temp token", "userID", user.ID, "err", err)
		return errorResult(ErrorTypeInternalError, "login failed")
	}

	slog.Info("Login held for 2FA verification", "userID", user.ID)
	return Result{
		RequiresTwoFA:   true,
		TempToken:       tempToken,
		TempTokenExpiry: expiry,
	}
}

// Process2FAValidation resumes a held login: it validates the temp
// token, checks the submitted code (email or backup), and promotes the
// session to full auth tokens on success.
func (s *LoginFlowService) Process2FAValidation(ctx context.Context, request Request) Result {
	token, err := s.jwtService.ParseToken(tg.TEMP_TOKEN_NAME, request.TempToken)
	if err != nil {
		return errorResult(ErrorTypeInvalidToken, "invalid or expired login session")
	}
	userID, err := tg.ExtractUserID(token)
	if err != nil {
		return errorResult(ErrorTypeInvalidToken, "invalid or expired login session")
	}

	var backupCodes []string
	switch request.TwoFAType {
	case TwoFATypeBackup:
		err = s.twoFactorService.VerifyBackupCode(ctx, userID, request.TwoFACode)
	case TwoFATypeEmail, "":
		var result twofa.VerifyResult
		result, err = s.twoFactorService.VerifyCode(ctx, userID, request.TwoFACode)
		backupCodes = result.BackupCodes
	default:
		return errorResult(ErrorTypeInvalidCode, "unsupported verification type")
	}
	if err != nil {
		return twoFAErrorResult(err)
	}

	user, err := s.loginService.GetUser(ctx, userID)
	if err != nil {
		slog.Error("Failed to load user after 2FA validation", "userID", userID, "err", err)
		return errorResult(ErrorTypeInternalError, "login failed")
	}

	slog.Info("2FA validation completed", "userID", userID, "type", request.TwoFAType)
	result := s.issueTokens(user)
	result.BackupCodes = backupCodes
	return result
}

// ProcessResend re-dispatches the verification code for a held login.
// The temp token is the caller's only credential at this point, so it
// authenticates the resend.
func (s *LoginFlowService) ProcessResend(ctx context.Context, request Request) Result {
	token, err := s.jwtService.ParseToken(tg.TEMP_TOKEN_NAME, request.TempToken)
	if err != nil {
		return errorResult(ErrorTypeInvalidToken, "invalid or expired login session")
	}
	userID, err := tg.ExtractUserID(token)
	if err != nil {
		return errorResult(ErrorTypeInvalidToken, "invalid or expired login session")
	}

	if err := s.twoFactorService.Resend(ctx, userID); err != nil {
		switch {
		case errors.Is(err, twofa.ErrRateLimitExceeded):
			return errorResult(ErrorTypeRateLimited, err.Error())
		case errors.Is(err, twofa.ErrDeliveryFailed):
			return errorResult(ErrorTypeDeliveryFailed, err.Error())
		default:
			slog.Error("Failed to resend 2FA code", "userID", userID, "err", err)
			return errorResult(ErrorTypeInternalError, "failed to resend verification code")
		}
	}

	slog.Info("2FA code resent for held login", "userID", userID)
	return Result{
		RequiresTwoFA: true,
		TempToken:     request.TempToken,
	}
}

// Logout clears session trust, so the next login is challenged again
// even inside the trust window.
func (s *LoginFlowService) Logout(ctx context.Context, userID uuid.UUID) {
	s.trustStore.Delete(userID)
	slog.Info("Logged out", "userID", userID)
}

func (s *LoginFlowService) issueTokens(user login.User) Result {
	claims := map[string]interface{}{
		"user_id":  user.ID.String(),
		"username": user.Username,
		"email":    user.Email,
	}

	tokens := make(map[string]tg.TokenValue)
	for _, tokenName := range []string{tg.ACCESS_TOKEN_NAME, tg.REFRESH_TOKEN_NAME} {
		tokenStr, expiry, err := s.jwtService.GenerateToken(tokenName, user.ID.String(), claims)
		if err != nil {
			slog.Error("Failed to generate token", "tokenName", tokenName, "userID", user.ID, "err", err)
			return errorResult(ErrorTypeInternalError, "failed to generate tokens")
		}
		tokens[tokenName] = tg.TokenValue{Token: tokenStr, Expiry: expiry}
	}

	return Result{
		Success: true,
		User:    user,
		Tokens:  tokens,
	}
}

func errorResult(errorType, message string) Result {
	return Result{ErrorResponse: &Error{Type: errorType, Message: message}}
}

func twoFAErrorResult(err error) Result {
	switch {
	case errors.Is(err, twofa.ErrNoCodeIssued):
		return errorResult(ErrorTypeNoCodeIssued, err.Error())
	case errors.Is(err, twofa.ErrCodeExpired):
		return errorResult(ErrorTypeCodeExpired, err.Error())
	case errors.Is(err, twofa.ErrTooManyAttempts):
		return errorResult(ErrorTypeTooManyAttempts, err.Error())
	case errors.Is(err, twofa.ErrInvalidCode), errors.Is(err, twofa.ErrInvalidBackupCode):
		return errorResult(ErrorTypeInvalidCode, err.Error())
	case errors.Is(err, twofa.ErrNotEnrolled):
		return errorResult(ErrorTypeInvalidCode, err.Error())
	default:
		slog.Error("2FA validation failed", "err", err)
		return errorResult(ErrorTypeInternalError, "verification failed")
	}
}
