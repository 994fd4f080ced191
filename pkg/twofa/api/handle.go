package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/taskhub/taskhub/pkg/twofa"
)

// Handle serves the two-factor management endpoints. All routes expect
// an authenticated user; the user ID is taken from the verified JWT.
type Handle struct {
	twoFaService twofa.TwoFactorService
}

// NewHandle creates a new Handle
func NewHandle(twoFaService twofa.TwoFactorService) *Handle {
	return &Handle{twoFaService: twoFaService}
}

// Routes returns the two-factor management router.
func Routes(h *Handle) http.Handler {
	r := chi.NewRouter()

	r.Get("/status", h.GetStatus)
	r.Post("/enable", h.PostEnable)
	r.Post("/disable", h.PostDisable)
	r.Post("/send", h.PostSend)
	r.Post("/resend", h.PostResend)
	r.Post("/verify", h.PostVerify)
	r.Post("/backup/verify", h.PostBackupVerify)
	r.Post("/backup/regenerate", h.PostBackupRegenerate)

	return r
}

type enableRequest struct {
	Email string `json:"email,omitempty"`
}

type verifyRequest struct {
	Code string `json:"code"`
}

type successResponse struct {
	Result string `json:"result"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type verifyResponse struct {
	Result              string   `json:"result"`
	EnrollmentCompleted bool     `json:"enrollment_completed,omitempty"`
	BackupCodes         []string `json:"backup_codes,omitempty"`
}

type backupCodesResponse struct {
	Result      string   `json:"result"`
	BackupCodes []string `json:"backup_codes"`
}

// authenticatedUserID extracts the user ID from the verified JWT in the
// request context.
func authenticatedUserID(r *http.Request) (uuid.UUID, error) {
	_, claims, err := jwtauth.FromContext(r.Context())
	if err != nil {
		return uuid.Nil, err
	}

	extraClaims, ok := claims["extra_claims"].(map[string]interface{})
	if !ok {
		return uuid.Nil, errors.New("missing extra_claims in token")
	}
	raw, ok := extraClaims["user_id"].(string)
	if !ok {
		return uuid.Nil, errors.New("missing user_id in token")
	}
	return uuid.Parse(raw)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, message string) {
	render.Status(r, code)
	render.JSON(w, r, errorResponse{Error: message})
}

// writeTwoFaError maps service errors onto HTTP statuses.
func writeTwoFaError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, twofa.ErrRateLimitExceeded):
		writeError(w, r, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, twofa.ErrNoCodeIssued),
		errors.Is(err, twofa.ErrCodeExpired),
		errors.Is(err, twofa.ErrTooManyAttempts),
		errors.Is(err, twofa.ErrInvalidCode),
		errors.Is(err, twofa.ErrInvalidBackupCode):
		writeError(w, r, http.StatusUnauthorized, err.Error())
	case errors.Is(err, twofa.ErrNotEnrolled),
		errors.Is(err, twofa.ErrAlreadyEnrolled):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, twofa.ErrDeliveryFailed):
		writeError(w, r, http.StatusBadGateway, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// Get 2FA status for the authenticated user
// (GET /status)
func (h *Handle) GetStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := authenticatedUserID(r)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "invalid token")
		return
	}

	status, err := h.twoFaService.Status(r.Context(), userID)
	if err != nil {
		writeTwoFaError(w, r, err)
		return
	}
	render.JSON(w, r, status)
}

// Begin email 2FA enrollment
// (POST /enable)
func (h *Handle) PostEnable(w http.ResponseWriter, r *http.Request) {
	userID, err := authenticatedUserID(r)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "invalid token")
		return
	}

	var data enableRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := render.DecodeJSON(r.Body, &data); err != nil {
			writeError(w, r, http.StatusBadRequest, "unable to parse body")
			return
		}
	}

	if err := h.twoFaService.EnableEmailTwoFactor(r.Context(), userID, data.Email); err != nil {
		writeTwoFaError(w, r, err)
		return
	}
	render.JSON(w, r, successResponse{Result: "verification_code_sent"})
}

// Disable 2FA and wipe all related state
// (POST /disable)
func (h *Handle) PostDisable(w http.ResponseWriter, r *http.Request) {
	userID, err := authenticatedUserID(r)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "invalid token")
		return
	}

	if err := h.twoFaService.Disable(r.Context(), userID); err != nil {
		writeTwoFaError(w, r, err)
		return
	}
	render.JSON(w, r, successResponse{Result: "disabled"})
}

// Send a verification code
// (POST /send)
func (h *Handle) PostSend(w http.ResponseWriter, r *http.Request) {
	userID, err := authenticatedUserID(r)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "invalid token")
		return
	}

	if err := h.twoFaService.SendCode(r.Context(), userID); err != nil {
		writeTwoFaError(w, r, err)
		return
	}
	render.JSON(w, r, successResponse{Result: "verification_code_sent"})
}

// Resend the verification code
// (POST /resend)
func (h *Handle) PostResend(w http.ResponseWriter, r *http.Request) {
	userID, err := authenticatedUserID(r)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "invalid token")
		return
	}

	if err := h.twoFaService.Resend(r.Context(), userID); err != nil {
		writeTwoFaError(w, r, err)
		return
	}
	render.JSON(w, r, successResponse{Result: "verification_code_sent"})
}

// Verify an email code
// (POST /verify)
func (h *Handle) PostVerify(w http.ResponseWriter, r *http.Request) {
	userID, err := authenticatedUserID(r)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "invalid token")
		return
	}

	var data verifyRequest
	if err := render.DecodeJSON(r.Body, &data); err != nil {
		writeError(w, r, http.StatusBadRequest, "unable to parse body")
		return
	}

	result, err := h.twoFaService.VerifyCode(r.Context(), userID, data.Code)
	if err != nil {
		writeTwoFaError(w, r, err)
		return
	}
	render.JSON(w, r, verifyResponse{
		Result:              "verified",
		EnrollmentCompleted: result.EnrollmentCompleted,
		BackupCodes:         result.BackupCodes,
	})
}

// Verify a backup code
// (POST /backup/verify)
func (h *Handle) PostBackupVerify(w http.ResponseWriter, r *http.Request) {
	userID, err := authenticatedUserID(r)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "invalid token")
		return
	}

	var data verifyRequest
	if err := render.DecodeJSON(r.Body, &data); err != nil {
		writeError(w, r, http.StatusBadRequest, "unable to parse body")
		return
	}

	if err := h.twoFaService.VerifyBackupCode(r.Context(), userID, data.Code); err != nil {
		writeTwoFaError(w, r, err)
		return
	}
	render.JSON(w, r, successResponse{Result: "verified"})
}

// Replace the backup code set
// (POST /backup/regenerate)
func (h *Handle) PostBackupRegenerate(w http.ResponseWriter, r *http.Request) {
	userID, err := authenticatedUserID(r)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "invalid token")
		return
	}

	codes, err := h.twoFaService.RegenerateBackupCodes(r.Context(), userID)
	if err != nil {
		writeTwoFaError(w, r, err)
		return
	}
	render.JSON(w, r, backupCodesResponse{Result: "regenerated", BackupCodes: codes})
}
