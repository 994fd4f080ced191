package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/taskhub/taskhub/pkg/loginflow"
	tg "github.com/taskhub/taskhub/pkg/tokengenerator"
)

// Handle serves the login endpoints: primary login, 2FA validation and
// logout. Tokens are returned in the body and set as cookies.
type Handle struct {
	flowService *loginflow.LoginFlowService
	jwtService  *tg.JwtService
}

// NewHandle creates a new Handle
func NewHandle(flowService *loginflow.LoginFlowService, jwtService *tg.JwtService) *Handle {
	return &Handle{flowService: flowService, jwtService: jwtService}
}

// Routes returns the login router.
func Routes(h *Handle) http.Handler {
	r := chi.NewRouter()

	r.Post("/login", h.PostLogin)
	r.Post("/2fa/validate", h.Post2faValidate)
	r.Post("/2fa/resend", h.Post2faResend)
	r.Post("/logout", h.PostLogout)

	return r
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type validateRequest struct {
	TempToken string `json:"temp_token,omitempty"`
	Code      string `json:"code"`
	Type      string `json:"type,omitempty"`
}

type userView struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type loginResponse struct {
	Status      string                   `json:"status"`
	Message     string                   `json:"message,omitempty"`
	TempToken   string                   `json:"temp_token,omitempty"`
	User        *userView                `json:"user,omitempty"`
	Tokens      map[string]tg.TokenValue `json:"tokens,omitempty"`
	BackupCodes []string                 `json:"backup_codes,omitempty"`
}

func errorStatusCode(errorType string) int {
	switch errorType {
	case loginflow.ErrorTypeInvalidCredentials,
		loginflow.ErrorTypeInvalidToken,
		loginflow.ErrorTypeInvalidCode,
		loginflow.ErrorTypeNoCodeIssued,
		loginflow.ErrorTypeCodeExpired,
		loginflow.ErrorTypeTooManyAttempts:
		return http.StatusUnauthorized
	case loginflow.ErrorTypeRateLimited:
		return http.StatusTooManyRequests
	case loginflow.ErrorTypeDeliveryFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handle) writeResult(w http.ResponseWriter, r *http.Request, result loginflow.Result) {
	if result.ErrorResponse != nil {
		render.Status(r, errorStatusCode(result.ErrorResponse.Type))
		render.JSON(w, r, loginResponse{
			Status:  result.ErrorResponse.Type,
			Message: result.ErrorResponse.Message,
		})
		return
	}

	if result.RequiresTwoFA {
		h.jwtService.SetCookie(w, tg.TEMP_TOKEN_NAME, result.TempToken, result.TempTokenExpiry)
		render.Status(r, http.StatusAccepted)
		render.JSON(w, r, loginResponse{
			Status:    "2fa_required",
			Message:   "verification code sent",
			TempToken: result.TempToken,
		})
		return
	}

	for tokenName, tokenValue := range result.Tokens {
		h.jwtService.SetCookie(w, tokenName, tokenValue.Token, tokenValue.Expiry)
	}
	h.jwtService.ClearCookie(w, tg.TEMP_TOKEN_NAME)

	render.JSON(w, r, loginResponse{
		Status: "success",
		User: &userView{
			ID:       result.User.ID.String(),
			Username: result.User.Username,
			Email:    result.User.Email,
		},
		Tokens:      result.Tokens,
		BackupCodes: result.BackupCodes,
	})
}

// Authenticate with username and password
// (POST /login)
func (h *Handle) PostLogin(w http.ResponseWriter, r *http.Request) {
	var data loginRequest
	if err := render.DecodeJSON(r.Body, &data); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, loginResponse{Status: "bad_request", Message: "unable to parse body"})
		return
	}

	result := h.flowService.ProcessLogin(r.Context(), loginflow.Request{
		Username: data.Username,
		Password: data.Password,
	})
	h.writeResult(w, r, result)
}

// Complete a held login with an email or backup code
// (POST /2fa/validate)
func (h *Handle) Post2faValidate(w http.ResponseWriter, r *http.Request) {
	var data validateRequest
	if err := render.DecodeJSON(r.Body, &data); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, loginResponse{Status: "bad_request", Message: "unable to parse body"})
		return
	}

	tempToken := data.TempToken
	if tempToken == "" {
		if cookie, err := r.Cookie(tg.TEMP_TOKEN_NAME); err == nil {
			tempToken = cookie.Value
		}
	}

	result := h.flowService.Process2FAValidation(r.Context(), loginflow.Request{
		TempToken: tempToken,
		TwoFACode: data.Code,
		TwoFAType: data.Type,
	})
	h.writeResult(w, r, result)
}

// Resend the verification code for a held login, authenticated by the
// temp token alone
// (POST /2fa/resend)
func (h *Handle) Post2faResend(w http.ResponseWriter, r *http.Request) {
	var data validateRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := render.DecodeJSON(r.Body, &data); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, loginResponse{Status: "bad_request", Message: "unable to parse body"})
			return
		}
	}

	tempToken := data.TempToken
	if tempToken == "" {
		if cookie, err := r.Cookie(tg.TEMP_TOKEN_NAME); err == nil {
			tempToken = cookie.Value
		}
	}

	result := h.flowService.ProcessResend(r.Context(), loginflow.Request{TempToken: tempToken})
	if result.ErrorResponse != nil {
		render.Status(r, errorStatusCode(result.ErrorResponse.Type))
		render.JSON(w, r, loginResponse{
			Status:  result.ErrorResponse.Type,
			Message: result.ErrorResponse.Message,
		})
		return
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, loginResponse{
		Status:  "2fa_required",
		Message: "verification code sent",
	})
}

// Log out: clear cookies and session trust
// (POST /logout)
func (h *Handle) PostLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(tg.ACCESS_TOKEN_NAME); err == nil {
		if token, err := h.jwtService.ParseToken(tg.ACCESS_TOKEN_NAME, cookie.Value); err == nil {
			if userID, err := tg.ExtractUserID(token); err == nil {
				h.flowService.Logout(r.Context(), userID)
			}
		}
	}

	h.jwtService.ClearAuthCookies(w)
	render.JSON(w, r, loginResponse{Status: "logged_out"})
}
