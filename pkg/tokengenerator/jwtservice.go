package tokengenerator

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token type constants
const (
	ACCESS_TOKEN_NAME  = "access_token"
	REFRESH_TOKEN_NAME = "refresh_token"
	TEMP_TOKEN_NAME    = "temp_token"
)

// Default token expiry durations
const (
	DefaultAccessTokenExpiry  = 15 * time.Minute
	DefaultRefreshTokenExpiry = 24 * time.Hour
	DefaultTempTokenExpiry    = 10 * time.Minute
)

// JwtService provides JWT token generation and cookie management
type JwtService struct {
	TokenGenerators       map[string]TokenGenerator
	DefaultTokenGenerator TokenGenerator
	CookieSetter          CookieSetter

	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	TempTokenExpiry    time.Duration
}

// JwtServiceOption is a function that configures a JwtService
type JwtServiceOption func(*JwtService)

// WithTokenGenerator sets the token generator for a specific token name
func WithTokenGenerator(tokenName string, tokenGenerator TokenGenerator) JwtServiceOption {
	return func(js *JwtService) {
		js.TokenGenerators[tokenName] = tokenGenerator
	}
}

// WithDefaultTokenGenerator sets the default token generator
func WithDefaultTokenGenerator(tokenGenerator TokenGenerator) JwtServiceOption {
	return func(js *JwtService) {
		js.DefaultTokenGenerator = tokenGenerator
	}
}

// WithCookieSetter sets the cookie setter used for all token cookies
func WithCookieSetter(cookieSetter CookieSetter) JwtServiceOption {
	return func(js *JwtService) {
		js.CookieSetter = cookieSetter
	}
}

// WithAccessTokenExpiry sets the access token expiry duration
func WithAccessTokenExpiry(expiry time.Duration) JwtServiceOption {
	return func(js *JwtService) {
		js.AccessTokenExpiry = expiry
	}
}

// WithRefreshTokenExpiry sets the refresh token expiry duration
func WithRefreshTokenExpiry(expiry time.Duration) JwtServiceOption {
	return func(js *JwtService) {
		js.RefreshTokenExpiry = expiry
	}
}

// WithTempTokenExpiry sets the temporary token expiry duration
func WithTempTokenExpiry(expiry time.Duration) JwtServiceOption {
	return func(js *JwtService) {
		js.TempTokenExpiry = expiry
	}
}

// NewJwtService creates a new JwtService
func NewJwtService(options ...JwtServiceOption) *JwtService {
	js := &JwtService{
		TokenGenerators:    make(map[string]TokenGenerator),
		CookieSetter:       NewCookieSetter(true, true),
		AccessTokenExpiry:  DefaultAccessTokenExpiry,
		RefreshTokenExpiry: DefaultRefreshTokenExpiry,
		TempTokenExpiry:    DefaultTempTokenExpiry,
	}

	for _, option := range options {
		option(js)
	}

	return js
}

func (js *JwtService) generator(tokenName string) TokenGenerator {
	tokenGenerator, ok := js.TokenGenerators[tokenName]
	if !ok {
		return js.DefaultTokenGenerator
	}
	return tokenGenerator
}

func (js *JwtService) expiry(tokenName string) time.Duration {
	switch tokenName {
	case REFRESH_TOKEN_NAME:
		return js.RefreshTokenExpiry
	case TEMP_TOKEN_NAME:
		return js.TempTokenExpiry
	default:
		return js.AccessTokenExpiry
	}
}

// GenerateToken generates a token with the given parameters
func (js *JwtService) GenerateToken(tokenName, subject string, extraClaims map[string]interface{}) (string, time.Time, error) {
	return js.generator(tokenName).GenerateToken(subject, js.expiry(tokenName), extraClaims)
}

// ParseToken parses and validates a token
func (js *JwtService) ParseToken(tokenName, tokenStr string) (*jwt.Token, error) {
	return js.generator(tokenName).ParseToken(tokenStr)
}

// SetCookie sets a token cookie
func (js *JwtService) SetCookie(w http.ResponseWriter, cookieName, tokenValue string, expire time.Time) error {
	return js.CookieSetter.SetCookie(w, cookieName, tokenValue, expire)
}

// ClearCookie clears a token cookie
func (js *JwtService) ClearCookie(w http.ResponseWriter, cookieName string) error {
	return js.CookieSetter.ClearCookie(w, cookieName)
}

// ClearAuthCookies clears every auth cookie the service manages
func (js *JwtService) ClearAuthCookies(w http.ResponseWriter) {
	js.ClearCookie(w, ACCESS_TOKEN_NAME)
	js.ClearCookie(w, REFRESH_TOKEN_NAME)
	js.ClearCookie(w, TEMP_TOKEN_NAME)
}
