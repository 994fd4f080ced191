// Package config holds the environment-driven configuration for the
// auth server binaries.
package config

import (
	"time"

	dbutils "github.com/tendant/db-utils/db"
)

// DbConfig configures the PostgreSQL connection.
type DbConfig struct {
	Host     string `env:"TASKHUB_PG_HOST" env-default:"localhost"`
	Port     uint16 `env:"TASKHUB_PG_PORT" env-default:"5432"`
	Database string `env:"TASKHUB_PG_DATABASE" env-default:"taskhub_db"`
	User     string `env:"TASKHUB_PG_USER" env-default:"taskhub"`
	Password string `env:"TASKHUB_PG_PASSWORD" env-default:"pwd"`
}

// ToDbConfig converts to the db-utils pool configuration.
func (d DbConfig) ToDbConfig() dbutils.DbConfig {
	return dbutils.DbConfig{
		Host:     d.Host,
		Port:     d.Port,
		Database: d.Database,
		User:     d.User,
		Password: d.Password,
	}
}

// EmailConfig configures SMTP delivery for verification codes and
// notices. Field names line up with notification.SMTPConfig so the
// binaries can copy it over directly.
type EmailConfig struct {
	Host     string `env:"EMAIL_HOST" env-default:"localhost"`
	Port     int    `env:"EMAIL_PORT" env-default:"1025"`
	TLS      bool   `env:"EMAIL_TLS" env-default:"false"`
	Username string `env:"EMAIL_USERNAME" env-default:""`
	Password string `env:"EMAIL_PASSWORD" env-default:""`
	From     string `env:"EMAIL_FROM" env-default:"noreply@taskhub.example"`
}

// JwtConfig configures token signing and cookie behavior.
type JwtConfig struct {
	JwtSecret      string `env:"JWT_SECRET" env-default:"very-secure-jwt-secret"`
	TempSecret     string `env:"JWT_TEMP_SECRET" env-default:"very-secure-temp-secret"`
	Issuer         string `env:"JWT_ISSUER" env-default:"taskhub"`
	Audience       string `env:"JWT_AUDIENCE" env-default:"taskhub"`
	CookieHttpOnly bool   `env:"COOKIE_HTTP_ONLY" env-default:"true"`
	CookieSecure   bool   `env:"COOKIE_SECURE" env-default:"false"`
}

// TwofaConfig configures the two-factor policy knobs.
type TwofaConfig struct {
	CodeExpiryMinutes      int `env:"TWOFA_CODE_EXPIRY_MINUTES" env-default:"10"`
	MaxAttempts            int `env:"TWOFA_MAX_ATTEMPTS" env-default:"5"`
	RateLimitWindowMinutes int `env:"TWOFA_RATE_LIMIT_WINDOW_MINUTES" env-default:"15"`
	RateLimitMax           int `env:"TWOFA_RATE_LIMIT_MAX" env-default:"3"`
	TrustDurationHours     int `env:"TWOFA_TRUST_DURATION_HOURS" env-default:"24"`
	BackupCodeCount        int `env:"TWOFA_BACKUP_CODE_COUNT" env-default:"8"`
}

// CodeExpiry returns the code expiry as a duration.
func (t TwofaConfig) CodeExpiry() time.Duration {
	return time.Duration(t.CodeExpiryMinutes) * time.Minute
}

// RateLimitWindow returns the send window as a duration.
func (t TwofaConfig) RateLimitWindow() time.Duration {
	return time.Duration(t.RateLimitWindowMinutes) * time.Minute
}

// TrustDuration returns the session trust window as a duration.
func (t TwofaConfig) TrustDuration() time.Duration {
	return time.Duration(t.TrustDurationHours) * time.Hour
}
