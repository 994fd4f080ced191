package twofa

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresTwoFactorRepository implements TwoFactorRepository backed by
// the twofactor_profiles table.
type PostgresTwoFactorRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresTwoFactorRepository creates a new PostgreSQL two-factor repository
func NewPostgresTwoFactorRepository(pool *pgxpool.Pool) *PostgresTwoFactorRepository {
	return &PostgresTwoFactorRepository{pool: pool}
}

const getProfileQuery = `
SELECT user_id, enabled, method, backup_email, pending_code, pending_code_expires_at,
       code_attempt_count, last_code_sent_at, send_window_started_at, send_window_count,
       backup_codes, setup_date, last_verified_at, updated_at
FROM twofactor_profiles
WHERE user_id = $1
`

func (r *PostgresTwoFactorRepository) GetProfile(ctx context.Context, userID uuid.UUID) (Profile, error) {
	var p Profile
	var backupEmail, pendingCode *string
	err := r.pool.QueryRow(ctx, getProfileQuery, userID).Scan(
		&p.UserID, &p.Enabled, &p.Method, &backupEmail, &pendingCode, &p.PendingCodeExpiresAt,
		&p.CodeAttemptCount, &p.LastCodeSentAt, &p.SendWindowStartedAt, &p.SendWindowCount,
		&p.BackupCodes, &p.SetupDate, &p.LastVerifiedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Profile{UserID: userID, Method: MethodDisabled}, nil
	}
	if err != nil {
		return Profile{}, fmt.Errorf("failed to get two-factor profile: %w", err)
	}
	if backupEmail != nil {
		p.BackupEmail = *backupEmail
	}
	if pendingCode != nil {
		p.PendingCode = *pendingCode
	}
	return p, nil
}

const upsertProfileQuery = `
INSERT INTO twofactor_profiles (
    user_id, enabled, method, backup_email, pending_code, pending_code_expires_at,
    code_attempt_count, last_code_sent_at, send_window_started_at, send_window_count,
    backup_codes, setup_date, last_verified_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (user_id) DO UPDATE SET
    enabled = EXCLUDED.enabled,
    method = EXCLUDED.method,
    backup_email = EXCLUDED.backup_email,
    pending_code = EXCLUDED.pending_code,
    pending_code_expires_at = EXCLUDED.pending_code_expires_at,
    code_attempt_count = EXCLUDED.code_attempt_count,
    last_code_sent_at = EXCLUDED.last_code_sent_at,
    send_window_started_at = EXCLUDED.send_window_started_at,
    send_window_count = EXCLUDED.send_window_count,
    backup_codes = EXCLUDED.backup_codes,
    setup_date = EXCLUDED.setup_date,
    last_verified_at = EXCLUDED.last_verified_at,
    updated_at = EXCLUDED.updated_at
`

func (r *PostgresTwoFactorRepository) UpdateProfile(ctx context.Context, profile Profile) error {
	var backupEmail, pendingCode *string
	if profile.BackupEmail != "" {
		backupEmail = &profile.BackupEmail
	}
	if profile.PendingCode != "" {
		pendingCode = &profile.PendingCode
	}

	_, err := r.pool.Exec(ctx, upsertProfileQuery,
		profile.UserID, profile.Enabled, profile.Method, backupEmail, pendingCode,
		profile.PendingCodeExpiresAt, profile.CodeAttemptCount, profile.LastCodeSentAt,
		profile.SendWindowStartedAt, profile.SendWindowCount, profile.BackupCodes,
		profile.SetupDate, profile.LastVerifiedAt, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to update two-factor profile: %w", err)
	}
	return nil
}

// The predicate and the removal run in one statement, so two racing
// submissions of the same code cannot both report success.
const consumeBackupCodeQuery = `
UPDATE twofactor_profiles
SET backup_codes = array_remove(backup_codes, $2),
    last_verified_at = $3,
    updated_at = $4
WHERE user_id = $1 AND $2 = ANY(backup_codes)
`

func (r *PostgresTwoFactorRepository) ConsumeBackupCode(ctx context.Context, userID uuid.UUID, code string, verifiedAt time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, consumeBackupCodeQuery, userID, code, verifiedAt, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to consume backup code: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
