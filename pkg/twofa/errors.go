package twofa

import "errors"

var (
	// ErrRateLimitExceeded is returned when too many codes were requested
	// inside the current send window.
	ErrRateLimitExceeded = errors.New("too many verification codes requested, please try again later")

	// ErrDeliveryFailed is returned when the code email could not be sent;
	// the pending-code state is rolled back so a retry starts clean.
	ErrDeliveryFailed = errors.New("failed to deliver verification code")

	// ErrNoCodeIssued is returned when verification is attempted with no
	// code outstanding.
	ErrNoCodeIssued = errors.New("no verification code has been issued")

	// ErrCodeExpired is returned when the pending code's expiry has passed.
	// The code is purged; a new one must be requested.
	ErrCodeExpired = errors.New("verification code has expired")

	// ErrTooManyAttempts is returned when the attempt counter reached the
	// cap. The code is purged; a new one must be requested.
	ErrTooManyAttempts = errors.New("too many failed attempts, request a new code")

	// ErrInvalidCode is returned on a code mismatch.
	ErrInvalidCode = errors.New("invalid verification code")

	// ErrInvalidBackupCode is returned when a backup code is unknown or
	// already used.
	ErrInvalidBackupCode = errors.New("invalid backup code")

	// ErrNotEnrolled is returned for operations that require 2FA to be
	// enabled when it is not.
	ErrNotEnrolled = errors.New("two-factor authentication is not enabled")

	// ErrAlreadyEnrolled is returned when setup is requested while 2FA is
	// already enabled.
	ErrAlreadyEnrolled = errors.New("two-factor authentication is already enabled")
)
