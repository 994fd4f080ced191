// Package twofa implements email-based two-factor authentication with
// single-use backup codes.
//
// The service issues 6-digit verification codes over email, bounds
// issuance with a sliding rate-limit window, enforces a fixed-order
// verification check (no code, expiry, attempt cap, comparison), and
// completes enrollment on the first successful verification by minting
// a batch of backup codes. Successful verifications record session
// trust so users are not re-challenged within the trust window.
//
// Profiles are persisted through TwoFactorRepository, with PostgreSQL
// and JSON file backends selected by NewTwoFactorRepository.
package twofa
