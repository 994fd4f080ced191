// Package loginflow orchestrates the login sequence: primary
// credential validation, the email 2FA challenge with backup-code
// fallback, and JWT issuance.
//
// A login against a 2FA-enabled account with no valid session trust is
// held: the caller receives a short-lived temp token while a
// verification code is dispatched. Submitting the code (or a backup
// code) with the temp token promotes the session to full access and
// refresh tokens.
package loginflow
