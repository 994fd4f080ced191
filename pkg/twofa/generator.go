package twofa

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	emailCodeMin   = 100000
	emailCodeRange = 900000

	backupCodeLength   = 10
	backupCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// GenerateEmailCode produces a 6-digit verification code, uniformly
// distributed over 100000..999999, from a cryptographically secure source.
func GenerateEmailCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(emailCodeRange))
	if err != nil {
		return "", fmt.Errorf("failed to generate verification code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+emailCodeMin), nil
}

// GenerateBackupCodes produces n unique uppercase alphanumeric codes,
// collision-checked against the user's existing set.
func GenerateBackupCodes(n int, existing []string) ([]string, error) {
	seen := make(map[string]bool, n+len(existing))
	for _, code := range existing {
		seen[code] = true
	}

	codes := make([]string, 0, n)
	for len(codes) < n {
		code, err := generateBackupCode()
		if err != nil {
			return nil, err
		}
		if seen[code] {
			continue
		}
		seen[code] = true
		codes = append(codes, code)
	}
	return codes, nil
}

func generateBackupCode() (string, error) {
	buf := make([]byte, backupCodeLength)
	alphabetLen := big.NewInt(int64(len(backupCodeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", fmt.Errorf("failed to generate backup code: %w", err)
		}
		buf[i] = backupCodeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
