package twofa

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateEmailCode(t *testing.T) {
	format := regexp.MustCompile(`^[0-9]{6}$`)
	for i := 0; i < 100; i++ {
		code, err := GenerateEmailCode()
		require.NoError(t, err)
		assert.Regexp(t, format, code)
	}
}

func TestGenerateBackupCodes(t *testing.T) {
	codes, err := GenerateBackupCodes(8, nil)
	require.NoError(t, err)
	require.Len(t, codes, 8)

	format := regexp.MustCompile(`^[A-Z0-9]{10}$`)
	seen := make(map[string]bool)
	for _, code := range codes {
		assert.Regexp(t, format, code)
		assert.False(t, seen[code], "codes must be unique")
		seen[code] = true
	}
}

func TestGenerateBackupCodesAvoidsExisting(t *testing.T) {
	existing, err := GenerateBackupCodes(8, nil)
	require.NoError(t, err)

	fresh, err := GenerateBackupCodes(8, existing)
	require.NoError(t, err)

	for _, code := range fresh {
		assert.NotContains(t, existing, code)
	}
}
