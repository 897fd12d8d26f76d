package cryptox

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{"secret size", TokenSize256},
		{"custom size", 24},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := GenerateToken(tt.size)
			require.NoError(t, err)

			raw, err := base64.RawURLEncoding.DecodeString(token)
			require.NoError(t, err)
			require.Len(t, raw, tt.size)

			again, err := GenerateToken(tt.size)
			require.NoError(t, err)
			require.NotEqual(t, token, again)
		})
	}
}

func TestGenerateTokenRejectsNonPositiveSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		token, err := GenerateToken(size)
		require.Error(t, err)
		require.Empty(t, token)
	}
}

func TestMustGenerateTokenPanicsOnBadSize(t *testing.T) {
	require.NotEmpty(t, MustGenerateToken(TokenSize256))
	require.Panics(t, func() { MustGenerateToken(0) })
}

func TestFingerprintToken(t *testing.T) {
	fp := FingerprintToken("refresh-abc")

	// Deterministic, distinct per input, and a fixed-width SHA-256 digest
	// so the column lookup works.
	require.Equal(t, fp, FingerprintToken("refresh-abc"))
	require.NotEqual(t, fp, FingerprintToken("refresh-abd"))
	require.Len(t, fp, 43)
}
