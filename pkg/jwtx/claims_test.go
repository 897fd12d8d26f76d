package jwtx_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/aussiebroadwan/stamp/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestAccessClaimsAlwaysCarryPermissions(t *testing.T) {
	now := time.Now().UTC()
	claims := jwtx.NewAccessClaims("user-1", "u@example.com", nil, time.Minute, exampleIssuer, now)

	raw, err := json.Marshal(claims)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	// nil permissions still serialise as an empty array, not absent
	perms, ok := decoded["permissions"]
	require.True(t, ok)
	require.Equal(t, []any{}, perms)
}

func TestRefreshClaimsOmitPermissions(t *testing.T) {
	now := time.Now().UTC()
	claims := jwtx.NewRefreshClaims("user-1", time.Hour, exampleIssuer, now)
	require.Equal(t, jwtx.TokenTypeRefresh, claims.Type)

	raw, err := json.Marshal(claims)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	_, ok := decoded["permissions"]
	require.False(t, ok)
	_, ok = decoded["email"]
	require.False(t, ok)
}

func TestServiceClaimsWithUserContext(t *testing.T) {
	now := time.Now().UTC()
	claims := jwtx.NewServiceClaimsWithUser(
		"reporting-service",
		[]string{"reports:generate"},
		"user-42",
		[]string{"reports:read"},
		10*time.Minute,
		exampleIssuer,
		[]string{"reports"},
		now,
	)

	require.Equal(t, jwtx.TokenTypeService, claims.Type)
	require.Equal(t, "reporting-service", claims.Subject)
	require.Equal(t, "user-42", claims.UserID)
	require.NotNil(t, claims.UserPermissions)
	require.ElementsMatch(t, []string{"reports:read"}, *claims.UserPermissions)
}

func TestClaimsExpiryWindow(t *testing.T) {
	now := time.Now().UTC()

	claims := jwtx.NewAccessClaims("u", "", nil, 900*time.Second, exampleIssuer, now)
	require.NoError(t, claims.ValidateExpiry())

	// exp - iat must equal the requested TTL exactly
	require.Equal(t, 900*time.Second, claims.ExpiresAt.Sub(claims.IssuedAt.Time))

	expired := jwtx.NewAccessClaims("u", "", nil, time.Second, exampleIssuer, now.Add(-time.Minute))
	require.ErrorIs(t, expired.ValidateExpiry(), jwtx.ErrExpired)
}

func TestClaimsValidateType(t *testing.T) {
	now := time.Now().UTC()
	claims := jwtx.NewRefreshClaims("u", time.Hour, exampleIssuer, now)

	require.NoError(t, claims.ValidateType(jwtx.TokenTypeRefresh))
	require.ErrorIs(t, claims.ValidateType(jwtx.TokenTypeAccess), jwtx.ErrTokenType)
	require.NoError(t, claims.ValidateType("")) // nothing to enforce
}

func TestNewJTIIsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for range 64 {
		jti := jwtx.NewJTI()
		require.NotEmpty(t, jti)
		require.False(t, seen[jti])
		seen[jti] = true
	}
}
