package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := LoadConfig()
	cfg.Issuer = "stamp-test"
	return cfg
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	require.Equal(t, "stamp", cfg.Issuer)
	require.Equal(t, "AUTO", cfg.Algorithm)
	require.Equal(t, "stamp-1", cfg.KeyID)
	require.Equal(t, 15*time.Minute, cfg.AccessTTL)
	require.Equal(t, 7*24*time.Hour, cfg.RefreshTTL)
	require.Equal(t, 2048, cfg.RSABits)
	require.True(t, cfg.JWKSEnabled)
	require.False(t, cfg.VaultEnabled)

	require.NoError(t, cfg.Validate())
}

func TestConfigFromEnvironment(t *testing.T) {
	t.Setenv("STAMP_ISSUER", "stamp-prod")
	t.Setenv("STAMP_ALGORITHM", "RS256")
	t.Setenv("STAMP_ACCESS_TTL", "5m")
	t.Setenv("STAMP_REFRESH_TTL", "3600")
	t.Setenv("STAMP_JWKS_ENABLED", "false")

	cfg := LoadConfig()
	require.Equal(t, "stamp-prod", cfg.Issuer)
	require.Equal(t, "RS256", cfg.Algorithm)
	require.Equal(t, 5*time.Minute, cfg.AccessTTL)
	// Bare integers are interpreted as seconds.
	require.Equal(t, time.Hour, cfg.RefreshTTL)
	require.False(t, cfg.JWKSEnabled)
}

func TestValidateRejectsShortTTLs(t *testing.T) {
	cfg := validConfig()
	cfg.AccessTTL = 30 * time.Second
	require.ErrorContains(t, cfg.Validate(), "STAMP_ACCESS_TTL")

	cfg = validConfig()
	cfg.RefreshTTL = 10 * time.Minute
	require.ErrorContains(t, cfg.Validate(), "STAMP_REFRESH_TTL")
}

func TestValidateRejectsWeakRSA(t *testing.T) {
	cfg := validConfig()
	cfg.RSABits = 1024
	require.ErrorContains(t, cfg.Validate(), "STAMP_RSA_BITS")
}

func TestValidateRequiresVaultSettings(t *testing.T) {
	cfg := validConfig()
	cfg.VaultEnabled = true
	cfg.VaultToken = "root"
	require.ErrorContains(t, cfg.Validate(), "STAMP_VAULT_ADDR")

	cfg.VaultAddr = "http://127.0.0.1:8200"
	cfg.VaultToken = ""
	require.ErrorContains(t, cfg.Validate(), "STAMP_VAULT_TOKEN")
}
