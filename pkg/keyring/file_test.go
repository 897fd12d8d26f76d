package keyring_test

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/aussiebroadwan/stamp/pkg/cryptox"
	"github.com/aussiebroadwan/stamp/pkg/keyring"
	"github.com/stretchr/testify/require"
)

func TestFileKeyManagerLoadsSecretAndKey(t *testing.T) {
	dir := t.TempDir()

	secret := []byte("0123456789abcdef0123456789abcdef")
	secretPath := filepath.Join(dir, "hmac.secret")
	require.NoError(t, os.WriteFile(secretPath, secret, 0o600))

	pemBytes, err := cryptox.GenerateRSAKey(2048)
	require.NoError(t, err)
	keyPath := filepath.Join(dir, "signing.pem")
	require.NoError(t, os.WriteFile(keyPath, pemBytes, 0o600))

	km, err := keyring.NewFileKeyManager(keyring.Config{
		HMACSecretFile: secretPath,
		RSAKeyFile:     keyPath,
	})
	require.NoError(t, err)

	ctx := context.Background()

	got, err := km.Secret(ctx, "any-kid")
	require.NoError(t, err)
	require.Equal(t, secret, got)

	priv, err := km.PrivateKey(ctx, "any-kid")
	require.NoError(t, err)
	require.NotNil(t, priv)

	pub, err := km.PublicKey(ctx, "any-kid")
	require.NoError(t, err)
	require.Equal(t, &priv.PublicKey, pub)
}

func TestFileKeyManagerInlineValuesWinOverFiles(t *testing.T) {
	inline := []byte("ffffffffffffffffffffffffffffffff")

	km, err := keyring.NewFileKeyManager(keyring.Config{
		HMACSecretB64:  base64.StdEncoding.EncodeToString(inline),
		HMACSecretFile: "/nonexistent/ignored",
	})
	require.NoError(t, err)

	got, err := km.Secret(context.Background(), "kid")
	require.NoError(t, err)
	require.Equal(t, inline, got)
}

func TestFileKeyManagerMissingMaterialIsUnavailable(t *testing.T) {
	km, err := keyring.NewFileKeyManager(keyring.Config{})
	require.NoError(t, err)

	ctx := context.Background()

	_, err = km.Secret(ctx, "kid")
	require.ErrorIs(t, err, keyring.ErrKeyUnavailable)

	_, err = km.PrivateKey(ctx, "kid")
	require.ErrorIs(t, err, keyring.ErrKeyUnavailable)

	_, err = km.PublicKey(ctx, "kid")
	require.ErrorIs(t, err, keyring.ErrKeyUnavailable)
}

func TestFileKeyManagerRejectsConfiguredButBrokenMaterial(t *testing.T) {
	// Configured-but-unreadable must be a hard error, never "unavailable"
	_, err := keyring.NewFileKeyManager(keyring.Config{
		RSAKeyFile: "/nonexistent/key.pem",
	})
	require.Error(t, err)
	require.NotErrorIs(t, err, keyring.ErrKeyUnavailable)

	_, err = keyring.NewFileKeyManager(keyring.Config{
		RSAKeyPEM: "this is not pem",
	})
	require.Error(t, err)

	_, err = keyring.NewFileKeyManager(keyring.Config{
		HMACSecretB64: "!!!not-base64!!!",
	})
	require.Error(t, err)
}

func TestNewKeyManagerSelectsBackend(t *testing.T) {
	km, err := keyring.NewKeyManager(keyring.Config{})
	require.NoError(t, err)
	require.IsType(t, &keyring.FileKeyManager{}, km)

	km, err = keyring.NewKeyManager(keyring.Config{
		VaultEnabled: true,
		VaultAddr:    "http://127.0.0.1:8200",
		VaultMount:   "secret",
		VaultPath:    "stamp/keys",
	})
	require.NoError(t, err)
	require.IsType(t, &keyring.VaultKeyManager{}, km)

	// Vault selected but not configured is a fatal config error
	_, err = keyring.NewKeyManager(keyring.Config{VaultEnabled: true})
	require.Error(t, err)
}
