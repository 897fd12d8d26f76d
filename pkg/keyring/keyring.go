// Package keyring abstracts where JWT signing material lives. A KeyManager
// hands out HMAC secrets and RSA keypairs by kid, regardless of whether
// they sit on disk or in HashiCorp Vault.
package keyring

import (
	"context"
	"crypto/rsa"
	"errors"
	"time"
)

// ErrKeyUnavailable means the requested key material simply does not exist
// in the backend. Callers may treat this as "degrade to another algorithm";
// any other error is a real failure and must propagate.
var ErrKeyUnavailable = errors.New("keyring: key unavailable")

// KeyManager provides signing material by key ID. Implementations must be
// safe for concurrent use.
type KeyManager interface {
	// Secret returns the shared HMAC secret for the kid, or
	// ErrKeyUnavailable when the backend holds none.
	Secret(ctx context.Context, kid string) ([]byte, error)

	// PrivateKey returns the RSA private key for the kid, or
	// ErrKeyUnavailable when the backend holds none.
	PrivateKey(ctx context.Context, kid string) (*rsa.PrivateKey, error)

	// PublicKey returns the RSA public key for the kid. Backends derive it
	// from the private key when no standalone public key is stored.
	PublicKey(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

// Config selects and configures a key backend. The backend choice is made
// once at startup and never changes for the process lifetime.
type Config struct {
	// File backend material. Inline values win over file paths.
	HMACSecretFile string
	HMACSecretB64  string
	RSAKeyFile     string
	RSAKeyPEM      string

	// Vault backend settings.
	VaultEnabled bool
	VaultAddr    string
	VaultToken   string
	VaultMount   string
	VaultPath    string

	// Distributed lock parameters for Vault-side key provisioning.
	LockTTL           time.Duration
	LockRetries       int
	LockRetryInterval time.Duration
}

// NewKeyManager builds the backend selected by cfg: Vault when
// cfg.VaultEnabled, otherwise the file backend.
func NewKeyManager(cfg Config) (KeyManager, error) {
	if cfg.VaultEnabled {
		return NewVaultKeyManager(cfg)
	}
	return NewFileKeyManager(cfg)
}
