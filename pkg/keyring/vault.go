package keyring

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/hashicorp/vault/api"

	"github.com/aussiebroadwan/stamp/pkg/cryptox"
)

// Secret data field names within a Vault KV v2 entry.
const (
	vaultFieldHMACSecret = "hmac_secret" // base64 std encoding
	vaultFieldPrivateKey = "private_key" // PEM
)

// Defaults for the distributed provisioning lock.
const (
	defaultLockTTL           = 30 * time.Second
	defaultLockRetries       = 10
	defaultLockRetryInterval = 500 * time.Millisecond
)

// VaultKeyManager serves key material out of a HashiCorp Vault KV v2 mount.
// Fetched material is cached in memory, so Vault is only hit once per kid
// for the process lifetime.
type VaultKeyManager struct {
	client *api.Client
	mount  string
	base   string

	lockTTL           time.Duration
	lockRetries       int
	lockRetryInterval time.Duration

	mu    sync.RWMutex
	cache map[string]*keyMaterial
}

type keyMaterial struct {
	secret []byte
	priv   *rsa.PrivateKey
}

// NewVaultKeyManager connects to Vault using the configured address and
// token. It does not verify that any key material exists yet; that happens
// lazily per kid, or eagerly via EnsureRSAKey.
func NewVaultKeyManager(cfg Config) (*VaultKeyManager, error) {
	if cfg.VaultAddr == "" {
		return nil, errors.New("keyring: vault address is required")
	}
	if cfg.VaultMount == "" {
		return nil, errors.New("keyring: vault mount is required")
	}

	apiCfg := api.DefaultConfig()
	apiCfg.Address = cfg.VaultAddr

	client, err := api.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("keyring: create vault client: %w", err)
	}
	client.SetToken(cfg.VaultToken)

	m := &VaultKeyManager{
		client:            client,
		mount:             cfg.VaultMount,
		base:              cfg.VaultPath,
		lockTTL:           cfg.LockTTL,
		lockRetries:       cfg.LockRetries,
		lockRetryInterval: cfg.LockRetryInterval,
		cache:             make(map[string]*keyMaterial),
	}
	if m.lockTTL <= 0 {
		m.lockTTL = defaultLockTTL
	}
	if m.lockRetries <= 0 {
		m.lockRetries = defaultLockRetries
	}
	if m.lockRetryInterval <= 0 {
		m.lockRetryInterval = defaultLockRetryInterval
	}
	return m, nil
}

// Secret returns the shared HMAC secret stored for the kid.
func (m *VaultKeyManager) Secret(ctx context.Context, kid string) ([]byte, error) {
	mat, err := m.material(ctx, kid)
	if err != nil {
		return nil, err
	}
	if len(mat.secret) == 0 {
		return nil, ErrKeyUnavailable
	}
	return mat.secret, nil
}

// PrivateKey returns the RSA private key stored for the kid.
func (m *VaultKeyManager) PrivateKey(ctx context.Context, kid string) (*rsa.PrivateKey, error) {
	mat, err := m.material(ctx, kid)
	if err != nil {
		return nil, err
	}
	if mat.priv == nil {
		return nil, ErrKeyUnavailable
	}
	return mat.priv, nil
}

// PublicKey returns the public half of the RSA key stored for the kid.
func (m *VaultKeyManager) PublicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	priv, err := m.PrivateKey(ctx, kid)
	if err != nil {
		return nil, err
	}
	return &priv.PublicKey, nil
}

// material returns cached key material, fetching from Vault on first use.
func (m *VaultKeyManager) material(ctx context.Context, kid string) (*keyMaterial, error) {
	m.mu.RLock()
	mat, ok := m.cache[kid]
	m.mu.RUnlock()
	if ok {
		return mat, nil
	}

	mat, err := m.fetch(ctx, kid)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.cache[kid] = mat
	m.mu.Unlock()
	return mat, nil
}

func (m *VaultKeyManager) fetch(ctx context.Context, kid string) (*keyMaterial, error) {
	secret, err := m.client.KVv2(m.mount).Get(ctx, m.keyPath(kid))
	if err != nil {
		if errors.Is(err, api.ErrSecretNotFound) {
			return nil, ErrKeyUnavailable
		}
		return nil, fmt.Errorf("keyring: vault read %s: %w", m.keyPath(kid), err)
	}

	mat := &keyMaterial{}

	if raw, ok := secret.Data[vaultFieldHMACSecret].(string); ok && raw != "" {
		b, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("keyring: decode vault HMAC secret: %w", err)
		}
		mat.secret = b
	}

	if raw, ok := secret.Data[vaultFieldPrivateKey].(string); ok && raw != "" {
		key, err := parseRSAPrivateKeyPEM([]byte(raw))
		if err != nil {
			return nil, err
		}
		mat.priv = key
	}

	return mat, nil
}

// EnsureRSAKey provisions an RSA keypair for the kid if Vault does not hold
// one yet. Multiple instances may race here on a fresh deployment, so the
// write is guarded by a KV check-and-set lock: exactly one instance
// generates, the rest wait for the material to appear.
func (m *VaultKeyManager) EnsureRSAKey(ctx context.Context, kid string, bits int) error {
	_, err := m.PrivateKey(ctx, kid)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrKeyUnavailable) {
		return err
	}

	acquired, err := m.acquireLock(ctx, kid)
	if err != nil {
		return err
	}

	if acquired {
		defer m.releaseLock(ctx, kid)

		pemBytes, err := cryptox.GenerateRSAKey(bits)
		if err != nil {
			return fmt.Errorf("keyring: generate RSA key: %w", err)
		}

		// Preserve any sibling fields (an HMAC secret may already live
		// at the same path).
		data := map[string]any{vaultFieldPrivateKey: string(pemBytes)}
		if existing, getErr := m.client.KVv2(m.mount).Get(ctx, m.keyPath(kid)); getErr == nil {
			for k, v := range existing.Data {
				if k != vaultFieldPrivateKey {
					data[k] = v
				}
			}
		}

		_, err = m.client.KVv2(m.mount).Put(ctx, m.keyPath(kid), data)
		if err != nil {
			return fmt.Errorf("keyring: vault write %s: %w", m.keyPath(kid), err)
		}

		m.invalidate(kid)
		_, err = m.PrivateKey(ctx, kid)
		return err
	}

	// Another instance holds the lock; poll until its key shows up.
	for i := 0; i < m.lockRetries; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.lockRetryInterval):
		}

		m.invalidate(kid)
		_, err := m.PrivateKey(ctx, kid)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrKeyUnavailable) {
			return err
		}
	}
	return fmt.Errorf("keyring: timed out waiting for key %q to be provisioned", kid)
}

// acquireLock tries to create the lock entry with check-and-set version 0,
// which only succeeds if no lock exists. A stale lock past its TTL is taken
// over with a CAS on its current version so two instances cannot both
// steal it.
func (m *VaultKeyManager) acquireLock(ctx context.Context, kid string) (bool, error) {
	kv := m.client.KVv2(m.mount)
	expiry := time.Now().UTC().Add(m.lockTTL).Format(time.RFC3339)

	_, err := kv.Put(ctx, m.lockPath(kid), map[string]any{
		"expires_at": expiry,
	}, api.WithCheckAndSet(0))
	if err == nil {
		return true, nil
	}

	existing, getErr := kv.Get(ctx, m.lockPath(kid))
	if getErr != nil {
		if errors.Is(getErr, api.ErrSecretNotFound) {
			// Lost the race and the winner already released. Treat as
			// not acquired; the caller will poll for the key.
			return false, nil
		}
		return false, fmt.Errorf("keyring: vault read lock: %w", getErr)
	}

	raw, _ := existing.Data["expires_at"].(string)
	expiresAt, parseErr := time.Parse(time.RFC3339, raw)
	if parseErr == nil && time.Now().UTC().Before(expiresAt) {
		return false, nil // live lock held elsewhere
	}

	// Stale lock: take it over at its exact current version.
	_, err = kv.Put(ctx, m.lockPath(kid), map[string]any{
		"expires_at": expiry,
	}, api.WithCheckAndSet(existing.VersionMetadata.Version))
	if err != nil {
		return false, nil // someone else took it first
	}
	return true, nil
}

func (m *VaultKeyManager) releaseLock(ctx context.Context, kid string) {
	// Best effort; a leaked lock expires via its TTL anyway.
	_ = m.client.KVv2(m.mount).DeleteMetadata(ctx, m.lockPath(kid))
}

// invalidate drops the cached material for a kid so the next accessor
// re-reads from Vault.
func (m *VaultKeyManager) invalidate(kid string) {
	m.mu.Lock()
	delete(m.cache, kid)
	m.mu.Unlock()
}

func (m *VaultKeyManager) keyPath(kid string) string {
	return path.Join(m.base, kid)
}

func (m *VaultKeyManager) lockPath(kid string) string {
	return path.Join(m.base, kid+"-lock")
}
