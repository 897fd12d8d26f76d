package keyring

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// FileKeyManager serves key material loaded from local configuration.
// Everything is read once at construction and is immutable afterwards,
// so the accessors never touch the filesystem again.
type FileKeyManager struct {
	secret []byte
	priv   *rsa.PrivateKey
}

// NewFileKeyManager loads the configured HMAC secret and RSA private key.
// Material that is not configured at all is simply absent; material that is
// configured but unreadable or malformed is a hard error.
func NewFileKeyManager(cfg Config) (*FileKeyManager, error) {
	m := &FileKeyManager{}

	switch {
	case cfg.HMACSecretB64 != "":
		secret, err := base64.StdEncoding.DecodeString(cfg.HMACSecretB64)
		if err != nil {
			return nil, fmt.Errorf("keyring: decode inline HMAC secret: %w", err)
		}
		m.secret = secret
	case cfg.HMACSecretFile != "":
		secret, err := os.ReadFile(cfg.HMACSecretFile)
		if err != nil {
			return nil, fmt.Errorf("keyring: read HMAC secret file: %w", err)
		}
		m.secret = secret
	}

	var pemBytes []byte
	switch {
	case cfg.RSAKeyPEM != "":
		pemBytes = []byte(cfg.RSAKeyPEM)
	case cfg.RSAKeyFile != "":
		b, err := os.ReadFile(cfg.RSAKeyFile)
		if err != nil {
			return nil, fmt.Errorf("keyring: read RSA key file: %w", err)
		}
		pemBytes = b
	}

	if len(pemBytes) > 0 {
		key, err := parseRSAPrivateKeyPEM(pemBytes)
		if err != nil {
			return nil, err
		}
		m.priv = key
	}

	return m, nil
}

// Secret returns the loaded HMAC secret.
func (m *FileKeyManager) Secret(_ context.Context, _ string) ([]byte, error) {
	if len(m.secret) == 0 {
		return nil, ErrKeyUnavailable
	}
	return m.secret, nil
}

// PrivateKey returns the loaded RSA private key.
func (m *FileKeyManager) PrivateKey(_ context.Context, _ string) (*rsa.PrivateKey, error) {
	if m.priv == nil {
		return nil, ErrKeyUnavailable
	}
	return m.priv, nil
}

// PublicKey returns the public half of the loaded RSA key.
func (m *FileKeyManager) PublicKey(_ context.Context, _ string) (*rsa.PublicKey, error) {
	if m.priv == nil {
		return nil, ErrKeyUnavailable
	}
	return &m.priv.PublicKey, nil
}

// parseRSAPrivateKeyPEM handles both PKCS1 and PKCS8 encodings, same as
// the jwtx signer does.
func parseRSAPrivateKeyPEM(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("keyring: invalid PEM for RSA key")
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("keyring: parse PKCS1: %w", err)
		}
		return key, nil
	case "PRIVATE KEY":
		priv, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("keyring: parse PKCS8: %w", err)
		}
		key, ok := priv.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("keyring: not an RSA private key")
		}
		return key, nil
	default:
		return nil, fmt.Errorf("keyring: unsupported PEM type %q", block.Type)
	}
}
