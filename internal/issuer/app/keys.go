package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aussiebroadwan/stamp/internal/issuer/service"
	"github.com/aussiebroadwan/stamp/pkg/keyring"
)

// InitKeys builds the key manager from configuration. When Vault is the
// backend and an RSA signer may be selected, the signing key is provisioned
// under the configured kid before the issuer resolves its algorithm, so a
// fleet of replicas can cold-start against an empty Vault path.
func InitKeys(ctx context.Context, cfg Config, logger *slog.Logger) (keyring.KeyManager, error) {
	km, err := keyring.NewKeyManager(keyring.Config{
		HMACSecretFile: cfg.HMACSecretFile,
		HMACSecretB64:  cfg.HMACSecret,
		RSAKeyFile:     cfg.RSAKeyFile,
		RSAKeyPEM:      cfg.RSAKeyPEM,

		VaultEnabled: cfg.VaultEnabled,
		VaultAddr:    cfg.VaultAddr,
		VaultToken:   cfg.VaultToken,
		VaultMount:   cfg.VaultMount,
		VaultPath:    cfg.VaultPath,

		LockTTL:           cfg.LockTTL,
		LockRetries:       cfg.LockRetries,
		LockRetryInterval: cfg.LockRetryInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize key manager: %w", err)
	}

	if vkm, ok := km.(*keyring.VaultKeyManager); ok && wantsRSA(cfg.Algorithm) {
		if err := vkm.EnsureRSAKey(ctx, cfg.KeyID, cfg.RSABits); err != nil {
			return nil, fmt.Errorf("failed to provision RSA key in vault: %w", err)
		}
		logger.Info("vault RSA signing key ready", "kid", cfg.KeyID, "bits", cfg.RSABits)
	}

	return km, nil
}

func wantsRSA(algorithm string) bool {
	switch strings.ToUpper(algorithm) {
	case service.AlgorithmRS256, service.AlgorithmAuto, "":
		return true
	default:
		return false
	}
}
