package app

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/aussiebroadwan/stamp/pkg/jwtx"
)

// TTL floors. Shorter lifetimes point at a unit mix-up somewhere (seconds
// vs minutes) and are rejected at startup rather than silently issuing
// near-dead tokens.
const (
	MinAccessTTL  = 60 * time.Second
	MinRefreshTTL = 3600 * time.Second
	MinRSABits    = 2048
)

type Config struct {
	Issuer    string // Required: issuer claim for tokens (default: stamp)
	Algorithm string // Optional: signing algorithm (HS256, RS256, AUTO) (default: AUTO)
	KeyID     string // Optional: key identifier placed in every token header (default: stamp-1)

	HMACSecretFile string // Optional: path to file containing the base64 HMAC secret
	HMACSecret     string // Optional: base64 HMAC secret inline (wins over the file)
	RSAKeyFile     string // Optional: path to PEM-encoded RSA private key
	RSAKeyPEM      string // Optional: PEM-encoded RSA private key inline (wins over the file)
	RSABits        int    // Optional: RSA key size when provisioning through Vault (default: 2048)

	AccessTTL  time.Duration // Optional: access token lifetime (default: 15m, min: 60s)
	RefreshTTL time.Duration // Optional: refresh token lifetime (default: 168h, min: 1h)
	ServiceTTL time.Duration // Optional: service token lifetime (default: 30m)

	VaultEnabled bool   // Optional: source key material from Vault KV v2 (default: false)
	VaultAddr    string // Vault server address (required when Vault is enabled)
	VaultToken   string // Vault auth token (required when Vault is enabled)
	VaultMount   string // KV v2 mount point (default: secret)
	VaultPath    string // Base path for key material under the mount (default: stamp/keys)

	LockTTL           time.Duration // Optional: Vault provisioning lock lifetime (default: 30s)
	LockRetries       int           // Optional: attempts waiting on a held lock (default: 10)
	LockRetryInterval time.Duration // Optional: delay between lock attempts (default: 500ms)

	JWKSEnabled bool // Optional: expose the JWKS discovery endpoint (default: true)

	DatabaseFile         string        // Optional: path to SQLite database file (default: ./stamp.db)
	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
	RetentionWindow      time.Duration // How long spent refresh records are kept past expiry (default: 30 days)
}

func LoadConfig() Config {
	return Config{
		Issuer:    getEnvOrDefault("STAMP_ISSUER", "stamp"),
		Algorithm: getEnvOrDefault("STAMP_ALGORITHM", "AUTO"),
		KeyID:     getEnvOrDefault("STAMP_KEY_ID", "stamp-1"),

		HMACSecretFile: os.Getenv("STAMP_HMAC_SECRET_FILE"),
		HMACSecret:     os.Getenv("STAMP_HMAC_SECRET"),
		RSAKeyFile:     os.Getenv("STAMP_RSA_KEY_FILE"),
		RSAKeyPEM:      os.Getenv("STAMP_RSA_KEY_PEM"),
		RSABits:        getEnvIntOrDefault("STAMP_RSA_BITS", MinRSABits),

		AccessTTL:  getEnvDurationOrDefault("STAMP_ACCESS_TTL", jwtx.DefaultAccessTokenTTL),
		RefreshTTL: getEnvDurationOrDefault("STAMP_REFRESH_TTL", jwtx.DefaultRefreshTokenTTL),
		ServiceTTL: getEnvDurationOrDefault("STAMP_SERVICE_TTL", jwtx.DefaultServiceTokenTTL),

		VaultEnabled: getEnvBoolOrDefault("STAMP_VAULT_ENABLED", false),
		VaultAddr:    os.Getenv("STAMP_VAULT_ADDR"),
		VaultToken:   os.Getenv("STAMP_VAULT_TOKEN"),
		VaultMount:   getEnvOrDefault("STAMP_VAULT_MOUNT", "secret"),
		VaultPath:    getEnvOrDefault("STAMP_VAULT_PATH", "stamp/keys"),

		LockTTL:           getEnvDurationOrDefault("STAMP_LOCK_TTL", 30*time.Second),
		LockRetries:       getEnvIntOrDefault("STAMP_LOCK_RETRIES", 10),
		LockRetryInterval: getEnvDurationOrDefault("STAMP_LOCK_RETRY_INTERVAL", 500*time.Millisecond),

		JWKSEnabled: getEnvBoolOrDefault("STAMP_JWKS_ENABLED", true),

		DatabaseFile:         getEnvOrDefault("STAMP_DATABASE_FILE", "stamp.db"),
		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
		RetentionWindow:      getEnvDurationOrDefault("STAMP_RETENTION_WINDOW", 30*24*time.Hour),
	}
}

// Validate rejects configurations the issuer must not start with.
func (c Config) Validate() error {
	if c.Issuer == "" {
		return fmt.Errorf("STAMP_ISSUER must not be empty")
	}
	if c.AccessTTL < MinAccessTTL {
		return fmt.Errorf("STAMP_ACCESS_TTL %s is below the minimum of %s", c.AccessTTL, MinAccessTTL)
	}
	if c.RefreshTTL < MinRefreshTTL {
		return fmt.Errorf("STAMP_REFRESH_TTL %s is below the minimum of %s", c.RefreshTTL, MinRefreshTTL)
	}
	if c.RSABits < MinRSABits {
		return fmt.Errorf("STAMP_RSA_BITS %d is below the minimum of %d", c.RSABits, MinRSABits)
	}
	if c.VaultEnabled {
		if c.VaultAddr == "" {
			return fmt.Errorf("STAMP_VAULT_ADDR is required when Vault is enabled")
		}
		if c.VaultToken == "" {
			return fmt.Errorf("STAMP_VAULT_TOKEN is required when Vault is enabled")
		}
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if boolValue, err := strconv.ParseBool(value); err == nil {
		return boolValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer seconds
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
