package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/stamp/pkg/jwtx"
	"github.com/aussiebroadwan/stamp/pkg/keyring"
)

// Signing algorithm selection. AUTO picks RSA when a private key is
// available and falls back to HMAC otherwise.
const (
	AlgorithmHS256 = "HS256"
	AlgorithmRS256 = "RS256"
	AlgorithmAuto  = "AUTO"
)

// ErrUnsupported marks an operation the current configuration cannot
// perform (e.g. serving JWKS while signing with HMAC). It is distinct from
// transient failures: retrying will never help.
var ErrUnsupported = errors.New("service: operation not supported by configuration")

// IssuerConfig holds the static token-minting parameters. TTL floors are
// enforced by the app config layer before this is constructed.
type IssuerConfig struct {
	Issuer     string
	Algorithm  string // HS256 | RS256 | AUTO
	KeyID      string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	ServiceTTL time.Duration
}

// TokenIssuer mints all token flavours. The signing algorithm is resolved
// exactly once at construction; after that every token this process signs
// uses the same signer and kid.
type TokenIssuer struct {
	signer   jwtx.Signer
	verifier jwtx.Verifier
	keys     *jwtx.KeySet

	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	serviceTTL time.Duration
}

// NewTokenIssuer resolves the signing algorithm against the available key
// material and wires up the matching signer and verifier.
//
// Missing material for an explicitly selected algorithm is a fatal
// configuration error: the deployment asked for something it cannot do,
// and silently degrading would change the security properties of every
// token minted afterwards.
func NewTokenIssuer(ctx context.Context, cfg IssuerConfig, keys keyring.KeyManager) (*TokenIssuer, error) {
	if cfg.Issuer == "" {
		return nil, errors.New("service: issuer is required")
	}
	if cfg.KeyID == "" {
		return nil, errors.New("service: key id is required")
	}

	ti := &TokenIssuer{
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		serviceTTL: cfg.ServiceTTL,
	}
	if ti.accessTTL <= 0 {
		ti.accessTTL = jwtx.DefaultAccessTokenTTL
	}
	if ti.refreshTTL <= 0 {
		ti.refreshTTL = jwtx.DefaultRefreshTokenTTL
	}
	if ti.serviceTTL <= 0 {
		ti.serviceTTL = jwtx.DefaultServiceTokenTTL
	}

	if err := ti.resolveSigner(ctx, cfg, keys); err != nil {
		return nil, err
	}
	return ti, nil
}

func (ti *TokenIssuer) resolveSigner(ctx context.Context, cfg IssuerConfig, keys keyring.KeyManager) error {
	switch cfg.Algorithm {
	case AlgorithmRS256:
		return ti.useRSA(ctx, cfg, keys, false)

	case AlgorithmHS256:
		return ti.useHMAC(ctx, cfg, keys, false)

	case AlgorithmAuto, "":
		if err := ti.useRSA(ctx, cfg, keys, true); err == nil {
			return nil
		} else if !errors.Is(err, keyring.ErrKeyUnavailable) {
			return err
		}
		if err := ti.useHMAC(ctx, cfg, keys, true); err == nil {
			return nil
		} else if !errors.Is(err, keyring.ErrKeyUnavailable) {
			return err
		}
		return fmt.Errorf("service: AUTO algorithm found neither RSA key nor HMAC secret for kid %q", cfg.KeyID)

	default:
		return fmt.Errorf("service: unsupported algorithm %q (supported: HS256, RS256, AUTO)", cfg.Algorithm)
	}
}

// useRSA wires an RS256 signer and KeySet-backed verifier. When probing is
// true (AUTO mode) a missing key propagates as ErrKeyUnavailable so the
// caller can fall back; otherwise it is a fatal config error.
func (ti *TokenIssuer) useRSA(ctx context.Context, cfg IssuerConfig, keys keyring.KeyManager, probing bool) error {
	priv, err := keys.PrivateKey(ctx, cfg.KeyID)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyUnavailable) && !probing {
			return fmt.Errorf("service: algorithm RS256 selected but no RSA key for kid %q: %w", cfg.KeyID, err)
		}
		return err
	}

	signer, err := jwtx.NewSignerRS256FromKey(cfg.KeyID, priv)
	if err != nil {
		return err
	}

	keyset := jwtx.NewKeySet()
	if err := keyset.AddSigner(signer); err != nil {
		return err
	}

	ti.signer = signer
	ti.keys = keyset
	ti.verifier = jwtx.NewCommonRS256(keyset, cfg.Issuer, nil)
	return nil
}

// useHMAC wires an HS256 signer and a verifier that resolves the shared
// secret through the key manager.
func (ti *TokenIssuer) useHMAC(ctx context.Context, cfg IssuerConfig, keys keyring.KeyManager, probing bool) error {
	secret, err := keys.Secret(ctx, cfg.KeyID)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyUnavailable) && !probing {
			return fmt.Errorf("service: algorithm HS256 selected but no secret for kid %q: %w", cfg.KeyID, err)
		}
		return err
	}

	signer, err := jwtx.NewSignerHS256(cfg.KeyID, secret)
	if err != nil {
		return err
	}

	ti.signer = signer
	ti.keys = jwtx.NewKeySet() // stays empty; nothing to publish for HMAC
	// The resolver outlives construction, so it must not inherit the
	// construction context's deadline.
	ti.verifier = jwtx.NewCommonHS256(func(kid string) ([]byte, error) {
		return keys.Secret(context.WithoutCancel(ctx), kid)
	}, cfg.Issuer, nil)
	return nil
}

// Algorithm returns the resolved signing algorithm ("HS256" or "RS256").
func (ti *TokenIssuer) Algorithm() string { return ti.signer.Alg() }

// KeyID returns the kid stamped into every token header.
func (ti *TokenIssuer) KeyID() string { return ti.signer.KID() }

// Issuer returns the iss claim value.
func (ti *TokenIssuer) Issuer() string { return ti.issuer }

// AccessTTL returns the configured access token lifetime.
func (ti *TokenIssuer) AccessTTL() time.Duration { return ti.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (ti *TokenIssuer) RefreshTTL() time.Duration { return ti.refreshTTL }

// Verifier returns a verifier matching the resolved algorithm.
func (ti *TokenIssuer) Verifier() jwtx.Verifier { return ti.verifier }

// PublicJWKS returns the key set for the JWKS endpoint. With HMAC there is
// nothing safe to publish, so the caller gets ErrUnsupported.
func (ti *TokenIssuer) PublicJWKS() (jwtx.JWKS, error) {
	jwks := ti.keys.PublicJWKS()
	if len(jwks.Keys) == 0 {
		return jwtx.JWKS{}, ErrUnsupported
	}
	return jwks, nil
}

// GenerateAccessToken mints a user access token. Permissions are always
// present in the claims, as an empty list if none were granted.
func (ti *TokenIssuer) GenerateAccessToken(userID, email string, permissions []string) (string, error) {
	claims := jwtx.NewAccessClaims(userID, email, permissions, ti.accessTTL, ti.issuer, time.Now().UTC())
	return ti.signer.Sign(claims)
}

// GenerateRefreshToken mints a refresh token for the user. No permissions
// are embedded; they are re-evaluated on exchange.
func (ti *TokenIssuer) GenerateRefreshToken(userID string) (string, error) {
	claims := jwtx.NewRefreshClaims(userID, ti.refreshTTL, ti.issuer, time.Now().UTC())
	return ti.signer.Sign(claims)
}

// GenerateServiceToken mints a service-to-service token with the client as
// the subject.
func (ti *TokenIssuer) GenerateServiceToken(serviceID string, audience []string, permissions []string) (string, error) {
	claims := jwtx.NewServiceClaims(serviceID, permissions, ti.serviceTTL, ti.issuer, audience, time.Now().UTC())
	return ti.signer.Sign(claims)
}

// GenerateServiceTokenWithUserContext mints a service token that also
// carries the user a call is made on behalf of.
func (ti *TokenIssuer) GenerateServiceTokenWithUserContext(
	serviceID string,
	audience []string,
	permissions []string,
	userID string,
	userPermissions []string,
) (string, error) {
	claims := jwtx.NewServiceClaimsWithUser(
		serviceID, permissions, userID, userPermissions,
		ti.serviceTTL, ti.issuer, audience, time.Now().UTC(),
	)
	return ti.signer.Sign(claims)
}
