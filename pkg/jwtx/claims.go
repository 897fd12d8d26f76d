package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token TTL constants for standard OAuth2/JWT flows.
// These provide sensible security defaults but can be overridden per-service.
const (
	// DefaultAccessTokenTTL is the default lifetime for access tokens.
	// Short-lived for security - typical range is 15m to 1h.
	DefaultAccessTokenTTL = 15 * time.Minute

	// DefaultRefreshTokenTTL is the default lifetime for refresh tokens.
	// Longer-lived for user convenience - typical range is 7d to 30d.
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour

	// DefaultServiceTokenTTL is the default lifetime for service-to-service
	// tokens obtained via client_credentials.
	DefaultServiceTokenTTL = 30 * time.Minute
)

// Token type discriminator values carried in the "type" claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
	TokenTypeService = "service"
)

// Claims are the token claims used across services. We are keeping
// additive changes to preserve compatibility for later.
type Claims struct {
	jwt.RegisteredClaims

	/* Cross-service custom fields */

	// Type discriminates access, refresh, and service tokens so one
	// can never be replayed as another.
	Type string `json:"type,omitempty"`

	// Email of the authenticated user. Empty on service tokens.
	Email string `json:"email,omitempty"`

	// Permissions granted to the subject, e.g. "orders:read".
	// A pointer so refresh tokens omit the claim entirely while access
	// and service tokens always carry it, even when empty.
	Permissions *[]string `json:"permissions,omitempty"`

	// UserID identifies the user a service token acts on behalf of.
	// Only set on service tokens carrying user context.
	UserID string `json:"user_id,omitempty"`

	// UserPermissions are the permissions of that user, distinct from
	// the calling service's own permissions.
	UserPermissions *[]string `json:"user_permissions,omitempty"`
}

// NewAccessClaims builds claims for a user access token. The permissions
// claim is always present, even when the slice is empty.
func NewAccessClaims(
	subject, email string,
	permissions []string,
	ttl time.Duration,
	issuer string,
	now time.Time,
) Claims {
	if permissions == nil {
		permissions = []string{}
	}
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		Type:        TokenTypeAccess,
		Email:       email,
		Permissions: &permissions,
	}
}

// NewRefreshClaims builds claims for a refresh token. Refresh tokens carry
// no permissions; the grant is re-evaluated when they are exchanged.
func NewRefreshClaims(
	subject string,
	ttl time.Duration,
	issuer string,
	now time.Time,
) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		Type: TokenTypeRefresh,
	}
}

// NewServiceClaims builds claims for a service-to-service token. The subject
// is the calling service's client ID.
func NewServiceClaims(
	clientID string,
	permissions []string,
	ttl time.Duration,
	issuer string,
	audience []string,
	now time.Time,
) Claims {
	if permissions == nil {
		permissions = []string{}
	}
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   clientID,
			Audience:  jwt.ClaimStrings(audience),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		Type:        TokenTypeService,
		Permissions: &permissions,
	}
}

// NewServiceClaimsWithUser builds service-token claims that also carry the
// identity and permissions of the user the call is made on behalf of.
func NewServiceClaimsWithUser(
	clientID string,
	permissions []string,
	userID string,
	userPermissions []string,
	ttl time.Duration,
	issuer string,
	audience []string,
	now time.Time,
) Claims {
	c := NewServiceClaims(clientID, permissions, ttl, issuer, audience, now)
	if userPermissions == nil {
		userPermissions = []string{}
	}
	c.UserID = userID
	c.UserPermissions = &userPermissions
	return c
}

// NewJTI returns a URL-safe random identifier for the "jti" claim. There
// might be a better way of doing this, but I'm being lazy and using random.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// ValidateIssuer checks if the issuer matches expected value.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil // nothing to enforce
	}

	if c.Issuer != expected {
		return ErrIssuer
	}

	return nil
}

// ValidateAudience checks if at least one expected audience is present.
func (c *Claims) ValidateAudience(expected []string) error {
	if len(expected) == 0 {
		return nil // nothing to enforce
	}

	for _, want := range expected {
		if slices.Contains(c.Audience, want) {
			return nil
		}
	}

	return ErrAudience
}

// ValidateType checks the "type" claim against the expected token type.
func (c *Claims) ValidateType(expected string) error {
	if expected == "" {
		return nil // nothing to enforce
	}

	if c.Type != expected {
		return ErrTokenType
	}

	return nil
}

// ValidateExpiry ensures the token hasn’t expired (exp) and isn’t before nbf.
func (c *Claims) ValidateExpiry() error {
	now := time.Now().UTC()

	// Check expired (exp)
	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Time) {
		return ErrExpired
	}

	// Check if a valid token isn't used before it is valid (nbf)
	if c.NotBefore != nil && now.Before(c.NotBefore.Time) {
		return ErrNotYetValid
	}

	return nil
}

// ValidateExpiryWithLeeway adds a small grace period for clock skew.
func (c *Claims) ValidateExpiryWithLeeway(leeway time.Duration) error {
	now := time.Now().UTC()

	// Check After Leeway
	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Add(leeway)) {
		return ErrExpired
	}

	// Check Before Leeway
	if c.NotBefore != nil && now.Before(c.NotBefore.Add(-leeway)) {
		return ErrNotYetValid
	}

	return nil
}
