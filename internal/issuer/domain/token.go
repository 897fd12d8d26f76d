package domain

import (
	"time"

	"github.com/google/uuid"
)

// TokenPair represents what the token endpoint returns: the short-lived
// access token (JWT) and the refresh token that can be exchanged for the
// next pair.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"` // typically "Bearer"
	ExpiresIn    int64  `json:"expires_in"`           // seconds until expiry
}

// RefreshTokenRecord models the stored refresh token in the DB. Tokens are
// never stored raw; TokenHash is a base64url SHA-256 fingerprint. A record
// is retained after replacement so that replay of an old generation can be
// detected and the whole family revoked.
type RefreshTokenRecord struct {
	ID         string
	UserID     string
	TokenHash  string    // deterministic fingerprint (base64url SHA-256)
	FamilyID   uuid.UUID // shared across every generation of one rotation chain
	ExpiresAt  time.Time
	CreatedAt  time.Time
	RevokedAt  *time.Time
	ReplacedBy *string // id of the record that superseded this one
}

// Active reports whether the record can still be exchanged: not revoked,
// not replaced, not expired.
func (r RefreshTokenRecord) Active(now time.Time) bool {
	return r.RevokedAt == nil && r.ReplacedBy == nil && now.Before(r.ExpiresAt)
}

// Replaced reports whether the record was already rotated away. Presenting
// a replaced token is the replay signal that triggers family revocation.
func (r RefreshTokenRecord) Replaced() bool {
	return r.ReplacedBy != nil
}

// Revoked reports whether the record was explicitly revoked.
func (r RefreshTokenRecord) Revoked() bool {
	return r.RevokedAt != nil
}
