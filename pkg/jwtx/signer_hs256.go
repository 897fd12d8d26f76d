package jwtx

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// MinHMACSecretSize is the smallest HS256 secret we will accept, matching
// the SHA-256 output size per RFC 2104.
const MinHMACSecretSize = 32

// HS256Signer implements the Signer interface using HMAC SHA-256.
type HS256Signer struct {
	kid    string
	secret []byte
	alg    string
}

func newHS256Signer(kid string, secret []byte) (*HS256Signer, error) {
	if len(secret) < MinHMACSecretSize {
		return nil, errors.New("jwtx: HMAC secret too short")
	}

	return &HS256Signer{
		kid:    kid,
		secret: secret,
		alg:    jwt.SigningMethodHS256.Alg(),
	}, nil
}

func (s *HS256Signer) Alg() string { return s.alg }
func (s *HS256Signer) KID() string { return s.kid }

// Sign takes your claims and turns them into a signed JWT string.
func (s *HS256Signer) Sign(claims Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	t.Header["kid"] = s.kid
	return t.SignedString(s.secret)
}

// PublicJWK is never available for HMAC. The secret is shared, not
// published, so there is nothing safe to put in a JWKS.
func (s *HS256Signer) PublicJWK() (JWK, bool) {
	return JWK{}, false
}

// Validate does a quick sanity check to make sure we actually have a secret.
func (s *HS256Signer) Validate() error {
	if len(s.secret) < MinHMACSecretSize {
		return errors.New("jwtx: nil or short HMAC secret")
	}
	return nil
}
