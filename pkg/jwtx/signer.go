package jwtx

import "crypto/rsa"

// Signer is our interface for anything that can sign JWTs.
type Signer interface {
	Alg() string
	KID() string
	Sign(Claims) (string, error)

	// PublicJWK returns the public half of the signing key for JWKS
	// publishing. The bool is false for symmetric algorithms, which have
	// nothing safe to publish.
	PublicJWK() (JWK, bool)

	Validate() error
}

// NewSignerRS256 creates an RS256 signer from PEM bytes.
// Handles both PKCS1 and PKCS8 private key encodings.
func NewSignerRS256(kid string, pemKey []byte) (Signer, error) {
	return newRS256Signer(kid, pemKey)
}

// NewSignerRS256FromKey creates an RS256 signer from an already-parsed
// private key, for callers that load keys from somewhere other than PEM.
func NewSignerRS256FromKey(kid string, key *rsa.PrivateKey) (Signer, error) {
	return newRS256SignerFromKey(kid, key)
}

// NewSignerHS256 creates an HS256 signer from a raw secret.
func NewSignerHS256(kid string, secret []byte) (Signer, error) {
	return newHS256Signer(kid, secret)
}
