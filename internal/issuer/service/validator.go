package service

import (
	"errors"

	"github.com/aussiebroadwan/stamp/pkg/jwtx"
)

// ErrInvalidToken is the uniform rejection for any validation failure.
// Callers deliberately cannot tell a bad signature from an expired token
// or a missing claim, so the error is not an oracle.
var ErrInvalidToken = errors.New("invalid_token")

// TokenValidator checks tokens minted by a TokenIssuer. On top of the
// jwtx-level checks (signature by kid, algorithm allow-list, issuer,
// expiry) it enforces the mandatory claims for each token type.
type TokenValidator struct {
	verifier jwtx.Verifier
}

// NewTokenValidator builds a validator sharing the issuer's resolved
// algorithm and key material.
func NewTokenValidator(issuer *TokenIssuer) *TokenValidator {
	return &TokenValidator{verifier: issuer.Verifier()}
}

// ValidateAccessToken verifies an access token and returns its claims.
func (v *TokenValidator) ValidateAccessToken(token string) (jwtx.Claims, error) {
	claims, err := v.verifier.Verify(token)
	if err != nil {
		return jwtx.Claims{}, ErrInvalidToken
	}
	if claims.Type != jwtx.TokenTypeAccess {
		return jwtx.Claims{}, ErrInvalidToken
	}
	// Access tokens must carry the permissions claim, even when empty
	if claims.Subject == "" || claims.Permissions == nil {
		return jwtx.Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// ValidateRefreshToken verifies a refresh token and returns its claims.
// This only proves the token was minted by us and has not expired; whether
// it is still the live generation is the rotation service's call.
func (v *TokenValidator) ValidateRefreshToken(token string) (jwtx.Claims, error) {
	claims, err := v.verifier.Verify(token)
	if err != nil {
		return jwtx.Claims{}, ErrInvalidToken
	}
	if claims.Type != jwtx.TokenTypeRefresh || claims.Subject == "" {
		return jwtx.Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// ValidateServiceToken verifies a service token and returns its claims.
func (v *TokenValidator) ValidateServiceToken(token string) (jwtx.Claims, error) {
	claims, err := v.verifier.Verify(token)
	if err != nil {
		return jwtx.Claims{}, ErrInvalidToken
	}
	if claims.Type != jwtx.TokenTypeService {
		return jwtx.Claims{}, ErrInvalidToken
	}
	// Service tokens must name who they are for
	if claims.Subject == "" || len(claims.Audience) == 0 {
		return jwtx.Claims{}, ErrInvalidToken
	}
	return claims, nil
}
