package tokenclient

import (
	"github.com/aussiebroadwan/stamp/pkg/jwtx"
)

// ErrorResponse represents a standard OAuth2 error response per RFC 6749.
// This is used internally for parsing HTTP error responses.
type ErrorResponse struct {
	// Error is the OAuth2 error code (e.g., "invalid_request", "invalid_grant")
	Error string `json:"error"`

	// ErrorDescription is a human-readable description of the error
	ErrorDescription string `json:"error_description"`
}

// TokenRequest is the JSON body of the POST /oauth/token endpoint.
type TokenRequest struct {
	// GrantType selects the flow: "client_credentials" or "refresh_token"
	GrantType string `json:"grant_type"`

	// ClientID and ClientSecret authenticate service clients
	// (client_credentials grant only)
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`

	// Audience names the services the token is intended for
	Audience []string `json:"audience,omitempty"`

	// UserID and UserPermissions attach a user context to a service token
	UserID          string   `json:"user_id,omitempty"`
	UserPermissions []string `json:"user_permissions,omitempty"`

	// RefreshToken is the token being exchanged (refresh_token grant only)
	RefreshToken string `json:"refresh_token,omitempty"`
}

// TokenResponse represents the OAuth2 token endpoint response per RFC 6749.
type TokenResponse struct {
	// AccessToken is the JWT used to authenticate API requests
	AccessToken string `json:"access_token"`

	// RefreshToken is the next-generation refresh token, when the grant
	// issues one
	RefreshToken string `json:"refresh_token,omitempty"`

	// TokenType is always "Bearer" per OAuth2 spec
	TokenType string `json:"token_type"`

	// ExpiresIn is the lifetime in seconds of the access token
	ExpiresIn int `json:"expires_in"`
}

// RevokeRequest is the JSON body of the POST /oauth/revoke endpoint.
type RevokeRequest struct {
	// RefreshToken is the token to revoke
	RefreshToken string `json:"refresh_token"`

	// Family revokes the whole rotation chain rather than one generation
	Family bool `json:"family,omitempty"`
}

// JWKSResponse is the payload of the JWKS endpoint.
type JWKSResponse = jwtx.JWKS

// HealthResponse is returned by the livez and readyz endpoints.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks reports per-dependency readiness.
type HealthChecks struct {
	Database string `json:"database"`
	Signer   string `json:"signer"`
}
