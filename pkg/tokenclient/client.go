// Package tokenclient is the service-to-service SDK for the stamp token
// issuer. It handles the client_credentials and refresh_token grants and
// caches service tokens per audience so callers don't hit the token
// endpoint on every request.
package tokenclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultSafetyBuffer is subtracted from a token's lifetime before it is
// considered expired, so a cached token is never handed out moments before
// the issuer stops accepting it.
const DefaultSafetyBuffer = 60 * time.Second

// Client talks to a stamp token issuer. It caches service tokens per
// audience and deduplicates concurrent fetches for the same audience, so
// under load exactly one token request is in flight per audience.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	// ClientID and ClientSecret authenticate this service for the
	// client_credentials grant.
	ClientID     string
	ClientSecret string

	// SafetyBuffer shortens the cached lifetime of each token.
	// Defaults to DefaultSafetyBuffer.
	SafetyBuffer time.Duration

	mu    sync.Mutex
	cache map[string]cachedToken
	group singleflight.Group

	// now is stubbed in tests
	now func() time.Time
}

type cachedToken struct {
	token     string
	expiresAt time.Time
}

// New creates a client for the issuer at baseURL authenticating with the
// given service credentials.
func New(baseURL, clientID, clientSecret string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		ClientID:     clientID,
		ClientSecret: clientSecret,
		SafetyBuffer: DefaultSafetyBuffer,
		cache:        make(map[string]cachedToken),
		now:          time.Now,
	}
}

// ServiceToken returns a service token for the given audience, from cache
// when a live one is held, otherwise fetching one from the issuer.
// Concurrent callers for the same audience share a single fetch; if that
// fetch fails, every waiter receives the error.
func (c *Client) ServiceToken(ctx context.Context, audience ...string) (string, error) {
	key := cacheKey(audience)

	if token, ok := c.cached(key); ok {
		return token, nil
	}

	// DoChan rather than Do: a caller whose context expires walks away
	// without cancelling the shared fetch other waiters depend on. The
	// fetch itself is detached from the initiating caller for the same
	// reason, and is bounded by the HTTP client's timeout instead.
	ch := c.group.DoChan(key, func() (any, error) {
		return c.fetchServiceToken(context.WithoutCancel(ctx), key, audience)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", fmt.Errorf("failed to obtain service token: %w", ctx.Err())
	}
}

// ClearCache drops all cached tokens. In-flight fetches are unaffected and
// will still populate the cache when they land.
func (c *Client) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]cachedToken)
}

func (c *Client) cached(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.cache[key]
	if !ok || !c.now().Before(entry.expiresAt) {
		return "", false
	}
	return entry.token, true
}

func (c *Client) fetchServiceToken(ctx context.Context, key string, audience []string) (string, error) {
	resp, err := c.requestToken(ctx, TokenRequest{
		GrantType:    "client_credentials",
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Audience:     audience,
	})
	if err != nil {
		return "", fmt.Errorf("failed to obtain service token: %w", err)
	}

	buffer := c.SafetyBuffer
	if buffer <= 0 {
		buffer = DefaultSafetyBuffer
	}
	ttl := time.Duration(resp.ExpiresIn)*time.Second - buffer

	if ttl > 0 {
		c.mu.Lock()
		c.cache[key] = cachedToken{
			token:     resp.AccessToken,
			expiresAt: c.now().Add(ttl),
		}
		c.mu.Unlock()
	}

	return resp.AccessToken, nil
}

// ServiceTokenWithUser requests a service token carrying a user context.
// These are never cached: they are scoped to a single user.
func (c *Client) ServiceTokenWithUser(
	ctx context.Context,
	audience []string,
	userID string,
	userPermissions []string,
) (string, error) {
	resp, err := c.requestToken(ctx, TokenRequest{
		GrantType:       "client_credentials",
		ClientID:        c.ClientID,
		ClientSecret:    c.ClientSecret,
		Audience:        audience,
		UserID:          userID,
		UserPermissions: userPermissions,
	})
	if err != nil {
		return "", fmt.Errorf("failed to obtain service token: %w", err)
	}
	return resp.AccessToken, nil
}

// RefreshGrant exchanges a refresh token for a new token pair.
func (c *Client) RefreshGrant(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	return c.requestToken(ctx, TokenRequest{
		GrantType:    "refresh_token",
		RefreshToken: refreshToken,
	})
}

// ClientCredentialsGrant performs a raw client_credentials exchange,
// bypassing the cache.
func (c *Client) ClientCredentialsGrant(
	ctx context.Context,
	audience []string,
) (*TokenResponse, error) {
	return c.requestToken(ctx, TokenRequest{
		GrantType:    "client_credentials",
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Audience:     audience,
	})
}

// RevokeToken revokes a refresh token. When family is true the whole
// rotation chain is revoked.
func (c *Client) RevokeToken(ctx context.Context, refreshToken string, family bool) error {
	body, err := json.Marshal(RevokeRequest{
		RefreshToken: refreshToken,
		Family:       family,
	})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.BaseURL+"/oauth/revoke",
		bytes.NewReader(body),
	)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf(
			"revoke request failed with status %d: %s",
			resp.StatusCode,
			string(bodyBytes),
		)
	}

	return nil
}

// GetJWKS retrieves the JSON Web Key Set for token verification.
func (c *Client) GetJWKS(ctx context.Context) (*JWKSResponse, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		c.BaseURL+"/.well-known/jwks.json",
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf(
			"jwks request failed with status %d: %s",
			resp.StatusCode,
			string(bodyBytes),
		)
	}

	var jwks JWKSResponse
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &jwks, nil
}

func (c *Client) requestToken(ctx context.Context, tokenReq TokenRequest) (*TokenResponse, error) {
	body, err := json.Marshal(tokenReq)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.BaseURL+"/oauth/token",
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp ErrorResponse
		bodyBytes, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(bodyBytes, &errResp) == nil && errResp.Error != "" {
			return nil, fmt.Errorf(
				"token request failed with status %d: %s: %s",
				resp.StatusCode,
				errResp.Error,
				errResp.ErrorDescription,
			)
		}
		return nil, fmt.Errorf(
			"token request failed with status %d: %s",
			resp.StatusCode,
			string(bodyBytes),
		)
	}

	var tokenResp TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &tokenResp, nil
}

// cacheKey normalises an audience list so "a b" and "b a" share a cache
// entry.
func cacheKey(audience []string) string {
	if len(audience) == 0 {
		return ""
	}
	sorted := make([]string, len(audience))
	copy(sorted, audience)
	sort.Strings(sorted)
	return strings.Join(sorted, " ")
}
