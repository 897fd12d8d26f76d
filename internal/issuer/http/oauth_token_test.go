package http_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	issuerhttp "github.com/aussiebroadwan/stamp/internal/issuer/http"
	"github.com/aussiebroadwan/stamp/internal/issuer/service"
	"github.com/aussiebroadwan/stamp/internal/issuer/store/drivers/sqlite"
	"github.com/aussiebroadwan/stamp/pkg/cryptox"
	"github.com/aussiebroadwan/stamp/pkg/keyring"
	"github.com/aussiebroadwan/stamp/pkg/slogx"
	"github.com/aussiebroadwan/stamp/pkg/tokenclient"

	"github.com/stretchr/testify/require"
)

type testServer struct {
	*httptest.Server

	issuer   *service.TokenIssuer
	rotation *service.RotationService
	clients  *service.ClientService
}

// newTestServer spins up the full HTTP surface backed by an on-disk sqlite
// store and an RSA signing key.
func newTestServer(t *testing.T) *testServer {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "stamp.db") + "?_pragma=busy_timeout(5000)"
	st, err := sqlite.NewStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	pemBytes, err := cryptox.GenerateRSAKey(2048)
	require.NoError(t, err)
	km, err := keyring.NewFileKeyManager(keyring.Config{RSAKeyPEM: string(pemBytes)})
	require.NoError(t, err)

	ti, err := service.NewTokenIssuer(context.Background(), service.IssuerConfig{
		Issuer:    "stamp-test",
		Algorithm: service.AlgorithmRS256,
		KeyID:     "test-kid",
	}, km)
	require.NoError(t, err)

	rotation := service.NewRotationService(st, ti, nil)
	clients := &service.ClientService{Store: st, Issuer: ti}

	logger := slogx.New(slogx.Config{Level: "error"})
	router := issuerhttp.NewRouter(ti, "test", true, st, logger)
	router.RotationService = rotation
	router.ClientService = clients
	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testServer{
		Server:   srv,
		issuer:   ti,
		rotation: rotation,
		clients:  clients,
	}
}

func TestClientCredentialsGrantOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	client, secret, err := ts.clients.Register(ctx, "billing-svc", []string{"ledger:write"})
	require.NoError(t, err)

	sdk := tokenclient.New(ts.URL, client.ID, secret)
	resp, err := sdk.ClientCredentialsGrant(ctx, []string{"ledger"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	require.Empty(t, resp.RefreshToken)
	require.Equal(t, "Bearer", resp.TokenType)
	require.Positive(t, resp.ExpiresIn)

	validator := service.NewTokenValidator(ts.issuer)
	claims, err := validator.ValidateServiceToken(resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, client.ID, claims.Subject)
	require.Contains(t, claims.Audience, "ledger")
	require.NotNil(t, claims.Permissions)
	require.Equal(t, []string{"ledger:write"}, *claims.Permissions)
}

func TestClientCredentialsGrantWithUserContext(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	client, secret, err := ts.clients.Register(ctx, "gateway", []string{"orders:proxy"})
	require.NoError(t, err)

	sdk := tokenclient.New(ts.URL, client.ID, secret)
	token, err := sdk.ServiceTokenWithUser(ctx, []string{"orders"}, "user-42", []string{"orders:read"})
	require.NoError(t, err)

	validator := service.NewTokenValidator(ts.issuer)
	claims, err := validator.ValidateServiceToken(token)
	require.NoError(t, err)
	require.Equal(t, "user-42", claims.UserID)
	require.NotNil(t, claims.UserPermissions)
	require.Equal(t, []string{"orders:read"}, *claims.UserPermissions)
}

func TestClientCredentialsRejectionsAreUniform(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	client, secret, err := ts.clients.Register(ctx, "billing-svc", nil)
	require.NoError(t, err)

	// Wrong secret and unknown client must be indistinguishable.
	wrongSecret := tokenclient.New(ts.URL, client.ID, "not-the-secret")
	_, errWrong := wrongSecret.ClientCredentialsGrant(ctx, nil)
	require.Error(t, errWrong)
	require.ErrorContains(t, errWrong, "invalid_client")

	unknown := tokenclient.New(ts.URL, "no-such-client", secret)
	_, errUnknown := unknown.ClientCredentialsGrant(ctx, nil)
	require.Error(t, errUnknown)
	require.ErrorContains(t, errUnknown, "invalid_client")

	// Identical error bodies, so the response is not an oracle.
	require.Equal(t, errWrong.Error(), errUnknown.Error())
}

func TestRefreshGrantRotatesOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	pair, err := ts.rotation.IssuePair(ctx, "user-1")
	require.NoError(t, err)

	sdk := tokenclient.New(ts.URL, "", "")
	next, err := sdk.RefreshGrant(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, next.AccessToken)
	require.NotEmpty(t, next.RefreshToken)
	require.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	// The old token is spent: replaying it is an invalid_grant.
	_, err = sdk.RefreshGrant(ctx, pair.RefreshToken)
	require.Error(t, err)
	require.ErrorContains(t, err, "invalid_grant")

	// And the replay burned the whole family, including the new token.
	_, err = sdk.RefreshGrant(ctx, next.RefreshToken)
	require.Error(t, err)
	require.ErrorContains(t, err, "invalid_grant")
}

func TestRevokeEndpointIsIdempotent(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	pair, err := ts.rotation.IssuePair(ctx, "user-1")
	require.NoError(t, err)

	sdk := tokenclient.New(ts.URL, "", "")
	require.NoError(t, sdk.RevokeToken(ctx, pair.RefreshToken, false))

	_, err = sdk.RefreshGrant(ctx, pair.RefreshToken)
	require.Error(t, err)
	require.ErrorContains(t, err, "invalid_grant")

	// Second revoke of the same token, and revoking garbage, still 200.
	require.NoError(t, sdk.RevokeToken(ctx, pair.RefreshToken, false))
	require.NoError(t, sdk.RevokeToken(ctx, "garbage-token", true))
}

func TestUnsupportedGrantType(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/oauth/token", "application/json",
		strings.NewReader(`{"grant_type":"password","username":"u","password":"p"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestJWKSEndpointServesSigningKey(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	sdk := tokenclient.New(ts.URL, "", "")
	jwks, err := sdk.GetJWKS(ctx)
	require.NoError(t, err)
	require.Len(t, jwks.Keys, 1)
	require.Equal(t, "test-kid", jwks.Keys[0].Kid)
	require.Equal(t, "RS256", jwks.Keys[0].Alg)
	require.Equal(t, "RSA", jwks.Keys[0].Kty)
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	live, err := http.Get(ts.URL + "/livez")
	require.NoError(t, err)
	defer live.Body.Close()
	require.Equal(t, http.StatusOK, live.StatusCode)

	ready, err := http.Get(ts.URL + "/readyz")
	require.NoError(t, err)
	defer ready.Body.Close()
	require.Equal(t, http.StatusOK, ready.StatusCode)
}
