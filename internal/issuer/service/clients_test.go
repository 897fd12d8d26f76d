package service_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aussiebroadwan/stamp/internal/issuer/service"
	"github.com/aussiebroadwan/stamp/internal/issuer/store/drivers/sqlite"

	"github.com/stretchr/testify/require"
)

func newClientService(t *testing.T) *service.ClientService {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "stamp.db")
	st, err := sqlite.NewStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	ti := newIssuer(t, service.IssuerConfig{Algorithm: service.AlgorithmHS256}, hmacOnlyKeys(t))
	return &service.ClientService{Store: st, Issuer: ti}
}

func TestRegisterAndExchangeClientCredentials(t *testing.T) {
	cs := newClientService(t)
	ctx := context.Background()

	client, secret, err := cs.Register(ctx, "reporting", []string{"reports:generate"})
	require.NoError(t, err)
	require.NotEmpty(t, secret)
	require.NotEqual(t, secret, client.SecretHash)

	pair, err := cs.ExchangeClientCredentials(ctx, client.ID, secret, []string{"reports"})
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.Empty(t, pair.RefreshToken) // no refresh for client_credentials

	validator := service.NewTokenValidator(cs.Issuer)
	claims, err := validator.ValidateServiceToken(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, client.ID, claims.Subject)
	require.Contains(t, claims.Audience, "reports")
	require.NotNil(t, claims.Permissions)
	require.ElementsMatch(t, []string{"reports:generate"}, *claims.Permissions)
}

func TestExchangeFailuresAreUniform(t *testing.T) {
	cs := newClientService(t)
	ctx := context.Background()

	client, secret, err := cs.Register(ctx, "reporting", nil)
	require.NoError(t, err)

	// Wrong secret and unknown client produce the same error
	_, err = cs.ExchangeClientCredentials(ctx, client.ID, secret+"x", []string{"reports"})
	require.ErrorIs(t, err, service.ErrInvalidClient)

	_, err = cs.ExchangeClientCredentials(ctx, "no-such-client", secret, []string{"reports"})
	require.ErrorIs(t, err, service.ErrInvalidClient)
}

func TestExchangeWithUserContext(t *testing.T) {
	cs := newClientService(t)
	ctx := context.Background()

	client, secret, err := cs.Register(ctx, "gateway", []string{"orders:write"})
	require.NoError(t, err)

	pair, err := cs.ExchangeClientCredentialsWithUser(
		ctx, client.ID, secret, []string{"orders"},
		"user-42", []string{"orders:read"},
	)
	require.NoError(t, err)

	validator := service.NewTokenValidator(cs.Issuer)
	claims, err := validator.ValidateServiceToken(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "user-42", claims.UserID)
	require.NotNil(t, claims.UserPermissions)
	require.ElementsMatch(t, []string{"orders:read"}, *claims.UserPermissions)
}
