package service

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/stamp/internal/issuer/domain"
	"github.com/aussiebroadwan/stamp/internal/issuer/store"
	"github.com/aussiebroadwan/stamp/pkg/cryptox"
	"github.com/aussiebroadwan/stamp/pkg/idx"
	"github.com/aussiebroadwan/stamp/pkg/slogx"
)

// ErrInvalidClient is the uniform rejection for client authentication
// failures: unknown client and wrong secret look identical to the caller.
var ErrInvalidClient = errors.New("invalid_client")

// ClientService manages service-client registrations and performs the
// client_credentials exchange.
type ClientService struct {
	Store  store.Store
	Issuer *TokenIssuer
}

// Register creates a service client and returns the record plus the one
// plaintext secret. The secret is only ever handed out here; the store
// keeps an argon2id hash.
func (s *ClientService) Register(ctx context.Context, name string, permissions []string) (domain.ServiceClient, string, error) {
	secret, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return domain.ServiceClient{}, "", err
	}
	secretHash, err := cryptox.HashSecret(secret)
	if err != nil {
		return domain.ServiceClient{}, "", err
	}

	now := time.Now().UTC()
	client := domain.ServiceClient{
		ID:          idx.New().String(),
		Name:        name,
		SecretHash:  secretHash,
		Permissions: permissions,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.Store.ServiceClients().CreateServiceClient(ctx, client); err != nil {
		return domain.ServiceClient{}, "", err
	}
	return client, secret, nil
}

// Authenticate verifies a client id and secret pair.
func (s *ClientService) Authenticate(ctx context.Context, clientID, clientSecret string) (domain.ServiceClient, error) {
	l := slogx.FromContext(ctx)

	client, err := s.Store.ServiceClients().GetServiceClientByID(ctx, clientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.ServiceClient{}, ErrInvalidClient
		}
		return domain.ServiceClient{}, err
	}

	if err := cryptox.VerifySecret(clientSecret, client.SecretHash); err != nil {
		l.Info("client secret verification failed", "client_id", clientID)
		return domain.ServiceClient{}, ErrInvalidClient
	}
	return client, nil
}

// ExchangeClientCredentials implements the client_credentials grant: a
// service authenticates as itself and receives a service token scoped to
// its registered permissions. No refresh token is issued, the client can
// always re-authenticate.
func (s *ClientService) ExchangeClientCredentials(
	ctx context.Context,
	clientID, clientSecret string,
	audience []string,
) (*domain.TokenPair, error) {
	client, err := s.Authenticate(ctx, clientID, clientSecret)
	if err != nil {
		return nil, err
	}

	token, err := s.Issuer.GenerateServiceToken(client.ID, audience, client.Permissions)
	if err != nil {
		return nil, err
	}

	return &domain.TokenPair{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.Issuer.serviceTTL.Seconds()),
	}, nil
}

// ExchangeClientCredentialsWithUser is the on-behalf-of variant: the
// service token additionally carries the user context supplied by the
// calling service.
func (s *ClientService) ExchangeClientCredentialsWithUser(
	ctx context.Context,
	clientID, clientSecret string,
	audience []string,
	userID string,
	userPermissions []string,
) (*domain.TokenPair, error) {
	client, err := s.Authenticate(ctx, clientID, clientSecret)
	if err != nil {
		return nil, err
	}

	token, err := s.Issuer.GenerateServiceTokenWithUserContext(
		client.ID, audience, client.Permissions, userID, userPermissions,
	)
	if err != nil {
		return nil, err
	}

	return &domain.TokenPair{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.Issuer.serviceTTL.Seconds()),
	}, nil
}
