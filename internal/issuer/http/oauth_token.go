package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/stamp/internal/issuer/domain"
	"github.com/aussiebroadwan/stamp/internal/issuer/service"
	"github.com/aussiebroadwan/stamp/pkg/httpx"
	"github.com/aussiebroadwan/stamp/pkg/slogx"
	"github.com/aussiebroadwan/stamp/pkg/tokenclient"
)

// TokenHandler serves POST /oauth/token.
// Accepts an application/json body carrying the grant parameters.
type TokenHandler struct {
	RotationService *service.RotationService
	ClientService   *service.ClientService
}

func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// 1. Ensure the right content-type
	if ct := r.Header.Get("Content-Type"); ct != "" &&
		!strings.HasPrefix(ct, "application/json") {
		httpx.ErrInvalidRequest.WriteError(w)
		return
	}

	// 2. Parse the JSON body
	var req tokenclient.TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.ErrInvalidJSONBody.WriteError(w)
		return
	}

	// 3. Handle the grant type
	switch req.GrantType {
	case "client_credentials":
		h.handleClientCredentialsGrant(w, r, req)
	case "refresh_token":
		h.handleRefreshGrant(w, r, req)
	default:
		httpx.ErrUnsupportedGrantType.WriteError(w)
	}
}

func (h *TokenHandler) handleClientCredentialsGrant(
	w http.ResponseWriter,
	r *http.Request,
	req tokenclient.TokenRequest,
) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	clientID := strings.TrimSpace(req.ClientID)
	clientSecret := req.ClientSecret

	// Both client_id and client_secret are required for client_credentials grant
	if clientID == "" || clientSecret == "" {
		httpx.ErrInvalidRequest.WriteError(w)
		return
	}

	// A user context, when present, must be complete.
	if len(req.UserPermissions) > 0 && req.UserID == "" {
		httpx.ErrInvalidRequest.WriteError(w)
		return
	}

	var (
		pair *domain.TokenPair
		err  error
	)
	if req.UserID != "" {
		pair, err = h.ClientService.ExchangeClientCredentialsWithUser(
			ctx, clientID, clientSecret, req.Audience, req.UserID, req.UserPermissions,
		)
	} else {
		pair, err = h.ClientService.ExchangeClientCredentials(
			ctx, clientID, clientSecret, req.Audience,
		)
	}
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidClient):
			httpx.ErrInvalidClient.WriteError(w)
		default:
			log.Error("client_credentials grant failed", "err", err)
			httpx.ErrServerError.WriteError(w)
		}
		return
	}

	// NOTE: omit refresh_token if empty (as per OAuth2 spec)
	response := tokenclient.TokenResponse{
		AccessToken: pair.AccessToken,
		TokenType:   pair.TokenType,
		ExpiresIn:   int(pair.ExpiresIn),
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, response)
}

func (h *TokenHandler) handleRefreshGrant(
	w http.ResponseWriter,
	r *http.Request,
	req tokenclient.TokenRequest,
) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	if req.RefreshToken == "" {
		httpx.ErrInvalidRequest.WriteError(w)
		return
	}

	pair, err := h.RotationService.Rotate(ctx, req.RefreshToken)
	if err != nil {
		switch {
		// Every refresh failure maps to the same response: expired,
		// revoked, replayed, and unknown tokens are indistinguishable
		// from the outside.
		case errors.Is(err, service.ErrInvalidRefresh):
			httpx.ErrInvalidGrant.WriteError(w)
		default:
			log.Error("refresh grant failed", "err", err)
			httpx.ErrServerError.WriteError(w)
		}
		return
	}

	response := tokenclient.TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    int(pair.ExpiresIn),
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, response)
}
