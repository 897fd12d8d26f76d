package http

import (
	"net/http"

	"github.com/aussiebroadwan/stamp/internal/issuer/service"
	"github.com/aussiebroadwan/stamp/pkg/httpx"
)

// JWKSHandler exposes the JSON Web Key Set for public key discovery.
// HMAC-signed deployments have no public keys to publish, in which case
// the endpoint answers 404.
func JWKSHandler(issuer *service.TokenIssuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jwks, err := issuer.PublicJWKS()
		if err != nil {
			http.NotFound(w, r)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, jwks)
	}
}
