package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/stamp/internal/issuer/service"
	"github.com/aussiebroadwan/stamp/pkg/httpx"
	"github.com/aussiebroadwan/stamp/pkg/slogx"
	"github.com/aussiebroadwan/stamp/pkg/tokenclient"
)

// RevokeHandler serves POST /oauth/revoke following RFC 7009. Only refresh
// tokens can be revoked, access tokens expire naturally. All tokens even if
// invalid/unknown return 200 OK to prevent token scanning attacks.
type RevokeHandler struct {
	RotationService *service.RotationService
}

func (h *RevokeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	// 1. Ensure the right content-type
	if ct := r.Header.Get("Content-Type"); ct != "" &&
		!strings.HasPrefix(ct, "application/json") {
		httpx.ErrInvalidRequest.WriteError(w)
		return
	}

	// 2. Parse the JSON body
	var req tokenclient.RevokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.ErrInvalidJSONBody.WriteError(w)
		return
	}

	if req.RefreshToken == "" {
		httpx.ErrInvalidRequest.WriteError(w)
		return
	}

	// 3. Revoke the token, or its whole rotation family when asked.
	// Per RFC 7009, the server responds 200 OK even if the token is
	// invalid or unknown.
	var err error
	if req.Family {
		err = h.RotationService.RevokeFamily(ctx, req.RefreshToken)
	} else {
		err = h.RotationService.Revoke(ctx, req.RefreshToken)
	}
	if err != nil {
		log.Warn("revoke refresh failed", "err", err)
	}

	// 4. Return 200 OK with empty body per spec
	httpx.NoCache(w)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("{}"))
}
