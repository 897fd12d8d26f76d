package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/stamp/internal/issuer/service"
	"github.com/aussiebroadwan/stamp/internal/issuer/store"
	"github.com/aussiebroadwan/stamp/pkg/httpx"
	"github.com/aussiebroadwan/stamp/pkg/tokenclient"
)

// ReadyzHandler is the readiness probe: it checks the critical dependencies
// (database connectivity, signing key) and reports 503 while any of them is
// degraded.
func ReadyzHandler(
	startTime time.Time,
	version string,
	st store.Store,
	issuer *service.TokenIssuer,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := &tokenclient.HealthChecks{
			Database: "ok",
			Signer:   "ok",
		}
		overallStatus := "ok"
		statusCode := http.StatusOK

		// Check database connectivity
		if err := st.Ping(r.Context()); err != nil {
			checks.Database = "error: " + err.Error()
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		// Check that a signing key was resolved at startup
		if issuer == nil || issuer.KeyID() == "" {
			checks.Signer = "error: no signing key loaded"
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		response := tokenclient.HealthResponse{
			Status:  overallStatus,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		}
		httpx.WriteJSON(w, statusCode, response)
	}
}
