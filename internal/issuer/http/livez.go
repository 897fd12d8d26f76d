package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/stamp/pkg/httpx"
	"github.com/aussiebroadwan/stamp/pkg/tokenclient"
)

// LivezHandler is the liveness probe: it always returns 200 OK while the
// process is running, along with uptime and version information.
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := tokenclient.HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
		}
		httpx.WriteJSON(w, http.StatusOK, response)
	}
}
