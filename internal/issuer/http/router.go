package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/stamp/internal/issuer/service"
	"github.com/aussiebroadwan/stamp/internal/issuer/store"
	"github.com/aussiebroadwan/stamp/pkg/httpx"
	"github.com/aussiebroadwan/stamp/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	jwksEnabled  bool

	store           store.Store
	Issuer          *service.TokenIssuer
	RotationService *service.RotationService
	ClientService   *service.ClientService
}

func NewRouter(
	issuer *service.TokenIssuer,
	buildVersion string,
	jwksEnabled bool,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		Issuer:       issuer,
		buildVersion: buildVersion,
		jwksEnabled:  jwksEnabled,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerOAuth()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerOAuth() {
	// POST /oauth/token - strict rate limit by IP (covers all grant types)
	tokenHandler := &TokenHandler{
		RotationService: r.RotationService,
		ClientService:   r.ClientService,
	}
	r.Mux.Handle("POST /oauth/token",
		httpx.Chain(tokenHandler,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// POST /oauth/revoke - moderate rate limit
	revokeHandler := &RevokeHandler{RotationService: r.RotationService}
	r.Mux.Handle("POST /oauth/revoke",
		httpx.Chain(revokeHandler,
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	// GET /.well-known/jwks.json - public endpoint with high limit.
	// Only registered when key discovery is enabled; HMAC deployments
	// have nothing to publish so the route stays a 404.
	if r.jwksEnabled {
		r.Mux.Handle("GET /.well-known/jwks.json",
			httpx.Chain(JWKSHandler(r.Issuer),
				httpx.RateLimitByIP(httpx.PublicLimit),
			),
		)
	}
}

func (r *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.Issuer),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}
