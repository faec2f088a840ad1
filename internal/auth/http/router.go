package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/sitepass/sitepass/internal/auth/service"
	"github.com/sitepass/sitepass/internal/auth/store"
	"github.com/sitepass/sitepass/pkg/httpx"
	"github.com/sitepass/sitepass/pkg/jwtx"
	"github.com/sitepass/sitepass/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keyring      *jwtx.Keyring
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store             store.Store
	AuthService       *service.AuthService
	TokenService      *service.TokenService
	AuthorizerService *service.AuthorizerService
	RotationService   *service.RotationService
}

func NewRouter(
	keyring *jwtx.Keyring,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		keyring:      keyring,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerSites()
	r.registerUsers()
	r.registerAdmin()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	register := &RegisterHandler{AuthService: r.AuthService}
	login := &LoginHandler{
		AuthService:       r.AuthService,
		AuthorizerService: r.AuthorizerService,
	}
	refresh := &RefreshHandler{AuthService: r.AuthService}
	logout := &LogoutHandler{AuthService: r.AuthService}

	// Registration and login are credential-guessing targets, so both
	// get the strict per-IP limit.
	r.Mux.Handle("POST /v1/auth/register",
		httpx.Chain(register,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/login",
		httpx.Chain(login,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/refresh",
		httpx.Chain(refresh,
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/logout",
		httpx.Chain(logout,
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerSites() {
	h := &SitesHandler{AuthorizerService: r.AuthorizerService}

	r.Mux.Handle("GET /v1/sites",
		httpx.Chain(h,
			httpx.AuthnMiddleware(r.TokenService),
			httpx.RateLimitByUser(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerUsers() {
	h := &MeHandler{Store: r.store}

	r.Mux.Handle("GET /v1/users/me",
		httpx.Chain(h,
			httpx.AuthnMiddleware(r.TokenService),
			httpx.RateLimitByUser(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerAdmin() {
	userLevel := &AdminUserLevelHandler{AuthorizerService: r.AuthorizerService}
	siteLevel := &AdminSiteLevelHandler{AuthorizerService: r.AuthorizerService}
	createSite := &AdminCreateSiteHandler{AuthorizerService: r.AuthorizerService}
	listUsers := &AdminListUsersHandler{AuthorizerService: r.AuthorizerService}
	rotate := &AdminRotateHandler{
		AuthorizerService: r.AuthorizerService,
		RotationService:   r.RotationService,
	}

	adminChain := func(h http.Handler) http.Handler {
		return httpx.Chain(h,
			httpx.AuthnMiddleware(r.TokenService),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		)
	}

	r.Mux.Handle("PUT /v1/admin/users/{id}/access-level", adminChain(userLevel))
	r.Mux.Handle("PUT /v1/admin/sites/{id}/access-level", adminChain(siteLevel))
	r.Mux.Handle("POST /v1/admin/sites", adminChain(createSite))
	r.Mux.Handle("GET /v1/admin/users", adminChain(listUsers))
	r.Mux.Handle("POST /v1/admin/secrets/rotate", adminChain(rotate))
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store, r.keyring))
}
