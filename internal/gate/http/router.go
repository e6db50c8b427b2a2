package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/eventgate/internal/gate/policy"
	"github.com/aussiebroadwan/eventgate/internal/gate/ratelimit"
	"github.com/aussiebroadwan/eventgate/internal/gate/service"
	"github.com/aussiebroadwan/eventgate/internal/gate/store"
	"github.com/aussiebroadwan/eventgate/pkg/httpx"
	"github.com/aussiebroadwan/eventgate/pkg/slogx"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	_ "github.com/aussiebroadwan/eventgate/api/gate" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Pinger is a dependency /readyz reports on.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	// ops carries /metrics and /swagger/. Both reveal what the public mux
	// hides (denial reasons, the route list), so it is served on a
	// separate internal listener.
	ops *http.ServeMux

	validator    *service.SessionValidator
	governor     *ratelimit.Governor
	store        store.Store
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	Accounts *service.AccountService

	// AccessTTL is reported to clients as expiresIn.
	AccessTTL time.Duration

	// RateStore is the shared counter backend, nil when counting in memory.
	RateStore Pinger
}

// NewRouter wires the gate. A nil governor mounts every route without
// rate limiting.
func NewRouter(
	validator *service.SessionValidator,
	governor *ratelimit.Governor,
	st store.Store,
	buildVersion string,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		ops:          http.NewServeMux(),
		validator:    validator,
		governor:     governor,
		store:        st,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerAccess()
	r.registerAdmin()
	r.registerSystem()
	r.registerOps()

	// Everything else, including a known path with the wrong method, gets
	// the same 404 as a denied request.
	r.Mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteNotFound(w)
	}))
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Eventgate API
//	@version		0.1.0
//	@description	Authentication, session and authorization gate of the event platform.
//	@description
//	@description				Access and refresh tokens are HS256 JWTs signed with separate secrets.
//	@description				Protected routes answer 404 for every denial so callers cannot probe for them.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/eventgate
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{Accounts: r.Accounts, AccessTTL: r.AccessTTL}

	// Credential endpoints share the tight auth budget. Login also slows
	// down repeated attempts.
	r.Protect("POST /api/auth/login", http.HandlerFunc(h.HandleLogin),
		RouteOptions{Class: ratelimit.ClassAuth, Slow: true})
	r.Protect("POST /api/auth/refresh", http.HandlerFunc(h.HandleRefresh),
		RouteOptions{Class: ratelimit.ClassAuth})

	r.Protect("POST /api/auth/forgot-password", http.HandlerFunc(h.HandleForgotPassword),
		RouteOptions{Class: ratelimit.ClassPasswordReset, Slow: true})
	r.Protect("POST /api/auth/resend-verification", http.HandlerFunc(h.HandleResendVerification),
		RouteOptions{Class: ratelimit.ClassEmailVerification})

	r.Protect("POST /api/auth/change-password", http.HandlerFunc(h.HandleChangePassword),
		RouteOptions{Class: ratelimit.ClassPasswordReset, Slow: true, Requirement: policy.Allow()})
	r.Protect("POST /api/auth/logout-all", http.HandlerFunc(h.HandleLogoutAll),
		RouteOptions{Requirement: policy.Allow()})
	r.Protect("PUT /api/auth/participant-mode", http.HandlerFunc(h.HandleParticipantMode),
		RouteOptions{Requirement: policy.Allow()})
	r.Protect("GET /api/auth/me", http.HandlerFunc(h.HandleMe),
		RouteOptions{Requirement: policy.Allow()})

	// The session probe never denies; it reports anonymity instead.
	r.Protect("GET /api/auth/session", http.HandlerFunc(h.HandleSession),
		RouteOptions{Auth: AuthOptional})
}

func (r *Router) registerAccess() {
	probes := map[string]policy.Requirement{
		"staff":              policy.RequireHierarchical(),
		"department-head":    policy.RequireDepartmentHead(),
		"organizer":          policy.RequireOrganizer(),
		"verified-organizer": policy.RequireVerifiedOrganizer(),
		"super-admin":        policy.RequireSuperAdmin(),
	}
	for name, req := range probes {
		r.Protect("GET /api/access/"+name, AccessHandler(req), RouteOptions{Requirement: req})
	}

	// The department comes from the path, so the policy check happens in
	// the handler rather than the guard.
	r.Protect("GET /api/access/departments/{department}", http.HandlerFunc(HandleDepartmentAccess),
		RouteOptions{Auth: AuthRequired})
}

func (r *Router) registerAdmin() {
	h := &AdminHandler{Accounts: r.Accounts}

	// CanManageUser narrows these further once the target is known.
	r.Protect("POST /api/admin/users/{id}/suspend", http.HandlerFunc(h.HandleSuspend),
		RouteOptions{Requirement: policy.RequireHierarchical()})
	r.Protect("POST /api/admin/users/{id}/reinstate", http.HandlerFunc(h.HandleReinstate),
		RouteOptions{Requirement: policy.RequireHierarchical()})

	r.Protect("POST /api/admin/organizers/{id}/approve", http.HandlerFunc(h.HandleApproveOrganizer),
		RouteOptions{Requirement: policy.RequireSuperAdmin()})
}

func (r *Router) registerSystem() {
	// Probes are polled by orchestrators and stay outside the governor.
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store, r.RateStore))
}

func (r *Router) registerOps() {
	r.ops.Handle("GET /metrics", promhttp.Handler())
	r.ops.Handle("/swagger/", httpSwagger.Handler())
	r.ops.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
}

// OpsHandler serves metrics and API docs. Mount it on an address only
// operators can reach.
func (r *Router) OpsHandler() http.Handler {
	return httpx.Chain(r.ops, r.middlewares...)
}
