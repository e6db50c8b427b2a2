package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/aussiebroadwan/eventgate/internal/gate/domain"
	"github.com/aussiebroadwan/eventgate/internal/gate/metrics"
	"github.com/aussiebroadwan/eventgate/internal/gate/policy"
	"github.com/aussiebroadwan/eventgate/internal/gate/ratelimit"
	"github.com/aussiebroadwan/eventgate/internal/gate/service"
	"github.com/aussiebroadwan/eventgate/pkg/gatesdk"
	"github.com/aussiebroadwan/eventgate/pkg/httpx"
	"github.com/aussiebroadwan/eventgate/pkg/slogx"
)

// AuthMode selects how a route treats the Authorization header.
type AuthMode int

const (
	// AuthNone skips session validation entirely.
	AuthNone AuthMode = iota
	// AuthOptional attaches the user when the credential is good and
	// carries on anonymously otherwise.
	AuthOptional
	// AuthRequired denies anything without a live session.
	AuthRequired
)

// RouteOptions configures the gate in front of a handler.
type RouteOptions struct {
	// Class picks the rate budget. Empty means general.
	Class ratelimit.Class

	// Slow adds the progressive speed delay on top of the rate limit.
	Slow bool

	Auth AuthMode

	// Requirement is checked after authentication. Setting it implies
	// AuthRequired.
	Requirement policy.Requirement
}

// errMissingUser means a requirement ran without an authenticated user in
// the context, which only happens when a route is wired wrong.
var errMissingUser = errors.New("missing_user_in_context")

// Protect mounts h behind the governor, the session validator and the
// policy check described by opts. Embedding services use it to put their
// own routes behind the same gate.
func (r *Router) Protect(pattern string, h http.Handler, opts RouteOptions) {
	r.Mux.Handle(pattern, r.guard(h, opts))
}

func (r *Router) guard(h http.Handler, opts RouteOptions) http.Handler {
	if opts.Class == "" {
		opts.Class = ratelimit.ClassGeneral
	}
	if !opts.Requirement.IsZero() {
		opts.Auth = AuthRequired
	}

	mws := make([]httpx.Middleware, 0, 3)
	if r.governor != nil {
		mws = append(mws, r.governor.Limit(opts.Class, opts.Slow))
	}
	switch opts.Auth {
	case AuthRequired:
		mws = append(mws, r.authenticate(service.ModeRequired))
	case AuthOptional:
		mws = append(mws, r.authenticate(service.ModeOptional))
	}
	if !opts.Requirement.IsZero() {
		mws = append(mws, enforce(opts.Requirement))
	}

	return httpx.Chain(h, mws...)
}

// authenticate runs the session validator and stores the user on success.
func (r *Router) authenticate(mode service.Mode) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := req.Context()

			u, err := r.validator.Validate(ctx, req.Header.Get("Authorization"), mode)
			if err != nil {
				Deny(w, req, err)
				return
			}
			if u != nil {
				slogx.Annotate(ctx, "user_id", u.ID)
				ctx = httpx.ContextWithUser(slogx.With(ctx, "user_id", u.ID), u)
				req = req.WithContext(ctx)
			}

			next.ServeHTTP(w, req)
		})
	}
}

func enforce(requirement policy.Requirement) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			u, ok := httpx.UserFromContext(req.Context())
			if !ok {
				Deny(w, req, errMissingUser)
				return
			}
			if err := policy.Decide(u, requirement); err != nil {
				Deny(w, req, err)
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

// Deny is the single exit for every refused request. The real reason goes
// to the log and the denial counter; the caller mostly sees a 404 that is
// indistinguishable from a route that does not exist.
func Deny(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	l := slogx.FromContext(ctx)
	reason := domain.Reason(err)

	var exceeded *ratelimit.ExceededError
	switch {
	case errors.As(err, &exceeded):
		l.Info("request rate limited",
			slog.String("class", string(exceeded.Class)),
			slog.Duration("retry_after", exceeded.RetryAfter),
		)
		httpx.WriteTooManyRequests(w, exceeded.Message, exceeded.RetryAfter)

	case errors.Is(err, domain.ErrNotYetVerified):
		l.Info("request denied", slog.String("reason", reason), slog.Any("error", err))
		httpx.WriteForbidden(w, "Organizer account not verified yet", gatesdk.CodeOrganizerNotVerified)

	case errors.Is(err, errMissingUser):
		reason = "missing_user"
		l.Error("route requires a user but none was authenticated", slog.String("path", r.URL.Path))
		httpx.WriteUnauthorized(w)

	default:
		l.Info("request denied", slog.String("reason", reason), slog.Any("error", err))
		httpx.WriteNotFound(w)
	}

	metrics.DeniedRequestsTotal.WithLabelValues(reason).Inc()
	slogx.Annotate(ctx, "deny_reason", reason)
}
