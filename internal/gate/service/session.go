package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/eventgate/internal/gate/domain"
	"github.com/aussiebroadwan/eventgate/internal/gate/metrics"
	"github.com/aussiebroadwan/eventgate/internal/gate/store"
	"github.com/aussiebroadwan/eventgate/pkg/cryptox"
	"github.com/aussiebroadwan/eventgate/pkg/jwtx"
	"github.com/aussiebroadwan/eventgate/pkg/slogx"
	"golang.org/x/time/rate"
)

const (
	DefaultSessionTimeout = 30 * time.Minute
	DefaultLookupTimeout  = 2 * time.Second
)

// Mode selects how the validator treats a request without a usable session.
type Mode int

const (
	// ModeRequired turns every failure into a denial.
	ModeRequired Mode = iota
	// ModeOptional turns every failure into an anonymous request.
	ModeOptional
)

func (m Mode) String() string {
	if m == ModeOptional {
		return "optional"
	}
	return "required"
}

// Directory is the slice of the user store the session path needs.
type Directory interface {
	FindUserByID(ctx context.Context, id string) (domain.User, error)
	TouchLastActivity(ctx context.Context, id string, at time.Time) error
}

// TokenVerifier is satisfied by *jwtx.Codec.
type TokenVerifier interface {
	Verify(token string, kind jwtx.Kind) (*jwtx.Claims, error)
}

// ActivitySink receives lastActivity updates after a session is accepted.
type ActivitySink interface {
	Record(userID string, at time.Time) bool
}

type SessionConfig struct {
	// Timeout is the sliding inactivity window.
	Timeout time.Duration
	// LookupTimeout bounds a single directory lookup.
	LookupTimeout time.Duration
	// DegradedLogInterval throttles the directory degraded warning.
	DegradedLogInterval time.Duration
	Now                 func() time.Time
}

// SessionValidator decides whether a bearer credential belongs to a live
// session. It never writes to the directory itself; accepted sessions are
// handed to the ActivitySink.
type SessionValidator struct {
	tokens    TokenVerifier
	directory Directory
	activity  ActivitySink

	timeout       time.Duration
	lookupTimeout time.Duration
	now           func() time.Time

	degraded *rate.Sometimes
}

func NewSessionValidator(tokens TokenVerifier, dir Directory, activity ActivitySink, cfg SessionConfig) *SessionValidator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSessionTimeout
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = DefaultLookupTimeout
	}
	if cfg.DegradedLogInterval <= 0 {
		cfg.DegradedLogInterval = 10 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &SessionValidator{
		tokens:        tokens,
		directory:     dir,
		activity:      activity,
		timeout:       cfg.Timeout,
		lookupTimeout: cfg.LookupTimeout,
		now:           cfg.Now,
		degraded:      &rate.Sometimes{First: 1, Interval: cfg.DegradedLogInterval},
	}
}

// Timeout returns the configured inactivity window.
func (v *SessionValidator) Timeout() time.Duration { return v.timeout }

// Validate resolves an Authorization header to a user.
//
// In ModeRequired a nil user always comes with an error wrapping one of the
// domain denial causes. In ModeOptional the error is always nil and a nil
// user means anonymous.
func (v *SessionValidator) Validate(ctx context.Context, authorization string, mode Mode) (*domain.User, error) {
	u, err := v.validate(ctx, authorization)
	if err == nil {
		metrics.SessionValidationsTotal.WithLabelValues("ok").Inc()
		return u, nil
	}

	log := slogx.FromContext(ctx)
	reason := domain.Reason(err)
	attrs := []any{slog.String("reason", reason), slog.Any("error", err)}

	// The fingerprint lets operators follow one token across rejections
	// without the token itself reaching the logs.
	if token, ok := BearerToken(authorization); ok {
		fp := cryptox.FingerprintToken(token)
		attrs = append(attrs, slog.String("token_fp", fp))
		slogx.Annotate(ctx, "token_fp", fp)
	}

	if mode == ModeOptional {
		metrics.SessionValidationsTotal.WithLabelValues("anonymous").Inc()
		log.Debug("optional session treated as anonymous", attrs...)
		return nil, nil
	}

	metrics.SessionValidationsTotal.WithLabelValues(reason).Inc()
	log.Debug("session rejected", attrs...)
	return nil, err
}

func (v *SessionValidator) validate(ctx context.Context, authorization string) (*domain.User, error) {
	token, ok := BearerToken(authorization)
	if !ok {
		return nil, fmt.Errorf("%w: no bearer token", domain.ErrInvalidCredential)
	}

	claims, err := v.tokens.Verify(token, jwtx.KindAccess)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidCredential, err)
	}

	u, err := v.lookup(ctx, claims.UserID())
	if err != nil {
		return nil, err
	}

	now := v.now()
	if err := CheckSession(u, claims.TokenVersion, now, v.timeout); err != nil {
		return nil, err
	}

	if v.activity != nil {
		v.activity.Record(u.ID, now)
	}
	return &u, nil
}

// lookup detaches from the request's cancellation so a client hanging up
// cannot leave a half-finished query behind, but still bounds the wait.
func (v *SessionValidator) lookup(ctx context.Context, userID string) (domain.User, error) {
	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), v.lookupTimeout)
	defer cancel()

	start := time.Now()
	u, err := v.directory.FindUserByID(lctx, userID)
	metrics.DirectoryLookupSeconds.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		return u, nil
	case errors.Is(err, store.ErrNotFound):
		return domain.User{}, fmt.Errorf("%w: user %s not found", domain.ErrInvalidCredential, userID)
	default:
		metrics.DirectoryErrorsTotal.Inc()
		v.degraded.Do(func() {
			slogx.FromContext(ctx).Warn("user directory degraded, denying as invalid credential",
				slog.String("user_id", userID),
				slog.Any("error", err),
			)
		})
		return domain.User{}, fmt.Errorf("%w: directory lookup: %w", domain.ErrInvalidCredential, err)
	}
}

// CheckSession applies the account, version and inactivity checks shared by
// request validation and refresh.
func CheckSession(u domain.User, tokenVersion int64, now time.Time, timeout time.Duration) error {
	if u.Suspended {
		return fmt.Errorf("%w: user %s is suspended", domain.ErrInvalidCredential, u.ID)
	}
	if !u.EmailVerified {
		return fmt.Errorf("%w: user %s email not verified", domain.ErrInvalidCredential, u.ID)
	}
	if tokenVersion != u.TokenVersion {
		return fmt.Errorf("%w: token v%d, user %s at v%d", domain.ErrStaleVersion, tokenVersion, u.ID, u.TokenVersion)
	}
	if u.LastActivity.IsZero() {
		return fmt.Errorf("%w: user %s has no recorded activity", domain.ErrSessionExpired, u.ID)
	}
	if idle := now.Sub(u.LastActivity); idle > timeout {
		return fmt.Errorf("%w: user %s idle for %s", domain.ErrSessionExpired, u.ID, idle.Truncate(time.Second))
	}
	return nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", false
	}
	return token, true
}
