package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/aussiebroadwan/eventgate/internal/gate/domain"
	"github.com/aussiebroadwan/eventgate/internal/gate/metrics"
	"github.com/aussiebroadwan/eventgate/pkg/httpx"
	"github.com/aussiebroadwan/eventgate/pkg/slogx"
)

// ExceededError carries what a 429 response needs. It unwraps to
// domain.ErrRateExceeded.
type ExceededError struct {
	Class      Class
	Message    string
	RetryAfter time.Duration
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("%s: class %s, retry after %s", domain.ErrRateExceeded, e.Class, e.RetryAfter)
}

func (e *ExceededError) Unwrap() error { return domain.ErrRateExceeded }

// DenyFunc renders a rejection.
type DenyFunc func(w http.ResponseWriter, r *http.Request, err error)

type Config struct {
	Counter Counter
	Rules   map[Class]Rule
	Speed   SpeedRule

	// Disabled turns every middleware into a pass-through.
	Disabled bool

	// Key identifies the client. Defaults to the remote address.
	Key httpx.KeyExtractor

	// Deny renders rejections. Defaults to a plain 429 envelope.
	Deny DenyFunc

	// Wait blocks for d or until ctx is done. Tests replace it.
	Wait func(ctx context.Context, d time.Duration) error

	// Now must match the counter's clock.
	Now func() time.Time
}

// Governor is the request admission layer. It runs before any session
// work so floods are rejected cheaply.
type Governor struct {
	counter  Counter
	rules    map[Class]Rule
	speed    SpeedRule
	disabled bool
	key      httpx.KeyExtractor
	deny     DenyFunc
	wait     func(ctx context.Context, d time.Duration) error
	now      func() time.Time
}

func NewGovernor(cfg Config) *Governor {
	if cfg.Counter == nil {
		cfg.Counter = NewMemoryCounter()
	}
	if cfg.Rules == nil {
		cfg.Rules = DefaultRules()
	}
	if cfg.Speed == (SpeedRule{}) {
		cfg.Speed = DefaultSpeedRule()
	}
	if cfg.Key == nil {
		cfg.Key = httpx.RemoteIPKeyExtractor
	}
	if cfg.Deny == nil {
		cfg.Deny = writeExceeded
	}
	if cfg.Wait == nil {
		cfg.Wait = sleepCtx
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Governor{
		counter:  cfg.Counter,
		rules:    cfg.Rules,
		speed:    cfg.Speed,
		disabled: cfg.Disabled,
		key:      cfg.Key,
		deny:     cfg.Deny,
		wait:     cfg.Wait,
		now:      cfg.Now,
	}
}

// Disabled reports whether the governor lets everything through.
func (g *Governor) Disabled() bool { return g.disabled }

// Rule returns the budget for class, falling back to the general one.
func (g *Governor) Rule(class Class) Rule {
	if r, ok := g.rules[class]; ok {
		return r
	}
	return g.rules[ClassGeneral]
}

func rateKey(class Class, client string) string  { return "rl:" + string(class) + ":" + client }
func speedKey(class Class, client string) string { return "sd:" + string(class) + ":" + client }

// Admit counts a request against class for client. It returns an
// *ExceededError once the budget is spent. Counter failures admit the
// request.
func (g *Governor) Admit(ctx context.Context, class Class, client string) (Hit, error) {
	rule := g.Rule(class)
	hit, err := g.counter.Incr(ctx, rateKey(class, client), rule.Window)
	if err != nil {
		metrics.CounterErrorsTotal.Inc()
		slogx.FromContext(ctx).Warn("rate counter failed, admitting request",
			slog.String("class", string(class)),
			slog.Any("error", err),
		)
		return Hit{}, nil
	}

	if hit.Count > rule.Limit {
		return hit, &ExceededError{
			Class:      class,
			Message:    rule.Message,
			RetryAfter: hit.ResetAt.Sub(g.now()),
		}
	}
	return hit, nil
}

// Slow counts a request against the speed window and returns the delay it
// owes. Counter failures owe nothing.
func (g *Governor) Slow(ctx context.Context, class Class, client string) time.Duration {
	hit, err := g.counter.Incr(ctx, speedKey(class, client), g.speed.Window)
	if err != nil {
		metrics.CounterErrorsTotal.Inc()
		slogx.FromContext(ctx).Warn("speed counter failed, not delaying",
			slog.String("class", string(class)),
			slog.Any("error", err),
		)
		return 0
	}
	return g.speed.Delay(hit.Count)
}

// Limit returns a middleware enforcing class. With slow set, admitted
// requests past the speed threshold are also delayed.
func (g *Governor) Limit(class Class, slow bool) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		if g.disabled {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			client := g.key(r)
			if client == "" {
				slogx.FromContext(ctx).Warn("rate limit: unable to extract key, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			hit, err := g.Admit(ctx, class, client)
			if err != nil {
				// Only rejections carry the budget. Admitted requests can
				// still end in a denial, and that 404 has to look like any
				// other.
				setRateHeaders(w, g.Rule(class), hit, g.now())
				metrics.RateLimitedTotal.WithLabelValues(string(class)).Inc()
				slogx.Annotate(ctx, "rate_class", string(class))
				g.deny(w, r, err)
				return
			}

			if slow {
				if d := g.Slow(ctx, class, client); d > 0 {
					metrics.SpeedDelaySeconds.WithLabelValues(string(class)).Observe(d.Seconds())
					slogx.Annotate(ctx, "speed_delay_ms", d.Milliseconds())
					if err := g.wait(ctx, d); err != nil {
						slogx.FromContext(ctx).Debug("client left during speed delay", slog.Any("error", err))
						return
					}
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// setRateHeaders advertises the budget the way the IETF RateLimit header
// draft does.
func setRateHeaders(w http.ResponseWriter, rule Rule, hit Hit, now time.Time) {
	remaining := max(rule.Limit-hit.Count, 0)
	reset := max(int64(hit.ResetAt.Sub(now).Round(time.Second)/time.Second), 0)

	h := w.Header()
	h.Set("RateLimit-Limit", strconv.FormatInt(rule.Limit, 10))
	h.Set("RateLimit-Remaining", strconv.FormatInt(remaining, 10))
	h.Set("RateLimit-Reset", strconv.FormatInt(reset, 10))
}

func writeExceeded(w http.ResponseWriter, _ *http.Request, err error) {
	var exceeded *ExceededError
	if !errors.As(err, &exceeded) {
		exceeded = &ExceededError{Message: DefaultRules()[ClassGeneral].Message}
	}
	httpx.WriteTooManyRequests(w, exceeded.Message, exceeded.RetryAfter)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
