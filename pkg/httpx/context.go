package httpx

import (
	"context"

	"github.com/aussiebroadwan/eventgate/internal/gate/domain"
)

type ctxKey string

const CtxKeyUser ctxKey = "user"

// ContextWithUser attaches the authenticated user to ctx.
func ContextWithUser(ctx context.Context, u *domain.User) context.Context {
	return context.WithValue(ctx, CtxKeyUser, u)
}

// UserFromContext returns the user placed by the session guard. ok is false
// for anonymous requests.
func UserFromContext(ctx context.Context) (*domain.User, bool) {
	u, ok := ctx.Value(CtxKeyUser).(*domain.User)
	return u, ok && u != nil
}
