package middleware

import (
	"context"
	"net/http"

	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/api/respond"
	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/db/models"
	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/logging"
	"go.uber.org/zap"
)

// SessionCookie is the cookie holding the opaque session token.
const SessionCookie = "session"

type userKey struct{}

// SessionResolver maps a session token to its user, or nil.
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (*models.User, error)
}

// SessionToken returns the session cookie value, or "".
func SessionToken(r *http.Request) string {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return ""
	}
	return c.Value
}

// WithUser stores the authenticated user in ctx.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFromContext returns the user set by RequireSession, or nil.
func UserFromContext(ctx context.Context) *models.User {
	user, _ := ctx.Value(userKey{}).(*models.User)
	return user
}

// RequireSession rejects requests without a live session with 401.
func RequireSession(resolver SessionResolver, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := resolver.ResolveSession(r.Context(), SessionToken(r))
			if err != nil {
				logging.FromContext(r.Context(), logger).Error("session lookup failed", zap.Error(err))
				respond.Error(w, http.StatusInternalServerError, "Internal server error")
				return
			}
			if user == nil {
				respond.Error(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}
