package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/api/middleware"
	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/api/respond"
	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/auth/session"
	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/auth/state"
	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/db/models"
	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/logging"
	"go.uber.org/zap"
)

// StateCookie mirrors the OAuth state issued at sign-in.
const StateCookie = "oauth_state"

// Sessions is the sign-in surface the auth handlers use.
// *session.Manager satisfies it.
type Sessions interface {
	BeginLogin(ctx context.Context) (authURL, stateValue string, err error)
	CompleteLogin(ctx context.Context, code, stateValue string) (*models.Session, error)
	ResolveSession(ctx context.Context, token string) (*models.User, error)
	EndLogin(ctx context.Context, token string) error
	TTL() time.Duration
}

type sessionUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Image string `json:"image"`
}

// SignInHandler redirects the browser to Google's consent page.
func SignInHandler(sessions Sessions, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authURL, stateValue, err := sessions.BeginLogin(r.Context())
		if err != nil {
			logging.FromContext(r.Context(), logger).Error("failed to begin sign-in", zap.Error(err))
			respond.Error(w, http.StatusInternalServerError, "Internal server error")
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     StateCookie,
			Value:    stateValue,
			Path:     "/auth",
			MaxAge:   int(state.TTL.Seconds()),
			HttpOnly: true,
			Secure:   true,
			SameSite: http.SameSiteLaxMode,
		})
		http.Redirect(w, r, authURL, http.StatusFound)
	}
}

// CallbackHandler completes sign-in, sets the session cookie and sends the
// browser back to the frontend.
func CallbackHandler(sessions Sessions, frontendOrigin string, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logging.FromContext(r.Context(), logger)
		query := r.URL.Query()

		code := query.Get("code")
		if code == "" {
			respond.Error(w, http.StatusBadRequest, "Authorization code not found")
			return
		}

		stateValue := query.Get("state")
		if c, err := r.Cookie(StateCookie); err != nil || c.Value == "" || c.Value != stateValue {
			respond.Error(w, http.StatusBadRequest, "Invalid state")
			return
		}
		clearCookie(w, StateCookie, "/auth")

		sess, err := sessions.CompleteLogin(r.Context(), code, stateValue)
		switch {
		case errors.Is(err, session.ErrMissingCode):
			respond.Error(w, http.StatusBadRequest, "Authorization code not found")
			return
		case errors.Is(err, session.ErrInvalidState):
			respond.Error(w, http.StatusBadRequest, "Invalid state")
			return
		case err != nil:
			log.Error("sign-in failed", zap.Error(err))
			respond.Error(w, http.StatusInternalServerError, "Authentication failed")
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     middleware.SessionCookie,
			Value:    sess.SessionToken,
			Path:     "/",
			MaxAge:   int(sessions.TTL().Seconds()),
			HttpOnly: true,
			Secure:   true,
			SameSite: http.SameSiteNoneMode,
		})
		http.Redirect(w, r, frontendOrigin, http.StatusFound)
	}
}

// SignOutHandler deletes the caller's session and clears the cookie.
func SignOutHandler(sessions Sessions, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := sessions.EndLogin(r.Context(), middleware.SessionToken(r)); err != nil {
			logging.FromContext(r.Context(), logger).Error("failed to end session", zap.Error(err))
			respond.Error(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		clearCookie(w, middleware.SessionCookie, "/")
		respond.JSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

// SessionHandler reports the signed-in user, or {"session": null}.
func SessionHandler(sessions Sessions, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := sessions.ResolveSession(r.Context(), middleware.SessionToken(r))
		if err != nil {
			logging.FromContext(r.Context(), logger).Warn("session lookup failed", zap.Error(err))
		}
		if user == nil {
			respond.JSON(w, http.StatusOK, map[string]interface{}{"session": nil})
			return
		}
		respond.JSON(w, http.StatusOK, map[string]interface{}{
			"session": map[string]interface{}{
				"user": sessionUser{ID: user.ID, Email: user.Email, Name: user.Name, Image: user.Image},
			},
		})
	}
}

func clearCookie(w http.ResponseWriter, name, path string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
}
