// Package api assembles the relay's HTTP surface.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/api/handlers"
	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/api/middleware"
	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/logging"
	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/monitor"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps are the collaborators the routes need.
type Deps struct {
	DB             *gorm.DB
	Sessions       handlers.Sessions
	Checker        monitor.Checker
	FrontendOrigin string
	RateLimitRPM   int
	Logger         *zap.Logger
	Now            func() time.Time
}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(logging.RequestLogger(logger.Named("http")))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.CORS(d.FrontendOrigin))
	r.Use(middleware.RateLimit(d.RateLimitRPM))

	r.NotFound(handlers.NotFoundHandler)
	r.MethodNotAllowed(handlers.NotFoundHandler)

	r.Get("/", handlers.RootHandler)
	r.Get("/health", handlers.HealthHandler(now))

	r.Route("/auth", func(r chi.Router) {
		r.Get("/signin", handlers.SignInHandler(d.Sessions, logger))
		r.Get("/callback", handlers.CallbackHandler(d.Sessions, d.FrontendOrigin, logger))
		r.Post("/signout", handlers.SignOutHandler(d.Sessions, logger))
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/session", handlers.SessionHandler(d.Sessions, logger))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireSession(d.Sessions, logger))

			r.Get("/configs", handlers.ListConfigsHandler(d.DB, logger))
			r.Post("/configs", handlers.CreateConfigHandler(d.DB, logger))
			r.Post("/configs/{id}/test", handlers.TestConfigHandler(d.DB, d.Checker, logger))
			r.Get("/logs", handlers.ListLogsHandler(d.DB, logger))
			r.NotFound(handlers.NotFoundHandler)
			r.MethodNotAllowed(handlers.NotFoundHandler)
		})
	})

	return r
}
