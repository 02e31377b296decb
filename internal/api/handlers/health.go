package handlers

import (
	"net/http"
	"time"

	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/api/respond"
	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/version"
)

// isoMillis matches JavaScript's Date.toISOString.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// HealthHandler reports liveness with the current UTC time.
func HealthHandler(now func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respond.JSON(w, http.StatusOK, map[string]string{
			"status":    "ok",
			"timestamp": now().UTC().Format(isoMillis),
			"version":   version.Version,
		})
	}
}

// RootHandler identifies the server on GET /.
func RootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("Gas Metrics API Server"))
}

// NotFoundHandler answers unknown routes.
func NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	respond.Error(w, http.StatusNotFound, "Route not found")
}
