package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/api/respond"
	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/logging"
	"go.uber.org/zap"
)

// Recoverer turns a handler panic into a generic 500 JSON response.
func Recoverer(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logging.FromContext(r.Context(), logger).Error("panic in handler",
					zap.Any("panic", rec),
					zap.ByteString("stack", debug.Stack()),
				)
				respond.Error(w, http.StatusInternalServerError, "Internal server error")
			}()
			next.ServeHTTP(w, r)
		})
	}
}
