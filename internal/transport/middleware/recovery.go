package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/frahmantamala/caz-payments/internal"
	"github.com/frahmantamala/caz-payments/pkg/logger"
)

// RecoveryMiddleware turns a panic into a 500 response and logs the stack.
func RecoveryMiddleware(fallback *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.FromOr(r.Context(), fallback).Error("panic recovered",
						"error", rec,
						"method", r.Method,
						"path", r.URL.Path,
						"stack", string(debug.Stack()))

					// The trace id lets a caller point at the stack in the logs.
					appErr := internal.NewInternalError("internal server error", nil)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(appErr.StatusCode)
					_ = json.NewEncoder(w).Encode(internal.Response{
						Error:   appErr,
						TraceID: internal.TraceIDFromContext(r.Context()),
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
