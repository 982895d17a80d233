package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/frahmantamala/caz-payments/internal"
	"github.com/frahmantamala/caz-payments/pkg/logger"
)

const TraceIDHeader = "X-Trace-ID"

// RequestID carries the caller's trace id, or a new one, through the context
// logger and back on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(TraceIDHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}

		ctx := internal.ContextWithTraceID(r.Context(), traceID)
		ctx = logger.With(ctx, "trace_id", traceID)

		w.Header().Set(TraceIDHeader, traceID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
