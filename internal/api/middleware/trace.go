package middleware

import (
	"log/slog"
	"net/http"
	"regexp"

	"github.com/phrazzld/mediagen/internal/api/shared"
	"github.com/phrazzld/mediagen/internal/platform/logger"
)

// TraceHeader carries the trace ID on requests and responses.
const TraceHeader = "X-Trace-ID"

var validTraceID = regexp.MustCompile(`^[A-Za-z0-9-]{8,64}$`)

// TraceMiddleware adds a trace ID and a logger carrying it to the request
// context. A well-formed incoming X-Trace-ID is reused.
func TraceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if incoming := r.Header.Get(TraceHeader); validTraceID.MatchString(incoming) {
			ctx = shared.WithTraceID(ctx, incoming)
		} else {
			ctx = shared.SetTraceID(ctx)
		}
		traceID := shared.GetTraceID(ctx)

		log := logger.FromContext(ctx).With(slog.String("trace_id", traceID))
		ctx = logger.WithContext(ctx, log)

		log.Debug("request started",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("remote_addr", r.RemoteAddr))

		w.Header().Set(TraceHeader, traceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
