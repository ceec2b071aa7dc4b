package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// TraceHeader is the header read and written by TraceMiddleware.
const TraceHeader = "X-Request-ID"

type traceIDKey struct{}

// TraceMiddleware assigns every request a trace ID, stores it in the request
// context and echoes it in the X-Request-ID response header. An incoming
// X-Request-ID is reused when it is a valid UUID; otherwise a new one is
// generated.
func TraceMiddleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID := r.Header.Get(TraceHeader)
			if _, err := uuid.Parse(traceID); err != nil {
				traceID = uuid.NewString()
			}
			w.Header().Set(TraceHeader, traceID)
			next.ServeHTTP(w, r.WithContext(WithTraceID(r.Context(), traceID)))
		})
	}
}

// WithTraceID returns a copy of ctx carrying traceID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// GetTraceID returns the request's trace ID, or "" when none was assigned.
func GetTraceID(r *http.Request) string {
	return GetTraceIDFromContext(r.Context())
}

// GetTraceIDFromContext returns the trace ID stored in ctx, or "".
func GetTraceIDFromContext(ctx context.Context) string {
	traceID, _ := ctx.Value(traceIDKey{}).(string)
	return traceID
}
