package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"

	// Incoming ids longer than a UUID with room to spare are truncated rather
	// than echoed back verbatim into logs and response headers.
	maxRequestIDLen = 64
)

// RequestID tags every request with an id for log correlation. A well-formed
// client-supplied X-Request-ID is honored so ids survive proxies; otherwise a
// fresh UUID is minted. The id is echoed on the response and stored on the
// request context for RequestIDFromContext.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get("X-Request-ID")
		if len(rid) > maxRequestIDLen {
			rid = rid[:maxRequestIDLen]
		}
		if rid == "" {
			rid = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey, rid)
		w.Header().Set("X-Request-ID", rid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDFromContext returns the id set by RequestID, or "" when the
// middleware did not run.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}
