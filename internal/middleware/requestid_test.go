package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	t.Run("generates when absent", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if seen == "" {
			t.Fatal("no request id on context")
		}
		if rec.Header().Get("X-Request-ID") != seen {
			t.Fatal("response header and context id differ")
		}
	})

	t.Run("honors client id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "client-supplied-id")
		handler.ServeHTTP(httptest.NewRecorder(), req)
		if seen != "client-supplied-id" {
			t.Fatalf("request id = %q", seen)
		}
	})

	t.Run("truncates oversized id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", strings.Repeat("x", 500))
		handler.ServeHTTP(httptest.NewRecorder(), req)
		if len(seen) != maxRequestIDLen {
			t.Fatalf("request id length = %d, want %d", len(seen), maxRequestIDLen)
		}
	})
}

func TestRequestIDFromContextWithoutMiddleware(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := RequestIDFromContext(req.Context()); got != "" {
		t.Fatalf("id without middleware = %q", got)
	}
}
