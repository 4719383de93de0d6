package infra

import (
	"context"
	"net/http"
	"time"
)

// Handle URLs and upload bodies stay small; anything beyond this in headers
// is abuse, not a canvas client.
const maxHeaderBytes = 1 << 20

// HTTPServer wraps http.Server with the canvas API's timeout profile and
// graceful shutdown. Write timeouts bound asset downloads served from the
// handle cache, so they come from config rather than a baked-in constant.
type HTTPServer struct {
	server *http.Server
}

func NewHTTPServer(cfg *Config, handler http.Handler) *HTTPServer {
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		MaxHeaderBytes:    maxHeaderBytes,
	}

	return &HTTPServer{server: srv}
}

// Start runs the HTTP server in the current goroutine.
func (s *HTTPServer) Start() error {
	if s.server == nil {
		return nil
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server. Callers drain in-flight
// generation pipelines separately, after this returns.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
