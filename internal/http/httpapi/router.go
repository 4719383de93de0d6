package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"canvasd/internal/handles"
	"canvasd/internal/http/handlers"
	"canvasd/internal/infra"
	"canvasd/internal/middleware"
)

type Options struct {
	RateLimitPerMin int
	AllowedOrigins  []string
}

func NewRouter(app *handlers.App, registry *handles.Registry, logger infra.Logger, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(logger),
	)
	if len(opts.AllowedOrigins) > 0 {
		r.Use(middleware.CORS(opts.AllowedOrigins))
	}

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/generations", func(r chi.Router) {
		if opts.RateLimitPerMin > 0 {
			r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
		}
		r.Post("/", app.GenerationsCreate)
		r.Get("/{layer_id}", app.GenerationStatus)
		r.Post("/{layer_id}/cancel", app.GenerationCancel)
	})

	r.Route("/v1/assets", func(r chi.Router) {
		r.Post("/", app.AssetUpload)
		r.Post("/preload", app.AssetsPreload)
		r.Post("/delete", app.AssetsBulkDelete)
		r.Post("/clear", app.AssetsClear)
		r.Get("/{id}", app.AssetRedirect)
		r.Get("/{id}/handle", app.AssetHandle)
		r.Get("/{id}/bytes", app.AssetBytes)
		r.Delete("/{id}", app.AssetDelete)
	})

	r.Route("/v1/canvas", func(r chi.Router) {
		r.Get("/", app.CanvasSnapshot)
		r.Delete("/layers/{id}", app.LayerDelete)
	})

	// Handles are content URLs minted by the asset store; the registry owns
	// their lifecycle and 404s after revocation.
	r.Get("/handles/{token}", registry.ServeHTTP)

	return r
}
