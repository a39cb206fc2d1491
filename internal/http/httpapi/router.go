package httpapi

import (
	stdhttp "net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"parallax/internal/http/handlers"
)

// NewRouter wires the service routes. metricsHandler serves the prometheus
// registry; pass nil to omit the endpoint.
func NewRouter(app *handlers.App, metricsHandler stdhttp.Handler) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, middleware.Logger)

	r.Get("/healthz", app.Health)
	if metricsHandler != nil {
		r.Method(stdhttp.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", app.CreateJob)
		r.Get("/{id}", app.GetJob)
		r.Delete("/{id}", app.DeleteJob)
	})

	r.Route("/assets", func(r chi.Router) {
		r.Get("/{id}", app.GetAsset)
		r.Get("/{id}/download", app.DownloadAsset)
		r.Get("/job/{jobID}", app.ListJobAssets)
	})

	return r
}
