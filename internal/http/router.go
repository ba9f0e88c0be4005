package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter monta la API sobre chi.
func NewRouter(h *Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(WithRequestID)
	r.Use(WithLogging)

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/records", func(r chi.Router) {
			r.Post("/", h.CreateRecord)
			r.Get("/", h.ListRecords)
			r.Get("/count", h.CountRecords)
			r.Get("/{id}", h.GetRecord)
		})

		r.Get("/chain/verify", h.VerifyChain)

		r.Route("/partition", func(r chi.Router) {
			r.Get("/status", h.PartitionStatus)
			r.Post("/mark", h.MarkPartitioned)
			r.Post("/heal", h.MarkHealed)
		})

		r.Route("/conflicts", func(r chi.Router) {
			r.Get("/", h.ListConflicts)
			r.Post("/{id}/resolve", h.ResolveConflict)
		})
	})

	return r
}
