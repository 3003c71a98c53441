// Package httptransport assembles the HTTP surface. Handlers live with their
// domains and register themselves; this package only mounts them and adds the
// unauthenticated health and metrics endpoints.
package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registrar is a domain handler that mounts its routes on the router.
type Registrar interface {
	Register(r chi.Router)
}

// NewRouter mounts every domain handler plus health and metrics.
func NewRouter(handlers ...Registrar) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	for _, h := range handlers {
		h.Register(r)
	}
	return r
}
