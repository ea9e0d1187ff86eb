// Package api is the HTTP adapter in front of the recommender service and
// the browse sections.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"opportunity-recommender/internal/common/config"
	"opportunity-recommender/internal/recommender"
)

// NewRouter wires the routes and the global middleware stack.
func NewRouter(h *Handler, cfg config.ServerConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(propagateRequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.Health)
	r.Get("/readyz", h.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if cfg.RateLimit.Requests > 0 {
			r.Use(httprate.LimitByIP(cfg.RateLimit.Requests, time.Duration(cfg.RateLimit.Window)*time.Millisecond))
		}
		r.Get("/recommend", h.Recommend)
		r.Get("/sections", h.Sections)
		r.Get("/browse/{section}", h.Browse)
	})

	return r
}

// propagateRequestID hands the id assigned by chi to the recommender so
// envelopes, logs and the X-Request-Id header agree.
func propagateRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chimiddleware.GetReqID(r.Context())
		w.Header().Set(chimiddleware.RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(recommender.WithRequestID(r.Context(), id)))
	})
}
