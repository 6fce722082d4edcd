package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(90 * time.Second))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/api/health", s.handleHealthCheck)

	r.Route("/api/listings", func(r chi.Router) {
		r.Post("/", s.handleRegisterListing)
		r.Get("/", s.handleListListings)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetListing)
			r.Delete("/", s.handleDeleteListing)
			r.Post("/rescrape", s.handleRescrape)
			r.Get("/prices", s.handleGetPrices)
			r.Post("/history", s.handleImportHistory)
		})
	})

	return r
}
