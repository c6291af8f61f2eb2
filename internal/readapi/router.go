// UGC Pipeline - User-Generated Content ingestion and fan-out for Practix
// Copyright 2026 Practix Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/practix/ugc-pipeline

package readapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/practix/ugc-pipeline/internal/auth"
	"github.com/practix/ugc-pipeline/internal/config"
	"github.com/practix/ugc-pipeline/internal/middleware"
)

// NewRouter assembles the read surface the NoSQL ETL serves beside its
// consume loop: health and metrics unguarded, the read endpoints behind
// request-id and JWT auth.
func NewRouter(cfg *config.Config, verifier *auth.Verifier, h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.CORSOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "X-Request-Id"},
		MaxAge:         300,
	}))
	if cfg.Server.RateLimitReqs > 0 {
		r.Use(httprate.LimitByIP(cfg.Server.RateLimitReqs, cfg.Server.RateLimitWin))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/films", func(films chi.Router) {
		films.Use(chimw.Timeout(cfg.Server.HandlerTimeout))
		films.Use(middleware.RequireRequestID)
		films.Use(auth.Middleware(verifier))
		films.Use(middleware.Metrics)

		films.Get("/bookmarks", h.getBookmarks)
		films.Get("/{film_id}/rating", h.getFilmRating)
		films.Get("/{film_id}/reviews", h.getFilmReviews)
	})

	return r
}
