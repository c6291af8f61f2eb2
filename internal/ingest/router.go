// UGC Pipeline - User-Generated Content ingestion and fan-out for Practix
// Copyright 2026 Practix Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/practix/ugc-pipeline

package ingest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/practix/ugc-pipeline/internal/auth"
	"github.com/practix/ugc-pipeline/internal/config"
	"github.com/practix/ugc-pipeline/internal/events"
	"github.com/practix/ugc-pipeline/internal/middleware"
)

// NewRouter assembles the ingest HTTP surface: health and metrics unguarded,
// every write endpoint under /api/v1 behind request-id and JWT auth.
func NewRouter(cfg *config.Config, verifier *auth.Verifier, h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-Id", busHeader},
		MaxAge:         300,
	}))
	if cfg.Server.RateLimitReqs > 0 {
		r.Use(httprate.LimitByIP(cfg.Server.RateLimitReqs, cfg.Server.RateLimitWin))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(chimw.Timeout(cfg.Server.HandlerTimeout))
		api.Use(middleware.RequireRequestID)
		api.Use(auth.Middleware(verifier))
		api.Use(middleware.Metrics)

		api.Post("/events/click", h.postClick)
		api.Post("/events/visit", h.postVisit)

		api.Route("/films", func(films chi.Router) {
			films.Route("/reviews/{review_id}", func(review chi.Router) {
				review.Patch("/", h.patchFilmReview)
				review.Delete("/", h.deleteFilmReview)
				review.Post("/rating", h.reviewRating(events.SubtypeCreateFilmReviewRating))
				review.Patch("/rating", h.reviewRating(events.SubtypeUpdateFilmReviewRating))
				review.Delete("/rating", h.deleteReviewRating)
			})

			films.Route("/{film_id}", func(film chi.Router) {
				film.Post("/fully_watched", h.postFullyWatched)
				film.Post("/quality_changed", h.postQualityChanged)

				film.Post("/rating", h.filmRating(events.SubtypeCreateFilmRating))
				film.Patch("/rating", h.filmRating(events.SubtypeUpdateFilmRating))
				film.Delete("/rating", h.deleteFilmRating)

				film.Post("/reviews", h.postFilmReview)

				film.Post("/bookmarks", h.bookmark(events.SubtypeCreateBookmark))
				film.Delete("/bookmarks", h.bookmark(events.SubtypeDeleteBookmark))
			})
		})
	})

	return r
}
