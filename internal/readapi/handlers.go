// UGC Pipeline - User-Generated Content ingestion and fan-out for Practix
// Copyright 2026 Practix Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/practix/ugc-pipeline

// Package readapi serves the read endpoints over the document store. It runs
// inside the NoSQL ETL process because Badger admits a single writer and
// reads must see its live state; a second process opening the same directory
// would either fail on the writer's lock or serve a stale snapshot.
package readapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/practix/ugc-pipeline/internal/auth"
	"github.com/practix/ugc-pipeline/internal/logging"
	"github.com/practix/ugc-pipeline/internal/ugc"
	"github.com/practix/ugc-pipeline/internal/validation"
)

// Handler serves the read endpoints under /api/v1.
type Handler struct {
	reads *ugc.Service
}

// NewHandler wires the handler.
func NewHandler(reads *ugc.Service) *Handler {
	return &Handler{reads: reads}
}

// pageParams is the validated skip/limit pair of the listing endpoints.
type pageParams struct {
	Skip  int `json:"skip" validate:"min=0"`
	Limit int `json:"limit" validate:"min=1,max=100"`
}

func parsePage(r *http.Request) (pageParams, *validation.RequestValidationError) {
	p := pageParams{Skip: 0, Limit: 20}
	q := r.URL.Query()
	if v := q.Get("skip"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			p.Skip = n
		} else {
			p.Skip = -1 // force a validation failure
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			p.Limit = n
		} else {
			p.Limit = -1
		}
	}
	return p, validation.ValidateStruct(&p)
}

func (h *Handler) getFilmRating(w http.ResponseWriter, r *http.Request) {
	view, err := h.reads.GetFilmRating(r.Context(), chi.URLParam(r, "film_id"))
	if err != nil {
		logging.Ctx(r.Context()).Err(err).Msg("film rating read failed")
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (h *Handler) getFilmReviews(w http.ResponseWriter, r *http.Request) {
	page, verr := parsePage(r)
	if verr != nil {
		respondValidation(w, verr)
		return
	}
	view, err := h.reads.GetFilmReviews(r.Context(), chi.URLParam(r, "film_id"), page.Skip, page.Limit)
	if err != nil {
		logging.Ctx(r.Context()).Err(err).Msg("film reviews read failed")
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (h *Handler) getBookmarks(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing credentials")
		return
	}
	page, verr := parsePage(r)
	if verr != nil {
		respondValidation(w, verr)
		return
	}
	views, err := h.reads.GetUserBookmarks(r.Context(), claims.Subject, page.Skip, page.Limit)
	if err != nil {
		logging.Ctx(r.Context()).Err(err).Msg("bookmarks read failed")
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	respondJSON(w, http.StatusOK, views)
}
