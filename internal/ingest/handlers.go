// UGC Pipeline - User-Generated Content ingestion and fan-out for Practix
// Copyright 2026 Practix Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/practix/ugc-pipeline

package ingest

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/practix/ugc-pipeline/internal/auth"
	"github.com/practix/ugc-pipeline/internal/events"
	"github.com/practix/ugc-pipeline/internal/logging"
	"github.com/practix/ugc-pipeline/internal/validation"
)

// Handler serves the write endpoints under /api/v1. Reads are served by the
// NoSQL ETL process, which owns the document store.
type Handler struct {
	dispatcher *Dispatcher
}

// NewHandler wires the handler.
func NewHandler(dispatcher *Dispatcher) *Handler {
	return &Handler{dispatcher: dispatcher}
}

// requestMeta is the optional client-supplied part of every write body.
// user_ts is informational; the authoritative timestamp is assigned here.
type requestMeta struct {
	SessionID string `json:"session_id"`
	UserTS    int64  `json:"user_ts"`
}

// decodeBody parses the JSON body into v. An empty body decodes as {} so
// endpoints with path-only payloads accept bare requests.
func decodeBody(r *http.Request, v any) error {
	data, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// ingest validates the payload, enriches the envelope and hands it to the
// bus. The response never waits for the broker.
func (h *Handler) ingest(w http.ResponseWriter, r *http.Request,
	typ events.Type, subtype events.Subtype, payload any, meta requestMeta,
) {
	if verr := validation.ValidateStruct(payload); verr != nil {
		respondValidation(w, verr)
		return
	}

	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing credentials")
		return
	}

	e := events.NewEnvelope(typ, subtype)
	e.RequestID = logging.RequestIDFromContext(r.Context())
	e.UserID = claims.Subject
	e.SessionID = meta.SessionID
	if e.SessionID == "" {
		e.SessionID = uuid.New().String()
	}
	e.UserTS = meta.UserTS
	e.URL = requestURL(r)
	if err := e.SetPayload(payload); err != nil {
		logging.Ctx(r.Context()).Err(err).Msg("payload encode failed")
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if err := h.dispatcher.Dispatch(r, e); err != nil {
		logging.Ctx(r.Context()).Err(err).Str("event_id", e.EventID).Msg("dispatch failed")
		respondError(w, http.StatusInternalServerError, "event not accepted")
		return
	}
	respondJSON(w, http.StatusOK, nil)
}

func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

// badBody maps malformed JSON onto the 422 contract.
func badBody(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"detail": "malformed JSON body",
	})
}

// Write endpoints.

func (h *Handler) postClick(w http.ResponseWriter, r *http.Request) {
	var body struct {
		events.ClickPayload
		requestMeta
	}
	if err := decodeBody(r, &body); err != nil {
		badBody(w, err)
		return
	}
	h.ingest(w, r, events.TypeClick, "", &body.ClickPayload, body.requestMeta)
}

func (h *Handler) postVisit(w http.ResponseWriter, r *http.Request) {
	var body struct {
		requestMeta
	}
	if err := decodeBody(r, &body); err != nil {
		badBody(w, err)
		return
	}
	h.ingest(w, r, events.TypeVisit, "", &events.VisitPayload{}, body.requestMeta)
}

func (h *Handler) postFullyWatched(w http.ResponseWriter, r *http.Request) {
	var body struct {
		requestMeta
	}
	if err := decodeBody(r, &body); err != nil {
		badBody(w, err)
		return
	}
	payload := &events.FilmIDPayload{FilmID: chi.URLParam(r, "film_id")}
	h.ingest(w, r, events.TypeCustom, events.SubtypeFullyWatched, payload, body.requestMeta)
}

func (h *Handler) postQualityChanged(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PreviousQuality string `json:"previous_quality"`
		NextQuality     string `json:"next_quality"`
		requestMeta
	}
	if err := decodeBody(r, &body); err != nil {
		badBody(w, err)
		return
	}
	payload := &events.QualityChangedPayload{
		FilmID:          chi.URLParam(r, "film_id"),
		PreviousQuality: body.PreviousQuality,
		NextQuality:     body.NextQuality,
	}
	h.ingest(w, r, events.TypeCustom, events.SubtypeQualityChanged, payload, body.requestMeta)
}

// filmRating handles POST and PATCH of a film rating; only the subtype
// differs.
func (h *Handler) filmRating(subtype events.Subtype) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Value *int `json:"value"`
			requestMeta
		}
		if err := decodeBody(r, &body); err != nil {
			badBody(w, err)
			return
		}
		payload := &events.FilmRatingPayload{
			FilmID: chi.URLParam(r, "film_id"),
			Value:  body.Value,
		}
		h.ingest(w, r, events.TypeCustom, subtype, payload, body.requestMeta)
	}
}

func (h *Handler) deleteFilmRating(w http.ResponseWriter, r *http.Request) {
	var body struct {
		requestMeta
	}
	if err := decodeBody(r, &body); err != nil {
		badBody(w, err)
		return
	}
	payload := &events.FilmIDPayload{FilmID: chi.URLParam(r, "film_id")}
	h.ingest(w, r, events.TypeCustom, events.SubtypeDeleteFilmRating, payload, body.requestMeta)
}

func (h *Handler) postFilmReview(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Value string `json:"value"`
		requestMeta
	}
	if err := decodeBody(r, &body); err != nil {
		badBody(w, err)
		return
	}
	payload := &events.FilmReviewPayload{
		FilmID: chi.URLParam(r, "film_id"),
		Value:  body.Value,
	}
	h.ingest(w, r, events.TypeCustom, events.SubtypeCreateFilmReview, payload, body.requestMeta)
}

func (h *Handler) patchFilmReview(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Value string `json:"value"`
		requestMeta
	}
	if err := decodeBody(r, &body); err != nil {
		badBody(w, err)
		return
	}
	payload := &events.ReviewUpdatePayload{
		ReviewID: chi.URLParam(r, "review_id"),
		Value:    body.Value,
	}
	h.ingest(w, r, events.TypeCustom, events.SubtypeUpdateFilmReview, payload, body.requestMeta)
}

func (h *Handler) deleteFilmReview(w http.ResponseWriter, r *http.Request) {
	var body struct {
		requestMeta
	}
	if err := decodeBody(r, &body); err != nil {
		badBody(w, err)
		return
	}
	payload := &events.ReviewIDPayload{ReviewID: chi.URLParam(r, "review_id")}
	h.ingest(w, r, events.TypeCustom, events.SubtypeDeleteFilmReview, payload, body.requestMeta)
}

// reviewRating handles POST and PATCH of a review rating.
func (h *Handler) reviewRating(subtype events.Subtype) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Value *int `json:"value"`
			requestMeta
		}
		if err := decodeBody(r, &body); err != nil {
			badBody(w, err)
			return
		}
		payload := &events.ReviewRatingPayload{
			ReviewID: chi.URLParam(r, "review_id"),
			Value:    body.Value,
		}
		h.ingest(w, r, events.TypeCustom, subtype, payload, body.requestMeta)
	}
}

func (h *Handler) deleteReviewRating(w http.ResponseWriter, r *http.Request) {
	var body struct {
		requestMeta
	}
	if err := decodeBody(r, &body); err != nil {
		badBody(w, err)
		return
	}
	payload := &events.ReviewIDPayload{ReviewID: chi.URLParam(r, "review_id")}
	h.ingest(w, r, events.TypeCustom, events.SubtypeDeleteFilmReviewRating, payload, body.requestMeta)
}

// bookmark handles POST and DELETE of a bookmark.
func (h *Handler) bookmark(subtype events.Subtype) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			requestMeta
		}
		if err := decodeBody(r, &body); err != nil {
			badBody(w, err)
			return
		}
		payload := &events.FilmIDPayload{FilmID: chi.URLParam(r, "film_id")}
		h.ingest(w, r, events.TypeCustom, subtype, payload, body.requestMeta)
	}
}
