// UGC Pipeline - User-Generated Content ingestion and fan-out for Practix
// Copyright 2026 Practix Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/practix/ugc-pipeline

package events

// Payload variants. Each write endpoint binds one variant; validator tags
// drive the 422 machine-readable error lists at ingest.

// ClickPayload describes a UI click.
type ClickPayload struct {
	ElementID      string `json:"element_id" validate:"required"`
	ElementPayload string `json:"element_payload,omitempty"`
}

// VisitPayload is intentionally empty; a visit is fully described by the
// envelope url.
type VisitPayload struct{}

// FilmIDPayload carries only the film reference. Used by fully_watched,
// create_film_rating deletes and bookmark operations.
type FilmIDPayload struct {
	FilmID string `json:"film_id" validate:"required,uuid4"`
}

// QualityChangedPayload records a player quality switch.
type QualityChangedPayload struct {
	FilmID          string `json:"film_id" validate:"required,uuid4"`
	PreviousQuality string `json:"previous_quality" validate:"required"`
	NextQuality     string `json:"next_quality" validate:"required"`
}

// FilmRatingPayload carries a 0..10 score for a film. Value is a pointer so
// a body that omits it fails required instead of decoding to a dislike.
type FilmRatingPayload struct {
	FilmID string `json:"film_id" validate:"required,uuid4"`
	Value  *int   `json:"value" validate:"required,min=0,max=10"`
}

// FilmReviewPayload carries the review text for a film.
type FilmReviewPayload struct {
	FilmID string `json:"film_id" validate:"required,uuid4"`
	Value  string `json:"value" validate:"required"`
}

// ReviewUpdatePayload replaces the text of an existing review.
type ReviewUpdatePayload struct {
	ReviewID string `json:"review_id" validate:"required,uuid4"`
	Value    string `json:"value" validate:"required"`
}

// ReviewIDPayload carries only the review reference (review delete, review
// rating delete).
type ReviewIDPayload struct {
	ReviewID string `json:"review_id" validate:"required,uuid4"`
}

// ReviewRatingPayload carries a 0..10 score for a review.
type ReviewRatingPayload struct {
	ReviewID string `json:"review_id" validate:"required,uuid4"`
	Value    *int   `json:"value" validate:"required,min=0,max=10"`
}
