// UGC Pipeline - User-Generated Content ingestion and fan-out for Practix
// Copyright 2026 Practix Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/practix/ugc-pipeline

package docstore

import "time"

// Primary documents. One document per (subject, object) pair; the NoSQL ETL
// keeps the derived aggregates in sync with them.

// FilmUserRating is one user's 0..10 score for one film.
type FilmUserRating struct {
	FilmID    string    `json:"film_id"`
	UserID    string    `json:"user_id"`
	Value     int       `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FilmReview is one user's text review of one film. ReviewID is generated
// by the ETL when the create event is applied.
type FilmReview struct {
	ReviewID  string    `json:"review_id"`
	FilmID    string    `json:"film_id"`
	UserID    string    `json:"user_id"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FilmReviewUserRating is one user's 0..10 score for one review.
type FilmReviewUserRating struct {
	ReviewID  string    `json:"review_id"`
	UserID    string    `json:"user_id"`
	Value     int       `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserBookmark marks a film saved by a user.
type UserBookmark struct {
	UserID    string    `json:"user_id"`
	FilmID    string    `json:"film_id"`
	CreatedAt time.Time `json:"created_at"`
}

// RatingAggregate is the arithmetic summary shared by FilmRating and
// FilmReviewRating. Sum is kept as an integer; the average is derived on
// read, so repeated deltas never accumulate float error.
type RatingAggregate struct {
	LikeCount    int `json:"like_count"`
	DislikeCount int `json:"dislike_count"`
	Sum          int `json:"sum"`
	ValueCount   int `json:"value_count"`
}

// likeValue and dislikeValue are the boundary scores counted separately.
const (
	likeValue    = 10
	dislikeValue = 0
)

// ApplyCreate folds a newly created rating into the aggregate.
func (a *RatingAggregate) ApplyCreate(value int) {
	a.ValueCount++
	a.Sum += value
	if value == likeValue {
		a.LikeCount++
	}
	if value == dislikeValue {
		a.DislikeCount++
	}
}

// ApplyUpdate folds a rating change into the aggregate. ValueCount is
// unchanged; only the sum and the boundary counters move.
func (a *RatingAggregate) ApplyUpdate(oldValue, newValue int) {
	a.Sum += newValue - oldValue
	if oldValue == likeValue {
		a.LikeCount--
	}
	if oldValue == dislikeValue {
		a.DislikeCount--
	}
	if newValue == likeValue {
		a.LikeCount++
	}
	if newValue == dislikeValue {
		a.DislikeCount++
	}
}

// ApplyDelete removes a rating from the aggregate.
func (a *RatingAggregate) ApplyDelete(value int) {
	a.ValueCount--
	a.Sum -= value
	if value == likeValue {
		a.LikeCount--
	}
	if value == dislikeValue {
		a.DislikeCount--
	}
}

// Avg returns the derived average. An empty aggregate averages to zero.
func (a *RatingAggregate) Avg() float64 {
	if a.ValueCount == 0 {
		return 0
	}
	return float64(a.Sum) / float64(a.ValueCount)
}

// IsZero reports whether the aggregate carries no ratings at all.
func (a *RatingAggregate) IsZero() bool {
	return a.ValueCount == 0 && a.LikeCount == 0 && a.DislikeCount == 0 && a.Sum == 0
}

// Equal compares two aggregates field by field. Used by the reconciler.
func (a *RatingAggregate) Equal(b *RatingAggregate) bool {
	return a.LikeCount == b.LikeCount &&
		a.DislikeCount == b.DislikeCount &&
		a.Sum == b.Sum &&
		a.ValueCount == b.ValueCount
}

// FilmRating is the derived per-film aggregate.
type FilmRating struct {
	FilmID string `json:"film_id"`
	RatingAggregate
}

// FilmReviewRating is the derived per-review aggregate.
type FilmReviewRating struct {
	ReviewID string `json:"review_id"`
	RatingAggregate
}
