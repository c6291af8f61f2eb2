// UGC Pipeline - User-Generated Content ingestion and fan-out for Practix
// Copyright 2026 Practix Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/practix/ugc-pipeline

// Package ugc is the read side over the document store: film rating
// summaries, reviews joined with their rating aggregates, and bookmarks.
package ugc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/practix/ugc-pipeline/internal/docstore"
)

// FilmRatingView is the public shape of a film's rating summary.
type FilmRatingView struct {
	FilmID       string  `json:"film_id"`
	LikeCount    int     `json:"like_count"`
	DislikeCount int     `json:"dislike_count"`
	AvgRating    float64 `json:"avg_rating"`
}

// ReviewRatingView is the rating summary attached to one review.
type ReviewRatingView struct {
	LikeCount    int     `json:"like_count"`
	DislikeCount int     `json:"dislike_count"`
	AvgRating    float64 `json:"avg_rating"`
}

// ReviewView is one review joined with its rating summary.
type ReviewView struct {
	ReviewID  string           `json:"review_id"`
	UserID    string           `json:"user_id"`
	Value     string           `json:"value"`
	CreatedAt time.Time        `json:"created_at"`
	Rating    ReviewRatingView `json:"rating"`
}

// FilmReviewsView is the reviews listing for one film.
type FilmReviewsView struct {
	FilmID  string       `json:"film_id"`
	Reviews []ReviewView `json:"reviews"`
}

// BookmarkView is one saved film.
type BookmarkView struct {
	FilmID    string    `json:"film_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Service answers read queries. It only ever reads; the NoSQL ETL is the
// sole writer of the underlying documents.
type Service struct {
	store *docstore.Store
}

// NewService wraps the store.
func NewService(store *docstore.Store) *Service {
	return &Service{store: store}
}

// GetFilmRating returns the film's rating summary. A film nobody rated yet
// reads as explicit zeros, not as an error.
func (s *Service) GetFilmRating(_ context.Context, filmID string) (*FilmRatingView, error) {
	view := &FilmRatingView{FilmID: filmID}
	err := s.store.View(func(tx *docstore.Tx) error {
		agg, err := tx.GetFilmRating(filmID)
		if errors.Is(err, docstore.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		view.LikeCount = agg.LikeCount
		view.DislikeCount = agg.DislikeCount
		view.AvgRating = agg.Avg()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get film rating: %w", err)
	}
	return view, nil
}

// GetFilmReviews pages through the film's reviews, each joined with its
// rating aggregate. Reviews nobody rated yet carry a zero rating rather
// than being dropped from the listing.
func (s *Service) GetFilmReviews(_ context.Context, filmID string, skip, limit int) (*FilmReviewsView, error) {
	view := &FilmReviewsView{FilmID: filmID, Reviews: []ReviewView{}}
	err := s.store.View(func(tx *docstore.Tx) error {
		reviews, err := tx.FilmReviewsByFilm(filmID, skip, limit)
		if err != nil {
			return err
		}
		for i := range reviews {
			r := &reviews[i]
			rv := ReviewView{
				ReviewID:  r.ReviewID,
				UserID:    r.UserID,
				Value:     r.Value,
				CreatedAt: r.CreatedAt,
			}
			agg, err := tx.GetFilmReviewRating(r.ReviewID)
			if err == nil {
				rv.Rating = ReviewRatingView{
					LikeCount:    agg.LikeCount,
					DislikeCount: agg.DislikeCount,
					AvgRating:    agg.Avg(),
				}
			} else if !errors.Is(err, docstore.ErrNotFound) {
				return err
			}
			view.Reviews = append(view.Reviews, rv)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get film reviews: %w", err)
	}
	return view, nil
}

// GetUserBookmarks pages through the caller's bookmarks.
func (s *Service) GetUserBookmarks(_ context.Context, userID string, skip, limit int) ([]BookmarkView, error) {
	out := []BookmarkView{}
	err := s.store.View(func(tx *docstore.Tx) error {
		bookmarks, err := tx.UserBookmarks(userID, skip, limit)
		if err != nil {
			return err
		}
		for i := range bookmarks {
			out = append(out, BookmarkView{
				FilmID:    bookmarks[i].FilmID,
				CreatedAt: bookmarks[i].CreatedAt,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get bookmarks: %w", err)
	}
	return out, nil
}
