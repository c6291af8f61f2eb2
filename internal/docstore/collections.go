// UGC Pipeline - User-Generated Content ingestion and fan-out for Practix
// Copyright 2026 Practix Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/practix/ugc-pipeline

package docstore

import (
	"errors"
	"time"
)

// FilmUserRating, keyed (film_id, user_id).

func filmUserRatingKey(filmID, userID string) string {
	return prefixFilmUserRating + filmID + sep + userID
}

// GetFilmUserRating fetches one user's rating of one film.
func (tx *Tx) GetFilmUserRating(filmID, userID string) (*FilmUserRating, error) {
	start := time.Now()
	var doc FilmUserRating
	err := tx.get(filmUserRatingKey(filmID, userID), &doc)
	instrument("get", ColFilmUserRating, start, ignoreNotFound(err))
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// PutFilmUserRating writes the rating document.
func (tx *Tx) PutFilmUserRating(doc *FilmUserRating) error {
	start := time.Now()
	err := tx.set(filmUserRatingKey(doc.FilmID, doc.UserID), doc)
	instrument("put", ColFilmUserRating, start, err)
	return err
}

// DeleteFilmUserRating removes the rating document.
func (tx *Tx) DeleteFilmUserRating(filmID, userID string) error {
	start := time.Now()
	err := tx.del(filmUserRatingKey(filmID, userID))
	instrument("delete", ColFilmUserRating, start, err)
	return err
}

// FilmUserRatingsByFilm lists every surviving rating of one film.
// The reconciler folds these back into the aggregate.
func (tx *Tx) FilmUserRatingsByFilm(filmID string) ([]FilmUserRating, error) {
	var out []FilmUserRating
	err := scan(tx, prefixFilmUserRating+filmID+sep, func(doc *FilmUserRating) bool {
		out = append(out, *doc)
		return true
	})
	return out, err
}

// AllFilmUserRatings streams every rating document in the store.
func (tx *Tx) AllFilmUserRatings(fn func(doc *FilmUserRating) bool) error {
	return scan(tx, prefixFilmUserRating, fn)
}

// FilmReview, keyed review_id, with two index keys: by film (listing) and
// by (film, user) (create idempotence: one review per user per film).

func filmReviewKey(reviewID string) string {
	return prefixFilmReview + reviewID
}

func reviewByFilmKey(filmID, reviewID string) string {
	return prefixReviewByFilm + filmID + sep + reviewID
}

func reviewByFilmUserKey(filmID, userID string) string {
	return prefixReviewByFilmUser + filmID + sep + userID
}

// reviewRef is the value stored under index keys.
type reviewRef struct {
	ReviewID string `json:"review_id"`
}

// GetFilmReview fetches a review by id.
func (tx *Tx) GetFilmReview(reviewID string) (*FilmReview, error) {
	start := time.Now()
	var doc FilmReview
	err := tx.get(filmReviewKey(reviewID), &doc)
	instrument("get", ColFilmReview, start, ignoreNotFound(err))
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetFilmReviewByFilmUser resolves the review a user wrote for a film,
// via the (film, user) index.
func (tx *Tx) GetFilmReviewByFilmUser(filmID, userID string) (*FilmReview, error) {
	var ref reviewRef
	if err := tx.get(reviewByFilmUserKey(filmID, userID), &ref); err != nil {
		return nil, err
	}
	return tx.GetFilmReview(ref.ReviewID)
}

// PutFilmReview writes the review and both index keys.
func (tx *Tx) PutFilmReview(doc *FilmReview) error {
	start := time.Now()
	err := tx.set(filmReviewKey(doc.ReviewID), doc)
	if err == nil {
		err = tx.set(reviewByFilmKey(doc.FilmID, doc.ReviewID), &reviewRef{ReviewID: doc.ReviewID})
	}
	if err == nil {
		err = tx.set(reviewByFilmUserKey(doc.FilmID, doc.UserID), &reviewRef{ReviewID: doc.ReviewID})
	}
	instrument("put", ColFilmReview, start, err)
	return err
}

// DeleteFilmReview removes the review document and its index keys.
func (tx *Tx) DeleteFilmReview(doc *FilmReview) error {
	start := time.Now()
	err := tx.del(filmReviewKey(doc.ReviewID))
	if err == nil {
		err = tx.del(reviewByFilmKey(doc.FilmID, doc.ReviewID))
	}
	if err == nil {
		err = tx.del(reviewByFilmUserKey(doc.FilmID, doc.UserID))
	}
	instrument("delete", ColFilmReview, start, err)
	return err
}

// FilmReviewsByFilm pages through the reviews of one film in review-id
// order. skip/limit follow the read API contract.
func (tx *Tx) FilmReviewsByFilm(filmID string, skip, limit int) ([]FilmReview, error) {
	var out []FilmReview
	n := 0
	err := scan(tx, prefixReviewByFilm+filmID+sep, func(ref *reviewRef) bool {
		if n < skip {
			n++
			return true
		}
		if limit > 0 && len(out) >= limit {
			return false
		}
		n++
		doc, err := tx.GetFilmReview(ref.ReviewID)
		if err != nil {
			// Index without a document; the reconciler will clean it up.
			return true
		}
		out = append(out, *doc)
		return true
	})
	return out, err
}

// FilmReviewUserRating, keyed (review_id, user_id).

func reviewUserRatingKey(reviewID, userID string) string {
	return prefixReviewUserRating + reviewID + sep + userID
}

// GetFilmReviewUserRating fetches one user's rating of one review.
func (tx *Tx) GetFilmReviewUserRating(reviewID, userID string) (*FilmReviewUserRating, error) {
	start := time.Now()
	var doc FilmReviewUserRating
	err := tx.get(reviewUserRatingKey(reviewID, userID), &doc)
	instrument("get", ColFilmReviewUserRating, start, ignoreNotFound(err))
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// PutFilmReviewUserRating writes the review-rating document.
func (tx *Tx) PutFilmReviewUserRating(doc *FilmReviewUserRating) error {
	start := time.Now()
	err := tx.set(reviewUserRatingKey(doc.ReviewID, doc.UserID), doc)
	instrument("put", ColFilmReviewUserRating, start, err)
	return err
}

// DeleteFilmReviewUserRating removes the review-rating document.
func (tx *Tx) DeleteFilmReviewUserRating(reviewID, userID string) error {
	start := time.Now()
	err := tx.del(reviewUserRatingKey(reviewID, userID))
	instrument("delete", ColFilmReviewUserRating, start, err)
	return err
}

// FilmReviewUserRatingsByReview lists every rating of one review. The
// cascade on review delete and the reconciler both use it.
func (tx *Tx) FilmReviewUserRatingsByReview(reviewID string) ([]FilmReviewUserRating, error) {
	var out []FilmReviewUserRating
	err := scan(tx, prefixReviewUserRating+reviewID+sep, func(doc *FilmReviewUserRating) bool {
		out = append(out, *doc)
		return true
	})
	return out, err
}

// AllFilmReviewUserRatings streams every review-rating document.
func (tx *Tx) AllFilmReviewUserRatings(fn func(doc *FilmReviewUserRating) bool) error {
	return scan(tx, prefixReviewUserRating, fn)
}

// UserBookmark, keyed (user_id, film_id).

func userBookmarkKey(userID, filmID string) string {
	return prefixUserBookmark + userID + sep + filmID
}

// GetUserBookmark fetches one bookmark.
func (tx *Tx) GetUserBookmark(userID, filmID string) (*UserBookmark, error) {
	start := time.Now()
	var doc UserBookmark
	err := tx.get(userBookmarkKey(userID, filmID), &doc)
	instrument("get", ColUserBookmark, start, ignoreNotFound(err))
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// PutUserBookmark writes the bookmark.
func (tx *Tx) PutUserBookmark(doc *UserBookmark) error {
	start := time.Now()
	err := tx.set(userBookmarkKey(doc.UserID, doc.FilmID), doc)
	instrument("put", ColUserBookmark, start, err)
	return err
}

// DeleteUserBookmark removes the bookmark.
func (tx *Tx) DeleteUserBookmark(userID, filmID string) error {
	start := time.Now()
	err := tx.del(userBookmarkKey(userID, filmID))
	instrument("delete", ColUserBookmark, start, err)
	return err
}

// UserBookmarks pages through a user's bookmarks.
func (tx *Tx) UserBookmarks(userID string, skip, limit int) ([]UserBookmark, error) {
	var out []UserBookmark
	n := 0
	err := scan(tx, prefixUserBookmark+userID+sep, func(doc *UserBookmark) bool {
		if n < skip {
			n++
			return true
		}
		if limit > 0 && len(out) >= limit {
			return false
		}
		n++
		out = append(out, *doc)
		return true
	})
	return out, err
}

// Aggregates. Zero-valued aggregates stay stored after deletions so reads
// return explicit zeros; only the review cascade removes one outright.

func filmRatingKey(filmID string) string {
	return prefixFilmRating + filmID
}

func reviewRatingAggKey(reviewID string) string {
	return prefixReviewRating + reviewID
}

// GetFilmRating fetches the per-film aggregate.
func (tx *Tx) GetFilmRating(filmID string) (*FilmRating, error) {
	start := time.Now()
	var doc FilmRating
	err := tx.get(filmRatingKey(filmID), &doc)
	instrument("get", ColFilmRating, start, ignoreNotFound(err))
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// PutFilmRating writes the per-film aggregate.
func (tx *Tx) PutFilmRating(doc *FilmRating) error {
	start := time.Now()
	err := tx.set(filmRatingKey(doc.FilmID), doc)
	instrument("put", ColFilmRating, start, err)
	return err
}

// GetFilmReviewRating fetches the per-review aggregate.
func (tx *Tx) GetFilmReviewRating(reviewID string) (*FilmReviewRating, error) {
	start := time.Now()
	var doc FilmReviewRating
	err := tx.get(reviewRatingAggKey(reviewID), &doc)
	instrument("get", ColFilmReviewRating, start, ignoreNotFound(err))
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// PutFilmReviewRating writes the per-review aggregate.
func (tx *Tx) PutFilmReviewRating(doc *FilmReviewRating) error {
	start := time.Now()
	err := tx.set(reviewRatingAggKey(doc.ReviewID), doc)
	instrument("put", ColFilmReviewRating, start, err)
	return err
}

// DeleteFilmReviewRating removes the per-review aggregate. Only the review
// delete cascade calls this; afterwards reads report the rating as absent.
func (tx *Tx) DeleteFilmReviewRating(reviewID string) error {
	start := time.Now()
	err := tx.del(reviewRatingAggKey(reviewID))
	instrument("delete", ColFilmReviewRating, start, err)
	return err
}

// AllFilmRatings streams every stored per-film aggregate.
func (tx *Tx) AllFilmRatings(fn func(doc *FilmRating) bool) error {
	return scan(tx, prefixFilmRating, fn)
}

// AllFilmReviewRatings streams every stored per-review aggregate.
func (tx *Tx) AllFilmReviewRatings(fn func(doc *FilmReviewRating) bool) error {
	return scan(tx, prefixReviewRating, fn)
}

// ignoreNotFound keeps expected misses out of the error metrics.
func ignoreNotFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
