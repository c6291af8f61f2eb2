// UGC Pipeline - User-Generated Content ingestion and fan-out for Practix
// Copyright 2026 Practix Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/practix/ugc-pipeline

package nosqletl

import (
	"errors"
	"fmt"

	"github.com/practix/ugc-pipeline/internal/docstore"
	"github.com/practix/ugc-pipeline/internal/logging"
	"github.com/practix/ugc-pipeline/internal/metrics"
)

// Reconcile recomputes every aggregate from the surviving primary documents
// and corrects stored aggregates that drifted. Drift should not happen when
// every event goes through the transactional handlers; the reconciler is
// the safety net for torn state from older data or operator surgery.
func Reconcile(store *docstore.Store) error {
	if err := reconcileFilmRatings(store); err != nil {
		return fmt.Errorf("reconcile film ratings: %w", err)
	}
	if err := reconcileReviewRatings(store); err != nil {
		return fmt.Errorf("reconcile review ratings: %w", err)
	}
	return nil
}

func reconcileFilmRatings(store *docstore.Store) error {
	// Fold the primaries, then sweep the stored aggregates in one
	// read-write transaction so a correction cannot race itself.
	return store.Update(func(tx *docstore.Tx) error {
		want := map[string]*docstore.RatingAggregate{}
		err := tx.AllFilmUserRatings(func(doc *docstore.FilmUserRating) bool {
			agg, ok := want[doc.FilmID]
			if !ok {
				agg = &docstore.RatingAggregate{}
				want[doc.FilmID] = agg
			}
			agg.ApplyCreate(doc.Value)
			return true
		})
		if err != nil {
			return err
		}

		// Correct or zero stored aggregates.
		var stored []docstore.FilmRating
		if err := tx.AllFilmRatings(func(doc *docstore.FilmRating) bool {
			stored = append(stored, *doc)
			return true
		}); err != nil {
			return err
		}
		for i := range stored {
			doc := &stored[i]
			expect, ok := want[doc.FilmID]
			if !ok {
				expect = &docstore.RatingAggregate{}
			}
			delete(want, doc.FilmID)
			if doc.RatingAggregate.Equal(expect) {
				continue
			}
			logDrift("film_rating", doc.FilmID, &doc.RatingAggregate, expect)
			doc.RatingAggregate = *expect
			if err := tx.PutFilmRating(doc); err != nil {
				return err
			}
			metrics.ReconcilerCorrections.WithLabelValues("film_rating").Inc()
		}

		// Aggregates missing entirely despite surviving primaries.
		for filmID, expect := range want {
			if expect.IsZero() {
				continue
			}
			logDrift("film_rating", filmID, &docstore.RatingAggregate{}, expect)
			if err := tx.PutFilmRating(&docstore.FilmRating{
				FilmID:          filmID,
				RatingAggregate: *expect,
			}); err != nil {
				return err
			}
			metrics.ReconcilerCorrections.WithLabelValues("film_rating").Inc()
		}
		return nil
	})
}

func reconcileReviewRatings(store *docstore.Store) error {
	return store.Update(func(tx *docstore.Tx) error {
		want := map[string]*docstore.RatingAggregate{}
		err := tx.AllFilmReviewUserRatings(func(doc *docstore.FilmReviewUserRating) bool {
			agg, ok := want[doc.ReviewID]
			if !ok {
				agg = &docstore.RatingAggregate{}
				want[doc.ReviewID] = agg
			}
			agg.ApplyCreate(doc.Value)
			return true
		})
		if err != nil {
			return err
		}

		var stored []docstore.FilmReviewRating
		if err := tx.AllFilmReviewRatings(func(doc *docstore.FilmReviewRating) bool {
			stored = append(stored, *doc)
			return true
		}); err != nil {
			return err
		}
		for i := range stored {
			doc := &stored[i]

			// An aggregate whose review is gone is cascade debris, and
			// so are the user ratings that fed it.
			if _, err := tx.GetFilmReview(doc.ReviewID); errors.Is(err, docstore.ErrNotFound) {
				if err := tx.DeleteFilmReviewRating(doc.ReviewID); err != nil {
					return err
				}
				ratings, err := tx.FilmReviewUserRatingsByReview(doc.ReviewID)
				if err != nil {
					return err
				}
				for i := range ratings {
					if err := tx.DeleteFilmReviewUserRating(ratings[i].ReviewID, ratings[i].UserID); err != nil {
						return err
					}
				}
				logging.Warn().
					Str("review_id", doc.ReviewID).
					Int("ratings", len(ratings)).
					Msg("orphan review state removed")
				delete(want, doc.ReviewID)
				metrics.ReconcilerCorrections.WithLabelValues("review_rating").Inc()
				continue
			} else if err != nil {
				return err
			}

			expect, ok := want[doc.ReviewID]
			if !ok {
				expect = &docstore.RatingAggregate{}
			}
			delete(want, doc.ReviewID)
			if doc.RatingAggregate.Equal(expect) {
				continue
			}
			logDrift("review_rating", doc.ReviewID, &doc.RatingAggregate, expect)
			doc.RatingAggregate = *expect
			if err := tx.PutFilmReviewRating(doc); err != nil {
				return err
			}
			metrics.ReconcilerCorrections.WithLabelValues("review_rating").Inc()
		}

		for reviewID, expect := range want {
			if expect.IsZero() {
				continue
			}
			// Ratings surviving a review delete are debris too.
			if _, err := tx.GetFilmReview(reviewID); errors.Is(err, docstore.ErrNotFound) {
				ratings, err := tx.FilmReviewUserRatingsByReview(reviewID)
				if err != nil {
					return err
				}
				logging.Warn().
					Str("review_id", reviewID).
					Int("ratings", len(ratings)).
					Msg("orphan review ratings removed")
				for i := range ratings {
					if err := tx.DeleteFilmReviewUserRating(ratings[i].ReviewID, ratings[i].UserID); err != nil {
						return err
					}
				}
				metrics.ReconcilerCorrections.WithLabelValues("review_rating").Inc()
				continue
			} else if err != nil {
				return err
			}

			logDrift("review_rating", reviewID, &docstore.RatingAggregate{}, expect)
			if err := tx.PutFilmReviewRating(&docstore.FilmReviewRating{
				ReviewID:        reviewID,
				RatingAggregate: *expect,
			}); err != nil {
				return err
			}
			metrics.ReconcilerCorrections.WithLabelValues("review_rating").Inc()
		}
		return nil
	})
}

func logDrift(aggregate, id string, got, want *docstore.RatingAggregate) {
	logging.Warn().
		Str("aggregate", aggregate).
		Str("id", id).
		Int("got_count", got.ValueCount).
		Int("want_count", want.ValueCount).
		Int("got_sum", got.Sum).
		Int("want_sum", want.Sum).
		Msg("aggregate drift corrected")
}
