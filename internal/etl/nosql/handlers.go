// UGC Pipeline - User-Generated Content ingestion and fan-out for Practix
// Copyright 2026 Practix Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/practix/ugc-pipeline

// Package nosqletl applies custom events to the document store: primary
// documents plus the arithmetic deltas on the derived aggregates, one
// transaction per event. Handlers are idempotent, so at-least-once delivery
// from the bus leaves the aggregates correct.
package nosqletl

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/practix/ugc-pipeline/internal/docstore"
	"github.com/practix/ugc-pipeline/internal/events"
	"github.com/practix/ugc-pipeline/internal/logging"
	"github.com/practix/ugc-pipeline/internal/metrics"
)

// ErrBadEvent marks a payload that can never be applied. The pipeline drops
// such events instead of retrying them.
var ErrBadEvent = errors.New("bad event payload")

// handler applies one event inside one docstore transaction. A nil error
// with no writes is how idempotent skips look.
type handler func(tx *docstore.Tx, e *events.Envelope) error

// dispatch maps each known subtype to its handler. Unknown subtypes are
// logged and dropped by the pipeline before dispatch.
var dispatch = map[events.Subtype]handler{
	events.SubtypeCreateFilmRating: createFilmRating,
	events.SubtypeUpdateFilmRating: updateFilmRating,
	events.SubtypeDeleteFilmRating: deleteFilmRating,

	events.SubtypeCreateFilmReview: createFilmReview,
	events.SubtypeUpdateFilmReview: updateFilmReview,
	events.SubtypeDeleteFilmReview: deleteFilmReview,

	events.SubtypeCreateFilmReviewRating: createFilmReviewRating,
	events.SubtypeUpdateFilmReviewRating: updateFilmReviewRating,
	events.SubtypeDeleteFilmReviewRating: deleteFilmReviewRating,

	events.SubtypeCreateBookmark: createBookmark,
	events.SubtypeDeleteBookmark: deleteBookmark,
}

// Handles reports whether this ETL applies the subtype. fully_watched and
// quality_changed flow to the OLAP store only.
func Handles(s events.Subtype) bool {
	_, ok := dispatch[s]
	return ok
}

// skip logs an idempotent no-op: the operation's precondition did not hold,
// usually because this is a redelivery or events raced.
func skip(e *events.Envelope, reason string) {
	metrics.ConsumeDropped.WithLabelValues("etl_nosql", "precondition").Inc()
	logging.Warn().
		Str("event_id", e.EventID).
		Str("subtype", string(e.Subtype)).
		Str("reason", reason).
		Msg("event skipped")
}

// Film ratings.

func createFilmRating(tx *docstore.Tx, e *events.Envelope) error {
	var p events.FilmRatingPayload
	if err := e.DecodePayload(&p); err != nil {
		return fmt.Errorf("%w: %v", ErrBadEvent, err)
	}
	if p.Value == nil {
		return fmt.Errorf("%w: missing value", ErrBadEvent)
	}

	if _, err := tx.GetFilmUserRating(p.FilmID, e.UserID); err == nil {
		skip(e, "rating already exists")
		return nil
	} else if !errors.Is(err, docstore.ErrNotFound) {
		return err
	}

	doc := &docstore.FilmUserRating{
		FilmID:    p.FilmID,
		UserID:    e.UserID,
		Value:     *p.Value,
		CreatedAt: tx.Now(),
		UpdatedAt: tx.Now(),
	}
	if err := tx.PutFilmUserRating(doc); err != nil {
		return err
	}

	agg, err := filmAggregate(tx, p.FilmID)
	if err != nil {
		return err
	}
	agg.ApplyCreate(*p.Value)
	metrics.AggregateDeltas.WithLabelValues("film_rating", "create").Inc()
	return tx.PutFilmRating(agg)
}

func updateFilmRating(tx *docstore.Tx, e *events.Envelope) error {
	var p events.FilmRatingPayload
	if err := e.DecodePayload(&p); err != nil {
		return fmt.Errorf("%w: %v", ErrBadEvent, err)
	}
	if p.Value == nil {
		return fmt.Errorf("%w: missing value", ErrBadEvent)
	}

	doc, err := tx.GetFilmUserRating(p.FilmID, e.UserID)
	if errors.Is(err, docstore.ErrNotFound) {
		skip(e, "rating does not exist")
		return nil
	}
	if err != nil {
		return err
	}
	if doc.Value == *p.Value {
		// Same value still refreshes updated_at; the aggregate needs no delta.
		doc.UpdatedAt = tx.Now()
		return tx.PutFilmUserRating(doc)
	}

	agg, err := filmAggregate(tx, p.FilmID)
	if err != nil {
		return err
	}
	agg.ApplyUpdate(doc.Value, *p.Value)
	metrics.AggregateDeltas.WithLabelValues("film_rating", "update").Inc()

	doc.Value = *p.Value
	doc.UpdatedAt = tx.Now()
	if err := tx.PutFilmUserRating(doc); err != nil {
		return err
	}
	return tx.PutFilmRating(agg)
}

func deleteFilmRating(tx *docstore.Tx, e *events.Envelope) error {
	var p events.FilmIDPayload
	if err := e.DecodePayload(&p); err != nil {
		return fmt.Errorf("%w: %v", ErrBadEvent, err)
	}

	doc, err := tx.GetFilmUserRating(p.FilmID, e.UserID)
	if errors.Is(err, docstore.ErrNotFound) {
		skip(e, "rating does not exist")
		return nil
	}
	if err != nil {
		return err
	}

	if err := tx.DeleteFilmUserRating(p.FilmID, e.UserID); err != nil {
		return err
	}

	agg, err := filmAggregate(tx, p.FilmID)
	if err != nil {
		return err
	}
	agg.ApplyDelete(doc.Value)
	metrics.AggregateDeltas.WithLabelValues("film_rating", "delete").Inc()
	return tx.PutFilmRating(agg)
}

// Film reviews.

func createFilmReview(tx *docstore.Tx, e *events.Envelope) error {
	var p events.FilmReviewPayload
	if err := e.DecodePayload(&p); err != nil {
		return fmt.Errorf("%w: %v", ErrBadEvent, err)
	}

	if _, err := tx.GetFilmReviewByFilmUser(p.FilmID, e.UserID); err == nil {
		skip(e, "review already exists")
		return nil
	} else if !errors.Is(err, docstore.ErrNotFound) {
		return err
	}

	doc := &docstore.FilmReview{
		ReviewID:  uuid.New().String(),
		FilmID:    p.FilmID,
		UserID:    e.UserID,
		Value:     p.Value,
		CreatedAt: tx.Now(),
		UpdatedAt: tx.Now(),
	}
	return tx.PutFilmReview(doc)
}

func updateFilmReview(tx *docstore.Tx, e *events.Envelope) error {
	var p events.ReviewUpdatePayload
	if err := e.DecodePayload(&p); err != nil {
		return fmt.Errorf("%w: %v", ErrBadEvent, err)
	}

	doc, err := tx.GetFilmReview(p.ReviewID)
	if errors.Is(err, docstore.ErrNotFound) {
		skip(e, "review does not exist")
		return nil
	}
	if err != nil {
		return err
	}
	if doc.UserID != e.UserID {
		skip(e, "review belongs to another user")
		return nil
	}

	doc.Value = p.Value
	doc.UpdatedAt = tx.Now()
	return tx.PutFilmReview(doc)
}

// deleteFilmReview cascades: the review, every rating of it, and the
// derived aggregate all go in one transaction, so a crash cannot leave a
// half-deleted review behind.
func deleteFilmReview(tx *docstore.Tx, e *events.Envelope) error {
	var p events.ReviewIDPayload
	if err := e.DecodePayload(&p); err != nil {
		return fmt.Errorf("%w: %v", ErrBadEvent, err)
	}

	doc, err := tx.GetFilmReview(p.ReviewID)
	if errors.Is(err, docstore.ErrNotFound) {
		skip(e, "review does not exist")
		return nil
	}
	if err != nil {
		return err
	}
	if doc.UserID != e.UserID {
		skip(e, "review belongs to another user")
		return nil
	}

	ratings, err := tx.FilmReviewUserRatingsByReview(p.ReviewID)
	if err != nil {
		return err
	}
	for i := range ratings {
		if err := tx.DeleteFilmReviewUserRating(ratings[i].ReviewID, ratings[i].UserID); err != nil {
			return err
		}
	}
	if err := tx.DeleteFilmReviewRating(p.ReviewID); err != nil {
		return err
	}
	metrics.AggregateDeltas.WithLabelValues("review_rating", "cascade_delete").Inc()
	return tx.DeleteFilmReview(doc)
}

// Review ratings.

func createFilmReviewRating(tx *docstore.Tx, e *events.Envelope) error {
	var p events.ReviewRatingPayload
	if err := e.DecodePayload(&p); err != nil {
		return fmt.Errorf("%w: %v", ErrBadEvent, err)
	}
	if p.Value == nil {
		return fmt.Errorf("%w: missing value", ErrBadEvent)
	}

	if _, err := tx.GetFilmReview(p.ReviewID); errors.Is(err, docstore.ErrNotFound) {
		skip(e, "review does not exist")
		return nil
	} else if err != nil {
		return err
	}

	if _, err := tx.GetFilmReviewUserRating(p.ReviewID, e.UserID); err == nil {
		skip(e, "review rating already exists")
		return nil
	} else if !errors.Is(err, docstore.ErrNotFound) {
		return err
	}

	doc := &docstore.FilmReviewUserRating{
		ReviewID:  p.ReviewID,
		UserID:    e.UserID,
		Value:     *p.Value,
		CreatedAt: tx.Now(),
		UpdatedAt: tx.Now(),
	}
	if err := tx.PutFilmReviewUserRating(doc); err != nil {
		return err
	}

	agg, err := reviewAggregate(tx, p.ReviewID)
	if err != nil {
		return err
	}
	agg.ApplyCreate(*p.Value)
	metrics.AggregateDeltas.WithLabelValues("review_rating", "create").Inc()
	return tx.PutFilmReviewRating(agg)
}

func updateFilmReviewRating(tx *docstore.Tx, e *events.Envelope) error {
	var p events.ReviewRatingPayload
	if err := e.DecodePayload(&p); err != nil {
		return fmt.Errorf("%w: %v", ErrBadEvent, err)
	}
	if p.Value == nil {
		return fmt.Errorf("%w: missing value", ErrBadEvent)
	}

	doc, err := tx.GetFilmReviewUserRating(p.ReviewID, e.UserID)
	if errors.Is(err, docstore.ErrNotFound) {
		skip(e, "review rating does not exist")
		return nil
	}
	if err != nil {
		return err
	}
	if doc.Value == *p.Value {
		// Same value still refreshes updated_at; the aggregate needs no delta.
		doc.UpdatedAt = tx.Now()
		return tx.PutFilmReviewUserRating(doc)
	}

	agg, err := reviewAggregate(tx, p.ReviewID)
	if err != nil {
		return err
	}
	agg.ApplyUpdate(doc.Value, *p.Value)
	metrics.AggregateDeltas.WithLabelValues("review_rating", "update").Inc()

	doc.Value = *p.Value
	doc.UpdatedAt = tx.Now()
	if err := tx.PutFilmReviewUserRating(doc); err != nil {
		return err
	}
	return tx.PutFilmReviewRating(agg)
}

func deleteFilmReviewRating(tx *docstore.Tx, e *events.Envelope) error {
	var p events.ReviewIDPayload
	if err := e.DecodePayload(&p); err != nil {
		return fmt.Errorf("%w: %v", ErrBadEvent, err)
	}

	doc, err := tx.GetFilmReviewUserRating(p.ReviewID, e.UserID)
	if errors.Is(err, docstore.ErrNotFound) {
		skip(e, "review rating does not exist")
		return nil
	}
	if err != nil {
		return err
	}

	if err := tx.DeleteFilmReviewUserRating(p.ReviewID, e.UserID); err != nil {
		return err
	}

	agg, err := reviewAggregate(tx, p.ReviewID)
	if err != nil {
		return err
	}
	agg.ApplyDelete(doc.Value)
	metrics.AggregateDeltas.WithLabelValues("review_rating", "delete").Inc()
	return tx.PutFilmReviewRating(agg)
}

// Bookmarks.

func createBookmark(tx *docstore.Tx, e *events.Envelope) error {
	var p events.FilmIDPayload
	if err := e.DecodePayload(&p); err != nil {
		return fmt.Errorf("%w: %v", ErrBadEvent, err)
	}

	if _, err := tx.GetUserBookmark(e.UserID, p.FilmID); err == nil {
		skip(e, "bookmark already exists")
		return nil
	} else if !errors.Is(err, docstore.ErrNotFound) {
		return err
	}

	return tx.PutUserBookmark(&docstore.UserBookmark{
		UserID:    e.UserID,
		FilmID:    p.FilmID,
		CreatedAt: tx.Now(),
	})
}

func deleteBookmark(tx *docstore.Tx, e *events.Envelope) error {
	var p events.FilmIDPayload
	if err := e.DecodePayload(&p); err != nil {
		return fmt.Errorf("%w: %v", ErrBadEvent, err)
	}

	if _, err := tx.GetUserBookmark(e.UserID, p.FilmID); errors.Is(err, docstore.ErrNotFound) {
		skip(e, "bookmark does not exist")
		return nil
	} else if err != nil {
		return err
	}

	return tx.DeleteUserBookmark(e.UserID, p.FilmID)
}

// filmAggregate loads or initialises the per-film aggregate.
func filmAggregate(tx *docstore.Tx, filmID string) (*docstore.FilmRating, error) {
	agg, err := tx.GetFilmRating(filmID)
	if errors.Is(err, docstore.ErrNotFound) {
		return &docstore.FilmRating{FilmID: filmID}, nil
	}
	if err != nil {
		return nil, err
	}
	return agg, nil
}

// reviewAggregate loads or initialises the per-review aggregate.
func reviewAggregate(tx *docstore.Tx, reviewID string) (*docstore.FilmReviewRating, error) {
	agg, err := tx.GetFilmReviewRating(reviewID)
	if errors.Is(err, docstore.ErrNotFound) {
		return &docstore.FilmReviewRating{ReviewID: reviewID}, nil
	}
	if err != nil {
		return nil, err
	}
	return agg, nil
}
