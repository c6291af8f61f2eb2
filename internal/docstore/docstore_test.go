// UGC Pipeline - User-Generated Content ingestion and fan-out for Practix
// Copyright 2026 Practix Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/practix/ugc-pipeline

package docstore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/practix/ugc-pipeline/internal/config"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(config.DocStoreConfig{})
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestFilmUserRatingCRUD(t *testing.T) {
	s := openTestStore(t)

	err := s.Update(func(tx *Tx) error {
		return tx.PutFilmUserRating(&FilmUserRating{
			FilmID: "film-1", UserID: "user-1", Value: 8,
			CreatedAt: tx.Now(), UpdatedAt: tx.Now(),
		})
	})
	if err != nil {
		t.Fatal(err)
	}

	err = s.View(func(tx *Tx) error {
		doc, err := tx.GetFilmUserRating("film-1", "user-1")
		if err != nil {
			return err
		}
		if doc.Value != 8 {
			t.Fatalf("value = %d, want 8", doc.Value)
		}
		if _, err := tx.GetFilmUserRating("film-1", "user-2"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("missing rating: err = %v, want ErrNotFound", err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	err = s.Update(func(tx *Tx) error {
		return tx.DeleteFilmUserRating("film-1", "user-1")
	})
	if err != nil {
		t.Fatal(err)
	}
	err = s.View(func(tx *Tx) error {
		_, err := tx.GetFilmUserRating("film-1", "user-1")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("deleted rating: err = %v, want ErrNotFound", err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestPrefixScansDoNotBleed(t *testing.T) {
	s := openTestStore(t)

	// "film-1" is a prefix of "film-10"; the separator keeps their scans apart.
	err := s.Update(func(tx *Tx) error {
		for _, filmID := range []string{"film-1", "film-10"} {
			if err := tx.PutFilmUserRating(&FilmUserRating{
				FilmID: filmID, UserID: "user-1", Value: 5,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	err = s.View(func(tx *Tx) error {
		got, err := tx.FilmUserRatingsByFilm("film-1")
		if err != nil {
			return err
		}
		if len(got) != 1 || got[0].FilmID != "film-1" {
			t.Fatalf("scan returned %+v, want exactly film-1", got)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestFilmReviewIndexes(t *testing.T) {
	s := openTestStore(t)

	review := &FilmReview{
		ReviewID: "rev-1", FilmID: "film-1", UserID: "user-1", Value: "great",
	}
	if err := s.Update(func(tx *Tx) error { return tx.PutFilmReview(review) }); err != nil {
		t.Fatal(err)
	}

	err := s.View(func(tx *Tx) error {
		byUser, err := tx.GetFilmReviewByFilmUser("film-1", "user-1")
		if err != nil {
			return err
		}
		if byUser.ReviewID != "rev-1" {
			t.Fatalf("index resolved %q, want rev-1", byUser.ReviewID)
		}

		list, err := tx.FilmReviewsByFilm("film-1", 0, 10)
		if err != nil {
			return err
		}
		if len(list) != 1 || list[0].Value != "great" {
			t.Fatalf("listing = %+v", list)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	// Deleting the review drops both indexes too.
	if err := s.Update(func(tx *Tx) error { return tx.DeleteFilmReview(review) }); err != nil {
		t.Fatal(err)
	}
	err = s.View(func(tx *Tx) error {
		if _, err := tx.GetFilmReviewByFilmUser("film-1", "user-1"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("film-user index survived delete: %v", err)
		}
		list, err := tx.FilmReviewsByFilm("film-1", 0, 10)
		if err != nil {
			return err
		}
		if len(list) != 0 {
			t.Fatalf("listing after delete = %+v", list)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestUserBookmarksPagination(t *testing.T) {
	s := openTestStore(t)

	err := s.Update(func(tx *Tx) error {
		for i := 0; i < 5; i++ {
			if err := tx.PutUserBookmark(&UserBookmark{
				UserID: "user-1", FilmID: fmt.Sprintf("film-%d", i),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	err = s.View(func(tx *Tx) error {
		page, err := tx.UserBookmarks("user-1", 2, 2)
		if err != nil {
			return err
		}
		if len(page) != 2 {
			t.Fatalf("page size = %d, want 2", len(page))
		}
		if page[0].FilmID != "film-2" || page[1].FilmID != "film-3" {
			t.Fatalf("page = %+v", page)
		}

		rest, err := tx.UserBookmarks("user-1", 4, 10)
		if err != nil {
			return err
		}
		if len(rest) != 1 || rest[0].FilmID != "film-4" {
			t.Fatalf("tail page = %+v", rest)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestAggregateRoundTrip(t *testing.T) {
	s := openTestStore(t)

	err := s.Update(func(tx *Tx) error {
		agg := &FilmRating{FilmID: "film-1"}
		agg.ApplyCreate(10)
		agg.ApplyCreate(3)
		return tx.PutFilmRating(agg)
	})
	if err != nil {
		t.Fatal(err)
	}

	err = s.View(func(tx *Tx) error {
		agg, err := tx.GetFilmRating("film-1")
		if err != nil {
			return err
		}
		if agg.LikeCount != 1 || agg.Sum != 13 || agg.ValueCount != 2 {
			t.Fatalf("aggregate = %+v", agg)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}
