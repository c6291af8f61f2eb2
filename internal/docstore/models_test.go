// UGC Pipeline - User-Generated Content ingestion and fan-out for Practix
// Copyright 2026 Practix Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/practix/ugc-pipeline

package docstore

import (
	"math"
	"testing"
)

func wantAgg(t *testing.T, a RatingAggregate, likes, dislikes, sum, count int) {
	t.Helper()
	if a.LikeCount != likes || a.DislikeCount != dislikes || a.Sum != sum || a.ValueCount != count {
		t.Fatalf("aggregate = %+v, want likes=%d dislikes=%d sum=%d count=%d",
			a, likes, dislikes, sum, count)
	}
}

func TestRatingAggregateCreate(t *testing.T) {
	var a RatingAggregate
	a.ApplyCreate(10)
	a.ApplyCreate(0)
	a.ApplyCreate(7)
	wantAgg(t, a, 1, 1, 17, 3)

	// Mid-range values never move the boundary counters.
	for v := 1; v <= 9; v++ {
		var b RatingAggregate
		b.ApplyCreate(v)
		wantAgg(t, b, 0, 0, v, 1)
	}
}

func TestRatingAggregateUpdate(t *testing.T) {
	t.Run("like becomes dislike", func(t *testing.T) {
		var a RatingAggregate
		a.ApplyCreate(10)
		a.ApplyUpdate(10, 0)
		wantAgg(t, a, 0, 1, 0, 1)
	})

	t.Run("mid to mid leaves counters alone", func(t *testing.T) {
		var a RatingAggregate
		a.ApplyCreate(4)
		a.ApplyUpdate(4, 7)
		wantAgg(t, a, 0, 0, 7, 1)
	})

	t.Run("mid to like", func(t *testing.T) {
		var a RatingAggregate
		a.ApplyCreate(5)
		a.ApplyUpdate(5, 10)
		wantAgg(t, a, 1, 0, 10, 1)
	})
}

func TestRatingAggregateDelete(t *testing.T) {
	var a RatingAggregate
	a.ApplyCreate(10)
	a.ApplyCreate(6)
	a.ApplyDelete(10)
	wantAgg(t, a, 0, 0, 6, 1)

	a.ApplyDelete(6)
	wantAgg(t, a, 0, 0, 0, 0)
	if !a.IsZero() {
		t.Fatal("aggregate should be zero after last delete")
	}
}

func TestRatingAggregateAvg(t *testing.T) {
	var a RatingAggregate
	if a.Avg() != 0 {
		t.Fatalf("empty avg = %v, want 0", a.Avg())
	}

	a.ApplyCreate(10)
	a.ApplyCreate(10)
	a.ApplyCreate(0)
	if got := a.Avg(); math.Abs(got-20.0/3) > 1e-9 {
		t.Fatalf("avg = %v, want %v", got, 20.0/3)
	}

	// Back to empty, avg falls back to zero instead of NaN.
	a.ApplyDelete(10)
	a.ApplyDelete(10)
	a.ApplyDelete(0)
	if a.Avg() != 0 {
		t.Fatalf("avg after drain = %v, want 0", a.Avg())
	}
}

func TestRatingAggregateEqual(t *testing.T) {
	a := RatingAggregate{LikeCount: 1, Sum: 10, ValueCount: 1}
	b := a
	if !a.Equal(&b) {
		t.Fatal("identical aggregates should be equal")
	}
	b.Sum = 9
	if a.Equal(&b) {
		t.Fatal("different sums should not be equal")
	}
}
