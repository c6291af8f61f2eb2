// UGC Pipeline - User-Generated Content ingestion and fan-out for Practix
// Copyright 2026 Practix Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/practix/ugc-pipeline

package events

import (
	"strings"
	"testing"
)

func intPtr(i int) *int { return &i }

func validEnvelope(typ Type, subtype Subtype) *Envelope {
	e := NewEnvelope(typ, subtype)
	e.RequestID = "req-1"
	e.SessionID = "7b1e2c70-6f86-4c8e-9f59-6f4a3f1f3b10"
	e.UserID = "4e9f3d4c-1111-4c8e-9f59-6f4a3f1f3b10"
	e.URL = "https://practix.io/films/abc"
	return e
}

func TestEnvelopeValidate(t *testing.T) {
	t.Run("valid click", func(t *testing.T) {
		if err := validEnvelope(TypeClick, "").Validate(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("click with subtype rejected", func(t *testing.T) {
		e := validEnvelope(TypeClick, SubtypeCreateBookmark)
		if err := e.Validate(); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("custom without subtype rejected", func(t *testing.T) {
		e := validEnvelope(TypeCustom, "")
		if err := e.Validate(); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("unknown type rejected", func(t *testing.T) {
		e := validEnvelope("stream", "")
		if err := e.Validate(); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("missing request id rejected", func(t *testing.T) {
		e := validEnvelope(TypeVisit, "")
		e.RequestID = ""
		err := e.Validate()
		if err == nil {
			t.Fatal("expected error")
		}
		if !strings.Contains(err.Error(), "request_id") {
			t.Fatalf("error should name the field, got %v", err)
		}
	})
}

func TestTopic(t *testing.T) {
	e := validEnvelope(TypeCustom, SubtypeFullyWatched)
	if got := e.Topic(); got != "custom" {
		t.Fatalf("topic = %q, want custom", got)
	}
}

func TestPartitionKey(t *testing.T) {
	const filmID = "0a8b2c70-6f86-4c8e-9f59-6f4a3f1f3b10"
	const reviewID = "1c9d2e80-7a96-4d9f-8a60-7b5c4e2a4c21"

	t.Run("rating keyed on film", func(t *testing.T) {
		e := validEnvelope(TypeCustom, SubtypeCreateFilmRating)
		if err := e.SetPayload(&FilmRatingPayload{FilmID: filmID, Value: intPtr(10)}); err != nil {
			t.Fatal(err)
		}
		if got := e.PartitionKey(); got != filmID {
			t.Fatalf("key = %q, want film id", got)
		}
	})

	t.Run("review rating keyed on review", func(t *testing.T) {
		e := validEnvelope(TypeCustom, SubtypeUpdateFilmReviewRating)
		if err := e.SetPayload(&ReviewRatingPayload{ReviewID: reviewID, Value: intPtr(3)}); err != nil {
			t.Fatal(err)
		}
		if got := e.PartitionKey(); got != reviewID {
			t.Fatalf("key = %q, want review id", got)
		}
	})

	t.Run("click keyed on event id", func(t *testing.T) {
		e := validEnvelope(TypeClick, "")
		if err := e.SetPayload(&ClickPayload{ElementID: "btn-1"}); err != nil {
			t.Fatal(err)
		}
		if got := e.PartitionKey(); got != e.EventID {
			t.Fatalf("key = %q, want event id %q", got, e.EventID)
		}
	})

	t.Run("fully watched keyed on event id", func(t *testing.T) {
		e := validEnvelope(TypeCustom, SubtypeFullyWatched)
		if err := e.SetPayload(&FilmIDPayload{FilmID: filmID}); err != nil {
			t.Fatal(err)
		}
		if got := e.PartitionKey(); got != e.EventID {
			t.Fatalf("key = %q, want event id", got)
		}
	})
}

func TestSerializerRoundTrip(t *testing.T) {
	e := validEnvelope(TypeCustom, SubtypeCreateFilmRating)
	if err := e.SetPayload(&FilmRatingPayload{
		FilmID: "0a8b2c70-6f86-4c8e-9f59-6f4a3f1f3b10",
		Value:  intPtr(7),
	}); err != nil {
		t.Fatal(err)
	}

	data, err := Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.EventID != e.EventID || got.Type != e.Type || got.Subtype != e.Subtype {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, e)
	}

	var p FilmRatingPayload
	if err := got.DecodePayload(&p); err != nil {
		t.Fatal(err)
	}
	if p.Value == nil || *p.Value != 7 {
		t.Fatalf("payload value = %v, want 7", p.Value)
	}
}

func TestMarshalRejectsInvalid(t *testing.T) {
	e := validEnvelope(TypeCustom, "")
	if _, err := Marshal(e); err == nil {
		t.Fatal("expected error for custom without subtype")
	}
}

func TestSubtypeKnown(t *testing.T) {
	if !SubtypeDeleteBookmark.Known() {
		t.Fatal("delete_bookmark should be known")
	}
	if Subtype("telemetry").Known() {
		t.Fatal("telemetry should be unknown")
	}
}
