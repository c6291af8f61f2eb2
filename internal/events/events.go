// UGC Pipeline - User-Generated Content ingestion and fan-out for Practix
// Copyright 2026 Practix Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/practix/ugc-pipeline

package events

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Type is the event type and doubles as the bus topic / routing key.
type Type string

// Event types. Each type maps to a pre-created topic on both bus backends.
const (
	TypeClick  Type = "click"
	TypeVisit  Type = "visit"
	TypeCustom Type = "custom"
)

// Topics returns all bus topics, one per event type.
func Topics() []string {
	return []string{string(TypeClick), string(TypeVisit), string(TypeCustom)}
}

// Subtype narrows a "custom" event to one concrete domain operation.
type Subtype string

// Custom event subtypes. Events with any other subtype are logged and
// dropped by the consumers.
const (
	SubtypeFullyWatched   Subtype = "fully_watched"
	SubtypeQualityChanged Subtype = "quality_changed"

	SubtypeCreateFilmRating Subtype = "create_film_rating"
	SubtypeUpdateFilmRating Subtype = "update_film_rating"
	SubtypeDeleteFilmRating Subtype = "delete_film_rating"

	SubtypeCreateFilmReview Subtype = "create_film_review"
	SubtypeUpdateFilmReview Subtype = "update_film_review"
	SubtypeDeleteFilmReview Subtype = "delete_film_review"

	SubtypeCreateFilmReviewRating Subtype = "create_film_review_rating"
	SubtypeUpdateFilmReviewRating Subtype = "update_film_review_rating"
	SubtypeDeleteFilmReviewRating Subtype = "delete_film_review_rating"

	SubtypeCreateBookmark Subtype = "create_bookmark"
	SubtypeDeleteBookmark Subtype = "delete_bookmark"
)

var knownSubtypes = map[Subtype]struct{}{
	SubtypeFullyWatched:           {},
	SubtypeQualityChanged:         {},
	SubtypeCreateFilmRating:       {},
	SubtypeUpdateFilmRating:       {},
	SubtypeDeleteFilmRating:       {},
	SubtypeCreateFilmReview:       {},
	SubtypeUpdateFilmReview:       {},
	SubtypeDeleteFilmReview:       {},
	SubtypeCreateFilmReviewRating: {},
	SubtypeUpdateFilmReviewRating: {},
	SubtypeDeleteFilmReviewRating: {},
	SubtypeCreateBookmark:         {},
	SubtypeDeleteBookmark:         {},
}

// Known reports whether the subtype belongs to the closed set.
func (s Subtype) Known() bool {
	_, ok := knownSubtypes[s]
	return ok
}

// Envelope is the uniform wire form of every event.
//
// user_ts is client-supplied and informational only; server_ts is assigned
// at ingest and is authoritative; eventbus_ts is assigned when the bus
// accepts the record. All three are epoch seconds.
type Envelope struct {
	EventID   string `json:"event_id"`
	RequestID string `json:"request_id"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`

	UserTS     int64 `json:"user_ts"`
	ServerTS   int64 `json:"server_ts"`
	EventbusTS int64 `json:"eventbus_ts"`

	URL string `json:"url"`

	Type    Type    `json:"event_type"`
	Subtype Subtype `json:"event_subtype,omitempty"`

	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope creates an envelope with a fresh event id and server timestamp.
// The caller fills request/session/user identity and the payload.
func NewEnvelope(typ Type, subtype Subtype) *Envelope {
	return &Envelope{
		EventID:  uuid.New().String(),
		ServerTS: time.Now().Unix(),
		Type:     typ,
		Subtype:  subtype,
	}
}

// Validate checks the envelope invariants shared by producer and consumers.
// Payload contents are validated per subtype at ingest only; consumers treat
// the payload as opaque until dispatch.
func (e *Envelope) Validate() error {
	if e.EventID == "" {
		return &FieldError{Field: "event_id", Message: "required"}
	}
	if e.RequestID == "" {
		return &FieldError{Field: "request_id", Message: "required"}
	}
	if e.UserID == "" {
		return &FieldError{Field: "user_id", Message: "required"}
	}
	if e.URL == "" {
		return &FieldError{Field: "url", Message: "required"}
	}
	switch e.Type {
	case TypeClick, TypeVisit:
		if e.Subtype != "" {
			return &FieldError{Field: "event_subtype", Message: "must be empty for " + string(e.Type)}
		}
	case TypeCustom:
		if e.Subtype == "" {
			return &FieldError{Field: "event_subtype", Message: "required for custom events"}
		}
	default:
		return &FieldError{Field: "event_type", Message: "unknown type " + string(e.Type)}
	}
	if e.ServerTS <= 0 {
		return &FieldError{Field: "server_ts", Message: "required"}
	}
	return nil
}

// Topic returns the bus topic for this event. Topics equal the event type.
func (e *Envelope) Topic() string {
	return string(e.Type)
}

// PartitionKey returns the record key used for bus partitioning.
//
// Aggregate-affecting subtypes are keyed on the owning object id (film or
// review) so that all events mutating one derived aggregate land on the same
// partition and are applied by a single worker. Everything else is keyed on
// the unique event id. This deliberately differs from keying everything by
// event id, which would scatter rating events for one film across partitions
// and break the one-writer-per-aggregate discipline in the NoSQL ETL.
func (e *Envelope) PartitionKey() string {
	switch e.Subtype {
	case SubtypeCreateFilmRating, SubtypeUpdateFilmRating, SubtypeDeleteFilmRating,
		SubtypeCreateFilmReview, SubtypeCreateBookmark, SubtypeDeleteBookmark:
		if id := e.payloadID("film_id"); id != "" {
			return id
		}
	case SubtypeUpdateFilmReview, SubtypeDeleteFilmReview,
		SubtypeCreateFilmReviewRating, SubtypeUpdateFilmReviewRating, SubtypeDeleteFilmReviewRating:
		if id := e.payloadID("review_id"); id != "" {
			return id
		}
	}
	return e.EventID
}

// payloadID extracts a single string field from the raw payload.
func (e *Envelope) payloadID(field string) string {
	if len(e.Payload) == 0 {
		return ""
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(e.Payload, &m); err != nil {
		return ""
	}
	var id string
	if raw, ok := m[field]; ok {
		_ = json.Unmarshal(raw, &id)
	}
	return id
}

// SetPayload marshals the given payload variant into the envelope.
func (e *Envelope) SetPayload(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	e.Payload = data
	return nil
}

// DecodePayload unmarshals the raw payload into the given variant.
func (e *Envelope) DecodePayload(v any) error {
	if len(e.Payload) == 0 {
		return json.Unmarshal([]byte("{}"), v)
	}
	return json.Unmarshal(e.Payload, v)
}

// FieldError reports a single envelope field violation.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}
