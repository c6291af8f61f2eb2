// UGC Pipeline - User-Generated Content ingestion and fan-out for Practix
// Copyright 2026 Practix Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/practix/ugc-pipeline

// Package olapetl moves events from the bus into the columnar store:
// extract, guard, transform to rows, one transactional insert per batch,
// then offset commit. Fetched-but-unloaded events spill to disk on
// shutdown and are loaded first after restart.
package olapetl

import (
	"time"

	"github.com/google/uuid"

	"github.com/practix/ugc-pipeline/internal/events"
	"github.com/practix/ugc-pipeline/internal/olap"
)

// Transform flattens envelopes into rows. Every row gets a fresh id and
// the load-time event_time, so redelivered events become distinct rows
// with identical envelope fields.
func Transform(batch []*events.Envelope) []olap.Row {
	now := time.Now()
	rows := make([]olap.Row, 0, len(batch))
	for _, e := range batch {
		rows = append(rows, olap.Row{
			ID:           uuid.New().String(),
			EventID:      e.EventID,
			RequestID:    e.RequestID,
			SessionID:    e.SessionID,
			UserID:       e.UserID,
			EventTime:    now,
			UserTS:       epochToTime(e.UserTS),
			ServerTS:     epochToTime(e.ServerTS),
			EventbusTS:   epochToTime(e.EventbusTS),
			URL:          e.URL,
			EventType:    string(e.Type),
			EventSubtype: string(e.Subtype),
			Payload:      flattenPayload(e),
		})
	}
	return rows
}

// flattenPayload keeps the payload as one opaque JSON value under the
// "payload" key. OLAP consumers unpack it with JSON functions at query time.
func flattenPayload(e *events.Envelope) map[string]string {
	if len(e.Payload) == 0 {
		return map[string]string{}
	}
	return map[string]string{"payload": string(e.Payload)}
}

func epochToTime(ts int64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0).UTC()
}
