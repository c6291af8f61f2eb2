// UGC Pipeline - User-Generated Content ingestion and fan-out for Practix
// Copyright 2026 Practix Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/practix/ugc-pipeline

// Package ingest is the write side of the HTTP surface: it authenticates,
// enriches and validates incoming events and hands them to the bus.
package ingest

import (
	"context"
	"net/http"
	"time"

	"github.com/practix/ugc-pipeline/internal/bus"
	"github.com/practix/ugc-pipeline/internal/config"
	"github.com/practix/ugc-pipeline/internal/events"
	"github.com/practix/ugc-pipeline/internal/logging"
)

// busHeader lets benchmark clients pick the backend per request. It is
// honoured only when bus.allow_request_override is on; in production the
// backend is pinned by configuration.
const busHeader = "Eventbus"

// publishTimeout bounds the background publish after the HTTP response has
// already gone out.
const publishTimeout = 30 * time.Second

// Dispatcher routes events to the configured bus backends.
type Dispatcher struct {
	publishers map[string]bus.Publisher
	pinned     string
	override   bool
}

// NewDispatcher builds a dispatcher over the available backends. publishers
// must contain the pinned backend; it contains both only when the override
// header is enabled.
func NewDispatcher(cfg config.BusConfig, publishers map[string]bus.Publisher) *Dispatcher {
	return &Dispatcher{
		publishers: publishers,
		pinned:     cfg.Backend,
		override:   cfg.AllowRequestOverride,
	}
}

// pick selects the backend for this request.
func (d *Dispatcher) pick(r *http.Request) (string, bus.Publisher) {
	name := d.pinned
	if d.override {
		if h := r.Header.Get(busHeader); h != "" {
			if _, ok := d.publishers[h]; ok {
				name = h
			}
		}
	}
	return name, d.publishers[name]
}

// readyChecker is implemented by backends that can fail fast before an
// asynchronous publish is queued.
type readyChecker interface {
	Ready() error
}

// Dispatch serializes the envelope and hands it to the selected backend.
// The broker confirms synchronously, so the HTTP response waits for the
// confirm and a failed publish surfaces as an error. The log bus only needs
// to accept the record into its send buffer; the acknowledgement is logged
// asynchronously with the request id for correlation, but a backend whose
// breaker is already open rejects the record up front.
func (d *Dispatcher) Dispatch(r *http.Request, e *events.Envelope) error {
	data, err := events.Marshal(e)
	if err != nil {
		return err
	}
	backend, pub := d.pick(r)
	requestID := logging.RequestIDFromContext(r.Context())

	if backend == "broker" {
		start := time.Now()
		if err := pub.Publish(r.Context(), e.Topic(), e.PartitionKey(), data); err != nil {
			return err
		}
		logging.Debug().
			Str("request_id", requestID).
			Str("event_id", e.EventID).
			Str("backend", backend).
			Str("topic", e.Topic()).
			Dur("latency", time.Since(start)).
			Msg("publish confirmed")
		return nil
	}

	if rc, ok := pub.(readyChecker); ok {
		if err := rc.Ready(); err != nil {
			return err
		}
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		start := time.Now()
		err := pub.Publish(ctx, e.Topic(), e.PartitionKey(), data)
		if err != nil {
			logging.Error().
				Err(err).
				Str("request_id", requestID).
				Str("event_id", e.EventID).
				Str("backend", backend).
				Str("topic", e.Topic()).
				Msg("publish failed")
			return
		}
		logging.Debug().
			Str("request_id", requestID).
			Str("event_id", e.EventID).
			Str("backend", backend).
			Str("topic", e.Topic()).
			Dur("latency", time.Since(start)).
			Msg("publish acknowledged")
	}()
	return nil
}

// Close closes every backend.
func (d *Dispatcher) Close() error {
	var firstErr error
	for _, p := range d.publishers {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
