// UGC Pipeline - User-Generated Content ingestion and fan-out for Practix
// Copyright 2026 Practix Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/practix/ugc-pipeline

// Package etl holds the extract and guard stages shared by both ETL
// binaries: batch fetch from the bus, envelope parsing with drop-and-count
// on poison records, and the minimum-batch guard with exponential backoff.
package etl

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/practix/ugc-pipeline/internal/bus"
	"github.com/practix/ugc-pipeline/internal/config"
	"github.com/practix/ugc-pipeline/internal/events"
	"github.com/practix/ugc-pipeline/internal/logging"
	"github.com/practix/ugc-pipeline/internal/metrics"
)

// Extractor accumulates bus records until a batch is worth loading.
type Extractor struct {
	consumer bus.Consumer
	cfg      config.ETLConfig
}

// NewExtractor wraps a consumer with the configured batch policy.
func NewExtractor(consumer bus.Consumer, cfg config.ETLConfig) *Extractor {
	return &Extractor{consumer: consumer, cfg: cfg}
}

// NextBatch fetches until the batch reaches min_batch_before_load or the
// backoff budget runs out, then returns whatever is on hand. Waits between
// fetches grow exponentially up to the configured ceiling. The returned
// batch may be empty when the bus is idle.
func (e *Extractor) NextBatch(ctx context.Context) (*bus.Batch, error) {
	batch, err := e.consumer.Fetch(ctx, e.cfg.BatchSize, e.cfg.PollTimeout)
	if err != nil {
		return nil, err
	}
	if batch.Len() >= e.cfg.MinBatchBeforeLoad {
		return batch, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.cfg.BackoffInitial
	bo.MaxInterval = e.cfg.BackoffMax
	deadline := time.Now().Add(e.cfg.BackoffBudget)

	for batch.Len() < e.cfg.MinBatchBeforeLoad {
		wait := bo.NextBackOff()
		if remaining := time.Until(deadline); remaining <= 0 {
			break
		} else if wait > remaining {
			wait = remaining
		}
		metrics.ETLGuardWaits.WithLabelValues(e.cfg.Group).Inc()
		logging.Debug().
			Int("have", batch.Len()).
			Int("want", e.cfg.MinBatchBeforeLoad).
			Dur("wait", wait).
			Msg("batch below minimum, backing off")

		select {
		case <-ctx.Done():
			return batch, ctx.Err()
		case <-time.After(wait):
		}

		more, err := e.consumer.Fetch(ctx, e.cfg.BatchSize-batch.Len(), e.cfg.PollTimeout)
		if err != nil {
			return batch, err
		}
		batch.Records = append(batch.Records, more.Records...)
	}
	return batch, nil
}

// Commit acknowledges the batch on the bus.
func (e *Extractor) Commit(ctx context.Context, b *bus.Batch) error {
	return e.consumer.Commit(ctx, b)
}

// ParseBatch decodes and validates every record. Poison records are logged
// and dropped; they still get committed with the batch because a retry can
// never fix them.
func ParseBatch(group string, b *bus.Batch) []*events.Envelope {
	out := make([]*events.Envelope, 0, b.Len())
	for i := range b.Records {
		rec := &b.Records[i]
		e, err := events.Unmarshal(rec.Value)
		if err == nil {
			err = e.Validate()
		}
		if err != nil {
			metrics.ConsumeParseFailures.WithLabelValues(group).Inc()
			logging.Warn().
				Err(err).
				Str("topic", rec.Topic).
				Str("key", rec.Key).
				Msg("bad record dropped")
			continue
		}
		if e.EventbusTS == 0 {
			e.EventbusTS = rec.BusTS
		}
		out = append(out, e)
	}
	return out
}
