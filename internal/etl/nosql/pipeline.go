// UGC Pipeline - User-Generated Content ingestion and fan-out for Practix
// Copyright 2026 Practix Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/practix/ugc-pipeline

package nosqletl

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/practix/ugc-pipeline/internal/bus"
	"github.com/practix/ugc-pipeline/internal/config"
	"github.com/practix/ugc-pipeline/internal/docstore"
	"github.com/practix/ugc-pipeline/internal/etl"
	"github.com/practix/ugc-pipeline/internal/events"
	"github.com/practix/ugc-pipeline/internal/logging"
	"github.com/practix/ugc-pipeline/internal/metrics"
)

// Pipeline is the NoSQL ETL loop: fetch, parse, apply each event in its own
// docstore transaction, then commit the batch.
type Pipeline struct {
	extractor *etl.Extractor
	store     *docstore.Store
	cfg       config.ETLConfig
}

// New wires the pipeline together.
func New(consumer bus.Consumer, store *docstore.Store, cfg config.ETLConfig) *Pipeline {
	return &Pipeline{
		extractor: etl.NewExtractor(consumer, cfg),
		store:     store,
		cfg:       cfg,
	}
}

// Run processes batches until the context is cancelled. On shutdown the
// current event finishes, the rest of the batch stays uncommitted and gets
// redelivered; the idempotent handlers absorb the replay.
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		batch, err := p.extractor.NextBatch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logging.Err(err).Msg("fetch failed, retrying")
			continue
		}
		if batch.Len() == 0 {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}

		envs := etl.ParseBatch(p.cfg.Group, batch)
		metrics.ETLBatchSize.WithLabelValues("nosql").Observe(float64(batch.Len()))

		for _, e := range envs {
			if err := p.applyWithRetry(ctx, e); err != nil {
				if ctx.Err() != nil {
					// Batch stays uncommitted; redelivery replays it.
					return nil
				}
				return err
			}
		}

		if err := p.extractor.Commit(ctx, batch); err != nil {
			logging.Err(err).Msg("offset commit failed; batch will be redelivered")
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Apply dispatches one event inside one transaction. Unknown subtypes are
// dropped; ErrBadEvent payloads are dropped; anything else is an infra
// error worth retrying.
func (p *Pipeline) Apply(e *events.Envelope) error {
	h, ok := dispatch[e.Subtype]
	if !ok {
		metrics.ConsumeDropped.WithLabelValues(p.cfg.Group, "unknown_subtype").Inc()
		logging.Warn().
			Str("event_id", e.EventID).
			Str("subtype", string(e.Subtype)).
			Msg("unknown subtype dropped")
		return nil
	}
	return p.store.Update(func(tx *docstore.Tx) error {
		return h(tx, e)
	})
}

// applyWithRetry retries infra failures with exponential backoff until the
// event lands or the context is cancelled.
func (p *Pipeline) applyWithRetry(ctx context.Context, e *events.Envelope) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.cfg.BackoffInitial
	bo.MaxInterval = p.cfg.BackoffMax

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := p.Apply(e)
		if errors.Is(err, ErrBadEvent) {
			metrics.ConsumeDropped.WithLabelValues(p.cfg.Group, "bad_payload").Inc()
			logging.Warn().
				Err(err).
				Str("event_id", e.EventID).
				Str("subtype", string(e.Subtype)).
				Msg("undecodable event dropped")
			return struct{}{}, nil
		}
		if err != nil {
			logging.Err(err).Str("event_id", e.EventID).Msg("apply failed, will retry")
		}
		return struct{}{}, err
	}, backoff.WithBackOff(bo), backoff.WithMaxElapsedTime(0))
	return err
}

// RunReconciler recomputes the aggregates on the configured interval until
// the context is cancelled.
func (p *Pipeline) RunReconciler(ctx context.Context) {
	if p.cfg.ReconcileInterval <= 0 {
		return
	}
	ticker := time.NewTicker(p.cfg.ReconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := Reconcile(p.store); err != nil {
				logging.Err(err).Msg("reconciliation failed")
			}
		}
	}
}
