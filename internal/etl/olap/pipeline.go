// UGC Pipeline - User-Generated Content ingestion and fan-out for Practix
// Copyright 2026 Practix Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/practix/ugc-pipeline

package olapetl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/practix/ugc-pipeline/internal/bus"
	"github.com/practix/ugc-pipeline/internal/config"
	"github.com/practix/ugc-pipeline/internal/etl"
	"github.com/practix/ugc-pipeline/internal/events"
	"github.com/practix/ugc-pipeline/internal/logging"
	"github.com/practix/ugc-pipeline/internal/metrics"
	"github.com/practix/ugc-pipeline/internal/olap"
	"github.com/practix/ugc-pipeline/internal/spill"
)

// Pipeline is the OLAP ETL loop.
type Pipeline struct {
	extractor *etl.Extractor
	store     *olap.Store
	spill     *spill.File
	cfg       config.ETLConfig
}

// New wires the pipeline together.
func New(consumer bus.Consumer, store *olap.Store, spillFile *spill.File, cfg config.ETLConfig) *Pipeline {
	return &Pipeline{
		extractor: etl.NewExtractor(consumer, cfg),
		store:     store,
		spill:     spillFile,
		cfg:       cfg,
	}
}

// Run recovers any spilled events, then loops fetch -> parse -> transform ->
// load -> commit until the context is cancelled. Events fetched but not
// loaded at cancellation are spilled for the next start. Returns nil on a
// clean shutdown.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.recoverSpill(ctx); err != nil {
		return err
	}

	for {
		batch, err := p.extractor.NextBatch(ctx)
		if err != nil {
			if ctxDone(err) {
				return p.spillBatch(batch)
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
		metrics.ETLBatchSize.WithLabelValues("olap").Observe(float64(batch.Len()))

		if len(envs) > 0 {
			if err := p.loadWithRetry(ctx, envs); err != nil {
				// Load never succeeded before shutdown; keep the events.
				if serr := p.spill.Save(envs); serr != nil {
					logging.Err(serr).Int("events", len(envs)).Msg("spill after failed load")
					return serr
				}
				metrics.ETLSpilledEvents.Add(float64(len(envs)))
				logging.Info().Int("events", len(envs)).Msg("un-loaded events spilled")
				if ctxDone(err) {
					return nil
				}
				return err
			}
		}

		// Offsets move only after the load landed (or the whole batch
		// was poison). Redelivery after a crash here just makes extra
		// rows, which the row-id scheme tolerates.
		if err := p.extractor.Commit(ctx, batch); err != nil {
			logging.Err(err).Msg("offset commit failed; batch will be redelivered")
		}
	}
}

// recoverSpill loads events left behind by the previous run before any new
// fetch, preserving their precedence.
func (p *Pipeline) recoverSpill(ctx context.Context) error {
	envs, err := p.spill.Read()
	if err != nil {
		return fmt.Errorf("read spill: %w", err)
	}
	if len(envs) == 0 {
		return nil
	}
	logging.Info().Int("events", len(envs)).Msg("recovering spilled events")
	metrics.ETLRecoveredEvents.Add(float64(len(envs)))

	if err := p.loadWithRetry(ctx, envs); err != nil {
		return fmt.Errorf("load spilled events: %w", err)
	}
	if err := p.spill.Clear(); err != nil {
		return err
	}
	return nil
}

// loadWithRetry inserts the batch, retrying with exponential backoff until
// it lands or the context is cancelled.
func (p *Pipeline) loadWithRetry(ctx context.Context, envs []*events.Envelope) error {
	rows := Transform(envs)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.cfg.BackoffInitial
	bo.MaxInterval = p.cfg.BackoffMax

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		start := time.Now()
		err := p.store.InsertBatch(ctx, rows)
		if err == nil {
			metrics.ETLLoadDuration.WithLabelValues("olap").Observe(time.Since(start).Seconds())
			logging.Info().Int("rows", len(rows)).Msg("batch loaded")
			return struct{}{}, nil
		}
		if errors.Is(err, olap.ErrSchemaDrift) {
			// Never retry drift; the operator must intervene.
			return struct{}{}, backoff.Permanent(err)
		}
		logging.Err(err).Int("rows", len(rows)).Msg("batch load failed, will retry")
		return struct{}{}, err
	}, backoff.WithBackOff(bo), backoff.WithMaxElapsedTime(0))
	return err
}

// spillBatch saves whatever a cancelled fetch returned.
func (p *Pipeline) spillBatch(batch *bus.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	envs := etl.ParseBatch(p.cfg.Group, batch)
	if len(envs) == 0 {
		return nil
	}
	if err := p.spill.Save(envs); err != nil {
		return err
	}
	metrics.ETLSpilledEvents.Add(float64(len(envs)))
	logging.Info().Int("events", len(envs)).Msg("fetched events spilled on shutdown")
	return nil
}

func ctxDone(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
