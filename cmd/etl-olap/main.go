// UGC Pipeline - User-Generated Content ingestion and fan-out for Practix
// Copyright 2026 Practix Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/practix/ugc-pipeline

// Command etl-olap moves events from the bus into the columnar store.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/practix/ugc-pipeline/internal/bus"
	"github.com/practix/ugc-pipeline/internal/bus/amqpbus"
	"github.com/practix/ugc-pipeline/internal/bus/natsbus"
	"github.com/practix/ugc-pipeline/internal/config"
	olapetl "github.com/practix/ugc-pipeline/internal/etl/olap"
	"github.com/practix/ugc-pipeline/internal/logging"
	"github.com/practix/ugc-pipeline/internal/metrics"
	"github.com/practix/ugc-pipeline/internal/olap"
	"github.com/practix/ugc-pipeline/internal/spill"
)

const defaultGroup = "etl_olap"

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("fatal")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.ETL.Group == "" {
		cfg.ETL.Group = defaultGroup
	}
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := olap.Open(ctx, cfg.OLAP)
	if err != nil {
		// Schema drift lands here and must stay fatal.
		return err
	}
	defer store.Close()

	consumer, err := newConsumer(ctx, cfg)
	if err != nil {
		return err
	}
	defer consumer.Close()

	metricsSrv := metrics.NewServer(fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort))
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Err(err).Msg("metrics listener failed")
		}
	}()
	defer metricsSrv.Close()

	pipeline := olapetl.New(consumer, store, spill.New(cfg.ETL.SpillPath), cfg.ETL)
	logging.Info().
		Str("group", cfg.ETL.Group).
		Str("backend", cfg.Bus.Backend).
		Msg("olap etl started")
	return pipeline.Run(ctx)
}

func newConsumer(ctx context.Context, cfg *config.Config) (bus.Consumer, error) {
	switch cfg.Bus.Backend {
	case "broker":
		return amqpbus.NewConsumer(cfg.Bus.AMQP, cfg.ETL.Group, cfg.Bus.Topics)
	default:
		return natsbus.NewConsumer(ctx, cfg.Bus.NATS, cfg.ETL.Group, cfg.Bus.Topics, cfg.Bus.Topics)
	}
}
