// UGC Pipeline - User-Generated Content ingestion and fan-out for Practix
// Copyright 2026 Practix Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/practix/ugc-pipeline

// Command ugc runs the ingest API: it enriches incoming events and hands
// them to the bus. Reads are served by the NoSQL ETL, which owns the store.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/practix/ugc-pipeline/internal/auth"
	"github.com/practix/ugc-pipeline/internal/bus"
	"github.com/practix/ugc-pipeline/internal/bus/amqpbus"
	"github.com/practix/ugc-pipeline/internal/bus/natsbus"
	"github.com/practix/ugc-pipeline/internal/config"
	"github.com/practix/ugc-pipeline/internal/ingest"
	"github.com/practix/ugc-pipeline/internal/logging"
)

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
	if err := cfg.ValidateIngest(); err != nil {
		return err
	}
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	verifier, err := auth.NewVerifier(&cfg.Security)
	if err != nil {
		return err
	}

	publishers, err := buildPublishers(ctx, cfg)
	if err != nil {
		return err
	}
	dispatcher := ingest.NewDispatcher(cfg.Bus, publishers)
	defer dispatcher.Close()

	handler := ingest.NewHandler(dispatcher)
	router := ingest.NewRouter(cfg, verifier, handler)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", srv.Addr).Msg("ugc api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logging.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildPublishers constructs the pinned backend, plus the other one when
// the per-request override is enabled.
func buildPublishers(ctx context.Context, cfg *config.Config) (map[string]bus.Publisher, error) {
	want := map[string]bool{cfg.Bus.Backend: true}
	if cfg.Bus.AllowRequestOverride {
		want["log"] = true
		want["broker"] = true
	}

	publishers := make(map[string]bus.Publisher, len(want))
	if want["log"] {
		nc, err := natsbus.Connect(cfg.Bus.NATS, func(event string, err error) {
			logging.Warn().Err(err).Str("event", event).Msg("nats connection event")
		})
		if err != nil {
			return nil, err
		}
		mgr, err := natsbus.NewStreamManager(nc, cfg.Bus.NATS)
		if err != nil {
			nc.Close()
			return nil, err
		}
		if _, err := mgr.EnsureStream(ctx, cfg.Bus.Topics); err != nil {
			nc.Close()
			return nil, err
		}
		nc.Close() // the watermill publisher dials its own connection

		pub, err := natsbus.NewPublisher(cfg.Bus.NATS)
		if err != nil {
			return nil, err
		}
		publishers["log"] = pub
	}
	if want["broker"] {
		pub, err := amqpbus.NewPublisher(cfg.Bus.AMQP, cfg.Bus.Topics)
		if err != nil {
			for _, p := range publishers {
				p.Close()
			}
			return nil, err
		}
		publishers["broker"] = pub
	}
	return publishers, nil
}
