// UGC Pipeline - User-Generated Content ingestion and fan-out for Practix
// Copyright 2026 Practix Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/practix/ugc-pipeline

// Command etl-nosql applies custom events to the document store, keeps the
// derived rating aggregates consistent, and serves the read API over its
// live store. Reads live here because Badger admits a single writer.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/practix/ugc-pipeline/internal/auth"
	"github.com/practix/ugc-pipeline/internal/bus"
	"github.com/practix/ugc-pipeline/internal/bus/amqpbus"
	"github.com/practix/ugc-pipeline/internal/bus/natsbus"
	"github.com/practix/ugc-pipeline/internal/config"
	"github.com/practix/ugc-pipeline/internal/docstore"
	nosqletl "github.com/practix/ugc-pipeline/internal/etl/nosql"
	"github.com/practix/ugc-pipeline/internal/logging"
	"github.com/practix/ugc-pipeline/internal/readapi"
	"github.com/practix/ugc-pipeline/internal/ugc"
)

const defaultGroup = "etl_nosql"

// customTopic is the only topic carrying aggregate-affecting subtypes.
const customTopic = "custom"

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
	if err := cfg.ValidateReadAPI(); err != nil {
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

	store, err := docstore.Open(cfg.DocStore)
	if err != nil {
		return err
	}
	defer store.Close()

	consumer, err := newConsumer(ctx, cfg)
	if err != nil {
		return err
	}
	defer consumer.Close()

	verifier, err := auth.NewVerifier(&cfg.Security)
	if err != nil {
		return err
	}
	router := readapi.NewRouter(cfg, verifier, readapi.NewHandler(ugc.NewService(store)))
	readSrv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logging.Info().Str("addr", readSrv.Addr).Msg("read api listening")
		if err := readSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Err(err).Msg("read api listener failed")
		}
	}()

	pipeline := nosqletl.New(consumer, store, cfg.ETL)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		pipeline.RunReconciler(ctx)
	}()

	logging.Info().
		Str("group", cfg.ETL.Group).
		Str("backend", cfg.Bus.Backend).
		Msg("nosql etl started")
	err = pipeline.Run(ctx)
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := readSrv.Shutdown(shutdownCtx); serr != nil && err == nil {
		err = serr
	}
	return err
}

func newConsumer(ctx context.Context, cfg *config.Config) (bus.Consumer, error) {
	topics := []string{customTopic}
	switch cfg.Bus.Backend {
	case "broker":
		return amqpbus.NewConsumer(cfg.Bus.AMQP, cfg.ETL.Group, topics)
	default:
		return natsbus.NewConsumer(ctx, cfg.Bus.NATS, cfg.ETL.Group, cfg.Bus.Topics, topics)
	}
}
