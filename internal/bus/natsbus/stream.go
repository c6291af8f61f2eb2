// UGC Pipeline - User-Generated Content ingestion and fan-out for Practix
// Copyright 2026 Practix Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/practix/ugc-pipeline

// Package natsbus implements the bus contracts on NATS JetStream: a single
// stream with one subject per topic, watermill publisher with deduplication
// by event id, and durable pull consumers per consumer group.
package natsbus

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/practix/ugc-pipeline/internal/config"
)

// Subject maps a topic to its stream subject, e.g. click -> events.click.
func Subject(prefix, topic string) string {
	return prefix + "." + topic
}

// StreamManager handles JetStream stream lifecycle.
type StreamManager struct {
	js  jetstream.JetStream
	cfg config.NATSConfig
}

// NewStreamManager creates a stream manager on an established connection.
func NewStreamManager(nc *nats.Conn, cfg config.NATSConfig) (*StreamManager, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	return &StreamManager{js: js, cfg: cfg}, nil
}

// EnsureStream creates or updates the events stream with one subject per
// topic. Duplicate tracking keyed by Nats-Msg-Id (= event id) absorbs
// publisher retries inside the window.
func (m *StreamManager) EnsureStream(ctx context.Context, topics []string) (jetstream.Stream, error) {
	subjects := make([]string, len(topics))
	for i, t := range topics {
		subjects[i] = Subject(m.cfg.SubjectPrefix, t)
	}

	streamCfg := jetstream.StreamConfig{
		Name:       m.cfg.StreamName,
		Subjects:   subjects,
		Retention:  jetstream.LimitsPolicy,
		Storage:    jetstream.FileStorage,
		Discard:    jetstream.DiscardOld,
		Duplicates: 2 * time.Minute,
	}

	if _, err := m.js.Stream(ctx, m.cfg.StreamName); err == nil {
		stream, err := m.js.UpdateStream(ctx, streamCfg)
		if err != nil {
			return nil, fmt.Errorf("update stream: %w", err)
		}
		return stream, nil
	}

	stream, err := m.js.CreateStream(ctx, streamCfg)
	if err != nil {
		return nil, fmt.Errorf("create stream: %w", err)
	}
	return stream, nil
}

// Connect dials NATS with the reconnect behaviour shared by producer and
// consumers.
func Connect(cfg config.NATSConfig, onEvent func(event string, err error)) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.Timeout(cfg.ConnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if onEvent != nil {
				onEvent("disconnected", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if onEvent != nil {
				onEvent("reconnected", nil)
			}
		}),
	}
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS %s: %w", cfg.URL, err)
	}
	return nc, nil
}
