// UGC Pipeline - User-Generated Content ingestion and fan-out for Practix
// Copyright 2026 Practix Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/practix/ugc-pipeline

// Package amqpbus implements the bus contracts on RabbitMQ: a direct
// exchange with one durable queue per topic bound by routing key.
// Delivery is persistent and acknowledgement is manual, so the broker
// redelivers anything a consumer fetched but never committed.
package amqpbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/practix/ugc-pipeline/internal/config"
	"github.com/practix/ugc-pipeline/internal/logging"
	"github.com/practix/ugc-pipeline/internal/metrics"
)

// declareTopology declares the exchange, one durable queue per topic and
// the bindings. Safe to call from both producer and consumer; declarations
// are idempotent.
func declareTopology(ch *amqp.Channel, exchange string, topics []string) error {
	if err := ch.ExchangeDeclare(exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	for _, topic := range topics {
		if _, err := ch.QueueDeclare(topic, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", topic, err)
		}
		if err := ch.QueueBind(topic, topic, exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", topic, err)
		}
	}
	return nil
}

// Publisher implements bus.Publisher on the broker. One publish retry after
// reconnect covers the common broker-restart case; anything beyond that
// surfaces to the caller.
type Publisher struct {
	cfg    config.AMQPConfig
	topics []string

	mu     sync.Mutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	closed bool
}

// NewPublisher connects and declares the topology.
func NewPublisher(cfg config.AMQPConfig, topics []string) (*Publisher, error) {
	p := &Publisher{cfg: cfg, topics: topics}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

// connect (re)establishes the connection and channel. Caller holds p.mu.
func (p *Publisher) connect() error {
	conn, err := amqp.Dial(p.cfg.URL)
	if err != nil {
		return fmt.Errorf("dial amqp %s: %w", p.cfg.URL, err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := declareTopology(ch, p.cfg.Exchange, p.topics); err != nil {
		ch.Close()
		conn.Close()
		return err
	}
	p.conn, p.ch = conn, ch
	return nil
}

// Publish routes one persistent record to the topic queue. On a closed
// channel it reconnects and retries exactly once.
func (p *Publisher) Publish(ctx context.Context, topic, key string, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("amqp publish: publisher is closed")
	}

	start := time.Now()
	err := p.publishLocked(ctx, topic, key, value)
	if err != nil {
		logging.Warn().Err(err).Str("topic", topic).Msg("amqp publish failed, reconnecting")
		if rerr := p.connect(); rerr != nil {
			metrics.PublishFailures.WithLabelValues("broker", topic).Inc()
			return fmt.Errorf("amqp reconnect: %w", rerr)
		}
		err = p.publishLocked(ctx, topic, key, value)
	}
	metrics.PublishDuration.WithLabelValues("broker").Observe(time.Since(start).Seconds())
	metrics.PublishTotal.WithLabelValues("broker", topic).Inc()
	if err != nil {
		metrics.PublishFailures.WithLabelValues("broker", topic).Inc()
		return fmt.Errorf("amqp publish to %s: %w", topic, err)
	}
	metrics.PublishAcks.WithLabelValues("broker", topic).Inc()
	return nil
}

func (p *Publisher) publishLocked(ctx context.Context, topic, key string, value []byte) error {
	return p.ch.PublishWithContext(ctx, p.cfg.Exchange, topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    key,
		Timestamp:    time.Now(),
		Body:         value,
	})
}

// Close closes the channel and connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
