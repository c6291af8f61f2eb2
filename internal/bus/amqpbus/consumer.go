// UGC Pipeline - User-Generated Content ingestion and fan-out for Practix
// Copyright 2026 Practix Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/practix/ugc-pipeline

package amqpbus

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/practix/ugc-pipeline/internal/bus"
	"github.com/practix/ugc-pipeline/internal/config"
	"github.com/practix/ugc-pipeline/internal/logging"
	"github.com/practix/ugc-pipeline/internal/metrics"
)

// Consumer implements bus.Consumer over one channel with manual acks.
// Deliveries from all topic queues are merged into a single stream; prefetch
// bounds how many unacknowledged records the broker hands out.
type Consumer struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	deliveries chan amqp.Delivery
	done       chan struct{}
	// lost is closed by watchClose once the connection or channel dies;
	// lostErr is written before the close and read only after observing it.
	lost    chan struct{}
	lostErr error
	group   string
}

// NewConsumer connects, declares the topology and starts consuming every
// topic queue without auto-ack.
func NewConsumer(cfg config.AMQPConfig, group string, topics []string) (*Consumer, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp %s: %w", cfg.URL, err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declareTopology(ch, cfg.Exchange, topics); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("set prefetch: %w", err)
	}

	merged := make(chan amqp.Delivery)
	done := make(chan struct{})
	for _, topic := range topics {
		msgs, err := ch.Consume(topic, group+"."+topic, false, false, false, false, nil)
		if err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("consume queue %s: %w", topic, err)
		}
		go func() {
			for d := range msgs {
				select {
				case merged <- d:
				case <-done:
					// Delivery stays unacked and returns to the queue.
					return
				}
			}
		}()
	}

	c := &Consumer{
		conn:       conn,
		ch:         ch,
		deliveries: merged,
		done:       done,
		lost:       make(chan struct{}),
		group:      group,
	}
	go c.watchClose(
		conn.NotifyClose(make(chan *amqp.Error, 1)),
		ch.NotifyClose(make(chan *amqp.Error, 1)),
	)
	return c, nil
}

// watchClose waits for the broker to drop the connection or channel. Without
// it a dead broker would leave Fetch returning empty batches forever.
func (c *Consumer) watchClose(connClose, chClose chan *amqp.Error) {
	var amqpErr *amqp.Error
	select {
	case amqpErr = <-connClose:
	case amqpErr = <-chClose:
	case <-c.done:
		return
	}
	if amqpErr != nil {
		c.lostErr = amqpErr
		logging.Error().Err(amqpErr).Str("group", c.group).Msg("amqp consumer connection lost")
	}
	close(c.lost)
}

// Fetch collects up to maxBatch deliveries, waiting at most timeout for the
// first one and draining whatever is immediately available after that.
func (c *Consumer) Fetch(ctx context.Context, maxBatch int, timeout time.Duration) (*bus.Batch, error) {
	batch := &bus.Batch{}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for len(batch.Records) < maxBatch {
		select {
		case d, ok := <-c.deliveries:
			if !ok {
				return batch, bus.ErrClosed
			}
			batch.Records = append(batch.Records, recordFromDelivery(d))
			metrics.ConsumeTotal.WithLabelValues(c.group, d.RoutingKey).Inc()
		case <-timer.C:
			return batch, nil
		case <-c.lost:
			if c.lostErr != nil {
				return batch, fmt.Errorf("amqp consume: %w", c.lostErr)
			}
			return batch, bus.ErrClosed
		case <-ctx.Done():
			return batch, ctx.Err()
		}
		if len(batch.Records) == 1 {
			// First record arrived; only drain what is already buffered.
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(50 * time.Millisecond)
		}
	}
	return batch, nil
}

func recordFromDelivery(d amqp.Delivery) bus.Record {
	var busTS int64
	if !d.Timestamp.IsZero() {
		busTS = d.Timestamp.Unix()
	}
	return bus.NewRecord(d.RoutingKey, d.MessageId, d.Body, busTS, func() error {
		return d.Ack(false)
	})
}

// Commit acknowledges every delivery of the batch.
func (c *Consumer) Commit(_ context.Context, b *bus.Batch) error {
	if err := b.Ack(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Close cancels the consumers and closes the connection. Unacknowledged
// deliveries return to the queues.
func (c *Consumer) Close() error {
	close(c.done)
	if c.ch != nil {
		c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
