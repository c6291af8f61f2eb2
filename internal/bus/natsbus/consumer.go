// UGC Pipeline - User-Generated Content ingestion and fan-out for Practix
// Copyright 2026 Practix Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/practix/ugc-pipeline

package natsbus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/practix/ugc-pipeline/internal/bus"
	"github.com/practix/ugc-pipeline/internal/config"
	"github.com/practix/ugc-pipeline/internal/metrics"
)

// Consumer implements bus.Consumer as a durable JetStream pull consumer.
// Each consumer group (etl_olap, etl_nosql) gets its own durable, so both
// pipelines read the full stream independently.
type Consumer struct {
	nc       *nats.Conn
	consumer jetstream.Consumer
	group    string
	prefix   string
	ownsConn bool
}

// NewConsumer connects, ensures the stream exists and binds a durable pull
// consumer for the group. The stream always carries streamTopics in full;
// subscribeTopics narrows what this group reads (the NoSQL ETL only reads
// custom). DeliverAll means a fresh group starts from the earliest retained
// record.
func NewConsumer(ctx context.Context, cfg config.NATSConfig, group string, streamTopics, subscribeTopics []string) (*Consumer, error) {
	nc, err := Connect(cfg, nil)
	if err != nil {
		return nil, err
	}

	mgr, err := NewStreamManager(nc, cfg)
	if err != nil {
		nc.Close()
		return nil, err
	}
	stream, err := mgr.EnsureStream(ctx, streamTopics)
	if err != nil {
		nc.Close()
		return nil, err
	}

	subjects := make([]string, len(subscribeTopics))
	for i, t := range subscribeTopics {
		subjects[i] = Subject(cfg.SubjectPrefix, t)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:        group,
		AckPolicy:      jetstream.AckExplicitPolicy,
		DeliverPolicy:  jetstream.DeliverAllPolicy,
		FilterSubjects: subjects,
		AckWait:        cfg.AckWait,
		MaxAckPending:  -1,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create durable consumer %s: %w", group, err)
	}

	return &Consumer{
		nc:       nc,
		consumer: cons,
		group:    group,
		prefix:   cfg.SubjectPrefix,
		ownsConn: true,
	}, nil
}

// Fetch pulls up to maxBatch records, waiting at most timeout for the first.
// Records are not acknowledged here; Commit does that after the load.
func (c *Consumer) Fetch(ctx context.Context, maxBatch int, timeout time.Duration) (*bus.Batch, error) {
	msgs, err := c.consumer.Fetch(maxBatch, jetstream.FetchMaxWait(timeout))
	if err != nil {
		if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return &bus.Batch{}, nil
		}
		return nil, fmt.Errorf("fetch batch: %w", err)
	}

	batch := &bus.Batch{}
	for msg := range msgs.Messages() {
		topic := topicFromSubject(c.prefix, msg.Subject())
		key := msg.Headers().Get(keyHeader)
		var busTS int64
		if meta, err := msg.Metadata(); err == nil {
			busTS = meta.Timestamp.Unix()
		}
		batch.Records = append(batch.Records,
			bus.NewRecord(topic, key, msg.Data(), busTS, msg.Ack))
		metrics.ConsumeTotal.WithLabelValues(c.group, topic).Inc()
	}
	if err := msgs.Error(); err != nil && !errors.Is(err, nats.ErrTimeout) {
		return batch, fmt.Errorf("fetch batch: %w", err)
	}
	return batch, nil
}

// Commit acknowledges every record of the batch.
func (c *Consumer) Commit(_ context.Context, b *bus.Batch) error {
	if err := b.Ack(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Close drains the connection if this consumer owns it.
func (c *Consumer) Close() error {
	if c.ownsConn && c.nc != nil {
		return c.nc.Drain()
	}
	return nil
}

func topicFromSubject(prefix, subject string) string {
	return strings.TrimPrefix(subject, prefix+".")
}
