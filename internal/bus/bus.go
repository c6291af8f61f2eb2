// UGC Pipeline - User-Generated Content ingestion and fan-out for Practix
// Copyright 2026 Practix Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/practix/ugc-pipeline

// Package bus defines the event bus contracts shared by the ingest API and
// the ETL consumers. Two interchangeable backends implement them: natsbus
// (JetStream log, partitioned and replayable) and amqpbus (RabbitMQ broker,
// queue semantics). Both deliver at-least-once; only the log bus preserves
// per-key ordering.
package bus

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by operations on a closed publisher or consumer.
var ErrClosed = errors.New("bus: closed")

// Publisher sends one event to a topic. Key selects the partition on the
// log bus and is informational on the broker bus.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
	Close() error
}

// Consumer pulls batches of records and commits them after the sink has
// accepted the batch. Records fetched but not committed are redelivered.
type Consumer interface {
	// Fetch returns up to maxBatch records, waiting at most timeout.
	// An empty batch (not an error) means the bus is idle.
	Fetch(ctx context.Context, maxBatch int, timeout time.Duration) (*Batch, error)

	// Commit acknowledges every record of the batch. Commit after load,
	// never before.
	Commit(ctx context.Context, b *Batch) error

	Close() error
}

// Record is one bus record plus its acknowledgement token.
type Record struct {
	Topic string
	Key   string
	Value []byte

	// BusTS is the epoch-seconds timestamp assigned when the bus accepted
	// the record; zero when the backend does not track it.
	BusTS int64

	ack func() error
}

// NewRecord builds a record with an acknowledgement callback. Used by the
// backend adapters and by test fakes.
func NewRecord(topic, key string, value []byte, busTS int64, ack func() error) Record {
	return Record{Topic: topic, Key: key, Value: value, BusTS: busTS, ack: ack}
}

// Batch is a group of records fetched together and committed together.
type Batch struct {
	Records []Record
}

// Len returns the number of records in the batch.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Records)
}

// Ack acknowledges every record. Backends with batch-level commit tokens
// override this path inside Commit; the default acks record by record.
func (b *Batch) Ack() error {
	for i := range b.Records {
		if b.Records[i].ack == nil {
			continue
		}
		if err := b.Records[i].ack(); err != nil {
			return err
		}
	}
	return nil
}
