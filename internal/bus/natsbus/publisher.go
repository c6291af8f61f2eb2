// UGC Pipeline - User-Generated Content ingestion and fan-out for Practix
// Copyright 2026 Practix Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/practix/ugc-pipeline

package natsbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/practix/ugc-pipeline/internal/config"
	"github.com/practix/ugc-pipeline/internal/logging"
	"github.com/practix/ugc-pipeline/internal/metrics"
)

// keyHeader carries the partition key on the wire so consumers can observe
// the keying discipline.
const keyHeader = "Partition-Key"

// Publisher implements bus.Publisher on JetStream via watermill, with a
// circuit breaker so a dead bus fails fast instead of piling up goroutines.
type Publisher struct {
	publisher message.Publisher
	breaker   *gobreaker.CircuitBreaker[any]
	prefix    string

	mu     sync.RWMutex
	closed bool
}

// NewPublisher creates the JetStream publisher. The stream must already
// exist; publishing does not auto-provision.
func NewPublisher(cfg config.NATSConfig) (*Publisher, error) {
	logger := watermill.NewStdLogger(false, false)

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logging.Warn().Err(err).Msg("nats publisher disconnected")
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logging.Info().Str("url", nc.ConnectedUrl()).Msg("nats publisher reconnected")
		}),
	}

	pub, err := wmnats.NewPublisher(wmnats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmnats.NATSMarshaler{},
		JetStream: wmnats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: false,
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "nats-publish",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})

	return &Publisher{
		publisher: pub,
		breaker:   breaker,
		prefix:    cfg.SubjectPrefix,
	}, nil
}

// Ready reports whether the publisher can currently accept records. It
// fails fast while the circuit breaker is open so callers do not queue
// publishes that are certain to fail.
func (p *Publisher) Ready() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return fmt.Errorf("nats publish: publisher is closed")
	}
	if p.breaker.State() == gobreaker.StateOpen {
		return fmt.Errorf("nats publish: %w", gobreaker.ErrOpenState)
	}
	return nil
}

// Publish sends one record to the topic's subject. The event id from the
// value doubles as Nats-Msg-Id so JetStream deduplicates publisher retries.
func (p *Publisher) Publish(ctx context.Context, topic, key string, value []byte) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return fmt.Errorf("nats publish: publisher is closed")
	}
	p.mu.RUnlock()

	msgID := eventID(value)
	if msgID == "" {
		msgID = watermill.NewUUID()
	}
	msg := message.NewMessage(msgID, value)
	msg.Metadata.Set(natsgo.MsgIdHdr, msgID)
	msg.Metadata.Set(keyHeader, key)

	subject := Subject(p.prefix, topic)
	start := time.Now()
	_, err := p.breaker.Execute(func() (any, error) {
		return nil, p.publisher.Publish(subject, msg)
	})
	metrics.PublishDuration.WithLabelValues("log").Observe(time.Since(start).Seconds())
	metrics.PublishTotal.WithLabelValues("log", topic).Inc()
	if err != nil {
		metrics.PublishFailures.WithLabelValues("log", topic).Inc()
		return fmt.Errorf("nats publish to %s: %w", subject, err)
	}
	metrics.PublishAcks.WithLabelValues("log", topic).Inc()
	return nil
}

// Close shuts the underlying watermill publisher down.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.publisher.Close()
}

// eventID pulls event_id out of the serialized envelope without decoding
// the whole document.
func eventID(value []byte) string {
	var probe struct {
		EventID string `json:"event_id"`
	}
	if err := json.Unmarshal(value, &probe); err != nil {
		return ""
	}
	return probe.EventID
}
