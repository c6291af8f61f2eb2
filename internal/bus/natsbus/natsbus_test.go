// UGC Pipeline - User-Generated Content ingestion and fan-out for Practix
// Copyright 2026 Practix Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/practix/ugc-pipeline

package natsbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/practix/ugc-pipeline/internal/bus/natsbus"
	"github.com/practix/ugc-pipeline/internal/bus/natstest"
	"github.com/practix/ugc-pipeline/internal/config"
	"github.com/practix/ugc-pipeline/internal/events"
)

func testNATSConfig(url string) config.NATSConfig {
	return config.NATSConfig{
		URL:           url,
		StreamName:    "EVENTS",
		SubjectPrefix: "events",
		ConnectWait:   5 * time.Second,
		AckWait:       5 * time.Second,
	}
}

func intPtr(i int) *int { return &i }

func ratingEvent(t *testing.T) (*events.Envelope, []byte) {
	t.Helper()
	e := events.NewEnvelope(events.TypeCustom, events.SubtypeCreateFilmRating)
	e.RequestID = "req-1"
	e.SessionID = "sess-1"
	e.UserID = "4e9f3d4c-1111-4c8e-9f59-6f4a3f1f3b10"
	e.URL = "https://practix.io/"
	if err := e.SetPayload(&events.FilmRatingPayload{
		FilmID: "3f8b2c70-6f86-4c8e-9f59-6f4a3f1f3b10",
		Value:  intPtr(10),
	}); err != nil {
		t.Fatal(err)
	}
	data, err := events.Marshal(e)
	if err != nil {
		t.Fatal(err)
	}
	return e, data
}

func TestPublishFetchCommit(t *testing.T) {
	if testing.Short() {
		t.Skip("embedded nats server")
	}
	cfg := testNATSConfig(natstest.StartServer(t))
	ctx := context.Background()
	topics := []string{"click", "visit", "custom"}

	consumer, err := natsbus.NewConsumer(ctx, cfg, "etl_test", topics, topics)
	if err != nil {
		t.Fatalf("consumer: %v", err)
	}
	defer consumer.Close()

	pub, err := natsbus.NewPublisher(cfg)
	if err != nil {
		t.Fatalf("publisher: %v", err)
	}
	defer pub.Close()

	e, data := ratingEvent(t)
	if err := pub.Publish(ctx, e.Topic(), e.PartitionKey(), data); err != nil {
		t.Fatalf("publish: %v", err)
	}

	batch, err := consumer.Fetch(ctx, 10, 5*time.Second)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if batch.Len() != 1 {
		t.Fatalf("batch len = %d, want 1", batch.Len())
	}

	rec := batch.Records[0]
	if rec.Topic != "custom" {
		t.Fatalf("topic = %q, want custom", rec.Topic)
	}
	if rec.Key != e.PartitionKey() {
		t.Fatalf("key = %q, want %q", rec.Key, e.PartitionKey())
	}
	got, err := events.Unmarshal(rec.Value)
	if err != nil {
		t.Fatal(err)
	}
	if got.EventID != e.EventID {
		t.Fatalf("event id = %q, want %q", got.EventID, e.EventID)
	}
	if rec.BusTS == 0 {
		t.Fatal("eventbus timestamp not stamped")
	}

	if err := consumer.Commit(ctx, batch); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestPublisherRetryDeduplicated(t *testing.T) {
	if testing.Short() {
		t.Skip("embedded nats server")
	}
	cfg := testNATSConfig(natstest.StartServer(t))
	ctx := context.Background()
	topics := []string{"click", "visit", "custom"}

	consumer, err := natsbus.NewConsumer(ctx, cfg, "etl_test", topics, topics)
	if err != nil {
		t.Fatalf("consumer: %v", err)
	}
	defer consumer.Close()

	pub, err := natsbus.NewPublisher(cfg)
	if err != nil {
		t.Fatalf("publisher: %v", err)
	}
	defer pub.Close()

	// The same serialized event published twice carries the same Nats-Msg-Id,
	// so the stream keeps only one copy.
	e, data := ratingEvent(t)
	for i := 0; i < 2; i++ {
		if err := pub.Publish(ctx, e.Topic(), e.PartitionKey(), data); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	batch, err := consumer.Fetch(ctx, 10, 5*time.Second)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if batch.Len() != 1 {
		t.Fatalf("batch len = %d, want the duplicate dropped", batch.Len())
	}
	if err := consumer.Commit(ctx, batch); err != nil {
		t.Fatal(err)
	}
}

func TestGroupSubscribesSubset(t *testing.T) {
	if testing.Short() {
		t.Skip("embedded nats server")
	}
	cfg := testNATSConfig(natstest.StartServer(t))
	ctx := context.Background()
	topics := []string{"click", "visit", "custom"}

	// This group only reads custom, the way the NoSQL ETL does.
	consumer, err := natsbus.NewConsumer(ctx, cfg, "etl_nosql", topics, []string{"custom"})
	if err != nil {
		t.Fatalf("consumer: %v", err)
	}
	defer consumer.Close()

	pub, err := natsbus.NewPublisher(cfg)
	if err != nil {
		t.Fatalf("publisher: %v", err)
	}
	defer pub.Close()

	click := events.NewEnvelope(events.TypeClick, "")
	click.RequestID = "req-1"
	click.SessionID = "sess-1"
	click.UserID = "4e9f3d4c-1111-4c8e-9f59-6f4a3f1f3b10"
	click.URL = "https://practix.io/"
	clickData, err := events.Marshal(click)
	if err != nil {
		t.Fatal(err)
	}
	if err := pub.Publish(ctx, "click", click.EventID, clickData); err != nil {
		t.Fatal(err)
	}

	custom, customData := ratingEvent(t)
	if err := pub.Publish(ctx, "custom", custom.PartitionKey(), customData); err != nil {
		t.Fatal(err)
	}

	batch, err := consumer.Fetch(ctx, 10, 5*time.Second)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if batch.Len() != 1 {
		t.Fatalf("batch len = %d, want only the custom event", batch.Len())
	}
	if batch.Records[0].Topic != "custom" {
		t.Fatalf("topic = %q, want custom", batch.Records[0].Topic)
	}
}
