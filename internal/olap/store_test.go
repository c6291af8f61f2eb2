// UGC Pipeline - User-Generated Content ingestion and fan-out for Practix
// Copyright 2026 Practix Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/practix/ugc-pipeline

package olap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/practix/ugc-pipeline/internal/config"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), config.OLAPConfig{})
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testRow(eventID string) Row {
	return Row{
		ID:        uuid.New().String(),
		EventID:   eventID,
		RequestID: "req-1",
		SessionID: "sess-1",
		UserID:    "user-1",
		EventTime: time.Now().UTC(),
		ServerTS:  time.Now().UTC(),
		URL:       "https://practix.io/",
		EventType: "click",
		Payload:   map[string]string{"payload": `{"element_id":"btn-1"}`},
	}
}

func TestInsertBatch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	eventID := uuid.New().String()
	batch := []Row{testRow(eventID), testRow(uuid.New().String())}
	if err := s.InsertBatch(ctx, batch); err != nil {
		t.Fatalf("insert: %v", err)
	}

	n, err := s.CountByEventID(ctx, eventID)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}
}

func TestRedeliveredEventMakesSecondRow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	eventID := uuid.New().String()
	if err := s.InsertBatch(ctx, []Row{testRow(eventID)}); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertBatch(ctx, []Row{testRow(eventID)}); err != nil {
		t.Fatal(err)
	}

	n, err := s.CountByEventID(ctx, eventID)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("count = %d, want 2 rows for the redelivered event", n)
	}
}

func TestInsertBatchIsAtomic(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	good := testRow(uuid.New().String())
	bad := testRow(uuid.New().String())
	bad.ID = "not-a-uuid" // violates the UUID column

	if err := s.InsertBatch(ctx, []Row{good, bad}); err == nil {
		t.Fatal("expected insert error")
	}

	n, err := s.CountByEventID(ctx, good.EventID)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("partial batch landed: count = %d", n)
	}
}

func TestEmptyBatchIsNoOp(t *testing.T) {
	s := openTestStore(t)
	if err := s.InsertBatch(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
}

func TestSchemaDriftDetected(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	// Drop a column behind the store's back, then re-check.
	if _, err := s.db.ExecContext(ctx, "ALTER TABLE events DROP COLUMN payload"); err != nil {
		t.Fatal(err)
	}
	err := s.checkSchema(ctx)
	if !errors.Is(err, ErrSchemaDrift) {
		t.Fatalf("err = %v, want ErrSchemaDrift", err)
	}
}
