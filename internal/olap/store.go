// UGC Pipeline - User-Generated Content ingestion and fan-out for Practix
// Copyright 2026 Practix Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/practix/ugc-pipeline

// Package olap persists events into the columnar DuckDB store. The table is
// append-only; the OLAP ETL inserts whole batches in one transaction and
// commits bus offsets only after the transaction lands.
package olap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	// DuckDB driver registration.
	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/practix/ugc-pipeline/internal/config"
	"github.com/practix/ugc-pipeline/internal/logging"
)

// ErrSchemaDrift is returned when the events table exists with a different
// shape than this binary expects. The ETL treats it as fatal so an operator
// notices instead of silently corrupting the table.
var ErrSchemaDrift = errors.New("olap: events table schema drift")

// Row is one event flattened for the columnar store. ID is assigned per row
// at transform time, so a redelivered event produces a second row with a new
// id but identical envelope fields.
type Row struct {
	ID        string
	EventID   string
	RequestID string
	SessionID string
	UserID    string

	EventTime  time.Time
	UserTS     time.Time
	ServerTS   time.Time
	EventbusTS time.Time

	URL          string
	EventType    string
	EventSubtype string

	// Payload is the flattened payload map, stored as JSON text.
	Payload map[string]string
}

const createTableDDL = `
CREATE TABLE IF NOT EXISTS events (
    id            UUID PRIMARY KEY,
    event_id      UUID NOT NULL,
    request_id    VARCHAR NOT NULL,
    session_id    VARCHAR,
    user_id       VARCHAR NOT NULL,
    event_time    TIMESTAMP NOT NULL,
    user_ts       TIMESTAMP,
    server_ts     TIMESTAMP NOT NULL,
    eventbus_ts   TIMESTAMP,
    url           VARCHAR NOT NULL,
    event_type    VARCHAR NOT NULL,
    event_subtype VARCHAR,
    payload       VARCHAR
)`

// expectedColumns is the schema this binary writes. Order matters: it is
// compared against information_schema at startup.
var expectedColumns = []string{
	"id", "event_id", "request_id", "session_id", "user_id",
	"event_time", "user_ts", "server_ts", "eventbus_ts",
	"url", "event_type", "event_subtype", "payload",
}

// Store wraps the DuckDB connection for the events table.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database, applies resource limits, ensures
// the table exists and verifies the schema.
func Open(ctx context.Context, cfg config.OLAPConfig) (*Store, error) {
	dsn := cfg.Path
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open duckdb %s: %w", dsn, err)
	}

	if cfg.MaxMemory != "" {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("SET memory_limit = '%s'", cfg.MaxMemory)); err != nil {
			db.Close()
			return nil, fmt.Errorf("set memory limit: %w", err)
		}
	}
	if cfg.Threads > 0 {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("SET threads = %d", cfg.Threads)); err != nil {
			db.Close()
			return nil, fmt.Errorf("set threads: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, createTableDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create events table: %w", err)
	}

	s := &Store{db: db}
	if err := s.checkSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	logging.Info().Str("path", dsn).Msg("olap store ready")
	return s, nil
}

// checkSchema compares the live table against expectedColumns.
func (s *Store) checkSchema(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_name = 'events'
		ORDER BY ordinal_position`)
	if err != nil {
		return fmt.Errorf("inspect events table: %w", err)
	}
	defer rows.Close()

	var got []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("inspect events table: %w", err)
		}
		got = append(got, name)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("inspect events table: %w", err)
	}

	if len(got) != len(expectedColumns) {
		return fmt.Errorf("%w: have columns [%s], want [%s]", ErrSchemaDrift,
			strings.Join(got, ","), strings.Join(expectedColumns, ","))
	}
	for i, want := range expectedColumns {
		if got[i] != want {
			return fmt.Errorf("%w: column %d is %q, want %q", ErrSchemaDrift, i, got[i], want)
		}
	}
	return nil
}

const insertSQL = `
INSERT INTO events (
    id, event_id, request_id, session_id, user_id,
    event_time, user_ts, server_ts, eventbus_ts,
    url, event_type, event_subtype, payload
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// InsertBatch inserts all rows in one transaction. Either every row lands
// or none do; the caller retries the whole batch on error.
func (s *Store) InsertBatch(ctx context.Context, batch []Row) error {
	if len(batch) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch insert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return fmt.Errorf("prepare batch insert: %w", err)
	}
	defer stmt.Close()

	for i := range batch {
		r := &batch[i]
		payload, err := json.Marshal(r.Payload)
		if err != nil {
			return fmt.Errorf("marshal payload for %s: %w", r.EventID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.EventID, r.RequestID, nullStr(r.SessionID), r.UserID,
			r.EventTime, nullTime(r.UserTS), r.ServerTS, nullTime(r.EventbusTS),
			r.URL, r.EventType, nullStr(r.EventSubtype), string(payload),
		); err != nil {
			return fmt.Errorf("insert event %s: %w", r.EventID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch insert: %w", err)
	}
	return nil
}

// CountByEventID reports how many rows exist for one event id. Used by
// tests and the health probe.
func (s *Store) CountByEventID(ctx context.Context, eventID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT count(*) FROM events WHERE event_id = ?", eventID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
