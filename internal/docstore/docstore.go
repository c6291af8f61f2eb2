// UGC Pipeline - User-Generated Content ingestion and fan-out for Practix
// Copyright 2026 Practix Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/practix/ugc-pipeline

// Package docstore is the document store behind the NoSQL ETL and the read
// API, both living in one process since Badger admits a single writer. Six
// logical collections live in one Badger keyspace, namespaced by key prefix.
// Every ETL event is applied inside a single transaction, so a primary write
// and its aggregate delta land together or not at all.
package docstore

import (
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/practix/ugc-pipeline/internal/config"
	"github.com/practix/ugc-pipeline/internal/logging"
	"github.com/practix/ugc-pipeline/internal/metrics"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("docstore: not found")

// Collection names, used in key prefixes and metrics labels.
const (
	ColFilmUserRating       = "FilmUserRating"
	ColFilmReview           = "FilmReview"
	ColFilmReviewUserRating = "FilmReviewUserRating"
	ColUserBookmark         = "UserBookmark"
	ColFilmRating           = "FilmRating"
	ColFilmReviewRating     = "FilmReviewRating"
)

// Key prefixes. Separator 0x00 cannot occur inside a UUID, so prefix scans
// never bleed into neighbouring collections.
const (
	prefixFilmUserRating   = "fur\x00"
	prefixFilmReview       = "fr\x00"
	prefixReviewByFilm     = "fr-film\x00"
	prefixReviewByFilmUser = "fr-user\x00"
	prefixReviewUserRating = "frur\x00"
	prefixUserBookmark     = "ub\x00"
	prefixFilmRating       = "agg-film\x00"
	prefixReviewRating     = "agg-review\x00"

	sep = "\x00"
)

// Store wraps the Badger database.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the store at the configured path. An empty path
// opens an in-memory store, used by tests.
func Open(cfg config.DocStoreConfig) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path).
		WithLogger(badgerLogger{}).
		WithCompactL0OnClose(true)
	if cfg.Path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open docstore at %q: %w", cfg.Path, err)
	}
	logging.Info().Str("path", cfg.Path).Msg("docstore ready")
	return &Store{db: db}, nil
}

// Update runs fn inside one read-write transaction.
func (s *Store) Update(fn func(tx *Tx) error) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return fn(&Tx{txn: txn, now: time.Now()})
	})
}

// View runs fn inside one read-only transaction.
func (s *Store) View(fn func(tx *Tx) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		return fn(&Tx{txn: txn, now: time.Now()})
	})
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunGC runs one value-log garbage collection pass. Callers schedule it
// periodically; badger.ErrNoRewrite just means there was nothing to do.
func (s *Store) RunGC() error {
	err := s.db.RunValueLogGC(0.5)
	if errors.Is(err, badger.ErrNoRewrite) {
		return nil
	}
	return err
}

// Tx is one docstore transaction. All typed collection operations hang off
// it so the ETL handlers can compose arbitrary reads and writes atomically.
type Tx struct {
	txn *badger.Txn
	now time.Time
}

// Now returns the transaction timestamp, used for created_at/updated_at so
// every write of one event carries the same instant.
func (tx *Tx) Now() time.Time {
	return tx.now
}

// get unmarshals the value at key into out. Maps Badger's not-found onto
// ErrNotFound.
func (tx *Tx) get(key string, out any) error {
	item, err := tx.txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("docstore get %q: %w", key, err)
	}
	return item.Value(func(val []byte) error {
		if err := json.Unmarshal(val, out); err != nil {
			return fmt.Errorf("docstore decode %q: %w", key, err)
		}
		return nil
	})
}

// set marshals v and writes it at key.
func (tx *Tx) set(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("docstore encode %q: %w", key, err)
	}
	if err := tx.txn.Set([]byte(key), data); err != nil {
		return fmt.Errorf("docstore set %q: %w", key, err)
	}
	return nil
}

// del removes key; deleting a missing key is not an error.
func (tx *Tx) del(key string) error {
	if err := tx.txn.Delete([]byte(key)); err != nil {
		return fmt.Errorf("docstore delete %q: %w", key, err)
	}
	return nil
}

// scan iterates all values under prefix, decoding each into a fresh T.
// fn returning false stops the scan early.
func scan[T any](tx *Tx, prefix string, fn func(doc *T) bool) error {
	it := tx.txn.NewIterator(badger.IteratorOptions{
		Prefix:         []byte(prefix),
		PrefetchValues: true,
		PrefetchSize:   100,
	})
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		var doc T
		err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &doc)
		})
		if err != nil {
			return fmt.Errorf("docstore scan %q: %w", prefix, err)
		}
		if !fn(&doc) {
			return nil
		}
	}
	return nil
}

// instrument records one operation's latency and outcome.
func instrument(op, collection string, start time.Time, err error) {
	metrics.RecordDocstoreOp(op, collection, time.Since(start), err)
}

// badgerLogger routes Badger's own log output through zerolog.
type badgerLogger struct{}

func (badgerLogger) Errorf(f string, v ...any)   { logging.Error().Msgf("badger: "+f, v...) }
func (badgerLogger) Warningf(f string, v ...any) { logging.Warn().Msgf("badger: "+f, v...) }
func (badgerLogger) Infof(f string, v ...any)    { logging.Debug().Msgf("badger: "+f, v...) }
func (badgerLogger) Debugf(f string, v ...any)   { logging.Debug().Msgf("badger: "+f, v...) }
