// UGC Pipeline - User-Generated Content ingestion and fan-out for Practix
// Copyright 2026 Practix Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/practix/ugc-pipeline

// Package spill persists un-loaded event batches across restarts of the
// OLAP ETL: one JSON envelope per line, appended and fsynced on shutdown,
// read back (and cleared) before the first bus fetch after startup.
package spill

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/goccy/go-json"

	"github.com/practix/ugc-pipeline/internal/events"
	"github.com/practix/ugc-pipeline/internal/logging"
)

// File is a line-delimited JSON spill file.
type File struct {
	path string
}

// New returns a spill file at path. The file is created lazily on first Save.
func New(path string) *File {
	return &File{path: path}
}

// Save appends the envelopes and fsyncs. Called once at shutdown with
// whatever the ETL fetched but never loaded.
func (f *File) Save(batch []*events.Envelope) error {
	if len(batch) == 0 {
		return nil
	}

	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open spill file %s: %w", f.path, err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	for _, e := range batch {
		line, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode spill line: %w", err)
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("write spill file %s: %w", f.path, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush spill file %s: %w", f.path, err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync spill file %s: %w", f.path, err)
	}
	return nil
}

// Read returns every envelope in the file. Corrupt lines (a crash can
// truncate the tail) are logged and skipped; a missing file reads as empty.
func (f *File) Read() ([]*events.Envelope, error) {
	file, err := os.Open(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open spill file %s: %w", f.path, err)
	}
	defer file.Close()

	var out []*events.Envelope
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e events.Envelope
		if err := json.Unmarshal(line, &e); err != nil {
			logging.Warn().
				Err(err).
				Int("line", lineNo).
				Str("path", f.path).
				Msg("corrupt spill line skipped")
			continue
		}
		out = append(out, &e)
	}
	if err := scanner.Err(); err != nil {
		return out, fmt.Errorf("read spill file %s: %w", f.path, err)
	}
	return out, nil
}

// Clear removes the file. Called once the recovered events are loaded.
func (f *File) Clear() error {
	err := os.Remove(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("clear spill file %s: %w", f.path, err)
	}
	return nil
}
