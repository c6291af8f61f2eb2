// UGC Pipeline - User-Generated Content ingestion and fan-out for Practix
// Copyright 2026 Practix Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/practix/ugc-pipeline

package events

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Marshal serializes an envelope to its canonical JSON wire form.
// The envelope is validated first so malformed events never reach the bus.
func Marshal(e *Envelope) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("marshal: nil envelope")
	}
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	return data, nil
}

// Unmarshal deserializes an envelope from JSON. The result is NOT validated;
// consumers validate (and count) bad records themselves so that a poison
// message can be logged with its contents and skipped.
func Unmarshal(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	return &e, nil
}
