// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package audit records what the autonomy engine allowed, rejected and ran.
//
// Trail is the sink interface. Two implementations ship here: a JSON-lines
// writer for append-only files and a BadgerDB store whose entries expire
// after the configured retention.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types written by the engine.
const (
	EventChangeAllowed  = "change_allowed"
	EventChangeRejected = "change_rejected"
	EventFixLoop        = "fix_loop"
	EventMutationGate   = "mutation_gate"
)

// Record is one audit entry.
type Record struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	EventType  string         `json:"event_type"`
	Operation  string         `json:"operation"`
	InputData  map[string]any `json:"input_data,omitempty"`
	OutputData map[string]any `json:"output_data,omitempty"`
	Success    bool           `json:"success"`
	DurationMs int64          `json:"duration_ms"`
	Metadata   map[string]any `json:"metadata,omitempty"`

	// ParentID links a record to the one that caused it.
	ParentID string `json:"parent_id,omitempty"`
}

// Trail persists audit records.
type Trail interface {
	// Record stores rec and returns its ID. Missing IDs and timestamps
	// are filled in.
	Record(ctx context.Context, rec Record) (string, error)
}

// prepare fills the ID and timestamp.
func prepare(rec Record, now func() time.Time) Record {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = now()
	}
	rec.Timestamp = rec.Timestamp.UTC()
	return rec
}

// Memory keeps records in a slice for the life of the process. Nothing is
// persisted; the binaries use the Badger or JSON-lines sinks.
type Memory struct {
	mu      sync.Mutex
	records []Record
}

// NewMemory creates an empty in-memory trail.
func NewMemory() *Memory {
	return &Memory{}
}

// Record implements Trail.
func (m *Memory) Record(_ context.Context, rec Record) (string, error) {
	rec = prepare(rec, time.Now)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return rec.ID, nil
}

// Records returns a copy of everything recorded so far, oldest first.
func (m *Memory) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}
