// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/AleutianAI/CodeScalpel/services/scalpel/storage/badger"
)

const keyPrefix = "audit/"

// keyTimeFormat is RFC 3339 with fixed nanosecond width, so keys sort in
// time order byte-wise.
const keyTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNilDB indicates the store was built without a database.
var ErrNilDB = errors.New("badger db must not be nil")

// BadgerStore keeps records in BadgerDB under audit/<time>/<id>.
//
// Thread Safety: safe for concurrent use.
type BadgerStore struct {
	db        *badger.DB
	retention time.Duration
	now       func() time.Time
}

// NewBadgerStore creates a store. Records expire after retentionDays; zero
// or less keeps them forever.
func NewBadgerStore(db *badger.DB, retentionDays int) (*BadgerStore, error) {
	if db == nil {
		return nil, ErrNilDB
	}
	var retention time.Duration
	if retentionDays > 0 {
		retention = time.Duration(retentionDays) * 24 * time.Hour
	}
	return &BadgerStore{db: db, retention: retention, now: time.Now}, nil
}

// Record implements Trail.
func (s *BadgerStore) Record(ctx context.Context, rec Record) (string, error) {
	rec = prepare(rec, s.now)

	value, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("marshal audit record: %w", err)
	}
	if err := s.db.PutWithTTL(ctx, recordKey(rec), value, s.retention); err != nil {
		return "", fmt.Errorf("store audit record: %w", err)
	}
	return rec.ID, nil
}

// ListOptions filters List.
type ListOptions struct {
	// Limit caps the result. Zero means 100.
	Limit int

	// EventType keeps only matching records when set.
	EventType string
}

// List returns live records, newest first.
func (s *BadgerStore) List(ctx context.Context, opts ListOptions) ([]Record, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	out := make([]Record, 0, min(limit, 64))
	var decodeErr error
	err := s.db.ScanPrefix(ctx, []byte(keyPrefix), true, func(key, value []byte) bool {
		var rec Record
		if err := json.Unmarshal(value, &rec); err != nil {
			decodeErr = fmt.Errorf("decode %s: %w", key, err)
			return false
		}
		if opts.EventType != "" && rec.EventType != opts.EventType {
			return true
		}
		out = append(out, rec)
		return len(out) < limit
	})
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	return out, nil
}

func recordKey(rec Record) []byte {
	return []byte(keyPrefix + rec.Timestamp.UTC().Format(keyTimeFormat) + "/" + rec.ID)
}
