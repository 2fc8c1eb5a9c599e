// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package governance

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	// ErrConfigIntegrity indicates the config file failed its SHA-256 hash or
	// HMAC signature check. Always fatal.
	ErrConfigIntegrity = errors.New("governance config integrity check failed")

	// ErrConfigRead indicates the config file exists but could not be read.
	ErrConfigRead = errors.New("governance config read failed")

	// ErrConfigParse indicates the config file is not valid JSON/YAML.
	ErrConfigParse = errors.New("governance config parse failed")

	// ErrInvalidConfig indicates a parsed value violates a constraint
	// (for example max_lines_per_change < 1).
	ErrInvalidConfig = errors.New("invalid governance config")
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// IntegrityKind names which integrity mechanism rejected the file.
type IntegrityKind string

const (
	IntegrityHash IntegrityKind = "sha256"
	IntegrityHMAC IntegrityKind = "hmac"
)

// IntegrityError describes a failed integrity check.
//
// Expected is the value supplied by the environment, Actual is the value
// computed over the raw file bytes.
type IntegrityError struct {
	Kind     IntegrityKind
	Path     string
	Expected string
	Actual   string
	Detail   string
}

// Error implements the error interface.
func (e *IntegrityError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("config %s check failed for %s: %s", e.Kind, e.Path, e.Detail)
	}
	return fmt.Sprintf("config %s check failed for %s: expected %s, got %s",
		e.Kind, e.Path, e.Expected, e.Actual)
}

// Unwrap returns ErrConfigIntegrity so callers can match with errors.Is.
func (e *IntegrityError) Unwrap() error {
	return ErrConfigIntegrity
}
