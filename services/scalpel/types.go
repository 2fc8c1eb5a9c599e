// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scalpel

import (
	"github.com/AleutianAI/CodeScalpel/services/scalpel/governance"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// CheckRequest is the request body for POST /v1/scalpel/check.
type CheckRequest struct {
	// Files are the project-relative paths the change touches.
	Files []string `json:"files" binding:"required,min=1,dive,required"`

	// LinesChanged maps each file to its changed line count. Files
	// missing from the map count as zero.
	LinesChanged map[string]int `json:"lines_changed" binding:"omitempty,dive,min=0"`

	// Justification explains the change. Required when the governance
	// config sets require_justification.
	Justification string `json:"justification,omitempty"`
}

// MutationValidateRequest is the request body for
// POST /v1/scalpel/mutation/validate.
type MutationValidateRequest struct {
	OriginalCode string `json:"original_code" binding:"required"`
	FixedCode    string `json:"fixed_code" binding:"required"`

	// TestFiles are paths under the server's test root. Relative paths are
	// resolved against it.
	TestFiles []string `json:"test_files" binding:"required,min=1,dive,required"`

	// Language defaults to python.
	Language string `json:"language" binding:"omitempty,oneof=python go"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ConfigResponse is the response for GET /v1/scalpel/config.
type ConfigResponse struct {
	Config governance.Config `json:"config"`

	// Path is the resolved config file path, even when it was absent.
	Path      string   `json:"path,omitempty"`
	FromFile  bool     `json:"from_file"`
	Verified  []string `json:"verified,omitempty"`
	Overrides []string `json:"overrides,omitempty"`
}

// HealthResponse is the response for GET /v1/scalpel/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// ErrorResponse is returned for all error cases.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}
