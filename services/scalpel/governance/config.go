// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package governance loads the policy limits that bound autonomous changes.
//
// A Config is assembled once by a Loader (file, then environment overrides)
// and is read-only afterwards. Components receive it by value or pointer and
// never mutate it; picking up a changed file requires a new Load call.
//
// # Integrity
//
// When SCALPEL_CONFIG_HASH or SCALPEL_CONFIG_SECRET/SCALPEL_CONFIG_SIGNATURE
// are set, the raw file bytes are verified before parsing. A mismatch is the
// only policy condition in this package that returns an error; everything
// else (missing file, unparsable override) degrades to defaults with a
// warning.
//
// # Thread Safety
//
// Config values are safe to share once loaded. Loader is safe for
// concurrent Load calls.
package governance

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config holds every governance limit.
type Config struct {
	ChangeBudgeting     ChangeBudgeting     `json:"change_budgeting" yaml:"change_budgeting"`
	BlastRadius         BlastRadius         `json:"blast_radius" yaml:"blast_radius"`
	AutonomyConstraints AutonomyConstraints `json:"autonomy_constraints" yaml:"autonomy_constraints"`
	Audit               Audit               `json:"audit" yaml:"audit"`
}

// ChangeBudgeting bounds the size of a single proposed change.
type ChangeBudgeting struct {
	// MaxLinesPerChange is the total lines (added + removed) allowed.
	// Default: 500
	MaxLinesPerChange int `json:"max_lines_per_change" yaml:"max_lines_per_change" validate:"min=1"`

	// MaxFilesPerChange is the number of files one change may touch.
	// Default: 10
	MaxFilesPerChange int `json:"max_files_per_change" yaml:"max_files_per_change" validate:"min=1"`

	// MaxComplexityDelta is the allowed growth in decision points.
	// Default: 50
	MaxComplexityDelta int `json:"max_complexity_delta" yaml:"max_complexity_delta" validate:"min=0"`

	RequireJustification        bool `json:"require_justification" yaml:"require_justification"`
	BudgetRefreshIntervalHours int  `json:"budget_refresh_interval_hours" yaml:"budget_refresh_interval_hours" validate:"min=0"`
}

// BlastRadius configures critical-path enforcement.
type BlastRadius struct {
	Enabled              bool `json:"enabled" yaml:"enabled"`
	MaxAffectedFunctions int  `json:"max_affected_functions" yaml:"max_affected_functions" validate:"min=0"`
	MaxAffectedClasses   int  `json:"max_affected_classes" yaml:"max_affected_classes" validate:"min=0"`
	MaxCallGraphDepth    int  `json:"max_call_graph_depth" yaml:"max_call_graph_depth" validate:"min=0"`

	// BlockOnCriticalPaths requires approval for any critical change when
	// security approvals are also required.
	// Default: true
	BlockOnCriticalPaths bool `json:"block_on_critical_paths" yaml:"block_on_critical_paths"`

	// CriticalPaths are fnmatch-style globs or plain path prefixes.
	CriticalPaths []string `json:"critical_paths" yaml:"critical_paths"`

	// CriticalPathMaxLines caps the summed lines across all critical
	// files in one change.
	// Default: 50
	CriticalPathMaxLines int `json:"critical_path_max_lines" yaml:"critical_path_max_lines" validate:"min=0"`

	CriticalPathMaxComplexityDelta int `json:"critical_path_max_complexity_delta" yaml:"critical_path_max_complexity_delta" validate:"min=0"`
}

// AutonomyConstraints bounds the fix loop and approval policy.
type AutonomyConstraints struct {
	// MaxAutonomousIterations caps fix loop attempts.
	// Default: 10
	MaxAutonomousIterations int `json:"max_autonomous_iterations" yaml:"max_autonomous_iterations" validate:"min=1"`

	RequireApprovalForBreakingChanges bool `json:"require_approval_for_breaking_changes" yaml:"require_approval_for_breaking_changes"`
	RequireApprovalForSecurityChanges bool `json:"require_approval_for_security_changes" yaml:"require_approval_for_security_changes"`
	SandboxExecutionRequired          bool `json:"sandbox_execution_required" yaml:"sandbox_execution_required"`
}

// Audit configures the audit trail.
type Audit struct {
	LogAllChanges      bool `json:"log_all_changes" yaml:"log_all_changes"`
	LogRejectedChanges bool `json:"log_rejected_changes" yaml:"log_rejected_changes"`

	// RetentionDays is the audit record TTL. Zero keeps records forever.
	// Default: 90
	RetentionDays int `json:"retention_days" yaml:"retention_days" validate:"min=0"`
}

// DefaultConfig returns the built-in limits used when no file is present.
//
// Outputs:
//
//	Config - Configuration with default values
func DefaultConfig() Config {
	return Config{
		ChangeBudgeting: ChangeBudgeting{
			MaxLinesPerChange:          500,
			MaxFilesPerChange:          10,
			MaxComplexityDelta:         50,
			RequireJustification:       false,
			BudgetRefreshIntervalHours: 24,
		},
		BlastRadius: BlastRadius{
			Enabled:                        true,
			MaxAffectedFunctions:           20,
			MaxAffectedClasses:             5,
			MaxCallGraphDepth:              3,
			BlockOnCriticalPaths:           true,
			CriticalPaths:                  []string{},
			CriticalPathMaxLines:           50,
			CriticalPathMaxComplexityDelta: 10,
		},
		AutonomyConstraints: AutonomyConstraints{
			MaxAutonomousIterations:           10,
			RequireApprovalForBreakingChanges: true,
			RequireApprovalForSecurityChanges: true,
			SandboxExecutionRequired:          true,
		},
		Audit: Audit{
			LogAllChanges:      true,
			LogRejectedChanges: true,
			RetentionDays:      90,
		},
	}
}

// Clone returns a deep copy. The only reference field is CriticalPaths.
func (c Config) Clone() Config {
	out := c
	out.BlastRadius.CriticalPaths = append([]string(nil), c.BlastRadius.CriticalPaths...)
	if out.BlastRadius.CriticalPaths == nil {
		out.BlastRadius.CriticalPaths = []string{}
	}
	return out
}

// fileConfig is the on-disk envelope: every setting lives under "governance".
type fileConfig struct {
	Governance Config `json:"governance" yaml:"governance"`
}
