// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fixloop

import (
	"context"
	"time"

	"github.com/AleutianAI/CodeScalpel/services/scalpel/sandbox"
)

// =============================================================================
// STATE
// =============================================================================

// State represents a state in the fix loop state machine.
type State string

const (
	StateStart           State = "start"
	StateAnalyze         State = "analyze"
	StateApply           State = "apply"
	StateSandboxValidate State = "sandbox_validate"
	StateSuccess         State = "success"
	StateEscalate        State = "escalate"
)

// IsTerminal returns true for success and escalate.
func (s State) IsTerminal() bool {
	return s == StateSuccess || s == StateEscalate
}

// TerminationReason is why a run stopped.
type TerminationReason string

const (
	ReasonSuccess       TerminationReason = "success"
	ReasonMaxAttempts   TerminationReason = "max_attempts"
	ReasonTimeout       TerminationReason = "timeout"
	ReasonRepeatedError TerminationReason = "repeated_error"
	ReasonNoFixes       TerminationReason = "no_fixes"
)

// Escalates reports whether the reason hands control to a human.
func (r TerminationReason) Escalates() bool {
	switch r {
	case ReasonMaxAttempts, ReasonTimeout, ReasonRepeatedError, ReasonNoFixes:
		return true
	default:
		return false
	}
}

// =============================================================================
// COLLABORATOR TYPES
// =============================================================================

// FixHint is a proposed patch.
type FixHint struct {
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`

	// Diff is a unified diff against the current code, or the full
	// replacement source.
	Diff     string `json:"diff"`
	Location string `json:"location,omitempty"`
}

// ErrorAnalysis is the analyzer's view of one error.
type ErrorAnalysis struct {
	Message    string    `json:"message"`
	ErrorType  string    `json:"error_type"`
	LineNumber int       `json:"line_number,omitempty"`
	Fixes      []FixHint `json:"fixes"`
}

// ErrorAnalyzer turns error output into ranked fix proposals.
//
// Fixes are expected in preference order; the loop applies the first one
// that clears the confidence threshold without re-sorting.
type ErrorAnalyzer interface {
	AnalyzeError(ctx context.Context, errorOutput, language, sourceCode string) (ErrorAnalysis, error)
}

// Escalator receives control when the loop gives up.
type Escalator interface {
	// Escalate is called synchronously before Run returns.
	Escalate(ctx context.Context, reason TerminationReason, attempts []FixAttempt)
}

// EscalatorFunc adapts a function to Escalator.
type EscalatorFunc func(ctx context.Context, reason TerminationReason, attempts []FixAttempt)

// Escalate implements Escalator.
func (f EscalatorFunc) Escalate(ctx context.Context, reason TerminationReason, attempts []FixAttempt) {
	f(ctx, reason, attempts)
}

// =============================================================================
// REQUEST & RESULT
// =============================================================================

// Request is the input to one run.
type Request struct {
	InitialError string `json:"initial_error"`
	SourceCode   string `json:"source_code"`
	Language     string `json:"language"`
	ProjectPath  string `json:"project_path"`
}

// Validate checks required fields.
func (r Request) Validate() error {
	if r.Language == "" {
		return ErrEmptyLanguage
	}
	return nil
}

// FixAttempt records one iteration.
type FixAttempt struct {
	// AttemptNumber is 1-based and increases by one per attempt.
	AttemptNumber int            `json:"attempt_number"`
	Timestamp     time.Time      `json:"timestamp"`
	ErrorAnalysis ErrorAnalysis  `json:"error_analysis"`
	FixApplied    FixHint        `json:"fix_applied"`
	SandboxResult sandbox.Result `json:"sandbox_result"`
	Success       bool           `json:"success"`

	// DurationMs is the sandbox execution time, never negative.
	DurationMs int64 `json:"duration_ms"`

	// ApplyError is set when the fix could not be applied and the sandbox
	// was not called.
	ApplyError string `json:"apply_error,omitempty"`
}

// Result is the terminal outcome of a run.
type Result struct {
	SessionID string `json:"session_id"`
	Success   bool   `json:"success"`

	// FinalFix is set only on success.
	FinalFix *FixHint `json:"final_fix,omitempty"`

	// FinalCode is the patched source on success.
	FinalCode string `json:"final_code,omitempty"`

	Attempts          []FixAttempt      `json:"attempts"`
	TerminationReason TerminationReason `json:"termination_reason"`
	EscalatedToHuman  bool              `json:"escalated_to_human"`

	// TotalDurationMs is the sum of attempt sandbox times, not wall time.
	TotalDurationMs int64 `json:"total_duration_ms"`
}
