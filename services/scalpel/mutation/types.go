// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mutation

import "errors"

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	// ErrNilContext indicates a nil context.Context was passed.
	ErrNilContext = errors.New("context must not be nil")

	// ErrNilExecutor indicates the gate was built without a sandbox.
	ErrNilExecutor = errors.New("sandbox executor must not be nil")
)

// =============================================================================
// MUTATIONS
// =============================================================================

// Type identifies how a mutation was produced.
type Type string

const (
	// TypeRevertFix runs the tests against the pre-fix code.
	TypeRevertFix Type = "revert_fix"

	// TypeNegateCondition wraps an if/elif/while/for condition in a negation.
	TypeNegateCondition Type = "negate_condition"

	// TypeNullReturn replaces a returned expression with None.
	TypeNullReturn Type = "null_return"
)

// Mutation is a synthetic edit of the fixed code.
type Mutation struct {
	Type        Type   `json:"type"`
	Code        string `json:"code"`
	Description string `json:"description"`

	// Line and Column locate the mutated node in the fixed code, 1-based.
	// Zero for the revert mutation.
	Line   int `json:"line,omitempty"`
	Column int `json:"column,omitempty"`
}

// MutationResult records one mutation run. TestsFailed is the desired
// outcome: the suite noticed the change.
type MutationResult struct {
	Mutation    Mutation `json:"mutation"`
	TestsFailed bool     `json:"tests_failed"`

	// PassedTests are the tests that still passed against the mutation.
	PassedTests []string `json:"passed_tests,omitempty"`
}

// GateResult is the outcome of ValidateFix.
type GateResult struct {
	// Passed is true only when the score clears the threshold and the fix
	// is not hollow.
	Passed bool `json:"passed"`

	MutationsTested   int     `json:"mutations_tested"`
	MutationsCaught   int     `json:"mutations_caught"`
	MutationsSurvived int     `json:"mutations_survived"`
	MutationScore     float64 `json:"mutation_score"`

	// HollowFixDetected means the tests also pass against the original code.
	HollowFixDetected bool `json:"hollow_fix_detected"`

	WeakTests       []string         `json:"weak_tests"`
	Recommendations []string         `json:"recommendations"`
	Results         []MutationResult `json:"results,omitempty"`

	// SkippedMutations counts generated mutations that were not run because
	// the mutated source did not parse or the sandbox could not execute.
	SkippedMutations int `json:"skipped_mutations,omitempty"`
}

func newGateResult() *GateResult {
	return &GateResult{
		WeakTests:       []string{},
		Recommendations: []string{},
	}
}
