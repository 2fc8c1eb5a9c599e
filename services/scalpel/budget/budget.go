// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package budget validates the aggregate size of a proposed change.
//
// A change is an Operation of FileChanges. The budget checks, in order:
//
//  1. number of files
//  2. total lines added plus removed
//  3. total complexity delta
//  4. per-file complexity delta for critical-path files
//  5. presence of a justification, when required
//
// Every violated rule is reported; the first one supplies Decision.Reason.
package budget

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/CodeScalpel/services/scalpel/governance"
	"github.com/AleutianAI/CodeScalpel/services/scalpel/lang"
)

// =============================================================================
// TYPES
// =============================================================================

// FileChange is one file's before and after content.
type FileChange struct {
	Path       string `json:"path"`
	OldContent string `json:"old_content"`
	NewContent string `json:"new_content"`

	// Language overrides detection from the file extension.
	Language string `json:"language,omitempty"`
}

// Operation is a proposed change.
type Operation struct {
	Changes       []FileChange `json:"changes"`
	Description   string       `json:"description,omitempty"`
	Justification string       `json:"justification,omitempty"`
}

// Rule names a budget limit.
type Rule string

const (
	RuleMaxFiles              Rule = "max_files_per_change"
	RuleMaxLines              Rule = "max_lines_per_change"
	RuleMaxComplexity         Rule = "max_complexity_delta"
	RuleCriticalMaxComplexity Rule = "critical_path_max_complexity_delta"
	RuleJustificationRequired Rule = "require_justification"
)

// Violation is one broken rule.
type Violation struct {
	Rule   Rule   `json:"rule"`
	Limit  int    `json:"limit"`
	Actual int    `json:"actual"`
	File   string `json:"file,omitempty"`
	Reason string `json:"reason"`
}

// Decision is the outcome of Validate.
type Decision struct {
	Allowed         bool        `json:"allowed"`
	Reason          string      `json:"reason"`
	Violations      []Violation `json:"violations,omitempty"`
	FileCount       int         `json:"file_count"`
	LinesAdded      int         `json:"lines_added"`
	LinesRemoved    int         `json:"lines_removed"`
	ComplexityDelta int         `json:"complexity_delta"`
}

// TotalLines is lines added plus lines removed.
func (d Decision) TotalLines() int {
	return d.LinesAdded + d.LinesRemoved
}

// =============================================================================
// BUDGET
// =============================================================================

// Budget validates operations against governance limits.
//
// Thread Safety: safe for concurrent use if the ComplexityCounter is.
type Budget struct {
	limits     governance.ChangeBudgeting
	critMax    int
	isCritical func(string) bool
	counter    ComplexityCounter
	logger     *slog.Logger
}

// Option configures a Budget.
type Option func(*Budget)

// WithCriticalPathFunc sets the predicate used for the per-file critical
// complexity rule. Default: no file is critical.
func WithCriticalPathFunc(fn func(string) bool) Option {
	return func(b *Budget) {
		if fn != nil {
			b.isCritical = fn
		}
	}
}

// WithComplexityCounter replaces the tree-sitter counter.
func WithComplexityCounter(c ComplexityCounter) Option {
	return func(b *Budget) {
		if c != nil {
			b.counter = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Budget) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// New creates a Budget from cfg.
func New(cfg governance.Config, opts ...Option) *Budget {
	b := &Budget{
		limits:     cfg.ChangeBudgeting,
		critMax:    cfg.BlastRadius.CriticalPathMaxComplexityDelta,
		isCritical: func(string) bool { return false },
		counter:    TreeSitterCounter{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Validate checks op against every budget rule.
//
// Inputs:
//
//	ctx - Context for parsing.
//	op - The proposed change.
//
// Outputs:
//
//	Decision - Allowed is false if any rule is violated.
func (b *Budget) Validate(ctx context.Context, op Operation) Decision {
	d := Decision{FileCount: len(op.Changes)}

	type fileDelta struct {
		path  string
		delta int
	}
	var perFile []fileDelta

	for _, ch := range op.Changes {
		added, removed := LineDelta(ch.OldContent, ch.NewContent)
		d.LinesAdded += added
		d.LinesRemoved += removed

		delta := b.complexityDelta(ctx, ch)
		d.ComplexityDelta += delta
		perFile = append(perFile, fileDelta{path: ch.Path, delta: delta})
	}

	if d.FileCount > b.limits.MaxFilesPerChange {
		d.Violations = append(d.Violations, Violation{
			Rule:   RuleMaxFiles,
			Limit:  b.limits.MaxFilesPerChange,
			Actual: d.FileCount,
			Reason: fmt.Sprintf("Change touches %d files, exceeding max_files_per_change=%d",
				d.FileCount, b.limits.MaxFilesPerChange),
		})
	}

	if total := d.TotalLines(); total > b.limits.MaxLinesPerChange {
		d.Violations = append(d.Violations, Violation{
			Rule:   RuleMaxLines,
			Limit:  b.limits.MaxLinesPerChange,
			Actual: total,
			Reason: fmt.Sprintf("Change modifies %d lines, exceeding max_lines_per_change=%d",
				total, b.limits.MaxLinesPerChange),
		})
	}

	if d.ComplexityDelta > b.limits.MaxComplexityDelta {
		d.Violations = append(d.Violations, Violation{
			Rule:   RuleMaxComplexity,
			Limit:  b.limits.MaxComplexityDelta,
			Actual: d.ComplexityDelta,
			Reason: fmt.Sprintf("Change increases complexity by %d, exceeding max_complexity_delta=%d",
				d.ComplexityDelta, b.limits.MaxComplexityDelta),
		})
	}

	for _, f := range perFile {
		if f.delta > b.critMax && b.isCritical(f.path) {
			d.Violations = append(d.Violations, Violation{
				Rule:   RuleCriticalMaxComplexity,
				Limit:  b.critMax,
				Actual: f.delta,
				File:   f.path,
				Reason: fmt.Sprintf("Critical file %s increases complexity by %d, exceeding critical_path_max_complexity_delta=%d",
					f.path, f.delta, b.critMax),
			})
		}
	}

	if b.limits.RequireJustification && strings.TrimSpace(op.Justification) == "" {
		d.Violations = append(d.Violations, Violation{
			Rule:   RuleJustificationRequired,
			Reason: "Change requires a justification",
		})
	}

	if len(d.Violations) == 0 {
		d.Allowed = true
		d.Reason = "Change within budget"
		return d
	}
	d.Reason = d.Violations[0].Reason
	return d
}

func (b *Budget) complexityDelta(ctx context.Context, ch FileChange) int {
	language := ch.Language
	if language == "" {
		if cfg, ok := lang.FromPath(ch.Path); ok {
			language = cfg.Name
		}
	}
	if language == "" {
		return 0
	}

	before, err := b.counter.Complexity(ctx, language, ch.OldContent)
	if err != nil {
		b.logger.Debug("Complexity count failed", slog.String("path", ch.Path), slog.String("error", err.Error()))
		return 0
	}
	after, err := b.counter.Complexity(ctx, language, ch.NewContent)
	if err != nil {
		b.logger.Debug("Complexity count failed", slog.String("path", ch.Path), slog.String("error", err.Error()))
		return 0
	}
	return after - before
}

// LineDelta counts lines added and removed between two contents. Lines are
// compared as a multiset, so moved lines count as unchanged.
func LineDelta(oldContent, newContent string) (added, removed int) {
	counts := make(map[string]int)
	for _, line := range splitLines(oldContent) {
		counts[line]++
	}
	for _, line := range splitLines(newContent) {
		if counts[line] > 0 {
			counts[line]--
			continue
		}
		added++
	}
	for _, n := range counts {
		removed += n
	}
	return added, removed
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

// PlaceholderContent returns n placeholder lines for building an Operation
// when only line counts are known.
func PlaceholderContent(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("\n", n)
}
