// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package blast classifies changed files as critical-path and computes the
// line limits that apply to them.
//
// Critical-path lines are aggregated across every critical file in a
// change. Ten 10-line edits to critical files count as 100 lines, never as
// ten separate 10-line changes.
//
// Calculator is safe for concurrent use after construction.
package blast

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/CodeScalpel/services/scalpel/governance"
)

// Fixed reasons returned by CheckCriticalPathImpact.
const (
	ReasonDisabled    = "Blast radius checks disabled"
	ReasonNotAffected = "No critical paths affected"
)

// Impact is the result of a critical-path check.
type Impact struct {
	// IsCritical is true when at least one file matched a critical pattern.
	IsCritical bool `json:"is_critical"`

	// Exceeded is true when the summed critical lines are over the limit.
	// Callers treat this as a hard block.
	Exceeded bool `json:"exceeded"`

	// Reason is a human-readable explanation naming files and limits.
	Reason string `json:"reason"`

	// MaxLinesAllowed is the line limit that applies to this change.
	MaxLinesAllowed int `json:"max_lines_allowed"`

	// CriticalFiles are the normalized paths that matched, in input order.
	CriticalFiles []string `json:"critical_files,omitempty"`

	// CriticalLines is the sum of lines changed across CriticalFiles.
	CriticalLines int `json:"critical_lines"`
}

// Calculator checks changes against the configured critical paths.
type Calculator struct {
	enabled       bool
	patterns      []pattern
	maxLines      int
	criticalLines int
}

// NewCalculator compiles the critical-path patterns in cfg.
func NewCalculator(cfg governance.Config) *Calculator {
	c := &Calculator{
		enabled:       cfg.BlastRadius.Enabled,
		maxLines:      cfg.ChangeBudgeting.MaxLinesPerChange,
		criticalLines: cfg.BlastRadius.CriticalPathMaxLines,
	}
	for _, raw := range cfg.BlastRadius.CriticalPaths {
		c.patterns = append(c.patterns, compilePattern(raw))
	}
	return c
}

// IsCriticalPath reports whether file matches any critical pattern by
// fnmatch glob or plain prefix. Always false when blast radius is disabled.
func (c *Calculator) IsCriticalPath(file string) bool {
	if !c.enabled {
		return false
	}
	return c.matches(NormalizePath(file))
}

func (c *Calculator) matches(normalized string) bool {
	for _, p := range c.patterns {
		if p.match(normalized) {
			return true
		}
	}
	return false
}

// CheckCriticalPathImpact classifies a change.
//
// Description:
//
//	Files are normalized and matched against the critical patterns. When
//	none match, the general per-change line limit applies. Otherwise the
//	lines changed across all matching files are summed and compared with
//	critical_path_max_lines. Files missing from linesChanged count as zero;
//	a file listed twice is counted once.
//
// Inputs:
//
//	files        - Paths touched by the change.
//	linesChanged - Lines changed keyed by path as given in files.
//
// Outputs:
//
//	Impact - Classification; Exceeded marks the hard-block case.
func (c *Calculator) CheckCriticalPathImpact(files []string, linesChanged map[string]int) Impact {
	if !c.enabled {
		return Impact{Reason: ReasonDisabled, MaxLinesAllowed: c.maxLines}
	}

	seen := make(map[string]bool, len(files))
	var critical []string
	total := 0
	for _, f := range files {
		norm := NormalizePath(f)
		if seen[norm] || !c.matches(norm) {
			continue
		}
		seen[norm] = true
		critical = append(critical, norm)
		total += lineCount(linesChanged, f, norm)
	}

	if len(critical) == 0 {
		return Impact{Reason: ReasonNotAffected, MaxLinesAllowed: c.maxLines}
	}

	impact := Impact{
		IsCritical:      true,
		MaxLinesAllowed: c.criticalLines,
		CriticalFiles:   critical,
		CriticalLines:   total,
	}
	names := strings.Join(critical, ", ")
	if total > c.criticalLines {
		impact.Exceeded = true
		impact.Reason = fmt.Sprintf(
			"Critical path change exceeds limit: %d lines changed across critical files [%s], max %d allowed",
			total, names, c.criticalLines)
	} else {
		impact.Reason = fmt.Sprintf(
			"Critical path change within limits: %d of %d lines across critical files [%s]",
			total, c.criticalLines, names)
	}
	return impact
}

// lineCount looks up a file's lines by its raw key, then its normalized form.
func lineCount(linesChanged map[string]int, raw, norm string) int {
	if n, ok := linesChanged[raw]; ok {
		return max(n, 0)
	}
	return max(linesChanged[norm], 0)
}
