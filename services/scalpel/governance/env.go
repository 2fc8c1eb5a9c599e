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
	"log/slog"
	"strconv"
	"strings"
)

// Per-field environment overrides, applied after the file is parsed.
const (
	EnvMaxLines                = "SCALPEL_CHANGE_BUDGET_MAX_LINES"
	EnvMaxFiles                = "SCALPEL_CHANGE_BUDGET_MAX_FILES"
	EnvMaxComplexity           = "SCALPEL_CHANGE_BUDGET_MAX_COMPLEXITY"
	EnvCriticalPaths           = "SCALPEL_CRITICAL_PATHS"
	EnvCriticalPathMaxLines    = "SCALPEL_CRITICAL_PATH_MAX_LINES"
	EnvMaxCallGraphDepth       = "SCALPEL_MAX_CALL_GRAPH_DEPTH"
	EnvMaxAutonomousIterations = "SCALPEL_MAX_AUTONOMOUS_ITERATIONS"
	EnvAuditRetentionDays      = "SCALPEL_AUDIT_RETENTION_DAYS"
)

// intOverride binds an environment variable to an int field.
type intOverride struct {
	key   string
	field func(*Config) *int
}

var intOverrides = []intOverride{
	{EnvMaxLines, func(c *Config) *int { return &c.ChangeBudgeting.MaxLinesPerChange }},
	{EnvMaxFiles, func(c *Config) *int { return &c.ChangeBudgeting.MaxFilesPerChange }},
	{EnvMaxComplexity, func(c *Config) *int { return &c.ChangeBudgeting.MaxComplexityDelta }},
	{EnvCriticalPathMaxLines, func(c *Config) *int { return &c.BlastRadius.CriticalPathMaxLines }},
	{EnvMaxCallGraphDepth, func(c *Config) *int { return &c.BlastRadius.MaxCallGraphDepth }},
	{EnvMaxAutonomousIterations, func(c *Config) *int { return &c.AutonomyConstraints.MaxAutonomousIterations }},
	{EnvAuditRetentionDays, func(c *Config) *int { return &c.Audit.RetentionDays }},
}

// applyEnvOverrides writes set environment values into cfg and returns the
// names of the variables it applied. Unparsable integers are skipped with a
// warning.
func applyEnvOverrides(cfg *Config, lookup LookupFunc, logger *slog.Logger) []string {
	var applied []string

	for _, o := range intOverrides {
		raw, ok := lookup(o.key)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			logger.Warn("Ignoring unparsable governance override",
				slog.String("variable", o.key),
				slog.String("value", raw))
			continue
		}
		*o.field(cfg) = n
		applied = append(applied, o.key)
	}

	// A blank list never clears the file's critical paths.
	if raw, ok := lookup(EnvCriticalPaths); ok && strings.TrimSpace(raw) != "" {
		paths := []string{}
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				paths = append(paths, p)
			}
		}
		if len(paths) == 0 {
			logger.Warn("Ignoring governance override with no paths",
				slog.String("variable", EnvCriticalPaths),
				slog.String("value", raw))
		} else {
			cfg.BlastRadius.CriticalPaths = paths
			applied = append(applied, EnvCriticalPaths)
		}
	}

	return applied
}
