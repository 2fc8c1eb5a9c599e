// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sandbox

import "time"

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config holds configuration for the Local executor.
type Config struct {
	// CommandTimeout bounds each lint or test command.
	// Default: 2m
	CommandTimeout time.Duration

	// MaxOutputBytes caps captured stdout and stderr, each.
	// Default: 65536 (64KB)
	MaxOutputBytes int

	// Shell runs commands as `<Shell> -c <command>`.
	// Default: "sh"
	Shell string

	// TempRoot is where workspaces are created. Empty uses os.TempDir().
	TempRoot string

	// KeepWorkspace leaves workspaces on disk after a run.
	KeepWorkspace bool

	// SkipDirs are directory names not copied into the workspace.
	SkipDirs []string

	// TestCommands overrides the per-language test command used by RunTests.
	TestCommands map[string]string
}

// DefaultConfig returns a Config with sensible defaults.
//
// Outputs:
//
//	*Config - Configuration with default values
func DefaultConfig() *Config {
	return &Config{
		CommandTimeout: 2 * time.Minute,
		MaxOutputBytes: 64 * 1024,
		Shell:          "sh",
		SkipDirs:       []string{".git", "node_modules", "__pycache__", ".venv", ".pytest_cache"},
	}
}

// Clamp pulls out-of-range values back to usable ones.
func (c *Config) Clamp() {
	if c.CommandTimeout < time.Second {
		c.CommandTimeout = time.Second
	}
	if c.MaxOutputBytes < 1024 {
		c.MaxOutputBytes = 1024
	}
	if c.Shell == "" {
		c.Shell = "sh"
	}
}

// Option is a function that modifies Config.
type Option func(*Config)

// WithCommandTimeout sets the per-command timeout.
func WithCommandTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.CommandTimeout = d
	}
}

// WithMaxOutputBytes sets the output capture limit.
func WithMaxOutputBytes(n int) Option {
	return func(c *Config) {
		c.MaxOutputBytes = n
	}
}

// WithTempRoot sets the workspace parent directory.
func WithTempRoot(dir string) Option {
	return func(c *Config) {
		c.TempRoot = dir
	}
}

// WithKeepWorkspace keeps workspaces after runs, for debugging.
func WithKeepWorkspace(keep bool) Option {
	return func(c *Config) {
		c.KeepWorkspace = keep
	}
}

// WithTestCommand overrides the RunTests command for one language.
func WithTestCommand(language, command string) Option {
	return func(c *Config) {
		if c.TestCommands == nil {
			c.TestCommands = make(map[string]string)
		}
		c.TestCommands[language] = command
	}
}
