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

import "time"

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config holds configuration for a fix loop.
type Config struct {
	// MaxAttempts is the maximum number of recorded attempts.
	// Default: 5
	MaxAttempts int

	// MaxDuration is the wall-clock budget, checked at attempt boundaries
	// and around the sandbox call.
	// Default: 5m
	MaxDuration time.Duration

	// MinConfidence filters fixes below this confidence.
	// Default: 0.5
	MinConfidence float64

	// TestCommand is passed to the sandbox.
	// Default: "pytest"
	TestCommand string

	// LintCommand is passed to the sandbox. Empty skips linting.
	LintCommand string

	// FilePath is the patched file's path within the project. Empty uses
	// "main" plus the language's extension.
	FilePath string
}

// DefaultConfig returns a Config with sensible defaults.
//
// Outputs:
//
//	*Config - Configuration with default values
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:   5,
		MaxDuration:   300 * time.Second,
		MinConfidence: 0.5,
		TestCommand:   "pytest",
	}
}

// Clamp pulls the configuration back to usable values.
func (c *Config) Clamp() {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = 300 * time.Second
	}
	if c.MinConfidence < 0 {
		c.MinConfidence = 0
	}
	if c.MinConfidence > 1 {
		c.MinConfidence = 1
	}
	if c.TestCommand == "" {
		c.TestCommand = "pytest"
	}
}

// =============================================================================
// CONFIGURATION OPTIONS
// =============================================================================

// Option is a function that modifies Config.
type Option func(*Config)

// WithMaxAttempts sets the attempt limit.
func WithMaxAttempts(n int) Option {
	return func(c *Config) {
		c.MaxAttempts = n
	}
}

// WithMaxDuration sets the wall-clock budget.
func WithMaxDuration(d time.Duration) Option {
	return func(c *Config) {
		c.MaxDuration = d
	}
}

// WithMinConfidence sets the fix confidence threshold.
func WithMinConfidence(v float64) Option {
	return func(c *Config) {
		c.MinConfidence = v
	}
}

// WithTestCommand sets the sandbox test command.
func WithTestCommand(cmd string) Option {
	return func(c *Config) {
		c.TestCommand = cmd
	}
}

// WithLintCommand sets the sandbox lint command.
func WithLintCommand(cmd string) Option {
	return func(c *Config) {
		c.LintCommand = cmd
	}
}

// WithFilePath sets the patched file path.
func WithFilePath(path string) Option {
	return func(c *Config) {
		c.FilePath = path
	}
}

// NewConfig returns DefaultConfig() with opts applied and clamped.
func NewConfig(opts ...Option) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	cfg.Clamp()
	return cfg
}
