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

// Config holds configuration for the mutation gate.
type Config struct {
	// MinMutationScore is the caught/tested ratio required to pass.
	// Default: 0.8
	MinMutationScore float64

	// MaxAdditionalMutations caps generated mutations beyond the revert.
	// Default: 10
	MaxAdditionalMutations int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MinMutationScore:       0.8,
		MaxAdditionalMutations: 10,
	}
}

// Clamp pulls the configuration back to usable values.
func (c *Config) Clamp() {
	if c.MinMutationScore < 0 {
		c.MinMutationScore = 0
	}
	if c.MinMutationScore > 1 {
		c.MinMutationScore = 1
	}
	if c.MaxAdditionalMutations < 0 {
		c.MaxAdditionalMutations = 0
	}
}

// Option is a function that modifies Config.
type Option func(*Config)

// WithMinMutationScore sets the pass threshold.
func WithMinMutationScore(v float64) Option {
	return func(c *Config) {
		c.MinMutationScore = v
	}
}

// WithMaxAdditionalMutations sets the generated mutation cap.
func WithMaxAdditionalMutations(n int) Option {
	return func(c *Config) {
		c.MaxAdditionalMutations = n
	}
}
