// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package lang holds per-language settings shared by the budget, patch,
// mutation and sandbox packages: tree-sitter grammars, file naming and
// default test commands.
package lang

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/python"
)

// ErrUnsupportedLanguage indicates there is no configuration for a language.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Language identifiers.
const (
	Python = "python"
	Go     = "go"
)

// =============================================================================
// LANGUAGE CONFIGURATION
// =============================================================================

// Config describes one supported language.
type Config struct {
	// Name is the identifier ("python", "go").
	Name string

	// Extensions are file extensions, with the leading dot.
	Extensions []string

	// ModuleFile is the file name code under test is written to when the
	// sandbox builds a throwaway workspace.
	ModuleFile string

	// TestCommand is the default shell command that runs the test suite.
	TestCommand string

	// LineComment starts a single-line comment.
	LineComment string

	grammar func() *sitter.Language
}

var registry = map[string]*Config{
	Python: {
		Name:        Python,
		Extensions:  []string{".py"},
		ModuleFile:  "solution.py",
		TestCommand: "pytest -v",
		LineComment: "#",
		grammar:     python.GetLanguage,
	},
	Go: {
		Name:        Go,
		Extensions:  []string{".go"},
		ModuleFile:  "solution.go",
		TestCommand: "go test -v ./...",
		LineComment: "//",
		grammar:     golang.GetLanguage,
	},
}

// Get returns the configuration for a language name (case-insensitive).
func Get(name string) (*Config, bool) {
	cfg, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	return cfg, ok
}

// FromPath returns the configuration matching a file's extension.
func FromPath(path string) (*Config, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	for _, cfg := range registry {
		for _, e := range cfg.Extensions {
			if e == ext {
				return cfg, true
			}
		}
	}
	return nil, false
}

// Parse parses source with the language's tree-sitter grammar.
//
// Outputs:
//
//	*sitter.Tree - The parse tree. The caller must Close it.
//	error - ErrUnsupportedLanguage or a parser error.
func (c *Config) Parse(ctx context.Context, source []byte) (*sitter.Tree, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(c.grammar())

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", c.Name, err)
	}
	return tree, nil
}

// Parse looks up name and parses source.
func Parse(ctx context.Context, name string, source []byte) (*sitter.Tree, error) {
	cfg, ok := Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, name)
	}
	return cfg.Parse(ctx, source)
}

// HasSyntaxError reports whether source fails to parse cleanly.
func (c *Config) HasSyntaxError(ctx context.Context, source []byte) (bool, error) {
	tree, err := c.Parse(ctx, source)
	if err != nil {
		return false, err
	}
	defer tree.Close()
	return tree.RootNode().HasError(), nil
}
