// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package patch turns a proposed fix into new source text.
//
// A fix is either a unified diff (with or without ---/+++ file headers) or,
// when it contains no hunk header, the complete replacement source. Hunks
// are applied strictly: context and removed lines must match the current
// source exactly, otherwise Apply fails with ErrHunkMismatch.
package patch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

var (
	// ErrInvalidDiff indicates the fix looks like a diff but does not parse.
	ErrInvalidDiff = errors.New("invalid unified diff")

	// ErrMultiFileDiff indicates a diff touching more than one file.
	ErrMultiFileDiff = errors.New("diff touches more than one file")

	// ErrHunkMismatch indicates a hunk's context does not match the source.
	ErrHunkMismatch = errors.New("hunk does not match source")

	// ErrEmptyFix indicates an empty fix.
	ErrEmptyFix = errors.New("fix is empty")
)

// Mode records how a fix was applied.
type Mode string

const (
	ModeDiff    Mode = "diff"
	ModeReplace Mode = "replace"
	ModeDelete  Mode = "delete"
)

// Result is the outcome of Apply.
type Result struct {
	Code         string
	Mode         Mode
	Hunks        int
	LinesAdded   int
	LinesRemoved int
}

// IsDiff reports whether fix should be treated as a unified diff.
func IsDiff(fix string) bool {
	return strings.HasPrefix(fix, "@@ ") || strings.Contains(fix, "\n@@ ")
}

// Apply applies fix to source.
//
// Inputs:
//
//	source - Current source text.
//	fix - Unified diff or full replacement text.
//
// Outputs:
//
//	Result - The new source and statistics.
//	error - ErrEmptyFix, ErrInvalidDiff, ErrMultiFileDiff or ErrHunkMismatch.
func Apply(source, fix string) (Result, error) {
	if strings.TrimSpace(fix) == "" {
		return Result{}, ErrEmptyFix
	}
	if !IsDiff(fix) {
		return Result{Code: fix, Mode: ModeReplace}, nil
	}

	hunks, deleted, err := parse(fix)
	if err != nil {
		return Result{}, err
	}
	if deleted {
		return Result{Code: "", Mode: ModeDelete, Hunks: len(hunks)}, nil
	}

	code, added, removed, err := applyHunks(source, hunks)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Code:         code,
		Mode:         ModeDiff,
		Hunks:        len(hunks),
		LinesAdded:   added,
		LinesRemoved: removed,
	}, nil
}

// parse returns the hunks of a single-file diff and whether the diff
// deletes the file.
func parse(fix string) ([]*diff.Hunk, bool, error) {
	if !strings.Contains(fix, "--- ") {
		hunks, err := diff.ParseHunks([]byte(fix))
		if err != nil {
			return nil, false, fmt.Errorf("%w: %v", ErrInvalidDiff, err)
		}
		if len(hunks) == 0 {
			return nil, false, fmt.Errorf("%w: no hunks", ErrInvalidDiff)
		}
		return hunks, false, nil
	}

	files, err := diff.NewMultiFileDiffReader(strings.NewReader(fix)).ReadAllFiles()
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidDiff, err)
	}
	switch {
	case len(files) == 0 || len(files[0].Hunks) == 0:
		return nil, false, fmt.Errorf("%w: no hunks", ErrInvalidDiff)
	case len(files) > 1:
		return nil, false, fmt.Errorf("%w: %d files", ErrMultiFileDiff, len(files))
	}
	fd := files[0]
	return fd.Hunks, fd.NewName == "/dev/null", nil
}

func applyHunks(source string, hunks []*diff.Hunk) (string, int, int, error) {
	trailingNewline := source == "" || strings.HasSuffix(source, "\n")
	var orig []string
	if source != "" {
		orig = strings.Split(strings.TrimSuffix(source, "\n"), "\n")
	}

	out := make([]string, 0, len(orig))
	idx, added, removed := 0, 0, 0

	for h, hunk := range hunks {
		start := int(hunk.OrigStartLine) - 1
		if hunk.OrigLines == 0 {
			// Pure insertion: OrigStartLine is the line the text follows.
			start = int(hunk.OrigStartLine)
		}
		if start < idx || start > len(orig) {
			return "", 0, 0, fmt.Errorf("%w: hunk %d starts at line %d", ErrHunkMismatch, h+1, hunk.OrigStartLine)
		}
		out = append(out, orig[idx:start]...)
		idx = start

		for _, line := range strings.Split(strings.TrimSuffix(string(hunk.Body), "\n"), "\n") {
			if line == "" {
				line = " "
			}
			op, text := line[0], line[1:]
			switch op {
			case '+':
				out = append(out, text)
				added++
			case '-', ' ':
				if idx >= len(orig) || orig[idx] != text {
					return "", 0, 0, fmt.Errorf("%w: hunk %d at line %d: expected %q",
						ErrHunkMismatch, h+1, idx+1, text)
				}
				if op == ' ' {
					out = append(out, text)
				} else {
					removed++
				}
				idx++
			case '\\':
				// "\ No newline at end of file"
			default:
				return "", 0, 0, fmt.Errorf("%w: hunk %d: unexpected line %q", ErrInvalidDiff, h+1, line)
			}
		}
	}
	out = append(out, orig[idx:]...)

	code := strings.Join(out, "\n")
	if trailingNewline && len(out) > 0 {
		code += "\n"
	}
	return code, added, removed, nil
}
