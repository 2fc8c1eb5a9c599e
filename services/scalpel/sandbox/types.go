// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sandbox runs code and tests on behalf of the fix loop and the
// mutation gate.
//
// The Executor interface is the contract both consumers depend on. Local is
// a process-level implementation: it copies the project into a throwaway
// workspace and runs shell commands there with a timeout and capped output.
// It does not isolate the filesystem or network beyond the workspace copy.
//
// # Blocking
//
// Executor calls are synchronous. Callers that enforce a deadline can only
// notice an overrun after the call returns.
package sandbox

import (
	"context"
	"errors"
)

var (
	// ErrNoTestCommand indicates no test command was given or configured.
	ErrNoTestCommand = errors.New("no test command")

	// ErrUnsafePath indicates a change path escapes the workspace.
	ErrUnsafePath = errors.New("change path escapes workspace")

	// ErrNilContext indicates a nil context.Context was passed.
	ErrNilContext = errors.New("context must not be nil")
)

// FileChange is a file to write into the workspace before running.
type FileChange struct {
	// Path is relative to the project root.
	Path    string `json:"path"`
	Content string `json:"content"`
}

// TestStatus is the outcome of one test case.
type TestStatus string

const (
	TestPassed  TestStatus = "passed"
	TestFailed  TestStatus = "failed"
	TestError   TestStatus = "error"
	TestSkipped TestStatus = "skipped"
)

// TestResult is one test case parsed from runner output.
type TestResult struct {
	Name   string     `json:"name"`
	Status TestStatus `json:"status"`
}

// Passed reports whether the test passed.
func (t TestResult) Passed() bool {
	return t.Status == TestPassed
}

// Result is the outcome of a sandbox run.
type Result struct {
	// Success is true when every command exited zero.
	Success bool `json:"success"`

	// AllPassed is true when the test command exited zero, did not time
	// out, and no parsed test failed.
	AllPassed bool `json:"all_passed"`

	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`

	// ExecutionTimeMs is wall time spent running commands.
	ExecutionTimeMs int64 `json:"execution_time_ms"`

	Tests []TestResult `json:"tests,omitempty"`

	ExitCode  int  `json:"exit_code"`
	TimedOut  bool `json:"timed_out,omitempty"`
	Truncated bool `json:"truncated,omitempty"`
}

// PassedTests returns the names of tests that passed.
func (r Result) PassedTests() []string {
	var names []string
	for _, t := range r.Tests {
		if t.Passed() {
			names = append(names, t.Name)
		}
	}
	return names
}

// FailedResult builds a failed Result carrying msg as stderr. Used when a
// run could not be attempted at all.
func FailedResult(msg string) Result {
	return Result{Stderr: msg, ExitCode: -1}
}

// Executor runs code and tests.
type Executor interface {
	// ExecuteWithChanges copies projectPath, writes changes over the copy,
	// runs lintCommand (when non-empty) then testCommand.
	ExecuteWithChanges(ctx context.Context, projectPath string, changes []FileChange, testCommand, lintCommand string) (Result, error)

	// RunTests writes code as the language's module file next to the given
	// test files in an empty workspace and runs the language's test command.
	RunTests(ctx context.Context, code string, testFiles []string, language string) (Result, error)
}
