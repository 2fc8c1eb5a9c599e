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

import (
	"regexp"
	"strings"
)

// =============================================================================
// TEST OUTPUT PARSERS
// =============================================================================

var (
	goResultPattern = regexp.MustCompile(`^\s*--- (PASS|FAIL|SKIP): (\S+)`)

	// tests/test_x.py::test_a PASSED      [ 50%]
	pytestVerbosePattern = regexp.MustCompile(`^(\S+::\S+)\s+(PASSED|FAILED|ERROR|SKIPPED|XFAIL|XPASS)`)

	// FAILED tests/test_x.py::test_a - AssertionError
	pytestSummaryPattern = regexp.MustCompile(`^(FAILED|ERROR)\s+(\S+::\S+)`)
)

// ParseTestOutput extracts per-test results from `go test -v` or
// `pytest -v` output. Unrecognized output yields no results. A test
// reported more than once keeps its last status.
func ParseTestOutput(output string) []TestResult {
	var (
		order   []string
		results = make(map[string]TestStatus)
	)
	record := func(name string, status TestStatus) {
		if _, ok := results[name]; !ok {
			order = append(order, name)
		}
		results[name] = status
	}

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")

		if m := goResultPattern.FindStringSubmatch(line); m != nil {
			record(m[2], goStatus(m[1]))
			continue
		}
		trimmed := strings.TrimSpace(line)
		if m := pytestVerbosePattern.FindStringSubmatch(trimmed); m != nil {
			record(m[1], pytestStatus(m[2]))
			continue
		}
		if m := pytestSummaryPattern.FindStringSubmatch(trimmed); m != nil {
			record(m[2], pytestStatus(m[1]))
		}
	}

	out := make([]TestResult, 0, len(order))
	for _, name := range order {
		out = append(out, TestResult{Name: name, Status: results[name]})
	}
	return out
}

func goStatus(s string) TestStatus {
	switch s {
	case "PASS":
		return TestPassed
	case "SKIP":
		return TestSkipped
	default:
		return TestFailed
	}
}

func pytestStatus(s string) TestStatus {
	switch s {
	case "PASSED", "XFAIL", "XPASS":
		return TestPassed
	case "SKIPPED":
		return TestSkipped
	case "ERROR":
		return TestError
	default:
		return TestFailed
	}
}

func anyFailed(tests []TestResult) bool {
	for _, t := range tests {
		if t.Status == TestFailed || t.Status == TestError {
			return true
		}
	}
	return false
}
