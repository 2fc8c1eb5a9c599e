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
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocal(t *testing.T, opts ...Option) *Local {
	t.Helper()
	opts = append([]Option{WithTempRoot(t.TempDir())}, opts...)
	return NewLocal(slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
}

func makeProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep.txt"), []byte("kept\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "HEAD"), []byte("ref"), 0o644))
	return dir
}

func TestExecuteWithChanges_Success(t *testing.T) {
	l := newTestLocal(t)
	project := makeProject(t)

	res, err := l.ExecuteWithChanges(context.Background(), project,
		[]FileChange{{Path: "src/main.txt", Content: "patched\n"}},
		"cat src/main.txt keep.txt && test ! -e .git", "")
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.True(t, res.AllPassed)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "patched\nkept\n", res.Stdout)
	assert.GreaterOrEqual(t, res.ExecutionTimeMs, int64(0))

	// The original project is untouched.
	_, err = os.Stat(filepath.Join(project, "src", "main.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestExecuteWithChanges_TestFailure(t *testing.T) {
	l := newTestLocal(t)
	res, err := l.ExecuteWithChanges(context.Background(), "", nil,
		"echo 'NameError: x' >&2; exit 1", "")
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.False(t, res.AllPassed)
	assert.Equal(t, 1, res.ExitCode)
	assert.Equal(t, "NameError: x\n", res.Stderr)
}

func TestExecuteWithChanges_LintFailureSkipsTests(t *testing.T) {
	l := newTestLocal(t)
	res, err := l.ExecuteWithChanges(context.Background(), "", nil, "echo ran", "echo lint >&2; exit 3")
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, 3, res.ExitCode)
	assert.NotContains(t, res.Stdout, "ran")
	assert.Contains(t, res.Stderr, "lint")
}

func TestExecuteWithChanges_Timeout(t *testing.T) {
	l := newTestLocal(t, WithCommandTimeout(time.Second))
	res, err := l.ExecuteWithChanges(context.Background(), "", nil, "exec sleep 5", "")
	require.NoError(t, err)

	assert.True(t, res.TimedOut)
	assert.False(t, res.Success)
	assert.Equal(t, -1, res.ExitCode)
}

func TestExecuteWithChanges_Errors(t *testing.T) {
	l := newTestLocal(t)

	_, err := l.ExecuteWithChanges(context.Background(), "", nil, "  ", "")
	assert.ErrorIs(t, err, ErrNoTestCommand)

	_, err = l.ExecuteWithChanges(context.Background(), "", []FileChange{{Path: "../escape.txt"}}, "true", "")
	assert.ErrorIs(t, err, ErrUnsafePath)

	//nolint:staticcheck // nil context is the case under test
	_, err = l.ExecuteWithChanges(nil, "", nil, "true", "")
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestRunTests_WritesModuleAndTests(t *testing.T) {
	testDir := t.TempDir()
	testFile := filepath.Join(testDir, "test_solution.py")
	require.NoError(t, os.WriteFile(testFile, []byte("def test_ok(): pass\n"), 0o644))

	l := newTestLocal(t, WithTestCommand("python", "cat solution.py test_solution.py"))
	res, err := l.RunTests(context.Background(), "x = 1\n", []string{testFile}, "python")
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "x = 1\ndef test_ok(): pass\n", res.Stdout)
}

func TestRunTests_UnsupportedLanguage(t *testing.T) {
	l := newTestLocal(t)
	_, err := l.RunTests(context.Background(), "", nil, "cobol")
	assert.Error(t, err)
}

func TestParseTestOutput(t *testing.T) {
	pytest := `tests/test_calc.py::test_add PASSED                       [ 50%]
tests/test_calc.py::test_sub FAILED                       [100%]
=========================== short test summary info ============================
FAILED tests/test_calc.py::test_sub - assert 1 == 2
`
	got := ParseTestOutput(pytest)
	assert.Equal(t, []TestResult{
		{Name: "tests/test_calc.py::test_add", Status: TestPassed},
		{Name: "tests/test_calc.py::test_sub", Status: TestFailed},
	}, got)

	gotest := `=== RUN   TestAdd
--- PASS: TestAdd (0.00s)
=== RUN   TestSub
    calc_test.go:12: wrong
--- FAIL: TestSub (0.00s)
    --- SKIP: TestSub/skipped (0.00s)
FAIL
`
	got = ParseTestOutput(gotest)
	assert.Equal(t, []TestResult{
		{Name: "TestAdd", Status: TestPassed},
		{Name: "TestSub", Status: TestFailed},
		{Name: "TestSub/skipped", Status: TestSkipped},
	}, got)

	assert.Empty(t, ParseTestOutput("nothing to see"))
}

func TestResult_PassedTests(t *testing.T) {
	r := Result{Tests: []TestResult{
		{Name: "a", Status: TestPassed},
		{Name: "b", Status: TestFailed},
		{Name: "c", Status: TestPassed},
	}}
	assert.Equal(t, []string{"a", "c"}, r.PassedTests())
}

func TestAllPassed_FalseWhenParsedTestFails(t *testing.T) {
	l := newTestLocal(t)
	res, err := l.ExecuteWithChanges(context.Background(), "", nil, "echo '--- FAIL: TestX (0.00s)'", "")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.AllPassed)
}

func TestLimitedWriter(t *testing.T) {
	var buf bytes.Buffer
	lw := &limitedWriter{w: &buf, limit: 4}
	n, err := lw.Write([]byte("abcdef"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, "abcd", buf.String())
	assert.True(t, lw.truncated)

	n, _ = lw.Write([]byte("gh"))
	assert.Equal(t, 2, n)
	assert.Equal(t, "abcd", buf.String())
}

func TestNewLocal_ClampsConfig(t *testing.T) {
	l := NewLocal(nil, WithCommandTimeout(time.Millisecond), WithMaxOutputBytes(10))
	assert.Equal(t, time.Second, l.cfg.CommandTimeout)
	assert.Equal(t, 1024, l.cfg.MaxOutputBytes)
	assert.Equal(t, "sh", l.cfg.Shell)
}
