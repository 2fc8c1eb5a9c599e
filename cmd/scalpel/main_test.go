// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/CodeScalpel/services/scalpel"
	"github.com/AleutianAI/CodeScalpel/services/scalpel/audit"
	"github.com/AleutianAI/CodeScalpel/services/scalpel/engine"
	"github.com/AleutianAI/CodeScalpel/services/scalpel/governance"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// runCLI executes the command tree with args and returns stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	stdout, _, _, err := runCLIFull(t, args...)
	return stdout, err
}

// runCLIFull is runCLI that also returns stderr and the shared app state.
func runCLIFull(t *testing.T, args ...string) (string, string, *app, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root, a := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := execute(root, a)
	return stdout.String(), stderr.String(), a, err
}

// writeProject creates a project dir with a governance config marking
// src/security/ as critical.
func writeProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, governance.ConfigDirName)
	require.NoError(t, os.MkdirAll(cfgDir, 0o755))
	body := `{"governance": {
  "blast_radius": {"critical_paths": ["src/security/"], "critical_path_max_lines": 50},
  "change_budgeting": {"max_lines_per_change": 200}
}}`
	require.NoError(t, os.WriteFile(filepath.Join(cfgDir, "config.json"), []byte(body), 0o644))
	return dir
}

func TestParseChanges(t *testing.T) {
	files, lines, err := parseChanges([]string{"a.py=3", "src/b.py = 7", "a.py=2", "dir=with=eq.py=1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.py", "src/b.py", "dir=with=eq.py"}, files)
	assert.Equal(t, map[string]int{"a.py": 5, "src/b.py": 7, "dir=with=eq.py": 1}, lines)

	for _, bad := range []string{"a.py", "=4", "a.py=", "a.py=x", "a.py=-1"} {
		_, _, err := parseChanges([]string{bad})
		assert.Error(t, err, bad)
	}

	_, _, err = parseChanges(nil)
	assert.ErrorIs(t, err, errNoChanges)
}

func TestConfigShow(t *testing.T) {
	dir := writeProject(t)

	out, err := runCLI(t, "--project-dir", dir, "config", "show", "--format", "json")
	require.NoError(t, err)

	var cfg governance.Config
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, []string{"src/security/"}, cfg.BlastRadius.CriticalPaths)
	assert.Equal(t, 200, cfg.ChangeBudgeting.MaxLinesPerChange)
	// Fields absent from the file keep their defaults.
	assert.Equal(t, 10, cfg.ChangeBudgeting.MaxFilesPerChange)

	out, err = runCLI(t, "--project-dir", dir, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "# source: ")
	assert.Contains(t, out, "max_lines_per_change: 200")

	_, err = runCLI(t, "--project-dir", dir, "config", "show", "--format", "toml")
	assert.Error(t, err)
}

func TestCheck_AllowedAndBlocked(t *testing.T) {
	dir := writeProject(t)

	out, err := runCLI(t, "--project-dir", dir, "--no-audit", "check", "--change", "src/app.py=20")
	require.NoError(t, err)
	var res engine.ChangeValidationResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Allowed)

	out, err = runCLI(t, "--project-dir", dir, "--no-audit", "check", "-c", "src/security/auth.py=80")
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 2, exitErr.Code)
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.False(t, res.Allowed)
	assert.True(t, res.CriticalPathViolation)
}

func TestCheck_RequiresChange(t *testing.T) {
	_, err := runCLI(t, "--project-dir", t.TempDir(), "--no-audit", "check")
	assert.ErrorIs(t, err, errNoChanges)
}

func TestCheck_WritesJSONLAudit(t *testing.T) {
	dir := writeProject(t)
	logPath := filepath.Join(dir, "audit.jsonl")

	_, err := runCLI(t, "--project-dir", dir, "--audit-jsonl", logPath, "check", "-c", "src/app.py=600")
	require.Error(t, err)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var rec audit.Record
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, audit.EventChangeRejected, rec.EventType)
	assert.False(t, rec.Success)
}

func TestAuditList_ReadsBadgerTrail(t *testing.T) {
	dir := writeProject(t)

	_, err := runCLI(t, "--project-dir", dir, "check", "-c", "src/app.py=5")
	require.NoError(t, err)
	_, err = runCLI(t, "--project-dir", dir, "check", "-c", "src/security/auth.py=90")
	require.Error(t, err)

	out, err := runCLI(t, "--project-dir", dir, "audit", "list")
	require.NoError(t, err)
	var records []audit.Record
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 2)
	assert.Equal(t, audit.EventChangeRejected, records[0].EventType, "newest first")
	assert.Equal(t, audit.EventChangeAllowed, records[1].EventType)

	out, err = runCLI(t, "--project-dir", dir, "audit", "list", "--event", audit.EventChangeAllowed)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	assert.Len(t, records, 1)
}

func TestMutate_RequiresFlags(t *testing.T) {
	_, err := runCLI(t, "--project-dir", t.TempDir(), "--no-audit", "mutate", "--original", "a.py")
	assert.Error(t, err)
}

func TestMutate_MissingFile(t *testing.T) {
	dir := t.TempDir()
	_, err := runCLI(t, "--project-dir", dir, "--no-audit", "mutate",
		"--original", filepath.Join(dir, "nope.py"),
		"--fixed", filepath.Join(dir, "nope.py"),
		"--test", "test_nope.py")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading original")
}

func TestMutate_RejectsUnknownLanguage(t *testing.T) {
	dir := t.TempDir()
	_, err := runCLI(t, "--project-dir", dir, "--no-audit", "mutate",
		"--original", "a.rb", "--fixed", "b.rb", "--test", "test_a.rb", "-l", "ruby")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported --language")
}

func TestResolveLanguage(t *testing.T) {
	for in, want := range map[string]string{"python": "python", "Python": "python", " GO ": "go"} {
		got, err := resolveLanguage(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := resolveLanguage("")
	assert.Error(t, err)
}

func TestExecute_ClosesLoggerWhenCheckIsBlocked(t *testing.T) {
	dir := writeProject(t)
	logDir := filepath.Join(dir, "logs")

	_, stderr, a, err := runCLIFull(t, "--project-dir", dir, "--no-audit",
		"--log-dir", logDir, "--log-level", "debug", "--quiet",
		"check", "-c", "src/security/auth.py=80")
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)

	require.NotNil(t, a.logger)
	assert.Empty(t, a.logger.FilePath(), "log file closed after a failing command")
	assert.Empty(t, stderr, "quiet keeps console logs off")

	entries, err := os.ReadDir(logDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	data, err := os.ReadFile(filepath.Join(logDir, entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Governance config loaded")
}

func TestSetup_LogsToStderrByDefault(t *testing.T) {
	dir := writeProject(t)
	_, stderr, _, err := runCLIFull(t, "--project-dir", dir, "--no-audit", "--log-level", "debug", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Governance config loaded")
}

func TestNewRouter(t *testing.T) {
	eng := engine.New(governance.DefaultConfig())
	router := newRouter(eng, governance.Source{}, false)

	req, _ := http.NewRequest(http.MethodGet, "/v1/scalpel/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var health scalpel.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, version, health.Version)

	// Drive a decision so the counter has a sample, then scrape.
	eng.CheckChangeAllowed(req.Context(), []string{"a.py"}, map[string]int{"a.py": 1})
	req, _ = http.NewRequest(http.MethodGet, "/metrics", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "scalpel_change_decisions_total")
}

func TestServe_ListensOnLoopbackByDefault(t *testing.T) {
	root, _ := newRootCmd()
	serve, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", serve.Flags().Lookup("host").DefValue)
	assert.Empty(t, serve.Flags().Lookup("test-root").DefValue)
}

func TestNewRouter_ConfinesMutationTestFiles(t *testing.T) {
	eng := engine.New(governance.DefaultConfig())
	router := newRouter(eng, governance.Source{}, false, scalpel.WithTestRoot(t.TempDir()))

	body := `{"original_code":"x = 0\n","fixed_code":"x = 1\n","test_files":["/etc/passwd"]}`
	req, _ := http.NewRequest(http.MethodPost, "/v1/scalpel/mutation/validate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp scalpel.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "INVALID_TEST_PATH", resp.Code)
}

func TestCheck_Justification(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, governance.ConfigDirName)
	require.NoError(t, os.MkdirAll(cfgDir, 0o755))
	body := `{"governance": {"change_budgeting": {"require_justification": true}}}`
	require.NoError(t, os.WriteFile(filepath.Join(cfgDir, "config.json"), []byte(body), 0o644))

	_, err := runCLI(t, "--project-dir", dir, "--no-audit", "check", "-c", "app.py=3")
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)

	out, err := runCLI(t, "--project-dir", dir, "--no-audit", "check", "-c", "app.py=3", "-j", "fix pager bounds")
	require.NoError(t, err)
	var res engine.ChangeValidationResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Allowed)
}
