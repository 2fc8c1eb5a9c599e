// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scalpel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/CodeScalpel/services/scalpel/engine"
	"github.com/AleutianAI/CodeScalpel/services/scalpel/governance"
	"github.com/AleutianAI/CodeScalpel/services/scalpel/mutation"
	"github.com/AleutianAI/CodeScalpel/services/scalpel/sandbox"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const fixedCode = "def inc(x):\n    return x + 1\n"

// stubExecutor passes tests only for fixedCode.
type stubExecutor struct {
	err       error
	testFiles []string
}

func (s *stubExecutor) ExecuteWithChanges(context.Context, string, []sandbox.FileChange, string, string) (sandbox.Result, error) {
	return sandbox.Result{}, errors.New("not used")
}

func (s *stubExecutor) RunTests(_ context.Context, code string, testFiles []string, _ string) (sandbox.Result, error) {
	s.testFiles = testFiles
	if s.err != nil {
		return sandbox.Result{}, s.err
	}
	if code == fixedCode {
		return sandbox.Result{
			Success:   true,
			AllPassed: true,
			Tests:     []sandbox.TestResult{{Name: "test_inc", Status: sandbox.TestPassed}},
		}, nil
	}
	return sandbox.Result{
		ExitCode: 1,
		Tests:    []sandbox.TestResult{{Name: "test_inc", Status: sandbox.TestFailed}},
	}, nil
}

func testConfig() governance.Config {
	cfg := governance.DefaultConfig()
	cfg.BlastRadius.CriticalPaths = []string{"src/security/"}
	return cfg
}

func setupTestRouter(opts ...engine.Option) *gin.Engine {
	return newTestRouter(testConfig(), nil, opts...)
}

func newTestRouter(cfg governance.Config, hopts []HandlerOption, opts ...engine.Option) *gin.Engine {
	router := gin.New()
	eng := engine.New(cfg, opts...)
	handlers := NewHandlers(eng, governance.Source{
		Path:     ".code-scalpel/governance.yaml",
		FromFile: true,
		Verified: []governance.IntegrityKind{governance.IntegrityHash},
	}, "test", hopts...)
	v1 := router.Group("/v1")
	RegisterRoutes(v1, handlers)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandlers_HandleHealth(t *testing.T) {
	w := doJSON(t, setupTestRouter(), http.MethodGet, "/v1/scalpel/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "test", resp.Version)
}

func TestHandlers_HandleCheck(t *testing.T) {
	router := setupTestRouter()

	t.Run("allowed", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/v1/scalpel/check", CheckRequest{
			Files:        []string{"src/app/main.py"},
			LinesChanged: map[string]int{"src/app/main.py": 12},
		})
		require.Equal(t, http.StatusOK, w.Code)

		var resp engine.ChangeValidationResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Allowed)
		assert.False(t, resp.IsCritical)
		assert.Equal(t, 500, resp.Limits.MaxLinesAllowed)
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	})

	t.Run("critical path exceeded", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/v1/scalpel/check", CheckRequest{
			Files:        []string{"src/security/auth.py"},
			LinesChanged: map[string]int{"src/security/auth.py": 80},
		})
		require.Equal(t, http.StatusOK, w.Code)

		var resp engine.ChangeValidationResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Allowed)
		assert.True(t, resp.CriticalPathViolation)
		assert.Equal(t, []string{"src/security/auth.py"}, resp.CriticalFiles)
	})

	t.Run("request id echoed", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/v1/scalpel/check",
			bytes.NewBufferString(`{"files":["a.py"]}`))
		req.Header.Set("X-Request-ID", "req-123")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
	})
}

func TestHandlers_HandleCheck_InvalidRequest(t *testing.T) {
	router := setupTestRouter()

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"files":`},
		{"missing files", `{"lines_changed":{"a.py":1}}`},
		{"empty files", `{"files":[]}`},
		{"blank file name", `{"files":[""]}`},
		{"negative lines", `{"files":["a.py"],"lines_changed":{"a.py":-1}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodPost, "/v1/scalpel/check", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			require.Equal(t, http.StatusBadRequest, w.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "INVALID_REQUEST", resp.Code)
		})
	}
}

func TestHandlers_HandleCheck_Justification(t *testing.T) {
	cfg := testConfig()
	cfg.ChangeBudgeting.RequireJustification = true
	router := newTestRouter(cfg, nil)
	body := CheckRequest{Files: []string{"app/a.py"}, LinesChanged: map[string]int{"app/a.py": 4}}

	w := doJSON(t, router, http.MethodPost, "/v1/scalpel/check", body)
	require.Equal(t, http.StatusOK, w.Code)
	var resp engine.ChangeValidationResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Allowed)

	body.Justification = "pager skips the last page"
	w = doJSON(t, router, http.MethodPost, "/v1/scalpel/check", body)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Allowed)
}

func TestHandlers_HandleConfig(t *testing.T) {
	w := doJSON(t, setupTestRouter(), http.MethodGet, "/v1/scalpel/config", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp ConfigResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{"src/security/"}, resp.Config.BlastRadius.CriticalPaths)
	assert.Equal(t, 10, resp.Config.AutonomyConstraints.MaxAutonomousIterations)
	assert.True(t, resp.FromFile)
	assert.Equal(t, []string{string(governance.IntegrityHash)}, resp.Verified)
}

func TestHandlers_HandleValidateMutation(t *testing.T) {
	router := setupTestRouter(engine.WithExecutor(&stubExecutor{}))

	w := doJSON(t, router, http.MethodPost, "/v1/scalpel/mutation/validate", MutationValidateRequest{
		OriginalCode: "def inc(x):\n    return x\n",
		FixedCode:    fixedCode,
		TestFiles:    []string{"test_inc.py"},
		Language:     "python",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp mutation.GateResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Passed)
	assert.False(t, resp.HollowFixDetected)
	assert.Equal(t, resp.MutationsTested, resp.MutationsCaught)
	assert.GreaterOrEqual(t, resp.MutationsTested, 1)
}

func TestHandlers_HandleValidateMutation_Hollow(t *testing.T) {
	router := setupTestRouter(engine.WithExecutor(&stubExecutor{}))

	// The "original" is the fixed code itself, so the revert passes.
	w := doJSON(t, router, http.MethodPost, "/v1/scalpel/mutation/validate", MutationValidateRequest{
		OriginalCode: fixedCode,
		FixedCode:    fixedCode,
		TestFiles:    []string{"test_inc.py"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp mutation.GateResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Passed)
	assert.True(t, resp.HollowFixDetected)
	assert.Equal(t, []string{"test_inc"}, resp.WeakTests)
}

func TestHandlers_HandleValidateMutation_Errors(t *testing.T) {
	valid := MutationValidateRequest{
		OriginalCode: "def inc(x):\n    return x\n",
		FixedCode:    fixedCode,
		TestFiles:    []string{"test_inc.py"},
	}

	t.Run("no executor", func(t *testing.T) {
		w := doJSON(t, setupTestRouter(), http.MethodPost, "/v1/scalpel/mutation/validate", valid)
		require.Equal(t, http.StatusServiceUnavailable, w.Code)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "NO_EXECUTOR", resp.Code)
	})

	t.Run("unknown language", func(t *testing.T) {
		bad := valid
		bad.Language = "cobol"
		router := setupTestRouter(engine.WithExecutor(&stubExecutor{}))
		w := doJSON(t, router, http.MethodPost, "/v1/scalpel/mutation/validate", bad)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing test files", func(t *testing.T) {
		bad := valid
		bad.TestFiles = nil
		router := setupTestRouter(engine.WithExecutor(&stubExecutor{}))
		w := doJSON(t, router, http.MethodPost, "/v1/scalpel/mutation/validate", bad)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("sandbox error is reported in the result", func(t *testing.T) {
		router := setupTestRouter(engine.WithExecutor(&stubExecutor{err: errors.New("docker down")}))
		w := doJSON(t, router, http.MethodPost, "/v1/scalpel/mutation/validate", valid)
		require.Equal(t, http.StatusOK, w.Code)
		var resp mutation.GateResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Passed)
		assert.NotEmpty(t, resp.Recommendations)
	})
}

func TestHandlers_HandleValidateMutation_TestRoot(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "test_inc.py"), []byte("def test_inc(): pass\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.py"), []byte("KEY = 1\n"), 0o644))
	require.NoError(t, os.Symlink(filepath.Join(outside, "secret.py"), filepath.Join(root, "link.py")))

	exec := &stubExecutor{}
	router := newTestRouter(testConfig(), []HandlerOption{WithTestRoot(root)}, engine.WithExecutor(exec))
	req := func(files ...string) MutationValidateRequest {
		return MutationValidateRequest{
			OriginalCode: "def inc(x):\n    return x\n",
			FixedCode:    fixedCode,
			TestFiles:    files,
		}
	}

	t.Run("relative path resolves under root", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/v1/scalpel/mutation/validate", req("test_inc.py"))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []string{filepath.Join(root, "test_inc.py")}, exec.testFiles)
	})

	t.Run("absolute path under root", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/v1/scalpel/mutation/validate", req(filepath.Join(root, "test_inc.py")))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	for name, path := range map[string]string{
		"parent traversal": "../" + filepath.Base(outside) + "/secret.py",
		"absolute outside": filepath.Join(outside, "secret.py"),
		"system file":      "/etc/passwd",
		"root itself":      ".",
		"symlink escape":   "link.py",
	} {
		t.Run(name, func(t *testing.T) {
			exec.testFiles = nil
			w := doJSON(t, router, http.MethodPost, "/v1/scalpel/mutation/validate", req("test_inc.py", path))
			require.Equal(t, http.StatusBadRequest, w.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "INVALID_TEST_PATH", resp.Code)
			assert.Nil(t, exec.testFiles, "sandbox never runs")
		})
	}
}

func TestResolveTestFiles(t *testing.T) {
	root := t.TempDir()
	got, err := resolveTestFiles(root, []string{"a/test_x.py", "./b/../test_y.py"})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "a", "test_x.py"), filepath.Join(root, "test_y.py")}, got)

	_, err = resolveTestFiles(root, []string{"a/../../x.py"})
	assert.ErrorIs(t, err, ErrTestPathOutsideRoot)
}
