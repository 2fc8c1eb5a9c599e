// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scalpel exposes the autonomy engine over HTTP.
package scalpel

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/CodeScalpel/services/scalpel/engine"
	"github.com/AleutianAI/CodeScalpel/services/scalpel/governance"
)

// ErrTestPathOutsideRoot is returned for a mutation test file that
// resolves outside the handlers' test root.
var ErrTestPathOutsideRoot = errors.New("test file is outside the test root")

// Handlers contains HTTP handlers for the scalpel API.
type Handlers struct {
	engine   *engine.Engine
	source   governance.Source
	version  string
	testRoot string
}

// HandlerOption configures Handlers.
type HandlerOption func(*Handlers)

// WithTestRoot confines mutation test files to dir. Relative request paths
// are resolved against it. Default: the working directory.
func WithTestRoot(dir string) HandlerOption {
	return func(h *Handlers) {
		if dir != "" {
			h.testRoot = dir
		}
	}
}

// NewHandlers creates handlers over an engine.
//
// Inputs:
//
//	eng - The engine. Must not be nil.
//	source - Where the engine's config was loaded from, echoed by /config.
//	version - Reported by /health.
//	opts - Optional settings such as WithTestRoot.
//
// Outputs:
//
//	*Handlers - The handlers instance.
func NewHandlers(eng *engine.Engine, source governance.Source, version string, opts ...HandlerOption) *Handlers {
	h := &Handlers{
		engine:   eng,
		source:   source,
		version:  version,
		testRoot: ".",
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleCheck handles POST /v1/scalpel/check.
//
// Description:
//
//	Runs the change waterfall for the proposed files. A blocked change is
//	still a 200; the body's "allowed" field carries the decision.
//
// Request Body:
//
//	CheckRequest
//
// Response:
//
//	200 OK: engine.ChangeValidationResult
//	400 Bad Request: Invalid request
func (h *Handlers) HandleCheck(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleCheck")

	var req CheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Info("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Code:    "INVALID_REQUEST",
			Details: err.Error(),
		})
		return
	}

	result := h.engine.CheckChangeAllowed(c.Request.Context(), req.Files, req.LinesChanged,
		engine.WithJustification(req.Justification))
	logger.Debug("Change checked",
		slog.Int("files", len(req.Files)),
		slog.Bool("allowed", result.Allowed),
	)
	c.JSON(http.StatusOK, result)
}

// HandleConfig handles GET /v1/scalpel/config.
//
// Response:
//
//	200 OK: ConfigResponse
func (h *Handlers) HandleConfig(c *gin.Context) {
	getOrCreateRequestID(c)

	verified := make([]string, 0, len(h.source.Verified))
	for _, k := range h.source.Verified {
		verified = append(verified, string(k))
	}
	c.JSON(http.StatusOK, ConfigResponse{
		Config:    h.engine.Config(),
		Path:      h.source.Path,
		FromFile:  h.source.FromFile,
		Verified:  verified,
		Overrides: h.source.Overrides,
	})
}

// HandleValidateMutation handles POST /v1/scalpel/mutation/validate.
//
// Description:
//
//	Runs the mutation gate on a fix. Blocks for as long as the sandbox
//	takes to run the tests once per mutation.
//
// Request Body:
//
//	MutationValidateRequest
//
// Response:
//
//	200 OK: mutation.GateResult
//	400 Bad Request: Invalid request or a test file outside the test root
//	503 Service Unavailable: No sandbox configured
//	500 Internal Server Error: Gate failed to run
func (h *Handlers) HandleValidateMutation(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleValidateMutation")

	var req MutationValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Info("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Code:    "INVALID_REQUEST",
			Details: err.Error(),
		})
		return
	}

	testFiles, err := resolveTestFiles(h.testRoot, req.TestFiles)
	if err != nil {
		logger.Warn("Rejected test file path", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid test file path",
			Code:    "INVALID_TEST_PATH",
			Details: err.Error(),
		})
		return
	}

	result, err := h.engine.VerifyFix(c.Request.Context(), req.OriginalCode, req.FixedCode, testFiles, req.Language)
	if err != nil {
		if errors.Is(err, engine.ErrNoExecutor) {
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{
				Error: "No sandbox executor configured",
				Code:  "NO_EXECUTOR",
			})
			return
		}
		logger.Error("Mutation gate failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Mutation gate failed",
			Code:    "GATE_FAILED",
			Details: err.Error(),
		})
		return
	}

	logger.Info("Mutation gate complete",
		slog.Bool("passed", result.Passed),
		slog.Float64("score", result.MutationScore),
		slog.Bool("hollow", result.HollowFixDetected),
	)
	c.JSON(http.StatusOK, result)
}

// HandleHealth handles GET /v1/scalpel/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: h.version,
	})
}

// getOrCreateRequestID echoes X-Request-ID, generating one when absent.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}

// resolveTestFiles maps request paths to absolute paths under root.
// Relative paths are joined to root. A path that leaves root, directly or
// through a symlink, fails with ErrTestPathOutsideRoot.
func resolveTestFiles(root string, files []string) ([]string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving test root: %w", err)
	}
	realRoot := absRoot
	if r, err := filepath.EvalSymlinks(absRoot); err == nil {
		realRoot = r
	}

	out := make([]string, 0, len(files))
	for _, f := range files {
		p := f
		if !filepath.IsAbs(p) {
			p = filepath.Join(absRoot, p)
		}
		p = filepath.Clean(p)
		if !within(absRoot, p) {
			return nil, fmt.Errorf("%w: %s", ErrTestPathOutsideRoot, f)
		}
		// Missing files are left for the sandbox to report.
		if real, err := filepath.EvalSymlinks(p); err == nil && !within(realRoot, real) {
			return nil, fmt.Errorf("%w: %s", ErrTestPathOutsideRoot, f)
		}
		out = append(out, p)
	}
	return out, nil
}

// within reports whether path names a file strictly below root.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || rel == ".." {
		return false
	}
	return !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
