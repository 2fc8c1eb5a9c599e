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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/CodeScalpel/services/scalpel/lang"
)

// =============================================================================
// LOCAL EXECUTOR
// =============================================================================

// Local runs commands as child processes inside temporary workspaces.
//
// Thread Safety: Safe for concurrent use. Each run gets its own workspace.
type Local struct {
	cfg    *Config
	logger *slog.Logger
}

// NewLocal creates a Local executor.
//
// Inputs:
//
//	logger - Logger for structured logging. Nil uses slog.Default().
//	opts - Optional configuration.
//
// Outputs:
//
//	*Local - Ready to run.
func NewLocal(logger *slog.Logger, opts ...Option) *Local {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	cfg.Clamp()
	return &Local{cfg: cfg, logger: logger}
}

var _ Executor = (*Local)(nil)

// ExecuteWithChanges implements Executor.
//
// Description:
//
//	Copies projectPath into a fresh workspace, writes each change, runs
//	lintCommand (if set) and stops there when it fails, then runs
//	testCommand. ExecutionTimeMs covers both commands.
//
// Outputs:
//
//	Result - Outcome of the commands.
//	error - Workspace setup failures, ErrUnsafePath, ErrNoTestCommand.
//	        Command failures are reported in Result, not as errors.
func (l *Local) ExecuteWithChanges(ctx context.Context, projectPath string, changes []FileChange, testCommand, lintCommand string) (Result, error) {
	if ctx == nil {
		return Result{}, ErrNilContext
	}
	if strings.TrimSpace(testCommand) == "" {
		return Result{}, ErrNoTestCommand
	}

	ws, cleanup, err := l.workspace()
	if err != nil {
		return Result{}, err
	}
	defer cleanup()

	if projectPath != "" {
		if err := copyTree(projectPath, ws, l.cfg.SkipDirs); err != nil {
			return Result{}, fmt.Errorf("copy project: %w", err)
		}
	}
	for _, ch := range changes {
		if err := writeFile(ws, ch.Path, ch.Content); err != nil {
			return Result{}, err
		}
	}

	var total int64
	if strings.TrimSpace(lintCommand) != "" {
		lint := l.run(ctx, ws, lintCommand)
		total += lint.ExecutionTimeMs
		if !lint.Success {
			lint.AllPassed = false
			l.logger.Debug("Lint failed", slog.String("command", lintCommand), slog.Int("exit_code", lint.ExitCode))
			return lint, nil
		}
	}

	res := l.run(ctx, ws, testCommand)
	res.ExecutionTimeMs += total
	return res, nil
}

// RunTests implements Executor.
func (l *Local) RunTests(ctx context.Context, code string, testFiles []string, language string) (Result, error) {
	if ctx == nil {
		return Result{}, ErrNilContext
	}
	cfg, ok := lang.Get(language)
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", lang.ErrUnsupportedLanguage, language)
	}

	ws, cleanup, err := l.workspace()
	if err != nil {
		return Result{}, err
	}
	defer cleanup()

	if err := writeFile(ws, cfg.ModuleFile, code); err != nil {
		return Result{}, err
	}
	for _, tf := range testFiles {
		data, err := os.ReadFile(tf)
		if err != nil {
			return Result{}, fmt.Errorf("read test file: %w", err)
		}
		if err := writeFile(ws, filepath.Base(tf), string(data)); err != nil {
			return Result{}, err
		}
	}
	if cfg.Name == lang.Go {
		if _, err := os.Stat(filepath.Join(ws, "go.mod")); errors.Is(err, os.ErrNotExist) {
			if err := writeFile(ws, "go.mod", "module solution\n\ngo 1.21\n"); err != nil {
				return Result{}, err
			}
		}
	}

	command := cfg.TestCommand
	if override, ok := l.cfg.TestCommands[cfg.Name]; ok && override != "" {
		command = override
	}
	return l.run(ctx, ws, command), nil
}

// run executes one shell command in dir with timeout and output capture.
func (l *Local) run(ctx context.Context, dir, command string) Result {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.CommandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, l.cfg.Shell, "-c", command)
	cmd.Dir = dir
	// Grandchildren can hold the output pipes open after the shell is killed.
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	stdoutLimited := &limitedWriter{w: &stdout, limit: l.cfg.MaxOutputBytes}
	stderrLimited := &limitedWriter{w: &stderr, limit: l.cfg.MaxOutputBytes}
	cmd.Stdout = stdoutLimited
	cmd.Stderr = stderrLimited

	l.logger.Debug("Executing sandbox command",
		slog.String("command", command),
		slog.String("dir", dir),
		slog.Duration("timeout", l.cfg.CommandTimeout),
	)

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	res := Result{
		Stdout:          stdout.String(),
		Stderr:          stderr.String(),
		ExecutionTimeMs: elapsed.Milliseconds(),
		Truncated:       stdoutLimited.truncated || stderrLimited.truncated,
	}

	switch {
	case ctx.Err() == context.DeadlineExceeded:
		res.TimedOut = true
		res.ExitCode = -1
		if res.Stderr == "" {
			res.Stderr = fmt.Sprintf("command timed out after %s", l.cfg.CommandTimeout)
		}
		l.logger.Warn("Sandbox command timed out", slog.String("command", command), slog.Duration("timeout", l.cfg.CommandTimeout))
	case err != nil:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.ExitCode = -1
			res.Stderr += err.Error()
		}
	}

	res.Tests = ParseTestOutput(res.Stdout + "\n" + res.Stderr)
	res.Success = res.ExitCode == 0 && !res.TimedOut
	res.AllPassed = res.Success && !anyFailed(res.Tests)

	l.logger.Info("Sandbox command completed",
		slog.Bool("success", res.Success),
		slog.Int("exit_code", res.ExitCode),
		slog.Int("tests", len(res.Tests)),
		slog.Int64("execution_time_ms", res.ExecutionTimeMs),
	)
	return res
}

// workspace creates an empty workspace directory and its cleanup func.
func (l *Local) workspace() (string, func(), error) {
	root := l.cfg.TempRoot
	if root == "" {
		root = os.TempDir()
	}
	dir := filepath.Join(root, "scalpel-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("create workspace: %w", err)
	}
	cleanup := func() {
		if l.cfg.KeepWorkspace {
			return
		}
		if err := os.RemoveAll(dir); err != nil {
			l.logger.Warn("Failed to remove workspace", slog.String("dir", dir), slog.String("error", err.Error()))
		}
	}
	return dir, cleanup, nil
}

// =============================================================================
// FILESYSTEM HELPERS
// =============================================================================

// writeFile writes content to rel under root, refusing paths that escape it.
func writeFile(root, rel, content string) error {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(clean) || clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s", ErrUnsafePath, rel)
	}
	dst := filepath.Join(root, clean)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", rel, err)
	}
	if err := os.WriteFile(dst, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	return nil
}

// copyTree copies regular files and directories from src into dst.
// Symlinks are skipped.
func copyTree(src, dst string, skip []string) error {
	skipSet := make(map[string]bool, len(skip))
	for _, s := range skip {
		skipSet[s] = true
	}

	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch {
		case d.IsDir():
			if rel != "." && skipSet[d.Name()] {
				return filepath.SkipDir
			}
			return os.MkdirAll(target, 0o755)
		case !d.Type().IsRegular():
			return nil
		}

		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()

		info, err := d.Info()
		if err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, in); err != nil {
			out.Close()
			return err
		}
		return out.Close()
	})
}

// =============================================================================
// LIMITED WRITER
// =============================================================================

// limitedWriter wraps a writer with a size limit.
type limitedWriter struct {
	w         io.Writer
	limit     int
	written   int
	truncated bool
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if lw.written >= lw.limit {
		lw.truncated = true
		return n, nil
	}
	if remaining := lw.limit - lw.written; len(p) > remaining {
		p = p[:remaining]
		lw.truncated = true
	}
	written, err := lw.w.Write(p)
	lw.written += written
	return n, err
}
