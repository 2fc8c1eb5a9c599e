// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fixloop drives a bounded, supervised retry loop that turns an
// error into a verified fix.
//
// Each attempt runs:
//
//	ANALYZE -> APPLY -> SANDBOX_VALIDATE
//
// and the loop ends in SUCCESS or ESCALATE with one of five termination
// reasons: success, max_attempts, timeout, repeated_error, no_fixes.
// Termination is always reported in the Result; Run only returns an error
// for misuse (nil context, missing collaborators).
//
// # Deadlines
//
// The wall-clock budget is checked before each attempt, just before the
// sandbox call and just after it returns. A slow sandbox call is never
// interrupted, so a run can overrun its budget by up to one sandbox call.
//
// # Repeated Errors
//
// Every error the loop sets out to fix is hashed. Seeing the same hash again
// ends the run, so a sandbox that keeps returning the initial error stops
// after one recorded attempt.
//
// # Thread Safety
//
// Loop is safe for concurrent Run calls. Each run owns its attempt list and
// seen-error set.
package fixloop

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/CodeScalpel/services/scalpel/lang"
	"github.com/AleutianAI/CodeScalpel/services/scalpel/patch"
	"github.com/AleutianAI/CodeScalpel/services/scalpel/sandbox"
)

// =============================================================================
// LOOP
// =============================================================================

// Loop runs fix sessions.
type Loop struct {
	config    *Config
	analyzer  ErrorAnalyzer
	executor  sandbox.Executor
	escalator Escalator
	logger    *slog.Logger
	now       func() time.Time
}

// NewLoop creates a fix loop.
//
// Inputs:
//
//	cfg - Loop configuration. Nil uses DefaultConfig().
//	analyzer - Proposes fixes for an error.
//	executor - Validates patched code.
//	escalator - Receives failed runs. Nil logs an error record instead.
//	logger - Logger for structured logging. Nil uses slog.Default().
//
// Outputs:
//
//	*Loop - Configured loop
func NewLoop(cfg *Config, analyzer ErrorAnalyzer, executor sandbox.Executor, escalator Escalator, logger *slog.Logger) *Loop {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.Clamp()
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		config:    cfg,
		analyzer:  analyzer,
		executor:  executor,
		escalator: escalator,
		logger:    logger,
		now:       time.Now,
	}
}

// Config returns the loop's effective configuration.
func (l *Loop) Config() Config {
	return *l.config
}

// session is the mutable state of one run.
type session struct {
	id           string
	req          Request
	filePath     string
	start        time.Time
	state        State
	seen         map[string]struct{}
	attempts     []FixAttempt
	code         string
	currentError string
	finalFix     *FixHint
	total        int64
}

// Run executes the fix loop.
//
// Description:
//
//	For attempt 1..MaxAttempts: check the deadline, stop on a repeated
//	error, analyze, take the first fix at or above MinConfidence, apply
//	it, check the deadline, run the sandbox, record the attempt, check
//	the deadline again, then stop on success or continue with the
//	sandbox's stderr as the next error.
//
// Inputs:
//
//	ctx - Context passed to collaborators. Cancellation is observed at
//	      the same points as the deadline and reported as timeout.
//	req - Initial error, source, language and project path.
//
// Outputs:
//
//	*Result - Terminal outcome. Never nil when error is nil.
//	error - ErrNilContext, ErrNilAnalyzer, ErrNilExecutor, ErrEmptyLanguage.
func (l *Loop) Run(ctx context.Context, req Request) (*Result, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if l.analyzer == nil {
		return nil, ErrNilAnalyzer
	}
	if l.executor == nil {
		return nil, ErrNilExecutor
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s := &session{
		id:           uuid.New().String()[:8],
		req:          req,
		filePath:     l.filePath(req.Language),
		start:        l.now(),
		state:        StateStart,
		seen:         make(map[string]struct{}),
		code:         req.SourceCode,
		currentError: req.InitialError,
	}

	ctx, span := startRunSpan(ctx, s.id, req.Language, l.config.MaxAttempts)
	defer span.End()

	l.logger.Info("Starting fix loop",
		slog.String("session_id", s.id),
		slog.String("language", req.Language),
		slog.Int("max_attempts", l.config.MaxAttempts),
		slog.Duration("max_duration", l.config.MaxDuration),
	)

	for attempt := 1; attempt <= l.config.MaxAttempts; attempt++ {
		if l.expired(ctx, s) {
			return l.finish(ctx, span, s, ReasonTimeout), nil
		}

		h := hashError(s.currentError)
		if _, seen := s.seen[h]; seen {
			return l.finish(ctx, span, s, ReasonRepeatedError), nil
		}
		s.seen[h] = struct{}{}

		l.transition(ctx, s, StateAnalyze)
		analysis, err := l.analyzer.AnalyzeError(ctx, s.currentError, req.Language, s.code)
		if err != nil {
			l.logger.Warn("Error analysis failed",
				slog.String("session_id", s.id),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			analysis = ErrorAnalysis{Message: s.currentError}
		}

		fix, ok := firstQualifying(analysis.Fixes, l.config.MinConfidence)
		if !ok {
			return l.finish(ctx, span, s, ReasonNoFixes), nil
		}

		l.transition(ctx, s, StateApply)
		applied, err := patch.Apply(s.code, fix.Diff)
		if err != nil {
			msg := fmt.Sprintf("failed to apply fix: %v", err)
			s.attempts = append(s.attempts, FixAttempt{
				AttemptNumber: attempt,
				Timestamp:     l.now(),
				ErrorAnalysis: analysis,
				FixApplied:    fix,
				SandboxResult: sandbox.FailedResult(msg),
				ApplyError:    msg,
			})
			l.logger.Info("Fix could not be applied",
				slog.String("session_id", s.id),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			s.currentError = msg
			continue
		}

		if l.expired(ctx, s) {
			return l.finish(ctx, span, s, ReasonTimeout), nil
		}

		l.transition(ctx, s, StateSandboxValidate)
		changes := []sandbox.FileChange{{Path: s.filePath, Content: applied.Code}}
		result, err := l.executor.ExecuteWithChanges(ctx, req.ProjectPath, changes,
			l.config.TestCommand, l.config.LintCommand)
		if err != nil {
			result = sandbox.FailedResult(err.Error())
		}

		duration := max(result.ExecutionTimeMs, 0)
		s.total += duration
		s.attempts = append(s.attempts, FixAttempt{
			AttemptNumber: attempt,
			Timestamp:     l.now(),
			ErrorAnalysis: analysis,
			FixApplied:    fix,
			SandboxResult: result,
			Success:       result.Success,
			DurationMs:    duration,
		})

		l.logger.Info("Fix attempt completed",
			slog.String("session_id", s.id),
			slog.Int("attempt", attempt),
			slog.Bool("success", result.Success),
			slog.Float64("confidence", fix.Confidence),
			slog.Int64("duration_ms", duration),
		)

		if l.expired(ctx, s) {
			return l.finish(ctx, span, s, ReasonTimeout), nil
		}

		s.code = applied.Code
		if result.Success {
			s.finalFix = &fix
			return l.finish(ctx, span, s, ReasonSuccess), nil
		}
		s.currentError = result.Stderr
	}

	return l.finish(ctx, span, s, ReasonMaxAttempts), nil
}

// finish builds the Result, escalating when the reason requires it.
func (l *Loop) finish(ctx context.Context, span trace.Span, s *session, reason TerminationReason) *Result {
	res := &Result{
		SessionID:         s.id,
		Success:           reason == ReasonSuccess,
		Attempts:          s.attempts,
		TerminationReason: reason,
		TotalDurationMs:   s.total,
	}
	if res.Attempts == nil {
		res.Attempts = []FixAttempt{}
	}

	if res.Success {
		res.FinalFix = s.finalFix
		res.FinalCode = s.code
		l.transition(ctx, s, StateSuccess)
	} else {
		res.EscalatedToHuman = true
		l.transition(ctx, s, StateEscalate)
		l.escalate(ctx, s, reason)
	}

	setRunSpanResult(span, res)
	recordRunMetrics(ctx, s.req.Language, res)

	l.logger.Info("Fix loop complete",
		slog.String("session_id", s.id),
		slog.String("termination_reason", string(reason)),
		slog.Bool("success", res.Success),
		slog.Int("attempts", len(res.Attempts)),
		slog.Int64("total_duration_ms", res.TotalDurationMs),
	)
	return res
}

// escalate hands the run to the escalator, or logs it. A panicking
// escalator is logged and swallowed so Run still returns its Result.
func (l *Loop) escalate(ctx context.Context, s *session, reason TerminationReason) {
	if l.escalator == nil {
		l.logger.Error("Fix loop escalated to human",
			slog.String("session_id", s.id),
			slog.String("termination_reason", string(reason)),
			slog.Int("attempts", len(s.attempts)),
			slog.String("last_error", truncate(s.currentError, 500)),
		)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Escalation callback panicked",
				slog.String("session_id", s.id),
				slog.Any("panic", r),
			)
		}
	}()
	attempts := make([]FixAttempt, len(s.attempts))
	copy(attempts, s.attempts)
	l.escalator.Escalate(ctx, reason, attempts)
}

// expired reports whether the deadline passed or ctx is done.
func (l *Loop) expired(ctx context.Context, s *session) bool {
	if ctx.Err() != nil {
		return true
	}
	return l.now().Sub(s.start) > l.config.MaxDuration
}

// transition changes state with logging.
func (l *Loop) transition(ctx context.Context, s *session, to State) {
	from := s.state
	s.state = to
	recordStateTransition(ctx, from, to)
	l.logger.Debug("Fix loop state transition",
		slog.String("session_id", s.id),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
		slog.Int("attempts", len(s.attempts)),
	)
}

func (l *Loop) filePath(language string) string {
	if l.config.FilePath != "" {
		return l.config.FilePath
	}
	if cfg, ok := lang.Get(language); ok {
		return "main" + cfg.Extensions[0]
	}
	return "main"
}

// firstQualifying returns the first fix with confidence >= min. Order is
// the analyzer's; no re-ranking happens here.
func firstQualifying(fixes []FixHint, min float64) (FixHint, bool) {
	for _, f := range fixes {
		if f.Confidence >= min {
			return f, true
		}
	}
	return FixHint{}, false
}

// hashError returns the hex SHA-256 of an error text.
func hashError(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
