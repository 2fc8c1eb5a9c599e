// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine composes the governance limits, the blast-radius
// calculator, the change budget, the fix loop and the mutation gate.
//
// A change request passes through a waterfall that stops at the first
// block:
//
//	blast radius exceeded -> change budget -> approval policy -> allow
//
// The fix loop and the mutation gate are separate calls. The engine never
// runs the gate on its own after a loop succeeds; callers decide when a
// fix is final.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AleutianAI/CodeScalpel/services/scalpel/audit"
	"github.com/AleutianAI/CodeScalpel/services/scalpel/blast"
	"github.com/AleutianAI/CodeScalpel/services/scalpel/budget"
	"github.com/AleutianAI/CodeScalpel/services/scalpel/fixloop"
	"github.com/AleutianAI/CodeScalpel/services/scalpel/governance"
	"github.com/AleutianAI/CodeScalpel/services/scalpel/mutation"
	"github.com/AleutianAI/CodeScalpel/services/scalpel/sandbox"
)

// ErrNoExecutor indicates an operation needing a sandbox on an engine
// built without one.
var ErrNoExecutor = errors.New("engine has no sandbox executor")

// =============================================================================
// TYPES
// =============================================================================

// Limits are the limits applied to a change, echoed for callers.
type Limits struct {
	MaxLinesPerChange    int `json:"max_lines_per_change"`
	MaxFilesPerChange    int `json:"max_files_per_change"`
	MaxComplexityDelta   int `json:"max_complexity_delta"`
	CriticalPathMaxLines int `json:"critical_path_max_lines"`

	// MaxLinesAllowed is the effective line limit for this change.
	MaxLinesAllowed int `json:"max_lines_allowed"`
}

// ChangeValidationResult is the outcome of CheckChangeAllowed.
type ChangeValidationResult struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`

	// BudgetDecision is set once the budget stage ran.
	BudgetDecision *budget.Decision `json:"budget_decision,omitempty"`

	// CriticalPathViolation marks blocks caused by critical paths: an
	// exceeded critical line limit or a required approval.
	CriticalPathViolation bool `json:"critical_path_violation"`

	// RequiresApproval marks a change blocked only for human sign-off.
	RequiresApproval bool `json:"requires_approval"`

	IsCritical    bool     `json:"is_critical"`
	CriticalFiles []string `json:"critical_files,omitempty"`
	Limits        Limits   `json:"limits"`
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine is the autonomy orchestrator. It holds an immutable copy of the
// governance config.
//
// Thread Safety: safe for concurrent use when its collaborators are.
type Engine struct {
	config     governance.Config
	calculator *blast.Calculator
	budget     *budget.Budget

	trail     audit.Trail
	analyzer  fixloop.ErrorAnalyzer
	executor  sandbox.Executor
	escalator fixloop.Escalator
	gateOpts  []mutation.Option
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithAuditTrail sets the audit sink. Default: no auditing.
func WithAuditTrail(t audit.Trail) Option {
	return func(e *Engine) { e.trail = t }
}

// WithAnalyzer sets the error analyzer used by RunFixLoop.
func WithAnalyzer(a fixloop.ErrorAnalyzer) Option {
	return func(e *Engine) { e.analyzer = a }
}

// WithExecutor sets the sandbox used by RunFixLoop and VerifyFix.
func WithExecutor(x sandbox.Executor) Option {
	return func(e *Engine) { e.executor = x }
}

// WithEscalator sets the fix loop escalation target.
func WithEscalator(esc fixloop.Escalator) Option {
	return func(e *Engine) { e.escalator = esc }
}

// WithMutationOptions configures the gate used by VerifyFix.
func WithMutationOptions(opts ...mutation.Option) Option {
	return func(e *Engine) { e.gateOpts = append(e.gateOpts, opts...) }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an engine over cfg.
//
// Inputs:
//
//	cfg - Governance limits, typically from governance.Loader.Load.
//	opts - Collaborators and logging.
//
// Outputs:
//
//	*Engine - Configured engine
func New(cfg governance.Config, opts ...Option) *Engine {
	e := &Engine{
		config: cfg.Clone(),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.calculator = blast.NewCalculator(e.config)
	e.budget = budget.New(e.config,
		budget.WithCriticalPathFunc(e.calculator.IsCriticalPath),
		budget.WithLogger(e.logger),
	)
	return e
}

// Config returns a copy of the governance config.
func (e *Engine) Config() governance.Config {
	return e.config.Clone()
}

// =============================================================================
// CHANGE CHECK
// =============================================================================

// CheckOption adjusts one CheckChangeAllowed call.
type CheckOption func(*checkRequest)

type checkRequest struct {
	justification string
}

// WithJustification attaches the reason for a change. The budget rejects
// changes without one when change_budgeting.require_justification is set.
func WithJustification(text string) CheckOption {
	return func(r *checkRequest) {
		r.justification = strings.TrimSpace(text)
	}
}

// CheckChangeAllowed decides whether a change may proceed autonomously.
//
// Description:
//
//	(a) An exceeded critical-path line limit blocks immediately.
//	(b) The change budget runs over a synthesized operation where each
//	    file carries lines_changed placeholder lines.
//	(c) A critical change is blocked for approval when both
//	    block_on_critical_paths and require_approval_for_security_changes
//	    are set.
//	Otherwise the change is allowed.
//
// Inputs:
//
//	ctx - Context for budget parsing and auditing.
//	files - Paths touched by the change.
//	linesChanged - Lines changed per path.
//	opts - Per-call inputs such as WithJustification.
//
// Outputs:
//
//	ChangeValidationResult - The decision and the applied limits.
func (e *Engine) CheckChangeAllowed(ctx context.Context, files []string, linesChanged map[string]int, opts ...CheckOption) ChangeValidationResult {
	var req checkRequest
	for _, opt := range opts {
		opt(&req)
	}

	start := e.now()
	ctx, span := startCheckSpan(ctx, len(files))
	defer span.End()

	impact := e.calculator.CheckCriticalPathImpact(files, linesChanged)
	res := ChangeValidationResult{
		IsCritical:    impact.IsCritical,
		CriticalFiles: impact.CriticalFiles,
		Limits: Limits{
			MaxLinesPerChange:    e.config.ChangeBudgeting.MaxLinesPerChange,
			MaxFilesPerChange:    e.config.ChangeBudgeting.MaxFilesPerChange,
			MaxComplexityDelta:   e.config.ChangeBudgeting.MaxComplexityDelta,
			CriticalPathMaxLines: e.config.BlastRadius.CriticalPathMaxLines,
			MaxLinesAllowed:      impact.MaxLinesAllowed,
		},
	}

	outcome := e.decide(ctx, &res, impact, req, files, linesChanged)
	recordDecision(span, outcome, res)

	e.auditCheck(ctx, res, req, files, linesChanged, e.now().Sub(start))
	return res
}

func (e *Engine) decide(ctx context.Context, res *ChangeValidationResult, impact blast.Impact, req checkRequest, files []string, linesChanged map[string]int) string {
	if impact.Exceeded {
		res.Reason = impact.Reason
		res.CriticalPathViolation = true
		return outcomeCriticalExceeded
	}

	decision := e.budget.Validate(ctx, synthesizeOperation(files, linesChanged, req.justification))
	res.BudgetDecision = &decision
	if !decision.Allowed {
		res.Reason = decision.Reason
		return outcomeBudgetExceeded
	}

	if impact.IsCritical &&
		e.config.BlastRadius.BlockOnCriticalPaths &&
		e.config.AutonomyConstraints.RequireApprovalForSecurityChanges {
		res.Reason = fmt.Sprintf("Change to critical paths requires human approval: %s",
			strings.Join(impact.CriticalFiles, ", "))
		res.CriticalPathViolation = true
		res.RequiresApproval = true
		return outcomeApprovalRequired
	}

	res.Allowed = true
	res.Reason = "Change allowed"
	if impact.IsCritical {
		res.Reason = "Change allowed. " + impact.Reason
	}
	return outcomeAllowed
}

// synthesizeOperation builds an Operation from line counts. Content is
// placeholder lines; only counts matter to the budget.
func synthesizeOperation(files []string, linesChanged map[string]int, justification string) budget.Operation {
	op := budget.Operation{
		Description:   "synthesized from line counts",
		Justification: justification,
	}
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		if seen[f] {
			continue
		}
		seen[f] = true
		op.Changes = append(op.Changes, budget.FileChange{
			Path:       f,
			NewContent: budget.PlaceholderContent(linesChanged[f]),
		})
	}
	return op
}

func (e *Engine) auditCheck(ctx context.Context, res ChangeValidationResult, req checkRequest, files []string, linesChanged map[string]int, elapsed time.Duration) {
	event := audit.EventChangeAllowed
	enabled := e.config.Audit.LogAllChanges
	if !res.Allowed {
		event = audit.EventChangeRejected
		enabled = e.config.Audit.LogRejectedChanges
	}
	if !enabled {
		return
	}

	input := map[string]any{
		"files":         files,
		"lines_changed": linesChanged,
	}
	if req.justification != "" {
		input["justification"] = req.justification
	}
	e.record(ctx, audit.Record{
		EventType: event,
		Operation: "check_change_allowed",
		InputData: input,
		OutputData: map[string]any{
			"allowed":                 res.Allowed,
			"reason":                  res.Reason,
			"critical_path_violation": res.CriticalPathViolation,
			"requires_approval":       res.RequiresApproval,
		},
		Success:    res.Allowed,
		DurationMs: elapsed.Milliseconds(),
	})
}

// =============================================================================
// FIX LOOP
// =============================================================================

// RunFixLoop runs the fix loop with the engine's analyzer and sandbox.
//
// Description:
//
//	MaxAttempts is clamped to autonomy_constraints.max_autonomous_iterations.
//	When audit.log_all_changes is set one record summarizes the run:
//	language, termination reason, escalation flag and attempt count.
//
// Inputs:
//
//	ctx - Context for the loop.
//	req - Initial error, source, language and project path.
//	opts - Fix loop options.
//
// Outputs:
//
//	*fixloop.Result - The loop outcome.
//	error - Misuse errors from fixloop.Loop.Run.
func (e *Engine) RunFixLoop(ctx context.Context, req fixloop.Request, opts ...fixloop.Option) (*fixloop.Result, error) {
	cfg := fixloop.NewConfig(opts...)
	if limit := e.config.AutonomyConstraints.MaxAutonomousIterations; cfg.MaxAttempts > limit {
		e.logger.Info("Clamping fix loop attempts",
			slog.Int("requested", cfg.MaxAttempts),
			slog.Int("max_autonomous_iterations", limit),
		)
		cfg.MaxAttempts = limit
	}

	loop := fixloop.NewLoop(cfg, e.analyzer, e.executor, e.escalator, e.logger)
	res, err := loop.Run(ctx, req)
	if err != nil {
		return nil, err
	}

	if e.config.Audit.LogAllChanges {
		e.record(ctx, audit.Record{
			EventType: audit.EventFixLoop,
			Operation: "run_fix_loop",
			InputData: map[string]any{
				"language":     req.Language,
				"project_path": req.ProjectPath,
			},
			OutputData: map[string]any{
				"termination_reason": string(res.TerminationReason),
				"escalated_to_human": res.EscalatedToHuman,
				"attempts":           len(res.Attempts),
			},
			Success:    res.Success,
			DurationMs: res.TotalDurationMs,
			Metadata:   map[string]any{"session_id": res.SessionID},
		})
	}
	return res, nil
}

// =============================================================================
// MUTATION GATE
// =============================================================================

// VerifyFix runs the mutation gate over a fix and audits the verdict.
//
// Outputs:
//
//	*mutation.GateResult - The verdict.
//	error - ErrNoExecutor or a gate misuse error.
func (e *Engine) VerifyFix(ctx context.Context, originalCode, fixedCode string, testFiles []string, language string) (*mutation.GateResult, error) {
	if e.executor == nil {
		return nil, ErrNoExecutor
	}
	start := e.now()

	gate := mutation.NewGate(e.executor, e.logger, e.gateOpts...)
	res, err := gate.ValidateFix(ctx, originalCode, fixedCode, testFiles, language)
	if err != nil {
		return nil, err
	}

	if e.config.Audit.LogAllChanges {
		e.record(ctx, audit.Record{
			EventType: audit.EventMutationGate,
			Operation: "verify_fix",
			InputData: map[string]any{
				"language":   language,
				"test_files": testFiles,
			},
			OutputData: map[string]any{
				"passed":              res.Passed,
				"hollow_fix_detected": res.HollowFixDetected,
				"mutation_score":      res.MutationScore,
				"mutations_tested":    res.MutationsTested,
			},
			Success:    res.Passed,
			DurationMs: e.now().Sub(start).Milliseconds(),
		})
	}
	return res, nil
}

// record writes to the trail. Failures are logged, never returned.
func (e *Engine) record(ctx context.Context, rec audit.Record) {
	if e.trail == nil {
		return
	}
	if _, err := e.trail.Record(ctx, rec); err != nil {
		e.logger.Warn("Audit record failed",
			slog.String("event_type", rec.EventType),
			slog.String("error", err.Error()),
		)
	}
}
