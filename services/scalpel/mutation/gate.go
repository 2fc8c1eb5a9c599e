// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package mutation decides whether a fix that makes the tests pass is
// genuine.
//
// A fix is hollow when the tests also pass against the code it replaced:
// the suite was weakened rather than the bug fixed. The gate runs the
// tests against the fixed code, then the original code, then a batch of
// synthetic mutations of the fixed code, and scores how many of those
// the suite notices.
//
// # Scoring
//
//	score = caught / tested
//
// The revert counts toward tested. A hollow fix never passes, whatever
// its score.
package mutation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/CodeScalpel/services/scalpel/lang"
	"github.com/AleutianAI/CodeScalpel/services/scalpel/sandbox"
)

// Gate validates fixes with mutation testing.
//
// Thread Safety: safe for concurrent use.
type Gate struct {
	config    *Config
	executor  sandbox.Executor
	generator Generator
	logger    *slog.Logger
}

// NewGate creates a mutation gate.
//
// Inputs:
//
//	executor - Runs tests against candidate code.
//	logger - Logger for structured logging. Nil uses slog.Default().
//	opts - Configuration options.
//
// Outputs:
//
//	*Gate - Configured gate
func NewGate(executor sandbox.Executor, logger *slog.Logger, opts ...Option) *Gate {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	cfg.Clamp()
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		config:   cfg,
		executor: executor,
		logger:   logger,
	}
}

// Config returns the gate's effective configuration.
func (g *Gate) Config() Config {
	return *g.config
}

// ValidateFix checks that fixedCode is a genuine fix of originalCode.
//
// Description:
//
//  1. Sanity: the tests must all pass against fixedCode.
//  2. Revert: the tests must fail against originalCode; otherwise the
//     fix is hollow.
//  3. Up to MaxAdditionalMutations mutations of fixedCode are tested.
//  4. Passed = score >= MinMutationScore and not hollow.
//
// Inputs:
//
//	ctx - Context passed to the sandbox.
//	originalCode - Code before the fix.
//	fixedCode - Code after the fix.
//	testFiles - Test file paths handed to the sandbox.
//	language - Source language. Empty means python.
//
// Outputs:
//
//	*GateResult - The verdict. Never nil when error is nil.
//	error - ErrNilContext or ErrNilExecutor.
func (g *Gate) ValidateFix(ctx context.Context, originalCode, fixedCode string, testFiles []string, language string) (*GateResult, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if g.executor == nil {
		return nil, ErrNilExecutor
	}
	language = normalizeLanguage(language)

	ctx, span := startGateSpan(ctx, language, len(testFiles))
	defer span.End()

	res := newGateResult()

	sanity, err := g.executor.RunTests(ctx, fixedCode, testFiles, language)
	if err != nil || !sanity.AllPassed {
		detail := "tests do not all pass against the fixed code"
		if err != nil {
			detail = fmt.Sprintf("sandbox error: %v", err)
		}
		res.Recommendations = append(res.Recommendations,
			"Fix is not ready for mutation testing: "+detail+". Make the tests pass first.")
		g.logger.Info("Mutation gate sanity check failed",
			slog.String("language", language),
			slog.String("detail", detail),
		)
		recordGate(ctx, span, language, res, false)
		return res, nil
	}

	revert, err := g.executor.RunTests(ctx, originalCode, testFiles, language)
	if err != nil {
		res.Recommendations = append(res.Recommendations,
			fmt.Sprintf("Revert check could not run: %v. The fix was not verified.", err))
		g.logger.Warn("Mutation gate revert check failed to run",
			slog.String("language", language),
			slog.String("error", err.Error()),
		)
		recordGate(ctx, span, language, res, false)
		return res, nil
	}

	revertResult := MutationResult{
		Mutation: Mutation{
			Type:        TypeRevertFix,
			Code:        originalCode,
			Description: "Revert the fix to the original code",
		},
		TestsFailed: !revert.AllPassed,
		PassedTests: revert.PassedTests(),
	}
	res.Results = append(res.Results, revertResult)
	res.MutationsTested = 1

	if !revertResult.TestsFailed {
		res.HollowFixDetected = true
		res.MutationsSurvived = 1
		res.WeakTests = append(res.WeakTests, revertResult.PassedTests...)
		res.Recommendations = append(res.Recommendations, hollowRecommendation(res.WeakTests))
		g.logger.Warn("Hollow fix detected",
			slog.String("language", language),
			slog.Any("weak_tests", res.WeakTests),
		)
		recordGate(ctx, span, language, res, true)
		return res, nil
	}
	res.MutationsCaught = 1

	g.runMutations(ctx, res, fixedCode, testFiles, language)

	res.MutationScore = float64(res.MutationsCaught) / float64(res.MutationsTested)
	res.Passed = res.MutationScore >= g.config.MinMutationScore && !res.HollowFixDetected
	if res.MutationsSurvived > 0 {
		res.Recommendations = append(res.Recommendations, survivorRecommendations(res)...)
	}

	g.logger.Info("Mutation gate complete",
		slog.String("language", language),
		slog.Bool("passed", res.Passed),
		slog.Int("tested", res.MutationsTested),
		slog.Int("caught", res.MutationsCaught),
		slog.Float64("score", res.MutationScore),
	)
	recordGate(ctx, span, language, res, true)
	return res, nil
}

// runMutations generates and tests mutations of fixedCode, updating res.
func (g *Gate) runMutations(ctx context.Context, res *GateResult, fixedCode string, testFiles []string, language string) {
	if !Supports(language) {
		g.logger.Warn("Mutation generation unsupported for language",
			slog.String("language", language),
		)
		return
	}

	mutations, skipped, err := g.generator.Generate(ctx, language, fixedCode, g.config.MaxAdditionalMutations)
	if err != nil {
		g.logger.Warn("Mutation generation failed",
			slog.String("language", language),
			slog.String("error", err.Error()),
		)
		return
	}
	res.SkippedMutations += skipped

	weak := make(map[string]bool, len(res.WeakTests))
	for _, m := range mutations {
		out, err := g.executor.RunTests(ctx, m.Code, testFiles, language)
		if err != nil {
			res.SkippedMutations++
			g.logger.Warn("Mutation run failed",
				slog.String("mutation", m.Description),
				slog.String("error", err.Error()),
			)
			continue
		}

		r := MutationResult{
			Mutation:    m,
			TestsFailed: !out.AllPassed,
			PassedTests: out.PassedTests(),
		}
		res.Results = append(res.Results, r)
		res.MutationsTested++
		if r.TestsFailed {
			res.MutationsCaught++
			continue
		}

		res.MutationsSurvived++
		for _, name := range r.PassedTests {
			if !weak[name] {
				weak[name] = true
				res.WeakTests = append(res.WeakTests, name)
			}
		}
	}
}

func hollowRecommendation(weak []string) string {
	msg := "Hollow fix: the tests also pass against the original code. Check for weakened or deleted assertions"
	if len(weak) > 0 {
		msg += " in " + strings.Join(weak, ", ")
	}
	return msg + "."
}

func survivorRecommendations(res *GateResult) []string {
	recs := []string{fmt.Sprintf("%d of %d mutations survived (score %.2f).",
		res.MutationsSurvived, res.MutationsTested, res.MutationScore)}
	if len(res.WeakTests) > 0 {
		recs = append(recs, "Strengthen assertions in: "+strings.Join(res.WeakTests, ", ")+".")
	}
	for _, r := range res.Results {
		if !r.TestsFailed {
			recs = append(recs, "Add a test that fails when you "+lowerFirst(r.Mutation.Description)+".")
		}
	}
	return recs
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// normalizeLanguage maps user input to the registry name so every stage
// sees the same language. Empty means python; unknown names pass through
// lowercased and fail at the sandbox.
func normalizeLanguage(language string) string {
	language = strings.ToLower(strings.TrimSpace(language))
	if language == "" {
		return lang.Python
	}
	if cfg, ok := lang.Get(language); ok {
		return cfg.Name
	}
	return language
}
