// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fixloop

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/AleutianAI/CodeScalpel/services/scalpel/sandbox"
)

// outcome scripts one sandbox call: pass, a fresh error, or the initial error.
type outcome int

const (
	outcomePass outcome = iota
	outcomeFresh
	outcomeInitial
)

func scriptedExecutor(script []outcome, initial string, ms int64) *fakeExecutor {
	return &fakeExecutor{fn: func(call int) (sandbox.Result, error) {
		o := outcomeFresh
		if call-1 < len(script) {
			o = script[call-1]
		}
		switch o {
		case outcomePass:
			return sandbox.Result{Success: true, ExecutionTimeMs: ms}, nil
		case outcomeInitial:
			return sandbox.Result{Stderr: initial, ExecutionTimeMs: ms}, nil
		default:
			return sandbox.Result{Stderr: fmt.Sprintf("fresh %d", call), ExecutionTimeMs: ms}, nil
		}
	}}
}

func TestLoopProperties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 150
	properties := gopter.NewProperties(params)

	genScript := gen.SliceOf(gen.IntRange(0, 2).Map(func(v int) outcome { return outcome(v) }))

	run := func(script []outcome, maxAttempts int, ms int64) *Result {
		req := pyRequest()
		l := newTestLoop(NewConfig(WithMaxAttempts(maxAttempts)), alwaysFix(0.9),
			scriptedExecutor(script, req.InitialError, ms), nil, newFakeClock())
		res, err := l.Run(context.Background(), req)
		if err != nil {
			return nil
		}
		return res
	}

	properties.Property("attempts are bounded and numbered from one", prop.ForAll(
		func(script []outcome, maxAttempts int) bool {
			res := run(script, maxAttempts, 3)
			if res == nil || len(res.Attempts) > maxAttempts {
				return false
			}
			for i, at := range res.Attempts {
				if at.AttemptNumber != i+1 {
					return false
				}
			}
			return true
		},
		genScript, gen.IntRange(1, 8),
	))

	properties.Property("success, escalation and final fix agree", prop.ForAll(
		func(script []outcome, maxAttempts int) bool {
			res := run(script, maxAttempts, 3)
			if res == nil {
				return false
			}
			if res.Success != (res.TerminationReason == ReasonSuccess) {
				return false
			}
			if res.EscalatedToHuman == res.Success {
				return false
			}
			return (res.FinalFix != nil) == res.Success
		},
		genScript, gen.IntRange(1, 8),
	))

	properties.Property("total duration is the sum of attempt durations", prop.ForAll(
		func(script []outcome, maxAttempts int, ms int64) bool {
			res := run(script, maxAttempts, ms)
			if res == nil {
				return false
			}
			var sum int64
			for _, at := range res.Attempts {
				if at.DurationMs < 0 {
					return false
				}
				sum += at.DurationMs
			}
			return sum == res.TotalDurationMs
		},
		genScript, gen.IntRange(1, 8), gen.Int64Range(-50, 5000),
	))

	properties.Property("returning the initial error stops after one attempt", prop.ForAll(
		func(maxAttempts int) bool {
			res := run([]outcome{outcomeInitial}, maxAttempts, 1)
			return res != nil && res.TerminationReason == ReasonRepeatedError && len(res.Attempts) == 1
		},
		gen.IntRange(2, 8),
	))

	properties.TestingRun(t)
}
