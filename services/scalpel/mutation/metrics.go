// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mutation

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("scalpel.mutation")
	meter  = otel.Meter("scalpel.mutation")
)

var (
	gateRuns      metric.Int64Counter
	mutationsRun  metric.Int64Counter
	mutationScore metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		gateRuns, err = meter.Int64Counter(
			"scalpel_mutation_gate_runs_total",
			metric.WithDescription("Mutation gate runs by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		mutationsRun, err = meter.Int64Counter(
			"scalpel_mutation_mutations_total",
			metric.WithDescription("Mutations tested by type and whether they were caught"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		mutationScore, err = meter.Float64Histogram(
			"scalpel_mutation_score",
			metric.WithDescription("Mutation score per gate run"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// outcome labels a gate run for metrics.
func outcome(res *GateResult, ready bool) string {
	switch {
	case !ready:
		return "not_ready"
	case res.HollowFixDetected:
		return "hollow"
	case res.Passed:
		return "passed"
	default:
		return "failed"
	}
}

func startGateSpan(ctx context.Context, language string, tests int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Gate.ValidateFix",
		trace.WithAttributes(
			attribute.String("mutation.language", language),
			attribute.Int("mutation.test_files", tests),
		),
	)
}

func recordGate(ctx context.Context, span trace.Span, language string, res *GateResult, ready bool) {
	label := outcome(res, ready)
	span.SetAttributes(
		attribute.String("mutation.outcome", label),
		attribute.Int("mutation.tested", res.MutationsTested),
		attribute.Int("mutation.caught", res.MutationsCaught),
		attribute.Float64("mutation.score", res.MutationScore),
	)

	if err := initMetrics(); err != nil {
		return
	}
	gateRuns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("language", language),
		attribute.String("outcome", label),
	))
	if res.MutationsTested > 0 {
		mutationScore.Record(ctx, res.MutationScore, metric.WithAttributes(
			attribute.String("language", language),
		))
	}
	for _, r := range res.Results {
		mutationsRun.Add(ctx, 1, metric.WithAttributes(
			attribute.String("type", string(r.Mutation.Type)),
			attribute.Bool("caught", r.TestsFailed),
		))
	}
}
