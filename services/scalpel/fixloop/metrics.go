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
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("scalpel.fixloop")
	meter  = otel.Meter("scalpel.fixloop")
)

var (
	runTotal         metric.Int64Counter
	attemptTotal     metric.Int64Counter
	attemptsPerRun   metric.Int64Histogram
	sandboxDuration  metric.Float64Histogram
	stateTransitions metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		runTotal, err = meter.Int64Counter(
			"scalpel_fixloop_runs_total",
			metric.WithDescription("Fix loop runs by termination reason"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		attemptTotal, err = meter.Int64Counter(
			"scalpel_fixloop_attempts_total",
			metric.WithDescription("Recorded fix attempts"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		attemptsPerRun, err = meter.Int64Histogram(
			"scalpel_fixloop_attempts_per_run",
			metric.WithDescription("Attempts recorded per fix loop run"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		sandboxDuration, err = meter.Float64Histogram(
			"scalpel_fixloop_sandbox_duration_seconds",
			metric.WithDescription("Summed sandbox execution time per run"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		stateTransitions, err = meter.Int64Counter(
			"scalpel_fixloop_state_transitions_total",
			metric.WithDescription("Fix loop state transitions"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func startRunSpan(ctx context.Context, sessionID, language string, maxAttempts int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Loop.Run",
		trace.WithAttributes(
			attribute.String("fixloop.session_id", sessionID),
			attribute.String("fixloop.language", language),
			attribute.Int("fixloop.max_attempts", maxAttempts),
		),
	)
}

func setRunSpanResult(span trace.Span, res *Result) {
	span.SetAttributes(
		attribute.Bool("fixloop.success", res.Success),
		attribute.String("fixloop.termination_reason", string(res.TerminationReason)),
		attribute.Bool("fixloop.escalated", res.EscalatedToHuman),
		attribute.Int("fixloop.attempts", len(res.Attempts)),
		attribute.Int64("fixloop.total_duration_ms", res.TotalDurationMs),
	)
}

func recordRunMetrics(ctx context.Context, language string, res *Result) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("language", language),
		attribute.String("termination_reason", string(res.TerminationReason)),
	)
	runTotal.Add(ctx, 1, attrs)
	attemptTotal.Add(ctx, int64(len(res.Attempts)), attrs)
	attemptsPerRun.Record(ctx, int64(len(res.Attempts)), attrs)
	sandboxDuration.Record(ctx, float64(res.TotalDurationMs)/1000, attrs)
}

func recordStateTransition(ctx context.Context, from, to State) {
	if err := initMetrics(); err != nil {
		return
	}
	stateTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
	))
}
