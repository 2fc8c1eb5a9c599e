// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Decision outcomes, used as the metric label.
const (
	outcomeAllowed          = "allowed"
	outcomeCriticalExceeded = "critical_path_exceeded"
	outcomeBudgetExceeded   = "budget_exceeded"
	outcomeApprovalRequired = "approval_required"
)

var tracer = otel.Tracer("scalpel.engine")

var changeDecisions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "scalpel_change_decisions_total",
		Help: "Change checks by outcome",
	},
	[]string{"outcome"},
)

func startCheckSpan(ctx context.Context, files int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Engine.CheckChangeAllowed",
		trace.WithAttributes(attribute.Int("engine.files", files)),
	)
}

func recordDecision(span trace.Span, outcome string, res ChangeValidationResult) {
	changeDecisions.WithLabelValues(outcome).Inc()
	span.SetAttributes(
		attribute.String("engine.outcome", outcome),
		attribute.Bool("engine.allowed", res.Allowed),
		attribute.Bool("engine.critical", res.IsCritical),
	)
}
