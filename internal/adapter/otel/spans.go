package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/redlinehq/redline/internal/domain/agent"
)

const tracerName = "redline"

// StartReviewSpan starts the span covering one review job.
func StartReviewSpan(ctx context.Context, jobID, documentID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "review",
		trace.WithAttributes(
			attribute.String("review.job_id", jobID),
			attribute.String("review.document_id", documentID),
		),
	)
}

// StartPhaseSpan starts a span for one pipeline phase.
func StartPhaseSpan(ctx context.Context, jobID, phase string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "phase",
		trace.WithAttributes(
			attribute.String("review.job_id", jobID),
			attribute.String("review.phase", phase),
		),
	)
}

// StartAgentSpan starts a span for one agent invocation.
func StartAgentSpan(ctx context.Context, jobID string, agentID agent.ID) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "agent",
		trace.WithAttributes(
			attribute.String("review.job_id", jobID),
			attribute.String("agent.id", string(agentID)),
		),
	)
}
