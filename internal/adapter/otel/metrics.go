package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "redline"

// Metrics bundles the instruments recorded by the review pipeline.
type Metrics struct {
	ReviewsStarted   metric.Int64Counter
	ReviewsCompleted metric.Int64Counter
	ReviewsFailed    metric.Int64Counter
	AgentsStarted    metric.Int64Counter
	AgentsFailed     metric.Int64Counter
	FindingsAccepted metric.Int64Counter
	AgentDuration    metric.Float64Histogram
	ReviewDuration   metric.Float64Histogram
	ReviewCost       metric.Float64Histogram
}

// NewMetrics registers the pipeline instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	if m.ReviewsStarted, err = meter.Int64Counter("redline.reviews.started",
		metric.WithDescription("Review jobs accepted")); err != nil {
		return nil, err
	}
	if m.ReviewsCompleted, err = meter.Int64Counter("redline.reviews.completed",
		metric.WithDescription("Review jobs that reached a terminal success state")); err != nil {
		return nil, err
	}
	if m.ReviewsFailed, err = meter.Int64Counter("redline.reviews.failed",
		metric.WithDescription("Review jobs that failed")); err != nil {
		return nil, err
	}
	if m.AgentsStarted, err = meter.Int64Counter("redline.agents.started",
		metric.WithDescription("Agent invocations dispatched")); err != nil {
		return nil, err
	}
	if m.AgentsFailed, err = meter.Int64Counter("redline.agents.failed",
		metric.WithDescription("Agent invocations that returned an error")); err != nil {
		return nil, err
	}
	if m.FindingsAccepted, err = meter.Int64Counter("redline.findings.accepted",
		metric.WithDescription("Findings accepted into job state")); err != nil {
		return nil, err
	}
	if m.AgentDuration, err = meter.Float64Histogram("redline.agent.duration",
		metric.WithDescription("Wall time of one agent invocation"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.ReviewDuration, err = meter.Float64Histogram("redline.review.duration",
		metric.WithDescription("Wall time of one review job"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.ReviewCost, err = meter.Float64Histogram("redline.review.cost",
		metric.WithDescription("Estimated LLM spend of one review job"),
		metric.WithUnit("{USD}")); err != nil {
		return nil, err
	}
	return m, nil
}
