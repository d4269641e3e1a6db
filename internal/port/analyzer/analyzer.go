// Package analyzer defines the single port every pipeline agent
// implements. The orchestrator knows agents only through this interface;
// what happens inside an invocation is the agent's business.
package analyzer

import (
	"context"

	"github.com/redlinehq/redline/internal/domain/agent"
	"github.com/redlinehq/redline/internal/domain/document"
	"github.com/redlinehq/redline/internal/domain/finding"
	"github.com/redlinehq/redline/internal/domain/review"
)

// Snapshot is the document context the briefing agent extracts. Exactly
// one agent kind produces it; downstream agents receive it read-only.
type Snapshot struct {
	Thesis      string   `json:"thesis"`
	KeyClaims   []string `json:"key_claims,omitempty"`
	Terminology []string `json:"terminology,omitempty"`
	Audience    string   `json:"audience,omitempty"`
	Notes       string   `json:"notes,omitempty"`
}

// Context is the shared state the orchestrator assembles between phases.
// Snapshot may be nil for agents that start before extraction finishes.
// Prior carries the findings accepted so far, in arrival order; critique
// agents use it to see what they are revising or stress-testing.
type Context struct {
	Snapshot *Snapshot
	Prior    []finding.Finding
}

// Request is one agent invocation.
type Request struct {
	Doc     *document.DocObj
	Config  review.Config
	Context Context
}

// Result is what an invocation returns. Findings may be empty; only the
// briefing agent sets Snapshot. Metrics are always populated, even when
// the agent found nothing.
type Result struct {
	Findings []finding.Finding
	Snapshot *Snapshot
	Metrics  agent.Metrics
}

// Agent is one reviewer in the pipeline. Analyze must respect ctx
// cancellation and deadlines; returning an error marks the invocation
// failed without stopping the pipeline.
type Agent interface {
	ID() agent.ID
	Analyze(ctx context.Context, req Request) (*Result, error)
}
