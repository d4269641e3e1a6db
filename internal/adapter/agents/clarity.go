package agents

import (
	"context"

	"github.com/redlinehq/redline/internal/domain/agent"
	"github.com/redlinehq/redline/internal/port/analyzer"
)

// Clarity reviews the reader experience: sentence-level phrasing,
// paragraph coherence, and document flow.
type Clarity struct {
	base
}

// NewClarity creates the reader-experience agent.
func NewClarity(opts Options) *Clarity {
	return &Clarity{base: newBase(agent.Clarity, opts)}
}

// Analyze finds clarity issues, attaching concrete rewrites where the
// model can produce them.
func (a *Clarity) Analyze(ctx context.Context, req analyzer.Request) (*analyzer.Result, error) {
	user := clarityUser(
		renderSnapshot(req.Context.Snapshot),
		renderDocument(req.Doc),
		steeringBlock(req.Config),
	)

	content, m, err := a.complete(ctx, claritySystem, user)
	if err != nil {
		return &analyzer.Result{Metrics: m}, err
	}

	findings, err := parseFindings(a.id, content)
	if err != nil {
		return &analyzer.Result{Metrics: m}, err
	}

	return &analyzer.Result{Findings: findings, Metrics: m}, nil
}
