package agents

import (
	"context"

	"github.com/redlinehq/redline/internal/domain/agent"
	"github.com/redlinehq/redline/internal/port/analyzer"
)

// Briefing extracts the document context every later reviewer builds on.
// It is the only agent that produces a snapshot and it emits no findings.
type Briefing struct {
	base
}

// NewBriefing creates the context-extraction agent.
func NewBriefing(opts Options) *Briefing {
	return &Briefing{base: newBase(agent.Briefing, opts)}
}

// Analyze extracts thesis, claims, and terminology from the document.
func (a *Briefing) Analyze(ctx context.Context, req analyzer.Request) (*analyzer.Result, error) {
	user := briefingUser(renderDocument(req.Doc), steeringBlock(req.Config))

	content, m, err := a.complete(ctx, briefingSystem, user)
	if err != nil {
		return &analyzer.Result{Metrics: m}, err
	}

	snap, err := parseSnapshot(content)
	if err != nil {
		return &analyzer.Result{Metrics: m}, err
	}

	return &analyzer.Result{Snapshot: snap, Metrics: m}, nil
}
