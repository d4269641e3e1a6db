package agents

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/redlinehq/redline/internal/domain/agent"
	"github.com/redlinehq/redline/internal/domain/finding"
	"github.com/redlinehq/redline/internal/port/analyzer"
)

// RigorFind detects methodological and logical faults. It never proposes
// fixes; that is the revision agent's job.
type RigorFind struct {
	base
}

// NewRigorFind creates the fault-detection agent.
func NewRigorFind(opts Options) *RigorFind {
	return &RigorFind{base: newBase(agent.RigorFind, opts)}
}

// Analyze finds rigor issues in the document.
func (a *RigorFind) Analyze(ctx context.Context, req analyzer.Request) (*analyzer.Result, error) {
	user := rigorFindUser(
		renderSnapshot(req.Context.Snapshot),
		renderDocument(req.Doc),
		steeringBlock(req.Config),
	)

	content, m, err := a.complete(ctx, rigorFindSystem, user)
	if err != nil {
		return &analyzer.Result{Metrics: m}, err
	}

	findings, err := parseFindings(a.id, content)
	if err != nil {
		return &analyzer.Result{Metrics: m}, err
	}

	return &analyzer.Result{Findings: findings, Metrics: m}, nil
}

// RigorRewrite turns detected rigor faults into concrete revision
// proposals. With no prior rigor findings to work on it returns an empty
// result without calling the proxy.
type RigorRewrite struct {
	base
}

// NewRigorRewrite creates the revision agent.
func NewRigorRewrite(opts Options) *RigorRewrite {
	return &RigorRewrite{base: newBase(agent.RigorRewrite, opts)}
}

// wireRewrite is one revision as emitted by the model, referencing the
// source issue by its index in the prompt.
type wireRewrite struct {
	IssueIndex   int       `json:"issue_index"`
	Confidence   float64   `json:"confidence"`
	Summary      string    `json:"summary"`
	Detail       string    `json:"detail,omitempty"`
	ProposedEdit *wireEdit `json:"proposed_edit"`
}

// Analyze proposes revisions for the rigor findings accepted so far.
func (a *RigorRewrite) Analyze(ctx context.Context, req analyzer.Request) (*analyzer.Result, error) {
	issues := filterByCategory(req.Context.Prior, "rigor_")
	if len(issues) == 0 {
		return &analyzer.Result{Metrics: agent.Metrics{AgentID: a.id, Model: a.model}}, nil
	}

	user := rigorRewriteUser(renderFindings(issues), renderDocument(req.Doc))

	content, m, err := a.complete(ctx, rigorRewriteSystem, user)
	if err != nil {
		return &analyzer.Result{Metrics: m}, err
	}

	var env struct {
		Rewrites []wireRewrite `json:"rewrites"`
	}
	if err := json.Unmarshal([]byte(stripFences(content)), &env); err != nil {
		return &analyzer.Result{Metrics: m}, fmt.Errorf("parse %s response: %w", a.id, err)
	}

	findings := make([]finding.Finding, 0, len(env.Rewrites))
	for _, wr := range env.Rewrites {
		if wr.IssueIndex < 0 || wr.IssueIndex >= len(issues) {
			a.log.Warn("rewrite references unknown issue", "agent", a.id, "issue_index", wr.IssueIndex)
			continue
		}
		src := issues[wr.IssueIndex]

		f := finding.Finding{
			ID:         uuid.NewString(),
			AgentID:    a.id,
			Category:   src.Category,
			Severity:   src.Severity,
			Confidence: wr.Confidence,
			Summary:    wr.Summary,
			Detail:     wr.Detail,
			Anchors:    append([]finding.Anchor(nil), src.Anchors...),
			Metadata:   map[string]string{"source_finding_id": src.ID},
		}
		if wr.ProposedEdit != nil {
			f.ProposedEdit = &finding.ProposedEdit{
				OriginalText:  wr.ProposedEdit.OriginalText,
				SuggestedText: wr.ProposedEdit.SuggestedText,
				Rationale:     wr.ProposedEdit.Rationale,
			}
		}
		findings = append(findings, f)
	}

	return &analyzer.Result{Findings: findings, Metrics: m}, nil
}
