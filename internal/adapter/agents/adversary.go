package agents

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/redlinehq/redline/internal/domain/agent"
	"github.com/redlinehq/redline/internal/domain/finding"
	"github.com/redlinehq/redline/internal/port/analyzer"
)

// Adversary plays the hostile expert reviewer. It sees everything the
// earlier agents found and escalates to structural objections.
type Adversary struct {
	base
}

// NewAdversary creates the single-model adversarial agent.
func NewAdversary(opts Options) *Adversary {
	return &Adversary{base: newBase(agent.Adversary, opts)}
}

// Analyze generates adversarial critique over the document and the prior
// findings.
func (a *Adversary) Analyze(ctx context.Context, req analyzer.Request) (*analyzer.Result, error) {
	user := adversaryUser(
		renderSnapshot(req.Context.Snapshot),
		renderFindings(req.Context.Prior),
		renderDocument(req.Doc),
		steeringBlock(req.Config),
	)

	content, m, err := a.complete(ctx, adversarySystem, user)
	if err != nil {
		return &analyzer.Result{Metrics: m}, err
	}

	findings, err := parseFindings(a.id, content)
	if err != nil {
		return &analyzer.Result{Metrics: m}, err
	}

	return &analyzer.Result{Findings: findings, Metrics: m}, nil
}

// AdversaryPanel runs the adversarial prompt across several models in
// parallel and reconciles their findings into one deduplicated list with
// vote counts. Individual members may fail; the invocation fails only when
// every member does.
type AdversaryPanel struct {
	base
	models []string
}

// NewAdversaryPanel creates the panel-mode adversarial agent. With no panel
// models configured it degrades to a single-member panel on the agent's own
// model.
func NewAdversaryPanel(opts Options) *AdversaryPanel {
	b := newBase(agent.AdversaryPanel, opts)
	models := opts.PanelModels
	if len(models) == 0 {
		models = []string{b.model}
	}
	return &AdversaryPanel{base: b, models: models}
}

// panelFindings is one member's contribution to the reconcile prompt.
type panelFindings struct {
	model    string
	rendered string
}

// Analyze fans the adversarial prompt out across the panel, then merges.
func (a *AdversaryPanel) Analyze(ctx context.Context, req analyzer.Request) (*analyzer.Result, error) {
	user := adversaryUser(
		renderSnapshot(req.Context.Snapshot),
		renderFindings(req.Context.Prior),
		renderDocument(req.Doc),
		steeringBlock(req.Config),
	)

	type member struct {
		model    string
		findings []finding.Finding
		metrics  agent.Metrics
		err      error
	}
	members := make([]member, len(a.models))

	var g errgroup.Group
	for i, model := range a.models {
		g.Go(func() error {
			members[i].model = model
			content, m, err := a.completeWith(ctx, model, adversarySystem, user)
			members[i].metrics = m
			if err != nil {
				members[i].err = err
				return nil
			}
			fs, err := parseFindings(a.id, content)
			if err != nil {
				members[i].err = err
				return nil
			}
			members[i].findings = fs
			return nil
		})
	}
	// Member errors travel through the slots, not the group.
	_ = g.Wait()

	total := agent.Metrics{AgentID: a.id, Model: strings.Join(a.models, ",")}
	var (
		panels []panelFindings
		union  []finding.Finding
		errs   []error
	)
	for i := range members {
		mb := &members[i]
		addCall(&total, mb.metrics)
		if mb.err != nil {
			a.log.Warn("panel member failed", "agent", a.id, "model", mb.model, "error", mb.err)
			errs = append(errs, fmt.Errorf("%s: %w", mb.model, mb.err))
			continue
		}
		for j := range mb.findings {
			if mb.findings[j].Metadata == nil {
				mb.findings[j].Metadata = map[string]string{}
			}
			mb.findings[j].Metadata["panel_model"] = mb.model
		}
		panels = append(panels, panelFindings{model: mb.model, rendered: renderFindings(mb.findings)})
		union = append(union, mb.findings...)
	}

	if len(panels) == 0 {
		return &analyzer.Result{Metrics: total}, fmt.Errorf("all %d panel members failed: %w", len(a.models), errors.Join(errs...))
	}

	content, rm, err := a.complete(ctx, reconcileSystem, reconcileUser(panels))
	addCall(&total, rm)
	if err != nil {
		// The member findings are still good; ship the raw union rather
		// than losing the whole panel to a reconcile hiccup.
		a.log.Warn("panel reconcile failed, returning unmerged findings", "agent", a.id, "error", err)
		return &analyzer.Result{Findings: union, Metrics: total}, nil
	}

	merged, err := parseFindings(a.id, content)
	if err != nil {
		a.log.Warn("panel reconcile unparseable, returning unmerged findings", "agent", a.id, "error", err)
		return &analyzer.Result{Findings: union, Metrics: total}, nil
	}

	for i := range merged {
		if merged[i].Confidence > 0 {
			continue
		}
		if v, aerr := strconv.Atoi(merged[i].Metadata["votes"]); aerr == nil && v > 0 {
			merged[i].Confidence = float64(v) / float64(len(panels))
		}
	}

	return &analyzer.Result{Findings: merged, Metrics: total}, nil
}
