package agents

import (
	"context"
	"encoding/json"

	"github.com/redlinehq/redline/internal/domain/agent"
	"github.com/redlinehq/redline/internal/port/analyzer"
)

// DomainValidator checks the document's claims against established field
// knowledge. It runs two passes: first it extracts the claims whose truth
// depends on external evidence, then it checks those targets and reports
// unsupported or contradicted ones.
type DomainValidator struct {
	base
}

// NewDomain creates the external-validity agent.
func NewDomain(opts Options) *DomainValidator {
	return &DomainValidator{base: newBase(agent.Domain, opts)}
}

// wireTarget is one external-validity claim from the extraction pass.
type wireTarget struct {
	Claim        string `json:"claim"`
	ParagraphID  string `json:"paragraph_id"`
	QuotedText   string `json:"quoted_text"`
	WhyItMatters string `json:"why_it_matters"`
}

// Analyze extracts validation targets and checks them.
func (a *DomainValidator) Analyze(ctx context.Context, req analyzer.Request) (*analyzer.Result, error) {
	docText := renderDocument(req.Doc)

	content, m, err := a.complete(ctx, domainTargetSystem, domainTargetUser(docText))
	if err != nil {
		return &analyzer.Result{Metrics: m}, err
	}

	// A malformed extraction is not fatal: the check pass can still work
	// from the document alone.
	targets := "(target extraction failed; check the document's central claims directly)"
	var env struct {
		Targets []wireTarget `json:"targets"`
	}
	if perr := json.Unmarshal([]byte(stripFences(content)), &env); perr != nil {
		a.log.Warn("target extraction unparseable", "agent", a.id, "error", perr)
	} else if len(env.Targets) > 0 {
		if b, merr := json.MarshalIndent(env.Targets, "", "  "); merr == nil {
			targets = string(b)
		}
	} else {
		targets = "(no external-validity targets identified; check the document's central claims directly)"
	}

	user := domainCheckUser(renderSnapshot(req.Context.Snapshot), targets, docText)

	checkContent, cm, err := a.complete(ctx, domainCheckSystem, user)
	addCall(&m, cm)
	if err != nil {
		return &analyzer.Result{Metrics: m}, err
	}

	findings, err := parseFindings(a.id, checkContent)
	if err != nil {
		return &analyzer.Result{Metrics: m}, err
	}

	return &analyzer.Result{Findings: findings, Metrics: m}, nil
}
