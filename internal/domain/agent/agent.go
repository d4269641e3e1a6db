// Package agent defines the closed set of reviewer identities and the
// per-invocation accounting shared across the pipeline.
package agent

// ID identifies one reviewer role in the fixed pipeline.
type ID string

const (
	Briefing       ID = "briefing"        // context extraction
	Domain         ID = "domain"          // external-validity checks
	Clarity        ID = "clarity"         // reader-experience pass
	RigorFind      ID = "rigor_find"      // methodology fault detection
	RigorRewrite   ID = "rigor_rewrite"   // revision proposals for detected faults
	Adversary      ID = "adversary"       // adversarial critique
	AdversaryPanel ID = "adversary_panel" // panel-mode adversarial critique
)

// All returns every known identity in pipeline order.
func All() []ID {
	return []ID{Briefing, Domain, Clarity, RigorFind, RigorRewrite, Adversary, AdversaryPanel}
}

// Known reports whether id is part of the closed identity set.
func (id ID) Known() bool {
	switch id {
	case Briefing, Domain, Clarity, RigorFind, RigorRewrite, Adversary, AdversaryPanel:
		return true
	}
	return false
}

// Metrics records the cost of a single agent invocation.
type Metrics struct {
	AgentID    ID      `json:"agent_id"`
	Model      string  `json:"model,omitempty"`
	DurationMS int64   `json:"duration_ms"`
	TokensIn   int64   `json:"tokens_in"`
	TokensOut  int64   `json:"tokens_out"`
	CostUSD    float64 `json:"cost_usd"`
}

// Rollup aggregates invocation metrics across one job.
type Rollup struct {
	ElapsedMS       int64   `json:"elapsed_ms"`
	TokensIn        int64   `json:"tokens_in"`
	TokensOut       int64   `json:"tokens_out"`
	CostUSD         float64 `json:"cost_usd"`
	AgentsSucceeded int     `json:"agents_succeeded"`
	AgentsFailed    int     `json:"agents_failed"`
}

// Add folds one invocation into the rollup. Failed invocations still
// contribute whatever tokens and cost they burned before failing. The
// elapsed time is the job wall clock, set by the caller, not summed here.
func (r *Rollup) Add(m Metrics, failed bool) {
	r.TokensIn += m.TokensIn
	r.TokensOut += m.TokensOut
	r.CostUSD += m.CostUSD
	if failed {
		r.AgentsFailed++
	} else {
		r.AgentsSucceeded++
	}
}
