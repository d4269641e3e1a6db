// Package agents implements the LLM-backed reviewers behind the analyzer
// port. Each agent builds a role prompt, calls the completion proxy, and
// parses a strict JSON response into findings.
package agents

import (
	"context"
	"log/slog"
	"time"

	"github.com/redlinehq/redline/internal/adapter/llm"
	"github.com/redlinehq/redline/internal/domain/agent"
)

// Completer is the slice of the proxy client agents use.
type Completer interface {
	Complete(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error)
}

// Options configures every agent uniformly. ModelFor overrides the default
// model per identity; PanelModels feeds the panel-mode adversary.
type Options struct {
	Client      Completer
	Model       string
	ModelFor    map[agent.ID]string
	PanelModels []string
	MaxTokens   int
	Pricer      *llm.Pricer
	Log         *slog.Logger
}

// base carries what every agent shares.
type base struct {
	id        agent.ID
	client    Completer
	model     string
	maxTokens int
	pricer    *llm.Pricer
	log       *slog.Logger
}

func newBase(id agent.ID, opts Options) base {
	model := opts.Model
	if m, ok := opts.ModelFor[id]; ok && m != "" {
		model = m
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	return base{
		id:        id,
		client:    opts.Client,
		model:     model,
		maxTokens: opts.MaxTokens,
		pricer:    opts.Pricer,
		log:       opts.Log,
	}
}

func (b *base) ID() agent.ID { return b.id }

// complete performs one structured completion with the agent's model.
func (b *base) complete(ctx context.Context, system, user string) (string, agent.Metrics, error) {
	return b.completeWith(ctx, b.model, system, user)
}

// completeWith pins an explicit model; the panel uses it to fan one prompt
// out across several models. Metrics are populated even on error so the
// caller can account for a failed invocation's cost.
func (b *base) completeWith(ctx context.Context, model, system, user string) (string, agent.Metrics, error) {
	start := time.Now()
	m := agent.Metrics{AgentID: b.id, Model: model}

	resp, err := b.client.Complete(ctx, llm.ChatRequest{
		Model: model,
		Messages: []llm.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens:      b.maxTokens,
		Temperature:    0.2,
		ResponseFormat: &llm.ResponseFormat{Type: "json_object"},
	})
	m.DurationMS = time.Since(start).Milliseconds()
	if err != nil {
		return "", m, err
	}

	m.TokensIn = resp.Usage.PromptTokens
	m.TokensOut = resp.Usage.CompletionTokens
	if b.pricer != nil {
		m.CostUSD = b.pricer.Cost(model, m.TokensIn, m.TokensOut)
	}
	return resp.Content(), m, nil
}

// addCall folds a second invocation's accounting into m for agents that
// make more than one proxy call per Analyze.
func addCall(m *agent.Metrics, extra agent.Metrics) {
	m.DurationMS += extra.DurationMS
	m.TokensIn += extra.TokensIn
	m.TokensOut += extra.TokensOut
	m.CostUSD += extra.CostUSD
}
