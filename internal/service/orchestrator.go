package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	rlotel "github.com/redlinehq/redline/internal/adapter/otel"
	"github.com/redlinehq/redline/internal/config"
	"github.com/redlinehq/redline/internal/domain/agent"
	"github.com/redlinehq/redline/internal/domain/document"
	"github.com/redlinehq/redline/internal/domain/event"
	"github.com/redlinehq/redline/internal/domain/finding"
	"github.com/redlinehq/redline/internal/domain/review"
	"github.com/redlinehq/redline/internal/port/analyzer"
	"github.com/redlinehq/redline/internal/port/broadcast"
	"github.com/redlinehq/redline/internal/port/store"
	"github.com/redlinehq/redline/internal/synthesis"
)

// Pipeline phase names, in execution order.
const (
	phaseContext   = "context"
	phaseAnalysis  = "analysis"
	phaseCritique  = "critique"
	phaseSynthesis = "synthesis"
)

// phase is one stage of the fixed dependency graph: a set of reviewers
// that run concurrently and join before the next stage starts.
type phase struct {
	name   string
	agents []agent.ID
}

// runState is the mutable state one review run accumulates across phases.
// The snapshot is written by the briefing agent and read by everyone who
// starts after it; the rollup folds in every invocation's cost.
type runState struct {
	mu       sync.Mutex
	snapshot *analyzer.Snapshot
	rollup   agent.Rollup
	accepted int
}

// Orchestrator runs the fixed review pipeline: three agent phases behind
// join barriers, then synthesis. A configurable semaphore bounds how many
// agent invocations are in flight at once; invocations already running
// are never preempted. Job state is mutated only here.
type Orchestrator struct {
	jobs     store.Jobs
	hub      broadcast.Broadcaster
	registry map[agent.ID]analyzer.Agent
	engine   *synthesis.Engine
	sem      *semaphore.Weighted
	timeout  time.Duration
	disabled map[agent.ID]bool
	metrics  *rlotel.Metrics
	log      *slog.Logger
}

// NewOrchestrator creates an Orchestrator over the given reviewer set.
// Deployment-disabled identities are dropped from every plan regardless
// of per-review config.
func NewOrchestrator(
	jobs store.Jobs,
	hub broadcast.Broadcaster,
	agents []analyzer.Agent,
	engine *synthesis.Engine,
	cfg config.Orchestrator,
	disabled []string,
	log *slog.Logger,
) *Orchestrator {
	maxConcurrent := cfg.MaxConcurrentAgents
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	timeout := cfg.AgentTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}

	registry := make(map[agent.ID]analyzer.Agent, len(agents))
	for _, ag := range agents {
		registry[ag.ID()] = ag
	}
	off := make(map[agent.ID]bool, len(disabled))
	for _, id := range disabled {
		off[agent.ID(id)] = true
	}

	return &Orchestrator{
		jobs:     jobs,
		hub:      hub,
		registry: registry,
		engine:   engine,
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		timeout:  timeout,
		disabled: off,
		log:      log,
	}
}

// SetMetrics attaches the pipeline instruments. Optional; a nil metrics
// set disables recording without touching the instrumented paths.
func (o *Orchestrator) SetMetrics(m *rlotel.Metrics) {
	o.metrics = m
}

// plan builds the phase list for one review config. Phases whose entire
// roster is disabled are dropped.
func (o *Orchestrator) plan(cfg review.Config) []phase {
	contextAgents := []agent.ID{agent.Briefing}
	if cfg.EnableDomain {
		contextAgents = append(contextAgents, agent.Domain)
	}
	adversary := agent.Adversary
	if cfg.PanelMode {
		adversary = agent.AdversaryPanel
	}

	all := []phase{
		{name: phaseContext, agents: contextAgents},
		{name: phaseAnalysis, agents: []agent.ID{agent.Clarity, agent.RigorFind}},
		{name: phaseCritique, agents: []agent.ID{agent.RigorRewrite, adversary}},
	}

	out := make([]phase, 0, len(all))
	for _, ph := range all {
		kept := make([]agent.ID, 0, len(ph.agents))
		for _, id := range ph.agents {
			if !o.disabled[id] {
				kept = append(kept, id)
			}
		}
		if len(kept) > 0 {
			out = append(out, phase{name: ph.name, agents: kept})
		}
	}
	return out
}

// Run executes one review job to a terminal state. It is the only writer
// of the job's status, agent map, and findings. Cancellation of ctx is
// observed at phase boundaries only; agents already dispatched finish
// their invocation.
func (o *Orchestrator) Run(ctx context.Context, job *review.Job, doc *document.DocObj) {
	start := time.Now()
	ctx, span := rlotel.StartReviewSpan(ctx, job.ID, job.DocumentID)
	defer span.End()

	phases := o.plan(job.Config)

	// Seed the roster so progress reads show every scheduled reviewer
	// before the first one starts.
	for _, ph := range phases {
		for _, id := range ph.agents {
			_ = o.jobs.SetAgentState(ctx, job.ID, id, review.AgentState{Status: review.AgentPending})
		}
	}

	if err := o.jobs.SetStatus(ctx, job.ID, review.StatusAnalyzing); err != nil {
		o.log.Error("review could not start", "job_id", job.ID, "error", err)
		o.hub.CloseJob(job.ID)
		return
	}
	if o.metrics != nil {
		o.metrics.ReviewsStarted.Add(ctx, 1)
	}
	o.log.Info("review started", "job_id", job.ID, "document_id", job.DocumentID, "phases", len(phases))

	st := &runState{}
	cancelled := false
	fatalPhase := ""

	for i, ph := range phases {
		if ctx.Err() != nil {
			cancelled = true
			o.skipRemaining(ctx, job.ID, phases[i:])
			break
		}

		failed := o.runPhase(ctx, job, doc, ph, st)
		if len(failed) == len(ph.agents) && fatalPhase == "" {
			fatalPhase = ph.name
		}
	}

	// Cancellation raised during the last agent phase is still honored
	// at its join barrier.
	if ctx.Err() != nil {
		cancelled = true
	}

	// A wholly failed phase does not stop the pipeline; later phases may
	// still salvage the review. The job dies only when some phase lost
	// every agent and, at the end, not a single finding exists anywhere.
	if !cancelled && fatalPhase != "" && o.acceptedSoFar(st) == 0 {
		o.fail(ctx, job.ID, fmt.Sprintf("phase %s: all agents failed and no findings were produced", fatalPhase))
		return
	}

	o.finish(ctx, job, doc, st, start, cancelled)
}

// runPhase dispatches every agent of one phase and waits at the join
// barrier. Returns the identities whose invocation failed.
func (o *Orchestrator) runPhase(ctx context.Context, job *review.Job, doc *document.DocObj, ph phase, st *runState) []agent.ID {
	pctx, span := rlotel.StartPhaseSpan(ctx, job.ID, ph.name)
	defer span.End()

	_ = o.hub.Publish(event.New(job.ID, event.TypePhaseStarted, event.PhaseStarted{Phase: ph.name, Agents: ph.agents}))
	o.log.Info("phase started", "job_id", job.ID, "phase", ph.name, "agents", len(ph.agents))

	var (
		mu     sync.Mutex
		failed []agent.ID
	)
	var g errgroup.Group
	for _, id := range ph.agents {
		g.Go(func() error {
			if err := o.invoke(pctx, job, doc, id, st); err != nil {
				mu.Lock()
				failed = append(failed, id)
				mu.Unlock()
			}
			return nil
		})
	}
	// Failures travel through the failed slice, not the group.
	_ = g.Wait()

	_ = o.hub.Publish(event.New(job.ID, event.TypePhaseCompleted, event.PhaseCompleted{Phase: ph.name, FailedAgents: failed}))
	o.log.Info("phase completed", "job_id", job.ID, "phase", ph.name, "failed", len(failed))
	return failed
}

// invoke runs one agent behind the concurrency gate and records its
// outcome. The invocation context detaches from job cancellation and
// carries only the per-call timeout, so a cancel mid-phase never chops a
// running call.
func (o *Orchestrator) invoke(ctx context.Context, job *review.Job, doc *document.DocObj, id agent.ID, st *runState) error {
	ag, ok := o.registry[id]
	if !ok {
		err := fmt.Errorf("no agent registered for %s", id)
		o.log.Error("agent missing from registry", "job_id", job.ID, "agent_id", id)
		o.recordFailure(ctx, job.ID, id, agent.Metrics{AgentID: id}, st, err)
		return err
	}

	detached := context.WithoutCancel(ctx)
	if err := o.sem.Acquire(detached, 1); err != nil {
		o.recordFailure(ctx, job.ID, id, agent.Metrics{AgentID: id}, st, fmt.Errorf("acquire slot: %w", err))
		return err
	}
	defer o.sem.Release(1)

	ictx, cancel := context.WithTimeout(detached, o.timeout)
	defer cancel()

	started := time.Now()
	_ = o.jobs.SetAgentState(ictx, job.ID, id, review.AgentState{Status: review.AgentRunning})
	_ = o.hub.Publish(event.New(job.ID, event.TypeAgentStarted, event.AgentStarted{AgentID: id}))
	if o.metrics != nil {
		o.metrics.AgentsStarted.Add(ictx, 1, metric.WithAttributes(attribute.String("agent.id", string(id))))
	}

	// The snapshot and prior findings are read at dispatch time, after
	// the slot is acquired: a context-phase peer that finished while we
	// waited is visible, one still running is not.
	st.mu.Lock()
	snap := st.snapshot
	st.mu.Unlock()
	prior := o.priorFindings(ictx, job.ID)

	actx, span := rlotel.StartAgentSpan(ictx, job.ID, id)
	res, err := ag.Analyze(actx, analyzer.Request{
		Doc:     doc,
		Config:  job.Config,
		Context: analyzer.Context{Snapshot: snap, Prior: prior},
	})
	span.End()
	elapsed := time.Since(started)

	var m agent.Metrics
	if res != nil {
		m = res.Metrics
	}
	m.AgentID = id
	m.DurationMS = elapsed.Milliseconds()
	if o.metrics != nil {
		o.metrics.AgentDuration.Record(ictx, elapsed.Seconds(), metric.WithAttributes(attribute.String("agent.id", string(id))))
	}

	if err != nil {
		o.log.Warn("agent failed", "job_id", job.ID, "agent_id", id, "duration_ms", m.DurationMS, "error", err)
		o.recordFailure(ictx, job.ID, id, m, st, err)
		return err
	}

	if res.Snapshot != nil {
		st.mu.Lock()
		st.snapshot = res.Snapshot
		st.mu.Unlock()
	}

	count := o.acceptFindings(ictx, job, doc, id, res.Findings, st)

	st.mu.Lock()
	st.rollup.Add(m, false)
	st.mu.Unlock()

	_ = o.jobs.SetAgentState(ictx, job.ID, id, review.AgentState{Status: review.AgentCompleted, FindingsCount: count, Metrics: &m})
	_ = o.hub.Publish(event.New(job.ID, event.TypeAgentCompleted, event.AgentCompleted{
		AgentID:       id,
		FindingsCount: count,
		DurationMS:    m.DurationMS,
		CostUSD:       m.CostUSD,
	}))
	o.log.Info("agent completed", "job_id", job.ID, "agent_id", id, "findings", count, "duration_ms", m.DurationMS, "cost_usd", m.CostUSD)
	return nil
}

// recordFailure books one failed invocation: state, rollup, event,
// metric. Failed calls still contribute the tokens and cost they burned.
func (o *Orchestrator) recordFailure(ctx context.Context, jobID string, id agent.ID, m agent.Metrics, st *runState, err error) {
	st.mu.Lock()
	st.rollup.Add(m, true)
	st.mu.Unlock()

	_ = o.jobs.SetAgentState(ctx, jobID, id, review.AgentState{Status: review.AgentFailed, Metrics: &m, Error: err.Error()})
	_ = o.hub.Publish(event.New(jobID, event.TypeError, event.Error{
		Stage:       "agent",
		AgentID:     id,
		Message:     err.Error(),
		Recoverable: true,
	}))
	if o.metrics != nil {
		o.metrics.AgentsFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("agent.id", string(id))))
	}
}

// acceptFindings runs each returned finding through the contract gate:
// validate against the document, stamp track and dimensions, append to
// job state, emit. Violations drop the single finding, never the batch.
func (o *Orchestrator) acceptFindings(ctx context.Context, job *review.Job, doc *document.DocObj, id agent.ID, fs []finding.Finding, st *runState) int {
	count := 0
	for i := range fs {
		f := fs[i]
		if err := f.Validate(doc); err != nil {
			o.log.Warn("finding rejected", "job_id", job.ID, "agent_id", id, "error", err)
			continue
		}
		f.Stamp()
		if _, err := o.jobs.AppendFinding(ctx, job.ID, f); err != nil {
			o.log.Warn("finding not recorded", "job_id", job.ID, "agent_id", id, "error", err)
			continue
		}
		st.mu.Lock()
		st.accepted++
		st.mu.Unlock()
		count++

		_ = o.hub.Publish(event.New(job.ID, event.TypeFindingDiscovered, event.FindingDiscovered{AgentID: id, Finding: f}))
		if o.metrics != nil {
			o.metrics.FindingsAccepted.Add(ctx, 1, metric.WithAttributes(attribute.String("agent.id", string(id))))
		}
	}
	return count
}

// finish runs the synthesis phase and lands the job on its terminal
// state. A cancelled job still gets a result built from whatever
// findings were accumulated before the cancellation was observed.
func (o *Orchestrator) finish(ctx context.Context, job *review.Job, doc *document.DocObj, st *runState, start time.Time, cancelled bool) {
	// Everything past the last join barrier must complete even when the
	// job context is already cancelled.
	ctx = context.WithoutCancel(ctx)

	if cancelled {
		if err := o.jobs.SetStatus(ctx, job.ID, review.StatusCancelled); err != nil {
			o.log.Error("cancel transition rejected", "job_id", job.ID, "error", err)
		}
		o.log.Info("review cancelled", "job_id", job.ID)
	} else if err := o.jobs.SetStatus(ctx, job.ID, review.StatusSynthesizing); err != nil {
		o.log.Error("synthesis transition rejected", "job_id", job.ID, "error", err)
		o.hub.CloseJob(job.ID)
		return
	}

	_ = o.hub.Publish(event.New(job.ID, event.TypePhaseStarted, event.PhaseStarted{Phase: phaseSynthesis, Agents: []agent.ID{}}))

	raw := o.priorFindings(ctx, job.ID)
	st.mu.Lock()
	st.rollup.ElapsedMS = time.Since(start).Milliseconds()
	rollup := st.rollup
	st.mu.Unlock()

	merged, summary, err := o.engine.Synthesize(doc, raw, rollup)
	if err != nil {
		if len(raw) == 0 {
			if cancelled {
				// Terminal state is already set; there is just nothing
				// to attach.
				o.log.Error("synthesis failed on cancelled review", "job_id", job.ID, "error", err)
				_ = o.hub.Publish(event.New(job.ID, event.TypeReviewCancelled, event.ReviewCancelled{}))
				o.hub.CloseJob(job.ID)
				return
			}
			o.fail(ctx, job.ID, fmt.Sprintf("synthesis: %v", err))
			return
		}
		// Degrade to the raw unmerged list rather than losing findings.
		o.log.Error("synthesis degraded to raw findings", "job_id", job.ID, "error", err)
		_ = o.hub.Publish(event.New(job.ID, event.TypeError, event.Error{Stage: phaseSynthesis, Message: err.Error(), Recoverable: true}))
		merged = raw
		summary = review.Summary{Total: len(raw), Degraded: true, Metrics: rollup}
	}

	result := &review.Result{
		JobID:       job.ID,
		DocumentID:  job.DocumentID,
		Findings:    merged,
		Summary:     summary,
		GeneratedAt: time.Now().UTC(),
	}
	if err := o.jobs.SetResult(ctx, job.ID, result); err != nil {
		o.log.Error("result not stored", "job_id", job.ID, "error", err)
	}

	_ = o.hub.Publish(event.New(job.ID, event.TypePhaseCompleted, event.PhaseCompleted{Phase: phaseSynthesis}))

	if cancelled {
		_ = o.hub.Publish(event.New(job.ID, event.TypeReviewCancelled, event.ReviewCancelled{}))
	} else {
		if err := o.jobs.SetStatus(ctx, job.ID, review.StatusCompleted); err != nil {
			o.log.Error("completion transition rejected", "job_id", job.ID, "error", err)
		}
		_ = o.hub.Publish(event.New(job.ID, event.TypeReviewCompleted, event.ReviewCompleted{Summary: summary}))
		if o.metrics != nil {
			o.metrics.ReviewsCompleted.Add(ctx, 1)
			o.metrics.ReviewDuration.Record(ctx, time.Since(start).Seconds())
			o.metrics.ReviewCost.Record(ctx, rollup.CostUSD)
		}
	}

	o.log.Info("review finished",
		"job_id", job.ID,
		"cancelled", cancelled,
		"findings", len(merged),
		"elapsed_ms", rollup.ElapsedMS,
		"cost_usd", rollup.CostUSD,
		"agents_failed", rollup.AgentsFailed,
	)
	o.hub.CloseJob(job.ID)
}

// fail lands the job on failed and closes its stream.
func (o *Orchestrator) fail(ctx context.Context, jobID, msg string) {
	o.log.Error("review failed", "job_id", jobID, "error", msg)
	_ = o.jobs.SetError(ctx, jobID, msg)
	if err := o.jobs.SetStatus(ctx, jobID, review.StatusFailed); err != nil {
		o.log.Error("failure transition rejected", "job_id", jobID, "error", err)
	}
	_ = o.hub.Publish(event.New(jobID, event.TypeError, event.Error{Stage: "job", Message: msg, Recoverable: false}))
	if o.metrics != nil {
		o.metrics.ReviewsFailed.Add(ctx, 1)
	}
	o.hub.CloseJob(jobID)
}

// skipRemaining marks every agent of the unscheduled phases as skipped.
func (o *Orchestrator) skipRemaining(ctx context.Context, jobID string, phases []phase) {
	for _, ph := range phases {
		for _, id := range ph.agents {
			_ = o.jobs.SetAgentState(ctx, jobID, id, review.AgentState{Status: review.AgentSkipped})
		}
	}
}

// priorFindings reads the findings accepted so far, in arrival order.
func (o *Orchestrator) priorFindings(ctx context.Context, jobID string) []finding.Finding {
	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		o.log.Warn("prior findings unavailable", "job_id", jobID, "error", err)
		return nil
	}
	return job.Findings
}

func (o *Orchestrator) acceptedSoFar(st *runState) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.accepted
}
