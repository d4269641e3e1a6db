// Package review defines review jobs, their lifecycle, and the synthesized
// result delivered when a job reaches a terminal state.
package review

import (
	"errors"
	"fmt"
	"time"

	"github.com/redlinehq/redline/internal/domain"
	"github.com/redlinehq/redline/internal/domain/agent"
	"github.com/redlinehq/redline/internal/domain/document"
	"github.com/redlinehq/redline/internal/domain/finding"
)

// ErrNotTerminal is returned when a result is requested before the job
// reached a terminal state.
var ErrNotTerminal = errors.New("review has not finished")

// ErrTerminal is returned when an operation requires a live job, such as
// cancelling one that already finished.
var ErrTerminal = errors.New("review already finished")

// Status is the lifecycle state of a review job. Transitions are strictly
// forward; the store rejects anything else.
type Status string

const (
	StatusPending      Status = "pending"
	StatusAnalyzing    Status = "analyzing"
	StatusSynthesizing Status = "synthesizing"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusCancelled    Status = "cancelled"
)

// statusOrder encodes the monotonic lifecycle. Terminal states share a rank
// so no terminal state can replace another.
var statusOrder = map[Status]int{
	StatusPending:      0,
	StatusAnalyzing:    1,
	StatusSynthesizing: 2,
	StatusCompleted:    3,
	StatusFailed:       3,
	StatusCancelled:    3,
}

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// CanTransition reports whether moving from s to next respects the
// monotonic lifecycle. Cancellation and failure may preempt any live state.
func (s Status) CanTransition(next Status) bool {
	from, ok := statusOrder[s]
	if !ok {
		return false
	}
	to, ok := statusOrder[next]
	if !ok {
		return false
	}
	if s.Terminal() {
		return false
	}
	if next == StatusCancelled || next == StatusFailed {
		return true
	}
	return to == from+1
}

// AgentStatus tracks one reviewer's progress inside a job.
type AgentStatus string

const (
	AgentPending   AgentStatus = "pending"
	AgentRunning   AgentStatus = "running"
	AgentCompleted AgentStatus = "completed"
	AgentFailed    AgentStatus = "failed"
	AgentSkipped   AgentStatus = "skipped"
)

// AgentState is the per-reviewer slice of a job's progress.
type AgentState struct {
	Status        AgentStatus    `json:"status"`
	FindingsCount int            `json:"findings_count"`
	Metrics       *agent.Metrics `json:"metrics,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// Config carries the caller's knobs for one review. The zero value is a
// full review with the domain agent disabled.
type Config struct {
	Focus        []finding.Dimension `json:"focus,omitempty"`
	Steering     string              `json:"steering,omitempty"`
	PanelMode    bool                `json:"panel_mode,omitempty"`
	EnableDomain bool                `json:"enable_domain,omitempty"`
}

// Validate rejects focus dimensions outside the known vocabulary.
func (c Config) Validate() error {
	for _, d := range c.Focus {
		if !finding.KnownDimension(d) {
			return fmt.Errorf("%w: unknown focus dimension %q", domain.ErrValidation, d)
		}
	}
	return nil
}

// StartRequest asks for a review of a stored document or of a document
// submitted inline.
type StartRequest struct {
	DocumentID string           `json:"document_id,omitempty"`
	Document   *document.DocObj `json:"document,omitempty"`
	Config     Config           `json:"config"`
}

// Validate requires exactly one document reference.
func (r StartRequest) Validate() error {
	if (r.DocumentID == "") == (r.Document == nil) {
		return fmt.Errorf("%w: exactly one of document_id or document is required", domain.ErrValidation)
	}
	if r.Document != nil {
		if err := r.Document.Validate(); err != nil {
			return err
		}
	}
	return r.Config.Validate()
}

// Summary is the aggregate view synthesis attaches to a completed review.
type Summary struct {
	Total                  int                       `json:"total"`
	BySeverity             map[finding.Severity]int  `json:"by_severity"`
	ByTrack                map[finding.Track]int     `json:"by_track"`
	ByDimension            map[finding.Dimension]int `json:"by_dimension"`
	ParagraphsWithFindings int                       `json:"paragraphs_with_findings"`
	ParagraphTotal         int                       `json:"paragraph_total"`
	Degraded               bool                      `json:"degraded,omitempty"`
	Metrics                agent.Rollup              `json:"metrics"`
}

// Result is the final product of a review: the merged, ordered findings
// plus the summary.
type Result struct {
	JobID       string            `json:"job_id"`
	DocumentID  string            `json:"document_id"`
	Findings    []finding.Finding `json:"findings"`
	Summary     Summary           `json:"summary"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// Job is one review run over one document.
type Job struct {
	ID          string                   `json:"id"`
	DocumentID  string                   `json:"document_id"`
	Config      Config                   `json:"config"`
	Status      Status                   `json:"status"`
	Error       string                   `json:"error,omitempty"`
	Agents      map[agent.ID]*AgentState `json:"agents"`
	Findings    []finding.Finding        `json:"findings,omitempty"`
	Result      *Result                  `json:"result,omitempty"`
	CreatedAt   time.Time                `json:"created_at"`
	UpdatedAt   time.Time                `json:"updated_at"`
	CompletedAt *time.Time               `json:"completed_at,omitempty"`
}

// NewJob returns a pending job for the given document and config.
func NewJob(id, documentID string, cfg Config, now time.Time) *Job {
	return &Job{
		ID:         id,
		DocumentID: documentID,
		Config:     cfg,
		Status:     StatusPending,
		Agents:     make(map[agent.ID]*AgentState),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Clone returns a deep copy so store callers can never mutate shared state.
func (j *Job) Clone() *Job {
	out := *j
	out.Agents = make(map[agent.ID]*AgentState, len(j.Agents))
	for id, st := range j.Agents {
		cp := *st
		if st.Metrics != nil {
			m := *st.Metrics
			cp.Metrics = &m
		}
		out.Agents[id] = &cp
	}
	out.Findings = cloneFindings(j.Findings)
	if j.Result != nil {
		r := *j.Result
		r.Findings = cloneFindings(j.Result.Findings)
		out.Result = &r
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

func cloneFindings(in []finding.Finding) []finding.Finding {
	if in == nil {
		return nil
	}
	out := make([]finding.Finding, len(in))
	copy(out, in)
	for i := range out {
		if out[i].Metadata != nil {
			md := make(map[string]string, len(out[i].Metadata))
			for k, v := range out[i].Metadata {
				md[k] = v
			}
			out[i].Metadata = md
		}
		if len(out[i].Dimensions) > 0 {
			dims := make([]finding.Dimension, len(out[i].Dimensions))
			copy(dims, out[i].Dimensions)
			out[i].Dimensions = dims
		}
		if len(out[i].Anchors) > 0 {
			as := make([]finding.Anchor, len(out[i].Anchors))
			copy(as, out[i].Anchors)
			out[i].Anchors = as
		}
	}
	return out
}
