// Package event defines the progress events a review job emits while it
// runs and the typed payloads they carry.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/redlinehq/redline/internal/domain/agent"
	"github.com/redlinehq/redline/internal/domain/finding"
	"github.com/redlinehq/redline/internal/domain/review"
)

// Type identifies the kind of review event.
type Type string

const (
	TypePhaseStarted      Type = "phase_started"
	TypeAgentStarted      Type = "agent_started"
	TypeFindingDiscovered Type = "finding_discovered"
	TypeAgentCompleted    Type = "agent_completed"
	TypePhaseCompleted    Type = "phase_completed"
	TypeReviewCompleted   Type = "review_completed"
	TypeReviewCancelled   Type = "review_cancelled"
	TypeError             Type = "error"

	// TypeKeepalive is emitted on idle streams so consumers can tell a
	// quiet job from a dead connection. Keepalives carry no sequence
	// number and are never replayed.
	TypeKeepalive Type = "keepalive"
)

// Event is the envelope every consumer sees. Seq is assigned by the
// broadcaster at publish time and is monotonic per job.
type Event struct {
	Type      Type            `json:"type"`
	JobID     string          `json:"job_id"`
	Seq       uint64          `json:"seq,omitempty"`
	Timestamp time.Time       `json:"ts"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// PhaseStarted announces a pipeline phase and the agents scheduled for it.
type PhaseStarted struct {
	Phase  string     `json:"phase"`
	Agents []agent.ID `json:"agents"`
}

// AgentStarted announces a single agent invocation.
type AgentStarted struct {
	AgentID agent.ID `json:"agent_id"`
}

// FindingDiscovered carries one accepted finding.
type FindingDiscovered struct {
	AgentID agent.ID        `json:"agent_id"`
	Finding finding.Finding `json:"finding"`
}

// AgentCompleted reports a successful invocation and its cost.
type AgentCompleted struct {
	AgentID       agent.ID `json:"agent_id"`
	FindingsCount int      `json:"findings_count"`
	DurationMS    int64    `json:"duration_ms"`
	CostUSD       float64  `json:"cost_usd"`
}

// PhaseCompleted closes a phase; FailedAgents lists invocations that did
// not produce a usable result.
type PhaseCompleted struct {
	Phase        string     `json:"phase"`
	FailedAgents []agent.ID `json:"failed_agents,omitempty"`
}

// ReviewCompleted is the terminal event of a successful review.
type ReviewCompleted struct {
	Summary review.Summary `json:"summary"`
}

// ReviewCancelled is the terminal event of a cancelled review.
type ReviewCancelled struct{}

// Error reports a failure. Recoverable errors leave the pipeline running;
// a non-recoverable error is followed by the job failing.
type Error struct {
	Stage       string   `json:"stage"`
	AgentID     agent.ID `json:"agent_id,omitempty"`
	Message     string   `json:"message"`
	Recoverable bool     `json:"recoverable"`
}

// New builds an event envelope with the payload marshalled in place. The
// payload structs above cannot fail to marshal; a nil payload is allowed
// for keepalives.
func New(jobID string, t Type, payload any) Event {
	e := Event{Type: t, JobID: jobID, Timestamp: time.Now().UTC()}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			raw, _ = json.Marshal(Error{Stage: "event", Message: err.Error(), Recoverable: true})
		}
		e.Payload = raw
	}
	return e
}

// DecodePayload unmarshals the envelope payload into the given type.
func DecodePayload[T any](e Event) (T, error) {
	var out T
	if len(e.Payload) == 0 {
		return out, fmt.Errorf("event %s has no payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, &out); err != nil {
		return out, fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return out, nil
}
