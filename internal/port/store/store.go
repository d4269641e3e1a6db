// Package store defines the storage ports for review jobs and documents.
// Implementations are in-memory; nothing in the pipeline persists across
// process restarts.
package store

import (
	"context"

	"github.com/redlinehq/redline/internal/domain/agent"
	"github.com/redlinehq/redline/internal/domain/document"
	"github.com/redlinehq/redline/internal/domain/finding"
	"github.com/redlinehq/redline/internal/domain/review"
)

// Jobs is the port for review job state. All reads return deep copies;
// writes go through narrow mutation methods so the store can enforce the
// monotonic status machine.
type Jobs interface {
	Create(ctx context.Context, job *review.Job) error
	Get(ctx context.Context, id string) (*review.Job, error)

	// List returns jobs most recently created first, up to limit
	// (limit <= 0 means all).
	List(ctx context.Context, limit int) ([]*review.Job, error)

	// SetStatus advances the lifecycle. Backward or out-of-terminal
	// transitions return domain.ErrConflict. Reaching a terminal status
	// stamps CompletedAt and starts the retention clock.
	SetStatus(ctx context.Context, id string, status review.Status) error

	SetAgentState(ctx context.Context, id string, agentID agent.ID, state review.AgentState) error

	// AppendFinding records an accepted finding and returns its arrival
	// index within the job.
	AppendFinding(ctx context.Context, id string, f finding.Finding) (int, error)

	SetResult(ctx context.Context, id string, result *review.Result) error
	SetError(ctx context.Context, id string, msg string) error
	Delete(ctx context.Context, id string) error
}

// Documents is the port for submitted documents.
type Documents interface {
	Put(ctx context.Context, doc *document.DocObj) error
	Get(ctx context.Context, id string) (*document.DocObj, error)
	Delete(ctx context.Context, id string) error
}
