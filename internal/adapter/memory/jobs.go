// Package memory implements the storage ports with lock-guarded maps.
// Jobs and documents live for the process lifetime only; terminal jobs are
// swept after a retention TTL.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/redlinehq/redline/internal/domain"
	"github.com/redlinehq/redline/internal/domain/agent"
	"github.com/redlinehq/redline/internal/domain/finding"
	"github.com/redlinehq/redline/internal/domain/review"
)

// Jobs is the in-memory review job store. All returned jobs are deep
// copies; mutation happens only through the Set* methods under the lock.
type Jobs struct {
	mu   sync.RWMutex
	jobs map[string]*review.Job
	ttl  time.Duration

	log *slog.Logger
}

// NewJobs creates a job store. ttl is how long terminal jobs are retained
// before Sweep removes them.
func NewJobs(ttl time.Duration, log *slog.Logger) *Jobs {
	if log == nil {
		log = slog.Default()
	}
	return &Jobs{
		jobs: make(map[string]*review.Job),
		ttl:  ttl,
		log:  log,
	}
}

// Create inserts a new job. Fails if the ID is already taken.
func (s *Jobs) Create(_ context.Context, job *review.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("%w: job %s already exists", domain.ErrConflict, job.ID)
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

// Get retrieves a job by ID.
func (s *Jobs) Get(_ context.Context, id string) (*review.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: job %s", domain.ErrNotFound, id)
	}
	return job.Clone(), nil
}

// List returns jobs most recently created first, up to limit
// (limit <= 0 means all).
func (s *Jobs) List(_ context.Context, limit int) ([]*review.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*review.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SetStatus advances the job lifecycle. Transitions that would move
// backwards, skip ahead, or leave a terminal state return ErrConflict.
// Reaching a terminal status stamps CompletedAt.
func (s *Jobs) SetStatus(_ context.Context, id string, status review.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: job %s", domain.ErrNotFound, id)
	}
	if !job.Status.CanTransition(status) {
		return fmt.Errorf("%w: job %s cannot go %s -> %s", domain.ErrConflict, id, job.Status, status)
	}

	now := time.Now().UTC()
	job.Status = status
	job.UpdatedAt = now
	if status.Terminal() {
		job.CompletedAt = &now
	}
	return nil
}

// SetAgentState records one reviewer's progress inside the job.
func (s *Jobs) SetAgentState(_ context.Context, id string, agentID agent.ID, state review.AgentState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: job %s", domain.ErrNotFound, id)
	}
	if state.Metrics != nil {
		m := *state.Metrics
		state.Metrics = &m
	}
	job.Agents[agentID] = &state
	job.UpdatedAt = time.Now().UTC()
	return nil
}

// AppendFinding records an accepted finding and returns its arrival index
// within the job. The producing agent's live findings count is bumped so
// progress reads stay accurate mid-run.
func (s *Jobs) AppendFinding(_ context.Context, id string, f finding.Finding) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return 0, fmt.Errorf("%w: job %s", domain.ErrNotFound, id)
	}

	job.Findings = append(job.Findings, f)
	if st, ok := job.Agents[f.AgentID]; ok {
		st.FindingsCount++
	}
	job.UpdatedAt = time.Now().UTC()
	return len(job.Findings) - 1, nil
}

// SetResult attaches the synthesized result to the job.
func (s *Jobs) SetResult(_ context.Context, id string, result *review.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: job %s", domain.ErrNotFound, id)
	}

	r := *result
	job.Result = &r
	job.UpdatedAt = time.Now().UTC()
	return nil
}

// SetError records the job-level failure message.
func (s *Jobs) SetError(_ context.Context, id string, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: job %s", domain.ErrNotFound, id)
	}

	job.Error = msg
	job.UpdatedAt = time.Now().UTC()
	return nil
}

// Delete removes a job. Missing jobs are not an error.
func (s *Jobs) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	return nil
}

// Sweep removes terminal jobs whose retention TTL elapsed before now.
// Returns the number of jobs removed.
func (s *Jobs) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, job := range s.jobs {
		if job.CompletedAt == nil {
			continue
		}
		if now.Sub(*job.CompletedAt) >= s.ttl {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep on the given interval until ctx is cancelled.
func (s *Jobs) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if n := s.Sweep(now); n > 0 {
					s.log.Debug("swept expired jobs", "count", n)
				}
			}
		}
	}()
}

// Len returns the number of stored jobs.
func (s *Jobs) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
