// Package a2a serves the agent-to-agent protocol surface: the agent
// card plus a task endpoint that maps peer tasks onto review jobs.
package a2a

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/redlinehq/redline/internal/domain"
	"github.com/redlinehq/redline/internal/domain/review"
)

// ReviewBridge is the slice of the review service the A2A surface needs.
type ReviewBridge interface {
	StartReview(ctx context.Context, req review.StartRequest) (*review.Job, error)
	GetJob(ctx context.Context, id string) (*review.Job, error)
	GetResult(ctx context.Context, id string) (*review.Result, error)
}

// Handler serves the A2A protocol endpoints.
type Handler struct {
	baseURL string
	version string
	reviews ReviewBridge

	mu    sync.RWMutex
	tasks map[string]string // peer task ID -> review job ID
}

// NewHandler creates an A2A handler bridging tasks to reviews.
func NewHandler(baseURL, version string, reviews ReviewBridge) *Handler {
	return &Handler{
		baseURL: baseURL,
		version: version,
		reviews: reviews,
		tasks:   make(map[string]string),
	}
}

// MountRoutes registers A2A routes on the given chi router.
// These are mounted at the root level, not under /api/v1.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/.well-known/agent.json", h.handleAgentCard)
	r.Post("/a2a/tasks", h.handleCreateTask)
	r.Get("/a2a/tasks/{id}", h.handleGetTask)
}

func (h *Handler) handleAgentCard(w http.ResponseWriter, _ *http.Request) {
	card := BuildAgentCard(h.baseURL, h.version)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(card)
}

func (h *Handler) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeA2AError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ID == "" {
		writeA2AError(w, http.StatusBadRequest, "id is required")
		return
	}
	if req.Skill != "" && req.Skill != SkillReview {
		writeA2AError(w, http.StatusBadRequest, "unknown skill "+req.Skill)
		return
	}

	// The task input mirrors the REST start request field for field.
	raw, err := json.Marshal(req.Input)
	if err != nil {
		writeA2AError(w, http.StatusBadRequest, "invalid input")
		return
	}
	var start review.StartRequest
	if err := json.Unmarshal(raw, &start); err != nil {
		writeA2AError(w, http.StatusBadRequest, "invalid input")
		return
	}

	h.mu.Lock()
	if _, exists := h.tasks[req.ID]; exists {
		h.mu.Unlock()
		writeA2AError(w, http.StatusConflict, "task already exists")
		return
	}
	// Reserve the ID so a concurrent create with the same ID conflicts
	// instead of starting a second review.
	h.tasks[req.ID] = ""
	h.mu.Unlock()

	job, err := h.reviews.StartReview(r.Context(), start)
	if err != nil {
		h.mu.Lock()
		delete(h.tasks, req.ID)
		h.mu.Unlock()
		switch {
		case errors.Is(err, domain.ErrValidation):
			writeA2AError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrNotFound):
			writeA2AError(w, http.StatusNotFound, err.Error())
		default:
			writeA2AError(w, http.StatusInternalServerError, "failed to start review")
		}
		return
	}

	h.mu.Lock()
	h.tasks[req.ID] = job.ID
	h.mu.Unlock()

	slog.Info("a2a task created", "id", req.ID, "job_id", job.ID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(TaskResponse{
		ID:     req.ID,
		Status: TaskQueued,
		Output: map[string]any{"job_id": job.ID},
	})
}

func (h *Handler) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	h.mu.RLock()
	jobID, ok := h.tasks[id]
	h.mu.RUnlock()
	if !ok || jobID == "" {
		writeA2AError(w, http.StatusNotFound, "task not found")
		return
	}

	job, err := h.reviews.GetJob(r.Context(), jobID)
	if err != nil {
		writeA2AError(w, http.StatusNotFound, "task not found")
		return
	}

	resp := TaskResponse{
		ID:     id,
		Status: taskStatus(job.Status),
		Output: map[string]any{"job_id": job.ID},
		Error:  job.Error,
	}
	if job.Status == review.StatusCompleted {
		if out, err := h.resultOutput(r.Context(), job.ID); err == nil {
			resp.Output = out
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// resultOutput fetches the finished result and flattens it into the
// task output map.
func (h *Handler) resultOutput(ctx context.Context, jobID string) (map[string]any, error) {
	res, err := h.reviews.GetResult(ctx, jobID)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return nil, err
	}
	out := map[string]any{"job_id": jobID}
	var result map[string]any
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	out["result"] = result
	return out, nil
}

func taskStatus(s review.Status) TaskStatus {
	switch s {
	case review.StatusPending:
		return TaskQueued
	case review.StatusCompleted:
		return TaskCompleted
	case review.StatusFailed:
		return TaskFailed
	case review.StatusCancelled:
		return TaskCancelled
	default:
		return TaskRunning
	}
}

func writeA2AError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
