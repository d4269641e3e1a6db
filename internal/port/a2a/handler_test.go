package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/redlinehq/redline/internal/domain"
	"github.com/redlinehq/redline/internal/domain/review"
)

type fakeBridge struct {
	jobs     map[string]*review.Job
	results  map[string]*review.Result
	startErr error
	nextID   int
}

func (f *fakeBridge) StartReview(_ context.Context, _ review.StartRequest) (*review.Job, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.nextID++
	job := &review.Job{ID: fmt.Sprintf("job-%d", f.nextID), Status: review.StatusPending}
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeBridge) GetJob(_ context.Context, id string) (*review.Job, error) {
	if j, ok := f.jobs[id]; ok {
		return j, nil
	}
	return nil, fmt.Errorf("%w: job %s", domain.ErrNotFound, id)
}

func (f *fakeBridge) GetResult(_ context.Context, id string) (*review.Result, error) {
	if r, ok := f.results[id]; ok {
		return r, nil
	}
	return nil, fmt.Errorf("%w: result %s", domain.ErrNotFound, id)
}

func newTestRouter() (*chi.Mux, *fakeBridge) {
	bridge := &fakeBridge{
		jobs:    make(map[string]*review.Job),
		results: make(map[string]*review.Result),
	}
	h := NewHandler("http://localhost:8080", "1.0.0", bridge)
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r, bridge
}

func postTask(t *testing.T, r *chi.Mux, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/a2a/tasks", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAgentCard(t *testing.T) {
	r, _ := newTestRouter()
	req := httptest.NewRequest(http.MethodGet, "/.well-known/agent.json", http.NoBody)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var card AgentCard
	if err := json.NewDecoder(w.Body).Decode(&card); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if card.Name != "Redline" || card.Version != "1.0.0" {
		t.Fatalf("card = %s %s", card.Name, card.Version)
	}
	if len(card.Skills) != 1 || card.Skills[0].ID != SkillReview {
		t.Fatalf("skills = %+v, want the review skill", card.Skills)
	}
	if !card.Capabilities.Streaming {
		t.Fatal("card should advertise streaming")
	}
}

func TestCreateAndGetTask(t *testing.T) {
	r, bridge := newTestRouter()

	body := `{"id":"task-1","skill":"manuscript-review","input":{"document":{"title":"T","paragraphs":[{"id":"p1","text":"hello"}]}}}`
	w := postTask(t, r, body)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp TaskResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "queued" || resp.ID != "task-1" {
		t.Fatalf("resp = %+v, want queued task-1", resp)
	}
	jobID, _ := resp.Output["job_id"].(string)
	if jobID == "" {
		t.Fatal("response missing job_id")
	}

	// The review progresses and finishes.
	bridge.jobs[jobID].Status = review.StatusAnalyzing
	req := httptest.NewRequest(http.MethodGet, "/a2a/tasks/task-1", http.NoBody)
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req)
	if w2.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w2.Code)
	}
	var running TaskResponse
	if err := json.NewDecoder(w2.Body).Decode(&running); err != nil {
		t.Fatal(err)
	}
	if running.Status != "running" {
		t.Fatalf("status = %s, want running", running.Status)
	}

	bridge.jobs[jobID].Status = review.StatusCompleted
	bridge.results[jobID] = &review.Result{JobID: jobID, Summary: review.Summary{Total: 2}}

	w3 := httptest.NewRecorder()
	r.ServeHTTP(w3, httptest.NewRequest(http.MethodGet, "/a2a/tasks/task-1", http.NoBody))
	var done TaskResponse
	if err := json.NewDecoder(w3.Body).Decode(&done); err != nil {
		t.Fatal(err)
	}
	if done.Status != "completed" {
		t.Fatalf("status = %s, want completed", done.Status)
	}
	result, ok := done.Output["result"].(map[string]any)
	if !ok {
		t.Fatalf("output missing result: %+v", done.Output)
	}
	summary, ok := result["summary"].(map[string]any)
	if !ok || summary["total"] != float64(2) {
		t.Fatalf("result summary = %+v, want total 2", result["summary"])
	}
}

func TestCreateTaskUnknownSkill(t *testing.T) {
	r, _ := newTestRouter()
	w := postTask(t, r, `{"id":"task-1","skill":"juggling"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestCreateTaskInvalidBody(t *testing.T) {
	r, _ := newTestRouter()
	w := postTask(t, r, "not json")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestCreateTaskMissingID(t *testing.T) {
	r, _ := newTestRouter()
	w := postTask(t, r, `{"skill":"manuscript-review"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestCreateTaskDuplicateID(t *testing.T) {
	r, _ := newTestRouter()
	body := `{"id":"task-1","input":{"document_id":"doc-1"}}`
	if w := postTask(t, r, body); w.Code != http.StatusCreated {
		t.Fatalf("first create: expected 201, got %d", w.Code)
	}
	if w := postTask(t, r, body); w.Code != http.StatusConflict {
		t.Fatalf("second create: expected 409, got %d", w.Code)
	}
}

func TestCreateTaskValidationFailure(t *testing.T) {
	r, bridge := newTestRouter()
	bridge.startErr = fmt.Errorf("%w: exactly one of document_id or document is required", domain.ErrValidation)

	w := postTask(t, r, `{"id":"task-1","input":{}}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestGetTaskNotFound(t *testing.T) {
	r, _ := newTestRouter()
	req := httptest.NewRequest(http.MethodGet, "/a2a/tasks/nonexistent", http.NoBody)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestTaskStatusMapping(t *testing.T) {
	cases := map[review.Status]string{
		review.StatusPending:      "queued",
		review.StatusAnalyzing:    "running",
		review.StatusSynthesizing: "running",
		review.StatusCompleted:    "completed",
		review.StatusFailed:       "failed",
		review.StatusCancelled:    "cancelled",
	}
	for in, want := range cases {
		if got := taskStatus(in); string(got) != want {
			t.Errorf("taskStatus(%s) = %s, want %s", in, got, want)
		}
	}
}
