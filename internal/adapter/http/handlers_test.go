package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/redlinehq/redline/internal/adapter/broker"
	rlhttp "github.com/redlinehq/redline/internal/adapter/http"
	"github.com/redlinehq/redline/internal/adapter/memory"
	"github.com/redlinehq/redline/internal/config"
	"github.com/redlinehq/redline/internal/domain/agent"
	"github.com/redlinehq/redline/internal/domain/document"
	"github.com/redlinehq/redline/internal/domain/event"
	"github.com/redlinehq/redline/internal/domain/finding"
	"github.com/redlinehq/redline/internal/domain/review"
	"github.com/redlinehq/redline/internal/port/analyzer"
	"github.com/redlinehq/redline/internal/service"
	"github.com/redlinehq/redline/internal/synthesis"
)

// stubAgent returns canned findings, or blocks until released.
type stubAgent struct {
	id       agent.ID
	findings []finding.Finding
	snapshot *analyzer.Snapshot
	block    chan struct{}
}

func (s *stubAgent) ID() agent.ID { return s.id }

func (s *stubAgent) Analyze(ctx context.Context, _ analyzer.Request) (*analyzer.Result, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return &analyzer.Result{Metrics: agent.Metrics{AgentID: s.id}}, ctx.Err()
		}
	}
	return &analyzer.Result{
		Findings: s.findings,
		Snapshot: s.snapshot,
		Metrics:  agent.Metrics{AgentID: s.id, TokensIn: 10, TokensOut: 5, CostUSD: 0.01},
	}, nil
}

func reviewDoc() document.DocObj {
	return document.DocObj{
		Title: "Cold Exposure and Recovery",
		Paragraphs: []document.Paragraph{
			{ID: "p1", Text: "We recruited twelve participants from a single gym."},
			{ID: "p2", Text: "Results were significant at p < 0.05 in all conditions."},
			{ID: "p3", Text: "Cold exposure is therefore beneficial for everyone."},
		},
	}
}

func stubFinding(id agent.ID, cat finding.Category, sev finding.Severity, pid, quote string) finding.Finding {
	return finding.Finding{
		ID:         string(id) + "-" + pid,
		AgentID:    id,
		Category:   cat,
		Severity:   sev,
		Confidence: 0.8,
		Summary:    "needs attention",
		Anchors:    []finding.Anchor{{ParagraphID: pid, QuotedText: quote}},
	}
}

func fullRoster() []*stubAgent {
	return []*stubAgent{
		{id: agent.Briefing, snapshot: &analyzer.Snapshot{Thesis: "cold exposure aids recovery"}},
		{id: agent.Clarity, findings: []finding.Finding{
			stubFinding(agent.Clarity, finding.CategoryClaritySentence, finding.SeverityMinor, "p1", "twelve participants"),
		}},
		{id: agent.RigorFind, findings: []finding.Finding{
			stubFinding(agent.RigorFind, finding.CategoryRigorStatistics, finding.SeverityMajor, "p2", "p < 0.05"),
		}},
		{id: agent.RigorRewrite},
		{id: agent.Adversary, findings: []finding.Finding{
			stubFinding(agent.Adversary, finding.CategoryAdversarialWeakness, finding.SeverityMajor, "p3", "beneficial for everyone"),
		}},
	}
}

func newTestRouter(t *testing.T, stubs []*stubAgent) chi.Router {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	jobs := memory.NewJobs(time.Hour, log)
	docs := memory.NewDocuments()
	hub := broker.New(broker.Options{}, log)
	t.Cleanup(hub.Shutdown)

	list := make([]analyzer.Agent, 0, len(stubs))
	for _, s := range stubs {
		list = append(list, s)
	}
	orch := service.NewOrchestrator(jobs, hub, list, synthesis.New(log), config.Orchestrator{}, nil, log)
	svc := service.NewReviewService(jobs, docs, hub, orch, nil, time.Hour, log)

	r := chi.NewRouter()
	rlhttp.MountRoutes(r, &rlhttp.Handlers{Reviews: svc, Version: "test", Log: log})
	return r
}

func doJSON(t *testing.T, r chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func startReview(t *testing.T, r chi.Router, body any) string {
	t.Helper()
	w := doJSON(t, r, "POST", "/api/v1/reviews", body)
	if w.Code != http.StatusAccepted {
		t.Fatalf("start review: expected 202, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		JobID string `json:"job_id"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.JobID == "" {
		t.Fatal("start review returned no job id")
	}
	return resp.JobID
}

func waitStatus(t *testing.T, r chi.Router, jobID string, want review.Status) review.Job {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	var job review.Job
	for time.Now().Before(deadline) {
		w := doJSON(t, r, "GET", "/api/v1/reviews/"+jobID, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("get review: expected 200, got %d", w.Code)
		}
		if err := json.NewDecoder(w.Body).Decode(&job); err != nil {
			t.Fatal(err)
		}
		if job.Status == want {
			return job
		}
		if job.Status.Terminal() {
			t.Fatalf("job landed on %s, want %s (error %q)", job.Status, want, job.Error)
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("job %s never reached %s (last %s)", jobID, want, job.Status)
	return job
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t, fullRoster())
	w := doJSON(t, r, "GET", "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"version":"test"`) {
		t.Fatalf("health body = %s", w.Body.String())
	}
}

func TestDocumentLifecycle(t *testing.T) {
	r := newTestRouter(t, fullRoster())

	w := doJSON(t, r, "POST", "/api/v1/documents", reviewDoc())
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	if created.ID == "" {
		t.Fatal("create returned no id")
	}

	w = doJSON(t, r, "GET", "/api/v1/documents/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", w.Code)
	}
	var doc document.DocObj
	if err := json.NewDecoder(w.Body).Decode(&doc); err != nil {
		t.Fatal(err)
	}
	if len(doc.Paragraphs) != 3 {
		t.Fatalf("stored document has %d paragraphs, want 3", len(doc.Paragraphs))
	}

	w = doJSON(t, r, "DELETE", "/api/v1/documents/"+created.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", w.Code)
	}
	w = doJSON(t, r, "GET", "/api/v1/documents/"+created.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("get after delete: expected 404, got %d", w.Code)
	}
}

func TestCreateDocumentInvalid(t *testing.T) {
	r := newTestRouter(t, fullRoster())
	w := doJSON(t, r, "POST", "/api/v1/documents", document.DocObj{Title: "empty"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestReviewRoundTrip(t *testing.T) {
	r := newTestRouter(t, fullRoster())

	jobID := startReview(t, r, review.StartRequest{Document: ptr(reviewDoc())})
	job := waitStatus(t, r, jobID, review.StatusCompleted)
	if len(job.Agents) != 5 {
		t.Fatalf("job roster has %d agents, want 5", len(job.Agents))
	}

	w := doJSON(t, r, "GET", "/api/v1/reviews/"+jobID+"/result", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("result: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var res review.Result
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if res.JobID != jobID || len(res.Findings) != 3 {
		t.Fatalf("result = job %s with %d findings, want %s with 3", res.JobID, len(res.Findings), jobID)
	}
	if res.Summary.Total != 3 {
		t.Fatalf("summary total = %d, want 3", res.Summary.Total)
	}
}

func TestStartReviewRejectsDoubleDocument(t *testing.T) {
	r := newTestRouter(t, fullRoster())
	w := doJSON(t, r, "POST", "/api/v1/reviews", review.StartRequest{
		DocumentID: "doc-1",
		Document:   ptr(reviewDoc()),
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestStartReviewUnknownDocument(t *testing.T) {
	r := newTestRouter(t, fullRoster())
	w := doJSON(t, r, "POST", "/api/v1/reviews", review.StartRequest{DocumentID: "nope"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestResultConflictWhileRunning(t *testing.T) {
	stubs := fullRoster()
	block := make(chan struct{})
	stubs[0].block = block
	r := newTestRouter(t, stubs)

	jobID := startReview(t, r, review.StartRequest{Document: ptr(reviewDoc())})

	w := doJSON(t, r, "GET", "/api/v1/reviews/"+jobID+"/result", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("result of live job: expected 409, got %d", w.Code)
	}
	close(block)
	waitStatus(t, r, jobID, review.StatusCompleted)
}

func TestCancelFlow(t *testing.T) {
	stubs := fullRoster()
	block := make(chan struct{})
	stubs[0].block = block
	r := newTestRouter(t, stubs)

	jobID := startReview(t, r, review.StartRequest{Document: ptr(reviewDoc())})

	w := doJSON(t, r, "POST", "/api/v1/reviews/"+jobID+"/cancel", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("cancel: expected 202, got %d: %s", w.Code, w.Body.String())
	}
	close(block)
	waitStatus(t, r, jobID, review.StatusCancelled)

	w = doJSON(t, r, "POST", "/api/v1/reviews/"+jobID+"/cancel", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("cancel of terminal job: expected 409, got %d", w.Code)
	}
}

func TestCancelUnknownReview(t *testing.T) {
	r := newTestRouter(t, fullRoster())
	w := doJSON(t, r, "POST", "/api/v1/reviews/nope/cancel", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestGetReviewUnknown(t *testing.T) {
	r := newTestRouter(t, fullRoster())
	w := doJSON(t, r, "GET", "/api/v1/reviews/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestListReviews(t *testing.T) {
	r := newTestRouter(t, fullRoster())
	jobID := startReview(t, r, review.StartRequest{Document: ptr(reviewDoc())})
	waitStatus(t, r, jobID, review.StatusCompleted)

	w := doJSON(t, r, "GET", "/api/v1/reviews", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", w.Code)
	}
	var jobs []review.Job
	if err := json.NewDecoder(w.Body).Decode(&jobs); err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 || jobs[0].ID != jobID {
		t.Fatalf("list = %d jobs, want the one started", len(jobs))
	}

	w = doJSON(t, r, "GET", "/api/v1/reviews?limit=banana", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: expected 400, got %d", w.Code)
	}
}

func TestStreamEventsReplay(t *testing.T) {
	r := newTestRouter(t, fullRoster())
	jobID := startReview(t, r, review.StartRequest{Document: ptr(reviewDoc())})
	waitStatus(t, r, jobID, review.StatusCompleted)

	w := doJSON(t, r, "GET", "/api/v1/reviews/"+jobID+"/events?from_seq=1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	var types []event.Type
	for _, frame := range strings.Split(w.Body.String(), "\n\n") {
		for _, line := range strings.Split(frame, "\n") {
			raw, ok := strings.CutPrefix(line, "data: ")
			if !ok {
				continue
			}
			var e event.Event
			if err := json.Unmarshal([]byte(raw), &e); err != nil {
				t.Fatalf("bad SSE frame %q: %v", raw, err)
			}
			if e.JobID != jobID {
				t.Fatalf("event for job %s on stream of %s", e.JobID, jobID)
			}
			types = append(types, e.Type)
		}
	}
	if len(types) == 0 {
		t.Fatal("no events replayed")
	}
	if types[0] != event.TypePhaseStarted {
		t.Errorf("first event = %s, want phase_started", types[0])
	}
	if types[len(types)-1] != event.TypeReviewCompleted {
		t.Errorf("last event = %s, want review_completed", types[len(types)-1])
	}
}

func TestStreamEventsUnknownReview(t *testing.T) {
	r := newTestRouter(t, fullRoster())
	w := doJSON(t, r, "GET", "/api/v1/reviews/nope/events", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestStreamEventsBadFromSeq(t *testing.T) {
	r := newTestRouter(t, fullRoster())
	w := doJSON(t, r, "GET", "/api/v1/reviews/any/events?from_seq=banana", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func ptr(d document.DocObj) *document.DocObj { return &d }
