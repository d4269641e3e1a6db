package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/redlinehq/redline/internal/domain/document"
	"github.com/redlinehq/redline/internal/domain/review"
	"github.com/redlinehq/redline/internal/port/broadcast"
	"github.com/redlinehq/redline/internal/service"
)

const defaultListLimit = 50

// StreamHandler upgrades one review's event stream to a live socket.
// Implemented by the websocket adapter; nil disables the ws route.
type StreamHandler interface {
	ServeReview(w http.ResponseWriter, r *http.Request, jobID string)
}

// Handlers bundles the HTTP handler dependencies.
type Handlers struct {
	Reviews *service.ReviewService
	WS      StreamHandler
	Version string
	Log     *slog.Logger
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": h.Version})
}

// CreateDocument stores a parsed document for later review.
func (h *Handlers) CreateDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := readJSON[document.DocObj](w, r)
	if !ok {
		return
	}
	stored, err := h.Reviews.PutDocument(r.Context(), &doc)
	if err != nil {
		writeDomainError(w, err, "document not stored")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": stored.ID})
}

// GetDocument returns a stored document.
func (h *Handlers) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.Reviews.GetDocument(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "document not found")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// DeleteDocument removes a stored document.
func (h *Handlers) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := h.Reviews.DeleteDocument(r.Context(), urlParam(r, "id")); err != nil {
		writeDomainError(w, err, "document not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StartReview accepts a review request and launches the pipeline.
func (h *Handlers) StartReview(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[review.StartRequest](w, r)
	if !ok {
		return
	}
	job, err := h.Reviews.StartReview(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "document not found")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID})
}

// ListReviews returns recent jobs, most recently created first.
func (h *Handlers) ListReviews(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	jobs, err := h.Reviews.ListJobs(r.Context(), limit)
	if err != nil {
		writeDomainError(w, err, "reviews unavailable")
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// GetReview returns the live progress view of one job.
func (h *Handlers) GetReview(w http.ResponseWriter, r *http.Request) {
	job, err := h.Reviews.GetJob(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "review not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// CancelReview requests cancellation of a live job. The pipeline observes
// it at the next phase boundary.
func (h *Handlers) CancelReview(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if err := h.Reviews.Cancel(r.Context(), id); err != nil {
		writeDomainError(w, err, "review not found")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": id, "status": "cancelling"})
}

// GetResult returns the synthesized result of a terminal job.
func (h *Handlers) GetResult(w http.ResponseWriter, r *http.Request) {
	res, err := h.Reviews.GetResult(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "review not found")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// StreamEvents serves a job's event stream over SSE. from_seq (or the
// standard Last-Event-ID header) replays from a sequence number before
// going live; without it the stream starts at the next event.
func (h *Handlers) StreamEvents(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")

	fromSeq := broadcast.Live
	if raw := r.Header.Get("Last-Event-ID"); raw != "" {
		seq, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || seq < 1 {
			writeError(w, http.StatusBadRequest, "Last-Event-ID must be a positive integer")
			return
		}
		// Resume after the last event the client saw.
		fromSeq = seq + 1
	}
	if raw := r.URL.Query().Get("from_seq"); raw != "" {
		seq, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || seq < 1 {
			writeError(w, http.StatusBadRequest, "from_seq must be a positive integer")
			return
		}
		fromSeq = seq
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sub, err := h.Reviews.Events(r.Context(), id, fromSeq)
	if err != nil {
		writeDomainError(w, err, "review not found")
		return
	}
	defer sub.Cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for e := range sub.C {
		data, err := json.Marshal(e)
		if err != nil {
			h.log().Error("event marshal failed", "job_id", id, "error", err)
			continue
		}
		if e.Seq > 0 {
			fmt.Fprintf(w, "id: %d\n", e.Seq)
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
}

func (h *Handlers) log() *slog.Logger {
	if h.Log != nil {
		return h.Log
	}
	return slog.Default()
}
