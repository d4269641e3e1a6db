package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/redlinehq/redline/internal/domain"
	"github.com/redlinehq/redline/internal/domain/document"
	"github.com/redlinehq/redline/internal/domain/review"
	"github.com/redlinehq/redline/internal/port/broadcast"
	"github.com/redlinehq/redline/internal/port/cache"
	"github.com/redlinehq/redline/internal/port/store"
)

// ReviewService is the front door for review jobs and documents. It
// creates jobs, hands them to the Orchestrator on a detached context,
// and owns the per-job cancellation handles.
type ReviewService struct {
	jobs      store.Jobs
	docs      store.Documents
	hub       broadcast.Broadcaster
	orch      *Orchestrator
	results   cache.Cache
	resultTTL time.Duration
	log       *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewReviewService creates a ReviewService with all dependencies.
// resultTTL bounds how long terminal results stay in the read cache.
func NewReviewService(
	jobs store.Jobs,
	docs store.Documents,
	hub broadcast.Broadcaster,
	orch *Orchestrator,
	results cache.Cache,
	resultTTL time.Duration,
	log *slog.Logger,
) *ReviewService {
	if log == nil {
		log = slog.Default()
	}
	return &ReviewService{
		jobs:      jobs,
		docs:      docs,
		hub:       hub,
		orch:      orch,
		results:   results,
		resultTTL: resultTTL,
		log:       log,
		cancels:   make(map[string]context.CancelFunc),
	}
}

// StartReview validates the request, resolves the document, and launches
// the pipeline in the background. The returned job is in status pending;
// the run context detaches from the caller's so a dropped connection
// never kills a running review.
func (s *ReviewService) StartReview(ctx context.Context, req review.StartRequest) (*review.Job, error) {
	if req.Document != nil && req.Document.ID == "" {
		req.Document.ID = uuid.NewString()
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("validate review request: %w", err)
	}

	var doc *document.DocObj
	if req.Document != nil {
		doc = req.Document.Clone()
		doc.Normalize()
		if err := s.docs.Put(ctx, doc); err != nil {
			return nil, fmt.Errorf("store document: %w", err)
		}
	} else {
		stored, err := s.docs.Get(ctx, req.DocumentID)
		if err != nil {
			return nil, err
		}
		doc = stored
	}

	job := review.NewJob(uuid.NewString(), doc.ID, req.Config, time.Now().UTC())
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	if err := s.hub.Register(job.ID); err != nil {
		return nil, fmt.Errorf("register event stream: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Lock()
	s.cancels[job.ID] = cancel
	s.mu.Unlock()

	go func() {
		defer s.release(job.ID)
		s.orch.Run(runCtx, job, doc)
	}()

	s.log.Info("review accepted", "job_id", job.ID, "document_id", doc.ID,
		"panel_mode", req.Config.PanelMode, "domain", req.Config.EnableDomain)
	return job, nil
}

// GetJob returns the live progress view of one job.
func (s *ReviewService) GetJob(ctx context.Context, id string) (*review.Job, error) {
	return s.jobs.Get(ctx, id)
}

// ListJobs returns jobs most recently created first.
func (s *ReviewService) ListJobs(ctx context.Context, limit int) ([]*review.Job, error) {
	return s.jobs.List(ctx, limit)
}

// GetResult returns the synthesized result of a terminal job, reading
// through the result cache. Live jobs return ErrNotTerminal; failed jobs
// have no result.
func (s *ReviewService) GetResult(ctx context.Context, id string) (*review.Result, error) {
	key := resultKey(id)
	if s.results != nil {
		if raw, ok, err := s.results.Get(ctx, key); err == nil && ok {
			var cached review.Result
			if err := json.Unmarshal(raw, &cached); err == nil {
				return &cached, nil
			}
			_ = s.results.Delete(ctx, key)
		}
	}

	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !job.Status.Terminal() {
		return nil, fmt.Errorf("%w: job %s is %s", review.ErrNotTerminal, id, job.Status)
	}
	if job.Result == nil {
		return nil, fmt.Errorf("%w: job %s has no result (%s)", domain.ErrNotFound, id, job.Error)
	}

	if s.results != nil {
		if raw, err := json.Marshal(job.Result); err == nil {
			if err := s.results.Set(ctx, key, raw, s.resultTTL); err != nil {
				s.log.Debug("result cache write failed", "job_id", id, "error", err)
			}
		}
	}
	return job.Result, nil
}

// Cancel requests cancellation of a live job. The orchestrator observes
// it at the next phase boundary; agents already running finish first.
func (s *ReviewService) Cancel(ctx context.Context, id string) error {
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return fmt.Errorf("%w: job %s is %s", review.ErrTerminal, id, job.Status)
	}

	s.mu.Lock()
	cancel, ok := s.cancels[id]
	s.mu.Unlock()
	if !ok {
		// The run finished between the status read and here.
		return fmt.Errorf("%w: job %s already finished", review.ErrTerminal, id)
	}
	cancel()
	s.log.Info("cancellation requested", "job_id", id)
	return nil
}

// Events attaches a subscriber to a job's event stream. fromSeq is
// broadcast.Live for new events only, or a sequence number to replay
// from before going live.
func (s *ReviewService) Events(ctx context.Context, id string, fromSeq int64) (*broadcast.Subscription, error) {
	if _, err := s.jobs.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.hub.Subscribe(ctx, id, fromSeq)
}

// PutDocument stores a document for later review, assigning an ID when
// the submission has none.
func (s *ReviewService) PutDocument(ctx context.Context, doc *document.DocObj) (*document.DocObj, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: document is required", domain.ErrValidation)
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	doc.Normalize()
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	if err := s.docs.Put(ctx, doc); err != nil {
		return nil, fmt.Errorf("store document: %w", err)
	}
	s.log.Info("document stored", "document_id", doc.ID, "paragraphs", len(doc.Paragraphs))
	return doc, nil
}

// GetDocument returns a stored document.
func (s *ReviewService) GetDocument(ctx context.Context, id string) (*document.DocObj, error) {
	return s.docs.Get(ctx, id)
}

// DeleteDocument removes a stored document. Jobs already running keep
// their own reference.
func (s *ReviewService) DeleteDocument(ctx context.Context, id string) error {
	return s.docs.Delete(ctx, id)
}

// Shutdown cancels every live run. Orchestrator goroutines observe the
// cancellation at their next phase boundary and land their jobs on
// cancelled with whatever findings they have.
func (s *ReviewService) Shutdown() {
	s.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(s.cancels))
	for _, c := range s.cancels {
		cancels = append(cancels, c)
	}
	s.mu.Unlock()
	for _, c := range cancels {
		c()
	}
	if len(cancels) > 0 {
		s.log.Info("cancelled live reviews on shutdown", "count", len(cancels))
	}
}

// release drops a finished job's cancellation handle.
func (s *ReviewService) release(id string) {
	s.mu.Lock()
	cancel, ok := s.cancels[id]
	delete(s.cancels, id)
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

func resultKey(jobID string) string {
	return "result:" + jobID
}
