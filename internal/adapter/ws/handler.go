// Package ws streams per-review events over WebSocket connections.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/coder/websocket"

	"github.com/redlinehq/redline/internal/domain"
	"github.com/redlinehq/redline/internal/port/broadcast"
)

// EventSource hands out per-review event subscriptions.
type EventSource interface {
	Events(ctx context.Context, jobID string, fromSeq int64) (*broadcast.Subscription, error)
}

// Streamer bridges a review's event stream onto WebSocket connections.
// Each connection follows exactly one review; there is no cross-review
// fan-out at this layer.
type Streamer struct {
	source EventSource
	log    *slog.Logger

	mu    sync.Mutex
	conns int
}

// NewStreamer creates a Streamer backed by the given event source.
func NewStreamer(source EventSource, log *slog.Logger) *Streamer {
	if log == nil {
		log = slog.Default()
	}
	return &Streamer{source: source, log: log}
}

// ServeReview upgrades the request to a WebSocket and forwards the
// review's events as JSON text messages until the stream closes or the
// client disconnects. A from_seq query parameter replays history from
// that sequence number before going live.
func (s *Streamer) ServeReview(w http.ResponseWriter, r *http.Request, jobID string) {
	fromSeq := broadcast.Live
	if raw := r.URL.Query().Get("from_seq"); raw != "" {
		seq, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || seq < 1 {
			http.Error(w, "from_seq must be a positive integer", http.StatusBadRequest)
			return
		}
		fromSeq = seq
	}

	sub, err := s.source.Events(r.Context(), jobID, fromSeq)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "review not found", http.StatusNotFound)
			return
		}
		http.Error(w, "subscription failed", http.StatusInternalServerError)
		return
	}
	defer sub.Cancel()

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		s.log.Error("websocket accept failed", "job_id", jobID, "error", err)
		return
	}
	defer func() { _ = c.Close(websocket.StatusInternalError, "") }()

	s.track(1)
	defer s.track(-1)
	s.log.Info("websocket connected", "job_id", jobID, "remote", r.RemoteAddr)
	defer s.log.Info("websocket disconnected", "job_id", jobID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Read loop detects client disconnects and consumes control frames.
	go func() {
		defer cancel()
		for {
			if _, _, err := c.Read(ctx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case e, ok := <-sub.C:
			if !ok {
				_ = c.Close(websocket.StatusNormalClosure, "stream complete")
				return
			}
			data, err := json.Marshal(e)
			if err != nil {
				s.log.Error("event marshal failed", "job_id", jobID, "error", err)
				continue
			}
			if err := c.Write(ctx, websocket.MessageText, data); err != nil {
				s.log.Debug("websocket write failed", "job_id", jobID, "error", err)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// ConnectionCount reports the number of active connections.
func (s *Streamer) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns
}

func (s *Streamer) track(delta int) {
	s.mu.Lock()
	s.conns += delta
	s.mu.Unlock()
}
