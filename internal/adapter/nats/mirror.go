package nats

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/redlinehq/redline/internal/port/broadcast"
	"github.com/redlinehq/redline/internal/port/messagequeue"
)

const mirrorPublishTimeout = 5 * time.Second

// Mirror decorates a Broadcaster so every review's events are also
// published to the message queue on the job's subject. The mirror runs
// as an ordinary subscriber of each stream: forwarding is best effort
// and never blocks or fails the in-process fan-out.
type Mirror struct {
	broadcast.Broadcaster

	queue messagequeue.Queue
	log   *slog.Logger
	wg    sync.WaitGroup
}

// NewMirror wraps next so each registered job is mirrored to queue.
func NewMirror(next broadcast.Broadcaster, queue messagequeue.Queue, log *slog.Logger) *Mirror {
	if log == nil {
		log = slog.Default()
	}
	return &Mirror{Broadcaster: next, queue: queue, log: log}
}

// Register creates the job's stream and starts forwarding its events.
func (m *Mirror) Register(jobID string) error {
	if err := m.Broadcaster.Register(jobID); err != nil {
		return err
	}

	sub, err := m.Broadcaster.Subscribe(context.Background(), jobID, 1)
	if err != nil {
		// The in-process stream stays usable without the mirror.
		m.log.Error("mirror subscribe failed", "job_id", jobID, "error", err)
		return nil
	}

	m.wg.Add(1)
	go m.forward(jobID, sub)
	return nil
}

// Shutdown closes the underlying streams and waits for all forwarding
// goroutines to drain.
func (m *Mirror) Shutdown() {
	m.Broadcaster.Shutdown()
	m.wg.Wait()
}

func (m *Mirror) forward(jobID string, sub *broadcast.Subscription) {
	defer m.wg.Done()
	defer sub.Cancel()

	subject := messagequeue.SubjectJobEvents(jobID)
	for e := range sub.C {
		if e.Seq == 0 {
			// Keepalives exist for idle HTTP streams only.
			continue
		}
		data, err := json.Marshal(e)
		if err != nil {
			m.log.Error("mirror marshal failed", "job_id", jobID, "seq", e.Seq, "error", err)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), mirrorPublishTimeout)
		err = m.queue.Publish(ctx, subject, data)
		cancel()
		if err != nil {
			m.log.Warn("event mirror publish failed", "job_id", jobID, "seq", e.Seq, "error", err)
		}
	}
}
