// Package broker implements the in-process event broadcaster. Each review
// job gets its own topic with a replay log; publishing is non-blocking and
// subscribers that stop draining are evicted rather than slowing the
// pipeline down.
package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redlinehq/redline/internal/domain"
	"github.com/redlinehq/redline/internal/domain/event"
	"github.com/redlinehq/redline/internal/port/broadcast"
)

// Options tunes the broker. Zero values fall back to the defaults below.
type Options struct {
	// SubscriberBuffer is the per-subscriber channel capacity. A
	// subscriber whose buffer is full when a real event arrives is
	// evicted.
	SubscriberBuffer int

	// KeepaliveInterval is how long a stream may stay idle before a
	// keepalive is delivered. Zero disables keepalives.
	KeepaliveInterval time.Duration

	// RetainClosed is how long a closed topic stays available for
	// replay before it is dropped.
	RetainClosed time.Duration
}

const (
	defaultSubscriberBuffer = 256
	defaultRetainClosed     = time.Hour
)

// Broker fans review events out per job.
type Broker struct {
	mu     sync.RWMutex
	topics map[string]*topic
	opts   Options
	log    *slog.Logger
	closed bool

	evictions atomic.Int64
}

// New creates a broker with the given options.
func New(opts Options, log *slog.Logger) *Broker {
	if opts.SubscriberBuffer <= 0 {
		opts.SubscriberBuffer = defaultSubscriberBuffer
	}
	if opts.RetainClosed <= 0 {
		opts.RetainClosed = defaultRetainClosed
	}
	if log == nil {
		log = slog.Default()
	}
	return &Broker{
		topics: make(map[string]*topic),
		opts:   opts,
		log:    log,
	}
}

type topic struct {
	mu      sync.Mutex
	jobID   string
	nextSeq uint64
	history []event.Event
	subs    map[*subscriber]struct{}
	closed  bool
	lastPub time.Time

	stopKeepalive chan struct{}
	retainTimer   *time.Timer
}

type subscriber struct {
	ch   chan event.Event
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

// Register creates the event stream for a job. Must be called before the
// job's first event is published.
func (b *Broker) Register(jobID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("%w: broadcaster is shut down", domain.ErrConflict)
	}
	if _, exists := b.topics[jobID]; exists {
		return fmt.Errorf("%w: stream for job %s already exists", domain.ErrConflict, jobID)
	}

	t := &topic{
		jobID:         jobID,
		nextSeq:       1,
		subs:          make(map[*subscriber]struct{}),
		lastPub:       time.Now(),
		stopKeepalive: make(chan struct{}),
	}
	b.topics[jobID] = t

	if b.opts.KeepaliveInterval > 0 {
		go b.keepaliveLoop(t)
	}
	return nil
}

// Publish assigns the next sequence number and delivers the event to all
// subscribers of the job's stream. Keepalives are delivered unsequenced
// and never enter the replay log.
func (b *Broker) Publish(e event.Event) error {
	t, err := b.topic(e.JobID)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("%w: stream for job %s is closed", domain.ErrConflict, e.JobID)
	}

	if e.Type == event.TypeKeepalive {
		t.deliverKeepalive(e)
		return nil
	}

	e.Seq = t.nextSeq
	t.nextSeq++
	t.history = append(t.history, e)
	t.lastPub = time.Now()

	var evicted []*subscriber
	for sub := range t.subs {
		select {
		case sub.ch <- e:
		default:
			evicted = append(evicted, sub)
		}
	}
	for _, sub := range evicted {
		delete(t.subs, sub)
		sub.close()
		b.evictions.Add(1)
		b.log.Debug("evicted slow subscriber", "job_id", e.JobID, "seq", e.Seq)
	}
	return nil
}

// Subscribe attaches a consumer to a job's stream. fromSeq replays history
// from that sequence number (inclusive) before live delivery;
// broadcast.Live skips replay. Subscribing to an already closed stream
// returns the requested replay on a channel that closes right after.
func (b *Broker) Subscribe(ctx context.Context, jobID string, fromSeq int64) (*broadcast.Subscription, error) {
	t, err := b.topic(jobID)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var replay []event.Event
	if fromSeq >= 0 {
		for _, e := range t.history {
			if e.Seq >= uint64(fromSeq) {
				replay = append(replay, e)
			}
		}
	}

	if t.closed {
		ch := make(chan event.Event, len(replay))
		for _, e := range replay {
			ch <- e
		}
		close(ch)
		return &broadcast.Subscription{C: ch, Cancel: func() {}}, nil
	}

	sub := &subscriber{ch: make(chan event.Event, b.opts.SubscriberBuffer+len(replay))}
	for _, e := range replay {
		sub.ch <- e
	}
	t.subs[sub] = struct{}{}

	cancel := func() {
		t.mu.Lock()
		if _, ok := t.subs[sub]; ok {
			delete(t.subs, sub)
		}
		t.mu.Unlock()
		sub.close()
	}

	if ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}

	return &broadcast.Subscription{C: sub.ch, Cancel: cancel}, nil
}

// CloseJob ends a job's stream. Subscribers drain whatever is buffered and
// then see their channel close; the topic stays around for replay until
// the retention window elapses.
func (b *Broker) CloseJob(jobID string) {
	t, err := b.topic(jobID)
	if err != nil {
		return
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	close(t.stopKeepalive)
	for sub := range t.subs {
		delete(t.subs, sub)
		sub.close()
	}
	t.retainTimer = time.AfterFunc(b.opts.RetainClosed, func() {
		b.mu.Lock()
		delete(b.topics, jobID)
		b.mu.Unlock()
	})
	t.mu.Unlock()
}

// Shutdown closes every stream and stops all timers.
func (b *Broker) Shutdown() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	topics := make([]*topic, 0, len(b.topics))
	for _, t := range b.topics {
		topics = append(topics, t)
	}
	b.topics = make(map[string]*topic)
	b.mu.Unlock()

	for _, t := range topics {
		t.mu.Lock()
		if !t.closed {
			t.closed = true
			close(t.stopKeepalive)
		}
		if t.retainTimer != nil {
			t.retainTimer.Stop()
		}
		for sub := range t.subs {
			delete(t.subs, sub)
			sub.close()
		}
		t.mu.Unlock()
	}
}

// EvictionCount returns the number of subscribers evicted for not keeping
// up since the broker started.
func (b *Broker) EvictionCount() int64 {
	return b.evictions.Load()
}

func (b *Broker) topic(jobID string) (*topic, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("%w: broadcaster is shut down", domain.ErrConflict)
	}
	t, ok := b.topics[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: no stream for job %s", domain.ErrNotFound, jobID)
	}
	return t, nil
}

// keepaliveLoop delivers keepalives on an idle stream so consumers can
// tell a quiet job from a dead connection.
func (b *Broker) keepaliveLoop(t *topic) {
	ticker := time.NewTicker(b.opts.KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopKeepalive:
			return
		case <-ticker.C:
			t.mu.Lock()
			if t.closed {
				t.mu.Unlock()
				return
			}
			if time.Since(t.lastPub) >= b.opts.KeepaliveInterval {
				t.deliverKeepalive(event.New(t.jobID, event.TypeKeepalive, nil))
			}
			t.mu.Unlock()
		}
	}
}

// deliverKeepalive sends without sequencing or eviction. A subscriber with
// a full buffer just misses the keepalive. Caller holds t.mu.
func (t *topic) deliverKeepalive(e event.Event) {
	e.Seq = 0
	for sub := range t.subs {
		select {
		case sub.ch <- e:
		default:
		}
	}
}
