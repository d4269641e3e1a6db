package broker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/redlinehq/redline/internal/domain"
	"github.com/redlinehq/redline/internal/domain/event"
	"github.com/redlinehq/redline/internal/port/broadcast"
)

func testBroker(opts Options) *Broker {
	return New(opts, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func recv(t *testing.T, ch <-chan event.Event) event.Event {
	t.Helper()
	select {
	case e, ok := <-ch:
		if !ok {
			t.Fatal("channel closed while waiting for an event")
		}
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an event")
	}
	return event.Event{}
}

func recvClosed(t *testing.T, ch <-chan event.Event) {
	t.Helper()
	select {
	case e, ok := <-ch:
		if ok {
			t.Fatalf("expected closed channel, got event %s seq %d", e.Type, e.Seq)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}

func TestBroker_RegisterDuplicate(t *testing.T) {
	b := testBroker(Options{})
	defer b.Shutdown()

	if err := b.Register("job-1"); err != nil {
		t.Fatal(err)
	}
	if err := b.Register("job-1"); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("duplicate register should be ErrConflict, got %v", err)
	}
}

func TestBroker_PublishUnknownJob(t *testing.T) {
	b := testBroker(Options{})
	defer b.Shutdown()

	err := b.Publish(event.New("nope", event.TypeAgentStarted, event.AgentStarted{}))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestBroker_SubscribeUnknownJob(t *testing.T) {
	b := testBroker(Options{})
	defer b.Shutdown()

	_, err := b.Subscribe(context.Background(), "nope", broadcast.Live)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestBroker_SequenceAndOrder(t *testing.T) {
	b := testBroker(Options{})
	defer b.Shutdown()

	if err := b.Register("job-1"); err != nil {
		t.Fatal(err)
	}
	sub, err := b.Subscribe(context.Background(), "job-1", broadcast.Live)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Cancel()

	types := []event.Type{event.TypePhaseStarted, event.TypeAgentStarted, event.TypeAgentCompleted}
	for _, typ := range types {
		if err := b.Publish(event.New("job-1", typ, nil)); err != nil {
			t.Fatal(err)
		}
	}

	for i, typ := range types {
		e := recv(t, sub.C)
		if e.Type != typ {
			t.Errorf("event %d: got type %s, want %s", i, e.Type, typ)
		}
		if e.Seq != uint64(i+1) {
			t.Errorf("event %d: got seq %d, want %d", i, e.Seq, i+1)
		}
	}
}

func TestBroker_Replay(t *testing.T) {
	b := testBroker(Options{})
	defer b.Shutdown()

	if err := b.Register("job-1"); err != nil {
		t.Fatal(err)
	}
	for range 3 {
		if err := b.Publish(event.New("job-1", event.TypeFindingDiscovered, nil)); err != nil {
			t.Fatal(err)
		}
	}

	// Full replay from the beginning
	sub, err := b.Subscribe(context.Background(), "job-1", 0)
	if err != nil {
		t.Fatal(err)
	}
	for want := uint64(1); want <= 3; want++ {
		if e := recv(t, sub.C); e.Seq != want {
			t.Errorf("got seq %d, want %d", e.Seq, want)
		}
	}
	sub.Cancel()

	// Partial replay from seq 2
	sub, err = b.Subscribe(context.Background(), "job-1", 2)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Cancel()
	for want := uint64(2); want <= 3; want++ {
		if e := recv(t, sub.C); e.Seq != want {
			t.Errorf("got seq %d, want %d", e.Seq, want)
		}
	}
}

func TestBroker_ReplayThenLive(t *testing.T) {
	b := testBroker(Options{})
	defer b.Shutdown()

	if err := b.Register("job-1"); err != nil {
		t.Fatal(err)
	}
	if err := b.Publish(event.New("job-1", event.TypePhaseStarted, nil)); err != nil {
		t.Fatal(err)
	}
	if err := b.Publish(event.New("job-1", event.TypeAgentStarted, nil)); err != nil {
		t.Fatal(err)
	}

	sub, err := b.Subscribe(context.Background(), "job-1", 1)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Cancel()

	// Published after subscribing; must arrive after the replayed two with
	// no gap and no duplicate.
	if err := b.Publish(event.New("job-1", event.TypeAgentCompleted, nil)); err != nil {
		t.Fatal(err)
	}

	for want := uint64(1); want <= 3; want++ {
		if e := recv(t, sub.C); e.Seq != want {
			t.Errorf("got seq %d, want %d", e.Seq, want)
		}
	}
}

func TestBroker_SlowSubscriberEvicted(t *testing.T) {
	b := testBroker(Options{SubscriberBuffer: 1})
	defer b.Shutdown()

	if err := b.Register("job-1"); err != nil {
		t.Fatal(err)
	}
	slow, err := b.Subscribe(context.Background(), "job-1", broadcast.Live)
	if err != nil {
		t.Fatal(err)
	}

	// First event fills the buffer; second finds it full and evicts.
	if err := b.Publish(event.New("job-1", event.TypePhaseStarted, nil)); err != nil {
		t.Fatal(err)
	}
	if err := b.Publish(event.New("job-1", event.TypeAgentStarted, nil)); err != nil {
		t.Fatal(err)
	}

	if e := recv(t, slow.C); e.Seq != 1 {
		t.Errorf("got seq %d, want 1", e.Seq)
	}
	recvClosed(t, slow.C)

	if b.EvictionCount() != 1 {
		t.Errorf("eviction count: got %d, want 1", b.EvictionCount())
	}

	// The stream itself is unaffected: a new subscriber still sees
	// everything via replay.
	fresh, err := b.Subscribe(context.Background(), "job-1", 0)
	if err != nil {
		t.Fatal(err)
	}
	defer fresh.Cancel()
	if e := recv(t, fresh.C); e.Seq != 1 {
		t.Errorf("replay after eviction: got seq %d, want 1", e.Seq)
	}
	if e := recv(t, fresh.C); e.Seq != 2 {
		t.Errorf("replay after eviction: got seq %d, want 2", e.Seq)
	}
}

func TestBroker_CloseJobDrainsThenCloses(t *testing.T) {
	b := testBroker(Options{})
	defer b.Shutdown()

	if err := b.Register("job-1"); err != nil {
		t.Fatal(err)
	}
	sub, err := b.Subscribe(context.Background(), "job-1", broadcast.Live)
	if err != nil {
		t.Fatal(err)
	}

	if err := b.Publish(event.New("job-1", event.TypeReviewCompleted, nil)); err != nil {
		t.Fatal(err)
	}
	b.CloseJob("job-1")

	// The buffered event is still delivered, then the channel closes.
	if e := recv(t, sub.C); e.Type != event.TypeReviewCompleted {
		t.Errorf("got type %s", e.Type)
	}
	recvClosed(t, sub.C)
}

func TestBroker_PublishAfterClose(t *testing.T) {
	b := testBroker(Options{})
	defer b.Shutdown()

	if err := b.Register("job-1"); err != nil {
		t.Fatal(err)
	}
	b.CloseJob("job-1")

	err := b.Publish(event.New("job-1", event.TypeAgentStarted, nil))
	if !errors.Is(err, domain.ErrConflict) {
		t.Errorf("publish on closed stream should be ErrConflict, got %v", err)
	}
}

func TestBroker_SubscribeAfterCloseReplays(t *testing.T) {
	b := testBroker(Options{})
	defer b.Shutdown()

	if err := b.Register("job-1"); err != nil {
		t.Fatal(err)
	}
	for range 2 {
		if err := b.Publish(event.New("job-1", event.TypeFindingDiscovered, nil)); err != nil {
			t.Fatal(err)
		}
	}
	b.CloseJob("job-1")

	sub, err := b.Subscribe(context.Background(), "job-1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if e := recv(t, sub.C); e.Seq != 1 {
		t.Errorf("got seq %d, want 1", e.Seq)
	}
	if e := recv(t, sub.C); e.Seq != 2 {
		t.Errorf("got seq %d, want 2", e.Seq)
	}
	recvClosed(t, sub.C)
}

func TestBroker_CloseJobIdempotent(t *testing.T) {
	b := testBroker(Options{})
	defer b.Shutdown()

	if err := b.Register("job-1"); err != nil {
		t.Fatal(err)
	}
	b.CloseJob("job-1")
	b.CloseJob("job-1")
	b.CloseJob("unknown")
}

func TestBroker_CancelDetaches(t *testing.T) {
	b := testBroker(Options{})
	defer b.Shutdown()

	if err := b.Register("job-1"); err != nil {
		t.Fatal(err)
	}
	sub, err := b.Subscribe(context.Background(), "job-1", broadcast.Live)
	if err != nil {
		t.Fatal(err)
	}

	sub.Cancel()
	sub.Cancel() // safe to repeat
	recvClosed(t, sub.C)

	// Publishing still works without the detached subscriber.
	if err := b.Publish(event.New("job-1", event.TypeAgentStarted, nil)); err != nil {
		t.Fatal(err)
	}
}

func TestBroker_ContextCancelDetaches(t *testing.T) {
	b := testBroker(Options{})
	defer b.Shutdown()

	if err := b.Register("job-1"); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := b.Subscribe(ctx, "job-1", broadcast.Live)
	if err != nil {
		t.Fatal(err)
	}

	cancel()
	recvClosed(t, sub.C)
}

func TestBroker_Keepalive(t *testing.T) {
	b := testBroker(Options{KeepaliveInterval: 20 * time.Millisecond})
	defer b.Shutdown()

	if err := b.Register("job-1"); err != nil {
		t.Fatal(err)
	}
	sub, err := b.Subscribe(context.Background(), "job-1", broadcast.Live)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Cancel()

	e := recv(t, sub.C)
	if e.Type != event.TypeKeepalive {
		t.Fatalf("got type %s, want keepalive", e.Type)
	}
	if e.Seq != 0 {
		t.Errorf("keepalive must not be sequenced, got seq %d", e.Seq)
	}

	// Keepalives never consume sequence numbers or enter the replay log.
	if err := b.Publish(event.New("job-1", event.TypeAgentStarted, nil)); err != nil {
		t.Fatal(err)
	}
	for {
		e = recv(t, sub.C)
		if e.Type == event.TypeKeepalive {
			continue
		}
		break
	}
	if e.Seq != 1 {
		t.Errorf("first real event should be seq 1, got %d", e.Seq)
	}

	replaySub, err := b.Subscribe(context.Background(), "job-1", 0)
	if err != nil {
		t.Fatal(err)
	}
	defer replaySub.Cancel()
	if e := recv(t, replaySub.C); e.Type == event.TypeKeepalive {
		t.Error("keepalives must not be replayed")
	}
}

func TestBroker_Shutdown(t *testing.T) {
	b := testBroker(Options{})

	if err := b.Register("job-1"); err != nil {
		t.Fatal(err)
	}
	sub, err := b.Subscribe(context.Background(), "job-1", broadcast.Live)
	if err != nil {
		t.Fatal(err)
	}

	b.Shutdown()
	recvClosed(t, sub.C)

	if err := b.Register("job-2"); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("register after shutdown should be ErrConflict, got %v", err)
	}
	b.Shutdown() // idempotent
}
