package nats

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"
)

// testQueue connects to a live NATS server with JetStream enabled, or
// skips the test when NATS_URL is not set.
func testQueue(t *testing.T) *Queue {
	t.Helper()

	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}

	q, err := Connect(context.Background(), url)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() {
		if err := q.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return q
}

// subjectFor builds a per-test subject under the reviews.> prefix the
// REDLINE stream captures, so concurrent tests do not cross wires.
func subjectFor(t *testing.T) string {
	t.Helper()
	return "reviews.test." + t.Name()
}

func TestQueuePublishSubscribe(t *testing.T) {
	q := testQueue(t)
	subject := subjectFor(t)

	type envelope struct {
		JobID string `json:"job_id"`
		Type  string `json:"type"`
	}
	want := envelope{JobID: "rev-42", Type: "review_completed"}
	data, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	got := make(chan envelope, 1)
	stop, err := q.Subscribe(context.Background(), subject, func(_ context.Context, _ string, d []byte) error {
		var e envelope
		if err := json.Unmarshal(d, &e); err != nil {
			return err
		}
		select {
		case got <- e:
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	if err := q.Publish(context.Background(), subject, data); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case e := <-got:
		if e != want {
			t.Errorf("received %+v, want %+v", e, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no message within 5s")
	}
}

func TestQueueKeyValue(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()

	kv, err := q.KeyValue(ctx, "test-results-"+t.Name(), time.Minute)
	if err != nil {
		t.Fatalf("KeyValue: %v", err)
	}

	const key = "result.rev-42"
	if _, err := kv.Put(ctx, key, []byte(`{"status":"completed"}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	entry, err := kv.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got := string(entry.Value()); got != `{"status":"completed"}` {
		t.Errorf("value = %s, want the stored result", got)
	}

	if err := kv.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := kv.Get(ctx, key); err == nil {
		t.Error("Get after Delete still returned a value")
	}
}

func TestQueueIsConnected(t *testing.T) {
	q := testQueue(t)

	if !q.IsConnected() {
		t.Error("IsConnected() = false right after Connect")
	}
}
