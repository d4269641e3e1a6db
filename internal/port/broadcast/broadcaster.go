// Package broadcast defines the port for fanning review events out to
// subscribed consumers.
package broadcast

import (
	"context"

	"github.com/redlinehq/redline/internal/domain/event"
)

// Live subscribes from the next published event onward, with no replay.
const Live int64 = -1

// Subscription is one consumer's ordered view of a job's event stream.
// The channel closes once the job's stream is closed and the buffer has
// drained, or when the subscriber is evicted for not keeping up.
type Subscription struct {
	C <-chan event.Event

	// Cancel releases the subscription's resources. Safe to call more
	// than once and after the channel has closed.
	Cancel func()
}

// Broadcaster fans events out per job. Publishing never blocks on slow
// consumers; each subscriber either sees every event in publish order or
// is disconnected.
type Broadcaster interface {
	// Register creates the event stream for a job before its first event.
	Register(jobID string) error

	// Publish assigns the next sequence number and delivers the event to
	// all subscribers of the job's stream.
	Publish(e event.Event) error

	// Subscribe attaches a consumer to a job's stream. fromSeq is Live for
	// new events only, or a sequence number to replay from (inclusive)
	// before switching to live delivery. The subscription ends when ctx is
	// done, Cancel is called, or the stream closes.
	Subscribe(ctx context.Context, jobID string, fromSeq int64) (*Subscription, error)

	// CloseJob ends a job's stream after all buffered events are
	// delivered. Idempotent.
	CloseJob(jobID string)

	// Shutdown closes every stream and stops keepalive timers.
	Shutdown()
}
