// Package messagequeue defines the port for the external event mirror.
package messagequeue

import "context"

// Handler consumes one delivered message. Returning an error rejects
// the message for redelivery.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the publish/subscribe port. The pipeline treats it as an
// optional mirror: review events also go out here so other systems can
// follow a job without holding an HTTP stream open.
type Queue interface {
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe delivers matching messages to handler until the
	// returned cancel function is called.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain lets in-flight deliveries finish before closing.
	Drain() error

	Close() error

	IsConnected() bool
}

// SubjectJobEvents returns the mirror subject for one job's events.
func SubjectJobEvents(jobID string) string {
	return "reviews." + jobID + ".events"
}
