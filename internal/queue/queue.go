// Package queue provides the at-least-once delivery queue feeding the
// graph sync worker. Messages are claimed with a visibility timeout;
// unacknowledged claims become visible again, so consumers must be
// idempotent. Messages that exhaust their attempts are parked with a
// dead flag instead of being dropped.
package queue

import (
	"context"
	"time"

	"github.com/OmerRastgar/studio-sub002/internal/events"
	"github.com/OmerRastgar/studio-sub002/internal/types"
)

// Delivery is one claimed message. Attempt counts this claim, starting at 1.
type Delivery struct {
	ID      int64
	Event   events.Event
	Attempt int
}

// Queue is the delivery contract between the event source and the worker.
type Queue interface {
	// Enqueue stores an event for delivery. Re-enqueueing an event id that
	// is already pending is a no-op.
	Enqueue(ctx context.Context, event events.Event) error

	// Dequeue claims the oldest visible message, or returns nil when none
	// is ready. The claim hides the message for the visibility timeout.
	Dequeue(ctx context.Context) (*Delivery, error)

	// Ack removes a successfully processed message.
	Ack(ctx context.Context, d *Delivery) error

	// Nack returns a failed message for redelivery with exponential
	// backoff, or parks it as dead once attempts are exhausted.
	Nack(ctx context.Context, d *Delivery) error

	// Reject parks a message as dead immediately, regardless of remaining
	// attempts. For failures retrying cannot fix, such as a malformed
	// payload.
	Reject(ctx context.Context, d *Delivery) error

	// Stats reports pending and dead message counts.
	Stats(ctx context.Context) (pending, dead int, err error)

	Close() error
}

const (
	baseBackoff = 2 * time.Second
	maxBackoff  = 5 * time.Minute
)

// retryBackoff returns the redelivery delay for a message that failed on
// the given attempt: 2s, 4s, 8s, ... capped at 5 minutes.
func retryBackoff(attempt int) time.Duration {
	d := baseBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}

// ErrClosed is returned by operations on a closed queue.
var ErrClosed = types.NewError(types.QUEUE_CLOSED, "queue is closed")
