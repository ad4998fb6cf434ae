package queue

import (
	"context"
	"sync"
	"time"

	"github.com/OmerRastgar/studio-sub002/internal/events"
)

type memMessage struct {
	id        int64
	event     events.Event
	attempts  int
	visibleAt time.Time
	dead      bool
}

// MemoryQueue is an in-process Queue with the same claim semantics as the
// SQLite queue, used in tests and single-process pipelines.
type MemoryQueue struct {
	mu          sync.Mutex
	messages    []*memMessage
	nextID      int64
	visibility  time.Duration
	maxAttempts int
	closed      bool
	now         func() time.Time
}

// NewMemoryQueue creates an in-process queue.
func NewMemoryQueue(visibility time.Duration, maxAttempts int) *MemoryQueue {
	return &MemoryQueue{
		visibility:  visibility,
		maxAttempts: maxAttempts,
		nextID:      1,
		now:         time.Now,
	}
}

// SetNow overrides the clock for tests.
func (q *MemoryQueue) SetNow(now func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.now = now
}

func (q *MemoryQueue) Enqueue(ctx context.Context, event events.Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	for _, m := range q.messages {
		if m.event.ID == event.ID {
			return nil
		}
	}
	q.messages = append(q.messages, &memMessage{
		id:        q.nextID,
		event:     event,
		visibleAt: q.now(),
	})
	q.nextID++
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (*Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrClosed
	}
	now := q.now()
	for _, m := range q.messages {
		if m.dead || m.visibleAt.After(now) {
			continue
		}
		m.attempts++
		m.visibleAt = now.Add(q.visibility)
		return &Delivery{ID: m.id, Event: m.event, Attempt: m.attempts}, nil
	}
	return nil, nil
}

func (q *MemoryQueue) Ack(ctx context.Context, d *Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	for i, m := range q.messages {
		if m.id == d.ID {
			q.messages = append(q.messages[:i], q.messages[i+1:]...)
			return nil
		}
	}
	return nil
}

func (q *MemoryQueue) Nack(ctx context.Context, d *Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	for _, m := range q.messages {
		if m.id != d.ID {
			continue
		}
		if d.Attempt >= q.maxAttempts {
			m.dead = true
		} else {
			m.visibleAt = q.now().Add(retryBackoff(d.Attempt))
		}
		return nil
	}
	return nil
}

func (q *MemoryQueue) Reject(ctx context.Context, d *Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	for _, m := range q.messages {
		if m.id == d.ID {
			m.dead = true
			return nil
		}
	}
	return nil
}

func (q *MemoryQueue) Stats(ctx context.Context) (pending, dead int, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 0, 0, ErrClosed
	}
	for _, m := range q.messages {
		if m.dead {
			dead++
		} else {
			pending++
		}
	}
	return pending, dead, nil
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

var _ Queue = (*MemoryQueue)(nil)
