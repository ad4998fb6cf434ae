package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OmerRastgar/studio-sub002/internal/config"
	"github.com/OmerRastgar/studio-sub002/internal/events"
	"github.com/OmerRastgar/studio-sub002/internal/queue"
	"github.com/OmerRastgar/studio-sub002/internal/store"
)

func runWorkerUntilDrained(t *testing.T, w *Worker, q *queue.MemoryQueue) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()

	deadline := time.After(5 * time.Second)
	for {
		pending, _, err := q.Stats(context.Background())
		require.NoError(t, err)
		if pending == 0 {
			break
		}
		select {
		case <-deadline:
			cancel()
			<-done
			t.Fatalf("queue not drained, %d pending", pending)
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
}

func newTestWorker(t *testing.T, s store.Store, q queue.Queue) *Worker {
	t.Helper()
	r := newCatalogue(t, false)
	w, err := NewWorker(s, q, r, discardLogger(), config.WorkerConfig{
		Concurrency:      2,
		OperationTimeout: time.Second,
	}, 2*time.Millisecond)
	require.NoError(t, err)
	return w
}

func TestWorker_AppliesAndAcksEvents(t *testing.T) {
	s := store.NewMemoryStore()
	q := queue.NewMemoryQueue(30*time.Second, 3)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, events.Event{
		Type: EventLinkEvidenceToControl, ID: "evt-1", Timestamp: at(0),
		Payload: events.Payload{"evidenceId": "e-1", "controlId": "c-1"},
	}))
	require.NoError(t, q.Enqueue(ctx, events.Event{
		Type: EventLinkControlToStandard, ID: "evt-2", Timestamp: at(1),
		Payload: events.Payload{"controlId": "c-1", "standardId": "s-1"},
	}))

	runWorkerUntilDrained(t, newTestWorker(t, s, q), q)

	count, err := s.RelationshipCount(ctx, store.LabelEvidence, "e-1", store.RelProves)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	applied, err := s.IsApplied(ctx, "evt-2")
	require.NoError(t, err)
	assert.True(t, applied)
}

func TestWorker_UnknownEventTypeMarkedProcessed(t *testing.T) {
	s := store.NewMemoryStore()
	q := queue.NewMemoryQueue(30*time.Second, 3)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, events.Event{
		Type: "legacy_event_nobody_remembers", ID: "evt-1", Timestamp: at(0),
		Payload: events.Payload{},
	}))

	runWorkerUntilDrained(t, newTestWorker(t, s, q), q)

	applied, err := s.IsApplied(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, applied, "unknown type is ledgered so duplicates short-circuit")

	_, dead, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, dead)
}

func TestWorker_MalformedPayloadDeadLettersImmediately(t *testing.T) {
	s := store.NewMemoryStore()
	// Ample attempt budget: a malformed payload must be rejected on the
	// first delivery, not retried until the budget runs out.
	q := queue.NewMemoryQueue(30*time.Second, 5)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, events.Event{
		Type: EventLinkEvidenceToControl, ID: "evt-bad", Timestamp: at(0),
		Payload: events.Payload{"evidenceId": "e-1"}, // controlId missing
	}))

	runWorkerUntilDrained(t, newTestWorker(t, s, q), q)

	_, dead, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, dead)

	applied, err := s.IsApplied(ctx, "evt-bad")
	require.NoError(t, err)
	assert.False(t, applied, "poison event is never marked processed")
}

func TestWorker_DuplicateDeliveryIsAcked(t *testing.T) {
	s := store.NewMemoryStore()
	q := queue.NewMemoryQueue(30*time.Second, 3)
	ctx := context.Background()

	event := events.Event{
		Type: EventLinkEvidenceToControl, ID: "evt-1", Timestamp: at(0),
		Payload: events.Payload{"evidenceId": "e-1", "controlId": "c-1"},
	}

	// Pre-applied by an earlier delivery (e.g. before a crash-restart).
	r := newCatalogue(t, false)
	applyEvent(t, s, r, event)

	require.NoError(t, q.Enqueue(ctx, event))
	runWorkerUntilDrained(t, newTestWorker(t, s, q), q)

	pending, dead, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, pending)
	assert.Equal(t, 0, dead)

	count, err := s.RelationshipCount(ctx, store.LabelEvidence, "e-1", store.RelProves)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNewWorker_RejectsIncompleteRegistry(t *testing.T) {
	r := NewRegistry()
	_, err := NewWorker(store.NewMemoryStore(), queue.NewMemoryQueue(time.Second, 3), r,
		discardLogger(), config.WorkerConfig{Concurrency: 1, OperationTimeout: time.Second}, time.Millisecond)
	require.Error(t, err)
}
