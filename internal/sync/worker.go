package sync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/OmerRastgar/studio-sub002/internal/config"
	"github.com/OmerRastgar/studio-sub002/internal/queue"
	"github.com/OmerRastgar/studio-sub002/internal/store"
	"github.com/OmerRastgar/studio-sub002/internal/types"
)

// Worker drains the delivery queue with a pool of goroutines. Each event
// is processed start to finish by one goroutine: dequeue, dispatch through
// the registry, apply inside one store transaction, then ack or nack.
// Cross-event serialization happens only at the store's event ledger.
type Worker struct {
	store    store.Store
	queue    queue.Queue
	registry *Registry
	logger   *slog.Logger
	cfg      config.WorkerConfig
	poll     time.Duration
}

// NewWorker wires a worker. The registry must cover the full event
// catalogue; a gap is a startup error, not a runtime surprise.
func NewWorker(st store.Store, q queue.Queue, r *Registry, logger *slog.Logger, cfg config.WorkerConfig, poll time.Duration) (*Worker, error) {
	if err := r.Validate(EventTypes); err != nil {
		return nil, err
	}
	return &Worker{
		store:    st,
		queue:    q,
		registry: r,
		logger:   logger,
		cfg:      cfg,
		poll:     poll,
	}, nil
}

// Run blocks until ctx is cancelled, then waits for in-flight events to
// finish.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("sync worker starting",
		"concurrency", w.cfg.Concurrency,
		"operation_timeout", w.cfg.OperationTimeout,
		"replace_assignments", w.cfg.ReplaceAssignments)

	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.loop(ctx, id)
		}(i)
	}
	wg.Wait()

	w.logger.Info("sync worker stopped")
	return nil
}

func (w *Worker) loop(ctx context.Context, id int) {
	logger := w.logger.With("consumer", id)
	for {
		if ctx.Err() != nil {
			return
		}

		delivery, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("dequeue failed", "error", err)
			w.sleep(ctx)
			continue
		}
		if delivery == nil {
			w.sleep(ctx)
			continue
		}

		w.process(ctx, logger, delivery)
	}
}

func (w *Worker) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.poll):
	}
}

// process applies one delivery and settles it with the queue. Ack/nack
// use context.Background so settlement survives shutdown cancellation;
// an unsettled claim would only reappear after the visibility timeout.
func (w *Worker) process(ctx context.Context, logger *slog.Logger, d *queue.Delivery) {
	event := d.Event
	logger = logger.With("event_id", event.ID, "event_type", event.Type, "attempt", d.Attempt)

	opCtx, cancel := context.WithTimeout(ctx, w.cfg.OperationTimeout)
	defer cancel()

	handler, ok := w.registry.Handler(event.Type)
	if !ok {
		// No applicable mutation and no useful retry: record the event as
		// processed so duplicates short-circuit, and move on.
		logger.Warn("unknown event type, marking processed")
		err := w.store.Apply(opCtx, event.ID, func(ctx context.Context, tx store.Tx) error {
			return nil
		})
		if err != nil && !errors.Is(err, store.ErrAlreadyApplied) {
			logger.Error("failed to record unknown event", "error", err)
			w.nack(logger, d)
			return
		}
		w.ack(logger, d)
		return
	}

	err := w.store.Apply(opCtx, event.ID, func(ctx context.Context, tx store.Tx) error {
		return handler(ctx, tx, event)
	})
	switch {
	case err == nil:
		logger.Debug("event applied")
		w.ack(logger, d)
	case errors.Is(err, store.ErrAlreadyApplied):
		logger.Debug("duplicate delivery, already applied")
		w.ack(logger, d)
	case !types.IsRetryable(err):
		// Redelivery cannot fix a malformed event; park it for operator
		// inspection instead of burning the attempt budget.
		logger.Error("event rejected as unprocessable", "error", err)
		w.reject(logger, d)
	default:
		logger.Error("event application failed", "error", err)
		w.nack(logger, d)
	}
}

func (w *Worker) ack(logger *slog.Logger, d *queue.Delivery) {
	if err := w.queue.Ack(context.Background(), d); err != nil {
		logger.Error("ack failed", "error", err)
	}
}

func (w *Worker) nack(logger *slog.Logger, d *queue.Delivery) {
	if err := w.queue.Nack(context.Background(), d); err != nil {
		logger.Error("nack failed", "error", err)
	}
}

func (w *Worker) reject(logger *slog.Logger, d *queue.Delivery) {
	if err := w.queue.Reject(context.Background(), d); err != nil {
		logger.Error("reject failed", "error", err)
	}
}
