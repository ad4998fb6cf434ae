// Package sync applies system-of-record mutation events to the graph
// projection: a registry dispatches each event type to its handler, and a
// worker pool drains the delivery queue.
package sync

import (
	"context"
	"sort"

	"github.com/OmerRastgar/studio-sub002/internal/events"
	"github.com/OmerRastgar/studio-sub002/internal/store"
	"github.com/OmerRastgar/studio-sub002/internal/types"
)

// Handler applies one event's mutations inside the transaction tx. The
// surrounding Apply call owns the idempotency ledger; handlers only
// express the graph effect.
type Handler func(ctx context.Context, tx store.Tx, event events.Event) error

// Registry maps event types to handlers. Registration happens at startup
// and is validated before the worker consumes anything, so an unregistered
// type fails fast at load time rather than silently at runtime.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds an event type to its handler. Registering a type twice
// is a wiring bug and fails.
func (r *Registry) Register(eventType string, h Handler) error {
	if eventType == "" || h == nil {
		return types.NewError(types.EVENT_REGISTRY_DUPLICATE, "event type and handler are required")
	}
	if _, exists := r.handlers[eventType]; exists {
		return types.NewError(types.EVENT_REGISTRY_DUPLICATE, "handler already registered for "+eventType)
	}
	r.handlers[eventType] = h
	return nil
}

// Handler returns the handler for the event type, if registered.
func (r *Registry) Handler(eventType string) (Handler, bool) {
	h, ok := r.handlers[eventType]
	return h, ok
}

// Types returns the registered event types, sorted.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Validate fails if any required event type has no handler.
func (r *Registry) Validate(required []string) error {
	for _, t := range required {
		if _, ok := r.handlers[t]; !ok {
			return types.NewError(types.EVENT_REGISTRY_INCOMPLETE, "no handler registered for "+t)
		}
	}
	return nil
}
