package observability

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/OmerRastgar/studio-sub002/internal/store"
	"github.com/OmerRastgar/studio-sub002/internal/types"
)

const tracerName = "graphsync.store"

// TracedStore wraps a projection store with OpenTelemetry spans. Safe for
// concurrent use; it delegates everything to the inner store.
type TracedStore struct {
	inner  store.Store
	tracer trace.Tracer
}

// NewTracedStore wraps inner with tracing using the global tracer provider.
func NewTracedStore(inner store.Store) *TracedStore {
	return &TracedStore{
		inner:  inner,
		tracer: otel.Tracer(tracerName),
	}
}

// finish records err on the span. ErrAlreadyApplied is a normal
// idempotency outcome, not an error condition.
func finish(span trace.Span, err error) {
	if err != nil && !errors.Is(err, store.ErrAlreadyApplied) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if code := types.CodeOf(err); code != "" {
			span.SetAttributes(attribute.String("error.code", string(code)))
		}
		return
	}
	span.SetStatus(codes.Ok, "")
}

func (s *TracedStore) EnsureSchema(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "graphsync.store.ensure_schema")
	defer span.End()

	err := s.inner.EnsureSchema(ctx)
	finish(span, err)
	return err
}

func (s *TracedStore) Apply(ctx context.Context, eventID string, fn func(ctx context.Context, tx store.Tx) error) error {
	ctx, span := s.tracer.Start(ctx, "graphsync.store.apply",
		trace.WithAttributes(attribute.String("event.id", eventID)))
	defer span.End()

	err := s.inner.Apply(ctx, eventID, fn)
	span.SetAttributes(attribute.Bool("event.already_applied", errors.Is(err, store.ErrAlreadyApplied)))
	finish(span, err)
	return err
}

func (s *TracedStore) IsApplied(ctx context.Context, eventID string) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "graphsync.store.is_applied",
		trace.WithAttributes(attribute.String("event.id", eventID)))
	defer span.End()

	applied, err := s.inner.IsApplied(ctx, eventID)
	finish(span, err)
	return applied, err
}

func (s *TracedStore) ProjectEvidence(ctx context.Context, projectID string) ([]store.EvidenceTags, error) {
	ctx, span := s.tracer.Start(ctx, "graphsync.store.project_evidence",
		trace.WithAttributes(attribute.String("project.id", projectID)))
	defer span.End()

	out, err := s.inner.ProjectEvidence(ctx, projectID)
	span.SetAttributes(attribute.Int("result.count", len(out)))
	finish(span, err)
	return out, err
}

func (s *TracedStore) Standards(ctx context.Context) ([]store.StandardRef, error) {
	ctx, span := s.tracer.Start(ctx, "graphsync.store.standards")
	defer span.End()

	out, err := s.inner.Standards(ctx)
	span.SetAttributes(attribute.Int("result.count", len(out)))
	finish(span, err)
	return out, err
}

func (s *TracedStore) ControlsOfStandard(ctx context.Context, standardID string) ([]store.ControlTags, error) {
	ctx, span := s.tracer.Start(ctx, "graphsync.store.controls_of_standard",
		trace.WithAttributes(attribute.String("standard.id", standardID)))
	defer span.End()

	out, err := s.inner.ControlsOfStandard(ctx, standardID)
	span.SetAttributes(attribute.Int("result.count", len(out)))
	finish(span, err)
	return out, err
}

func (s *TracedStore) NodeIDs(ctx context.Context, label string) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "graphsync.store.node_ids",
		trace.WithAttributes(attribute.String("node.label", label)))
	defer span.End()

	out, err := s.inner.NodeIDs(ctx, label)
	finish(span, err)
	return out, err
}

func (s *TracedStore) ControlParents(ctx context.Context, controlID string) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "graphsync.store.control_parents",
		trace.WithAttributes(attribute.String("control.id", controlID)))
	defer span.End()

	out, err := s.inner.ControlParents(ctx, controlID)
	finish(span, err)
	return out, err
}

func (s *TracedStore) RelationshipCount(ctx context.Context, label, id, relType string) (int, error) {
	ctx, span := s.tracer.Start(ctx, "graphsync.store.relationship_count",
		trace.WithAttributes(
			attribute.String("node.label", label),
			attribute.String("node.id", id),
			attribute.String("relationship.type", relType),
		))
	defer span.End()

	count, err := s.inner.RelationshipCount(ctx, label, id, relType)
	finish(span, err)
	return count, err
}

func (s *TracedStore) GetNode(ctx context.Context, label, id string) (map[string]any, bool, error) {
	ctx, span := s.tracer.Start(ctx, "graphsync.store.get_node",
		trace.WithAttributes(
			attribute.String("node.label", label),
			attribute.String("node.id", id),
		))
	defer span.End()

	props, found, err := s.inner.GetNode(ctx, label, id)
	span.SetAttributes(attribute.Bool("node.found", found))
	finish(span, err)
	return props, found, err
}

func (s *TracedStore) CountNodes(ctx context.Context, label string) (int, error) {
	ctx, span := s.tracer.Start(ctx, "graphsync.store.count_nodes",
		trace.WithAttributes(attribute.String("node.label", label)))
	defer span.End()

	count, err := s.inner.CountNodes(ctx, label)
	finish(span, err)
	return count, err
}

func (s *TracedStore) CountRelationships(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "graphsync.store.count_relationships")
	defer span.End()

	count, err := s.inner.CountRelationships(ctx)
	finish(span, err)
	return count, err
}

func (s *TracedStore) Health(ctx context.Context) types.HealthStatus {
	return s.inner.Health(ctx)
}

func (s *TracedStore) Close(ctx context.Context) error {
	return s.inner.Close(ctx)
}

var _ store.Store = (*TracedStore)(nil)
