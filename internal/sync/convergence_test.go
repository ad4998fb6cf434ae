package sync

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OmerRastgar/studio-sub002/internal/crosswalk"
	"github.com/OmerRastgar/studio-sub002/internal/events"
	"github.com/OmerRastgar/studio-sub002/internal/store"
)

// The projection must converge regardless of delivery order: relationship
// events arriving before their endpoints' creation events leave shell
// nodes that later events enrich.
func TestConvergence_ForwardAndReversedOrderProduceSameGraph(t *testing.T) {
	scenario := []events.Event{
		{Type: EventUserCreated, ID: "evt-1", Timestamp: at(1),
			Payload: events.Payload{"userId": "u-1", "properties": map[string]any{"name": "Dana"}}},
		{Type: EventLinkEvidenceUploader, ID: "evt-2", Timestamp: at(2),
			Payload: events.Payload{"userId": "u-1", "evidenceId": "e-1"}},
		{Type: EventLinkEvidenceToTag, ID: "evt-3", Timestamp: at(3),
			Payload: events.Payload{"evidenceId": "e-1", "tagId": "t-sec", "tagName": "security"}},
		{Type: EventLinkControlToTag, ID: "evt-4", Timestamp: at(4),
			Payload: events.Payload{"controlId": "c-1", "tagId": "t-sec", "tagName": "security"}},
		{Type: EventLinkControlToStandard, ID: "evt-5", Timestamp: at(5),
			Payload: events.Payload{"controlId": "c-1", "standardId": "s-1"}},
		{Type: EventLinkEvidenceToProject, ID: "evt-6", Timestamp: at(6),
			Payload: events.Payload{"evidenceId": "e-1", "projectId": "p-1"}},
	}

	reversed := make([]events.Event, len(scenario))
	for i, e := range scenario {
		reversed[len(scenario)-1-i] = e
	}

	orders := map[string][]events.Event{
		"forward":  scenario,
		"reversed": reversed,
	}

	r := newCatalogue(t, false)

	for name, order := range orders {
		t.Run(name, func(t *testing.T) {
			s := store.NewMemoryStore()
			ctx := context.Background()

			for _, event := range order {
				applyEvent(t, s, r, event)
			}

			assertEdge := func(fromLabel, fromID, relType string) {
				count, err := s.RelationshipCount(ctx, fromLabel, fromID, relType)
				require.NoError(t, err)
				assert.Equal(t, 1, count, "%s %s -%s->", fromLabel, fromID, relType)
			}
			assertEdge(store.LabelUser, "u-1", store.RelUploaded)
			assertEdge(store.LabelEvidence, "e-1", store.RelHasTag)
			assertEdge(store.LabelControl, "c-1", store.RelHasTag)
			assertEdge(store.LabelControl, "c-1", store.RelBelongsTo)
			assertEdge(store.LabelEvidence, "e-1", store.RelBelongsTo)

			props, found, err := s.GetNode(ctx, store.LabelUser, "u-1")
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, "Dana", props["name"], "shell user enriched by late/early create")

			total, err := s.CountRelationships(ctx)
			require.NoError(t, err)
			assert.Equal(t, 5, total)

			report, err := crosswalk.New(s).Compute(ctx, "p-1")
			require.NoError(t, err)
			require.Len(t, report.Standards, 1)
			assert.Equal(t, "s-1", report.Standards[0].StandardID)
			assert.Equal(t, 1, report.Standards[0].MatchedControls)
			assert.Equal(t, 1, report.Standards[0].TotalControls)
			assert.InDelta(t, 100.0, report.Standards[0].Percentage, 0.001)
		})
	}
}

// Duplicate delivery of the whole stream must be invisible.
func TestConvergence_ReplayedStreamIsNoOp(t *testing.T) {
	r := newCatalogue(t, false)
	s := store.NewMemoryStore()
	ctx := context.Background()

	stream := make([]events.Event, 0, 8)
	for i := 0; i < 4; i++ {
		stream = append(stream, events.Event{
			Type: EventLinkEvidenceToControl, ID: fmt.Sprintf("evt-%d", i), Timestamp: at(i),
			Payload: events.Payload{"evidenceId": fmt.Sprintf("e-%d", i), "controlId": "c-1"},
		})
	}

	for _, event := range stream {
		applyEvent(t, s, r, event)
	}
	nodesBefore, err := s.CountNodes(ctx, store.LabelEvidence)
	require.NoError(t, err)
	relsBefore, err := s.CountRelationships(ctx)
	require.NoError(t, err)

	for _, event := range stream {
		handler, _ := r.Handler(event.Type)
		err := s.Apply(ctx, event.ID, func(ctx context.Context, tx store.Tx) error {
			return handler(ctx, tx, event)
		})
		require.ErrorIs(t, err, store.ErrAlreadyApplied)
	}

	nodesAfter, err := s.CountNodes(ctx, store.LabelEvidence)
	require.NoError(t, err)
	relsAfter, err := s.CountRelationships(ctx)
	require.NoError(t, err)
	assert.Equal(t, nodesBefore, nodesAfter)
	assert.Equal(t, relsBefore, relsAfter)
}
