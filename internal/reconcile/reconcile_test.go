package reconcile

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OmerRastgar/studio-sub002/internal/record"
	"github.com/OmerRastgar/studio-sub002/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func sampleSource() *record.Fixture {
	return &record.Fixture{
		FrameworkRows: []record.Framework{
			{ID: "fw-1", Name: "SOC 2"},
			{ID: "fw-2", Name: "ISO 27001"},
		},
		TagRows: []record.Tag{
			{ID: "t-1", Name: "Security"},
			{ID: "t-2", Name: "Logging"},
		},
		ControlRows: []record.Control{
			{ID: "c-1", FrameworkID: "fw-1", Name: "Access Review",
				Tags: []record.Tag{{ID: "t-1", Name: "Security"}}},
			{ID: "c-2", FrameworkID: "fw-1", Name: "Log Retention",
				Tags: []record.Tag{{ID: "t-1", Name: "Security"}, {ID: "t-2", Name: "Logging"}}},
			{ID: "c-3", FrameworkID: "fw-2", Name: "Asset Inventory"},
		},
		ProjectRows: []record.Project{
			{ID: "p-1", Name: "Annual Audit", Status: "active"},
		},
		EvidenceRows: []record.Evidence{
			{ID: "e-1", ProjectID: "p-1", UploaderID: "u-1", Name: "access-review.pdf",
				Tags: []record.Tag{{ID: "t-1", Name: "Security"}}},
			{ID: "e-2", ProjectID: "p-1", UploaderID: "u-1", Name: "syslog-export.csv"},
		},
		UserRows: []record.User{
			{ID: "u-1", Name: "Dana", Email: "dana@example.com", Role: "auditor"},
		},
	}
}

func graphCounts(t *testing.T, s *store.MemoryStore) (nodes map[string]int, rels int) {
	t.Helper()
	ctx := context.Background()
	nodes = map[string]int{}
	for _, label := range []string{
		store.LabelStandard, store.LabelControl, store.LabelTag,
		store.LabelProject, store.LabelEvidence, store.LabelUser,
	} {
		count, err := s.CountNodes(ctx, label)
		require.NoError(t, err)
		nodes[label] = count
	}
	total, err := s.CountRelationships(ctx)
	require.NoError(t, err)
	return nodes, total
}

func TestBackfiller_RunDerivesFullGraph(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	// Page size 1 exercises the pagination loops.
	counts, err := NewBackfiller(sampleSource(), s, discardLogger(), 1).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, BackfillCounts{
		Standards: 2, Tags: 2, Controls: 3, Projects: 1, Evidence: 2, Users: 1,
	}, counts)

	nodes, rels := graphCounts(t, s)
	assert.Equal(t, 2, nodes[store.LabelStandard])
	assert.Equal(t, 3, nodes[store.LabelControl])
	assert.Equal(t, 2, nodes[store.LabelTag])
	assert.Equal(t, 1, nodes[store.LabelProject])
	assert.Equal(t, 2, nodes[store.LabelEvidence])
	assert.Equal(t, 1, nodes[store.LabelUser])

	// 3 BELONGS_TO(control), 3 HAS_TAG(control), 2 BELONGS_TO(evidence),
	// 1 HAS_TAG(evidence), 2 UPLOADED.
	assert.Equal(t, 11, rels)

	parents, err := s.ControlParents(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"fw-1"}, parents)

	uploads, err := s.RelationshipCount(ctx, store.LabelUser, "u-1", store.RelUploaded)
	require.NoError(t, err)
	assert.Equal(t, 2, uploads)
}

func TestBackfiller_SecondRunIsFixedPoint(t *testing.T) {
	s := store.NewMemoryStore()
	src := sampleSource()
	ctx := context.Background()

	_, err := NewBackfiller(src, s, discardLogger(), 50).Run(ctx)
	require.NoError(t, err)
	nodesFirst, relsFirst := graphCounts(t, s)

	// A fresh run re-executes every merge; counts must not move.
	_, err = NewBackfiller(src, s, discardLogger(), 50).Run(ctx)
	require.NoError(t, err)
	nodesSecond, relsSecond := graphCounts(t, s)

	assert.Equal(t, nodesFirst, nodesSecond)
	assert.Equal(t, relsFirst, relsSecond)
}

func TestBackfiller_HealsManualDamage(t *testing.T) {
	s := store.NewMemoryStore()
	src := sampleSource()
	ctx := context.Background()

	_, err := NewBackfiller(src, s, discardLogger(), 50).Run(ctx)
	require.NoError(t, err)

	// Somebody deletes a control out from under the projection.
	require.NoError(t, s.Apply(ctx, "incident-42", func(ctx context.Context, tx store.Tx) error {
		return tx.DetachDeleteNode(ctx, store.LabelControl, "c-1")
	}))

	_, err = NewBackfiller(src, s, discardLogger(), 50).Run(ctx)
	require.NoError(t, err)

	_, found, err := s.GetNode(ctx, store.LabelControl, "c-1")
	require.NoError(t, err)
	assert.True(t, found, "resync restores the deleted control")
}

func seedStandardWithControls(t *testing.T, s *store.MemoryStore, eventID, standardID string, controlIDs ...string) {
	t.Helper()
	require.NoError(t, s.Apply(context.Background(), eventID, func(ctx context.Context, tx store.Tx) error {
		if err := tx.MergeNode(ctx, store.LabelStandard, standardID, nil); err != nil {
			return err
		}
		for _, controlID := range controlIDs {
			if err := tx.MergeRelationship(ctx, store.RelBelongsTo,
				store.NodeRef{Label: store.LabelControl, ID: controlID},
				store.NodeRef{Label: store.LabelStandard, ID: standardID}, nil, nil); err != nil {
				return err
			}
		}
		return nil
	}))
}

func TestPruner_RemovesOnlyStaleSubtree(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	// fw-1 exists in the source; std-gone does not. c-shared belongs to
	// both, c-stale only to the stale standard.
	seedStandardWithControls(t, s, "seed-1", "fw-1", "c-1", "c-shared")
	seedStandardWithControls(t, s, "seed-2", "std-gone", "c-shared", "c-stale")

	pruner := NewPruner(sampleSource(), s, discardLogger())

	plan, err := pruner.Run(ctx, false)
	require.NoError(t, err)
	require.Len(t, plan.Standards, 1)
	assert.Equal(t, "std-gone", plan.Standards[0].StandardID)
	assert.Equal(t, []string{"c-stale"}, plan.Standards[0].Controls)

	_, found, err := s.GetNode(ctx, store.LabelStandard, "std-gone")
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = s.GetNode(ctx, store.LabelControl, "c-stale")
	require.NoError(t, err)
	assert.False(t, found)

	// Controls with a surviving valid parent are untouched.
	_, found, err = s.GetNode(ctx, store.LabelControl, "c-shared")
	require.NoError(t, err)
	assert.True(t, found)

	_, found, err = s.GetNode(ctx, store.LabelStandard, "fw-1")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestPruner_DryRunDeletesNothing(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	seedStandardWithControls(t, s, "seed-1", "std-gone", "c-stale")

	plan, err := NewPruner(sampleSource(), s, discardLogger()).Run(ctx, true)
	require.NoError(t, err)
	require.Len(t, plan.Standards, 1)

	_, found, err := s.GetNode(ctx, store.LabelStandard, "std-gone")
	require.NoError(t, err)
	assert.True(t, found)

	_, found, err = s.GetNode(ctx, store.LabelControl, "c-stale")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestPruner_NothingStale(t *testing.T) {
	s := store.NewMemoryStore()
	seedStandardWithControls(t, s, "seed-1", "fw-1", "c-1")

	plan, err := NewPruner(sampleSource(), s, discardLogger()).Run(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, plan.Empty())
}

func TestDetectDrift(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	// Graph records one upload; the source has two evidence rows for u-1.
	require.NoError(t, s.Apply(ctx, "evt-1", func(ctx context.Context, tx store.Tx) error {
		return tx.MergeRelationship(ctx, store.RelUploaded,
			store.NodeRef{Label: store.LabelUser, ID: "u-1"},
			store.NodeRef{Label: store.LabelEvidence, ID: "e-1"}, nil, nil)
	}))

	report, err := DetectDrift(ctx, sampleSource(), s, "u-1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.GraphCount)
	assert.Equal(t, 2, report.SourceCount)
	assert.True(t, report.Divergent)

	// After backfilling the missing upload the counts agree.
	require.NoError(t, s.Apply(ctx, "evt-2", func(ctx context.Context, tx store.Tx) error {
		return tx.MergeRelationship(ctx, store.RelUploaded,
			store.NodeRef{Label: store.LabelUser, ID: "u-1"},
			store.NodeRef{Label: store.LabelEvidence, ID: "e-2"}, nil, nil)
	}))

	report, err = DetectDrift(ctx, sampleSource(), s, "u-1")
	require.NoError(t, err)
	assert.False(t, report.Divergent)
}
