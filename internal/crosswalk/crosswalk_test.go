package crosswalk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OmerRastgar/studio-sub002/internal/store"
)

func seed(t *testing.T, s *store.MemoryStore, eventID string, fn func(ctx context.Context, tx store.Tx) error) {
	t.Helper()
	require.NoError(t, s.Apply(context.Background(), eventID, fn))
}

func tagNode(tx store.Tx, ctx context.Context, id, name string) error {
	return tx.MergeNode(ctx, store.LabelTag, id, map[string]any{"name": name})
}

func controlWithTags(tx store.Tx, ctx context.Context, controlID, standardID string, tagIDs ...string) error {
	if err := tx.MergeRelationship(ctx, store.RelBelongsTo,
		store.NodeRef{Label: store.LabelControl, ID: controlID},
		store.NodeRef{Label: store.LabelStandard, ID: standardID}, nil, nil); err != nil {
		return err
	}
	for _, tagID := range tagIDs {
		if err := tx.MergeRelationship(ctx, store.RelHasTag,
			store.NodeRef{Label: store.LabelControl, ID: controlID},
			store.NodeRef{Label: store.LabelTag, ID: tagID}, nil, nil); err != nil {
			return err
		}
	}
	return nil
}

// Fixture from the coverage contract: evidence tagged {security}; standard
// A has two controls both carrying security; standard B's only control is
// tagged privacy.
func buildCoverageFixture(t *testing.T) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore()

	seed(t, s, "seed-tags", func(ctx context.Context, tx store.Tx) error {
		for id, name := range map[string]string{
			"t-sec": "security", "t-acc": "access", "t-log": "logging", "t-priv": "privacy",
		} {
			if err := tagNode(tx, ctx, id, name); err != nil {
				return err
			}
		}
		return nil
	})

	seed(t, s, "seed-standards", func(ctx context.Context, tx store.Tx) error {
		if err := tx.MergeNode(ctx, store.LabelStandard, "std-a", map[string]any{"name": "Standard A"}); err != nil {
			return err
		}
		if err := tx.MergeNode(ctx, store.LabelStandard, "std-b", map[string]any{"name": "Standard B"}); err != nil {
			return err
		}
		if err := controlWithTags(tx, ctx, "c-a1", "std-a", "t-sec", "t-acc"); err != nil {
			return err
		}
		if err := controlWithTags(tx, ctx, "c-a2", "std-a", "t-sec", "t-log"); err != nil {
			return err
		}
		return controlWithTags(tx, ctx, "c-b1", "std-b", "t-priv")
	})

	seed(t, s, "seed-evidence", func(ctx context.Context, tx store.Tx) error {
		if err := tx.MergeRelationship(ctx, store.RelBelongsTo,
			store.NodeRef{Label: store.LabelEvidence, ID: "e-1"},
			store.NodeRef{Label: store.LabelProject, ID: "p-1"}, nil, nil); err != nil {
			return err
		}
		return tx.MergeRelationship(ctx, store.RelHasTag,
			store.NodeRef{Label: store.LabelEvidence, ID: "e-1"},
			store.NodeRef{Label: store.LabelTag, ID: "t-sec"}, nil, nil)
	})

	return s
}

func coverageByID(report *Report) map[string]Coverage {
	out := make(map[string]Coverage, len(report.Standards))
	for _, c := range report.Standards {
		out[c.StandardID] = c
	}
	return out
}

func TestCompute_CoverageAcrossStandards(t *testing.T) {
	s := buildCoverageFixture(t)

	report, err := New(s).Compute(context.Background(), "p-1")
	require.NoError(t, err)
	require.Len(t, report.Standards, 2)
	assert.False(t, report.NoTags)
	assert.Empty(t, report.NoTagEvidence)

	byID := coverageByID(report)

	a := byID["std-a"]
	assert.Equal(t, 2, a.MatchedControls)
	assert.Equal(t, 2, a.TotalControls)
	assert.InDelta(t, 100.0, a.Percentage, 0.001)
	assert.Equal(t, []string{"security"}, a.SharedTags)
	assert.False(t, a.NotApplicable)

	b := byID["std-b"]
	assert.Equal(t, 0, b.MatchedControls)
	assert.Equal(t, 1, b.TotalControls)
	assert.InDelta(t, 0.0, b.Percentage, 0.001)
	assert.Empty(t, b.SharedTags)
}

func TestCompute_StandardWithZeroControlsIsNotApplicable(t *testing.T) {
	s := buildCoverageFixture(t)
	seed(t, s, "seed-empty-standard", func(ctx context.Context, tx store.Tx) error {
		return tx.MergeNode(ctx, store.LabelStandard, "std-empty", map[string]any{"name": "Empty"})
	})

	report, err := New(s).Compute(context.Background(), "p-1")
	require.NoError(t, err)

	empty := coverageByID(report)["std-empty"]
	assert.True(t, empty.NotApplicable)
	assert.Equal(t, 0, empty.TotalControls)
	assert.InDelta(t, 0.0, empty.Percentage, 0.001)
}

func TestCompute_NoTagEvidenceYieldsDiagnosticNotError(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	seed(t, s, "seed", func(ctx context.Context, tx store.Tx) error {
		if err := tx.MergeNode(ctx, store.LabelStandard, "std-a", map[string]any{"name": "Standard A"}); err != nil {
			return err
		}
		if err := tagNode(tx, ctx, "t-sec", "security"); err != nil {
			return err
		}
		if err := controlWithTags(tx, ctx, "c-1", "std-a", "t-sec"); err != nil {
			return err
		}
		return tx.MergeRelationship(ctx, store.RelBelongsTo,
			store.NodeRef{Label: store.LabelEvidence, ID: "e-untagged"},
			store.NodeRef{Label: store.LabelProject, ID: "p-1"}, nil, nil)
	})

	report, err := New(s).Compute(ctx, "p-1")
	require.NoError(t, err)
	assert.True(t, report.NoTags)
	assert.Equal(t, []string{"e-untagged"}, report.NoTagEvidence)

	for _, cov := range report.Standards {
		assert.Equal(t, 0, cov.MatchedControls)
		assert.InDelta(t, 0.0, cov.Percentage, 0.001)
	}
}

func TestCompute_TagMatchingNormalizesCaseAndWhitespace(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	seed(t, s, "seed", func(ctx context.Context, tx store.Tx) error {
		if err := tx.MergeNode(ctx, store.LabelStandard, "std-a", map[string]any{"name": "Standard A"}); err != nil {
			return err
		}
		if err := tagNode(tx, ctx, "t-1", "  Security "); err != nil {
			return err
		}
		if err := tagNode(tx, ctx, "t-2", "security"); err != nil {
			return err
		}
		if err := controlWithTags(tx, ctx, "c-1", "std-a", "t-1"); err != nil {
			return err
		}
		if err := tx.MergeRelationship(ctx, store.RelBelongsTo,
			store.NodeRef{Label: store.LabelEvidence, ID: "e-1"},
			store.NodeRef{Label: store.LabelProject, ID: "p-1"}, nil, nil); err != nil {
			return err
		}
		return tx.MergeRelationship(ctx, store.RelHasTag,
			store.NodeRef{Label: store.LabelEvidence, ID: "e-1"},
			store.NodeRef{Label: store.LabelTag, ID: "t-2"}, nil, nil)
	})

	report, err := New(s).Compute(ctx, "p-1")
	require.NoError(t, err)

	a := coverageByID(report)["std-a"]
	assert.Equal(t, 1, a.MatchedControls)
	assert.Equal(t, []string{"security"}, a.SharedTags, "duplicates collapse after normalization")
}

func TestCompute_InheritedControlTagsCountForCoverage(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	// Evidence has no direct tags but proves a tagged control; the
	// inherited tag bridges to the other standard.
	seed(t, s, "seed", func(ctx context.Context, tx store.Tx) error {
		if err := tx.MergeNode(ctx, store.LabelStandard, "std-b", map[string]any{"name": "Standard B"}); err != nil {
			return err
		}
		if err := tagNode(tx, ctx, "t-sec", "security"); err != nil {
			return err
		}
		if err := controlWithTags(tx, ctx, "c-b1", "std-b", "t-sec"); err != nil {
			return err
		}
		if err := tx.MergeRelationship(ctx, store.RelBelongsTo,
			store.NodeRef{Label: store.LabelEvidence, ID: "e-1"},
			store.NodeRef{Label: store.LabelProject, ID: "p-1"}, nil, nil); err != nil {
			return err
		}
		// Proven control in a different standard carries the tag.
		if err := controlWithTags(tx, ctx, "c-a1", "std-a", "t-sec"); err != nil {
			return err
		}
		return tx.MergeRelationship(ctx, store.RelProves,
			store.NodeRef{Label: store.LabelEvidence, ID: "e-1"},
			store.NodeRef{Label: store.LabelControl, ID: "c-a1"}, nil, nil)
	})

	report, err := New(s).Compute(ctx, "p-1")
	require.NoError(t, err)

	b := coverageByID(report)["std-b"]
	assert.Equal(t, 1, b.MatchedControls)
	assert.Equal(t, []string{"security"}, b.SharedTags)
}
