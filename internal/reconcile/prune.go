package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/OmerRastgar/studio-sub002/internal/record"
	"github.com/OmerRastgar/studio-sub002/internal/store"
	"github.com/OmerRastgar/studio-sub002/internal/types"
)

// PrunePlan itemizes what a prune run would delete. The plan is logged in
// full before any write happens.
type PrunePlan struct {
	Standards []StandardPrune `json:"standards"`
}

// StandardPrune is one stale standard and the controls that would be
// orphaned by its removal.
type StandardPrune struct {
	StandardID string `json:"standardId"`

	// Controls lists controls whose only valid parent is this stale
	// standard. Controls still belonging to a live standard are kept.
	Controls []string `json:"controls"`
}

// Empty reports whether the plan deletes nothing.
func (p PrunePlan) Empty() bool {
	return len(p.Standards) == 0
}

// Pruner removes standards that no longer exist in the system of record,
// cascading to controls left without any valid parent.
type Pruner struct {
	source record.Source
	store  store.Store
	logger *slog.Logger
	runID  string
}

// NewPruner creates a pruner.
func NewPruner(source record.Source, st store.Store, logger *slog.Logger) *Pruner {
	return &Pruner{
		source: source,
		store:  st,
		logger: logger,
		runID:  uuid.NewString(),
	}
}

// Plan computes the stale set without writing anything.
func (p *Pruner) Plan(ctx context.Context) (PrunePlan, error) {
	var plan PrunePlan

	sourceIDs, err := p.source.FrameworkIDs(ctx)
	if err != nil {
		return plan, types.WrapError(types.PRUNE_FAILED, "failed to read source framework ids", err)
	}
	valid := make(map[string]struct{}, len(sourceIDs))
	for _, id := range sourceIDs {
		valid[id] = struct{}{}
	}

	graphIDs, err := p.store.NodeIDs(ctx, store.LabelStandard)
	if err != nil {
		return plan, types.WrapError(types.PRUNE_FAILED, "failed to list graph standards", err)
	}

	for _, standardID := range graphIDs {
		if _, ok := valid[standardID]; ok {
			continue
		}

		controls, err := p.store.ControlsOfStandard(ctx, standardID)
		if err != nil {
			return plan, types.WrapError(types.PRUNE_FAILED, "failed to list controls of "+standardID, err)
		}

		entry := StandardPrune{StandardID: standardID}
		for _, control := range controls {
			parents, err := p.store.ControlParents(ctx, control.ID)
			if err != nil {
				return plan, types.WrapError(types.PRUNE_FAILED, "failed to read parents of "+control.ID, err)
			}
			orphaned := true
			for _, parent := range parents {
				if _, ok := valid[parent]; ok {
					orphaned = false
					break
				}
			}
			if orphaned {
				entry.Controls = append(entry.Controls, control.ID)
			}
		}
		sort.Strings(entry.Controls)
		plan.Standards = append(plan.Standards, entry)
	}

	sort.Slice(plan.Standards, func(i, j int) bool {
		return plan.Standards[i].StandardID < plan.Standards[j].StandardID
	})
	return plan, nil
}

// Run computes and executes the prune. With dryRun set it returns the plan
// without deleting anything. Each stale standard's cascade runs in one
// transaction, so a mid-run failure never leaves a half-deleted subtree.
func (p *Pruner) Run(ctx context.Context, dryRun bool) (PrunePlan, error) {
	plan, err := p.Plan(ctx)
	if err != nil {
		return plan, err
	}

	for _, entry := range plan.Standards {
		p.logger.Warn("prune: stale standard scheduled for deletion",
			"standard_id", entry.StandardID,
			"orphaned_controls", entry.Controls,
			"dry_run", dryRun)
	}
	if dryRun || plan.Empty() {
		return plan, nil
	}

	for _, entry := range plan.Standards {
		eventID := fmt.Sprintf("prune:%s:standard:%s", p.runID, entry.StandardID)
		err := p.store.Apply(ctx, eventID, func(ctx context.Context, tx store.Tx) error {
			for _, controlID := range entry.Controls {
				if err := tx.DetachDeleteNode(ctx, store.LabelControl, controlID); err != nil {
					return err
				}
			}
			return tx.DetachDeleteNode(ctx, store.LabelStandard, entry.StandardID)
		})
		if err != nil && err != store.ErrAlreadyApplied {
			return plan, types.WrapError(types.PRUNE_FAILED, "failed to prune "+entry.StandardID, err)
		}
		p.logger.Info("prune: standard removed",
			"standard_id", entry.StandardID,
			"controls_removed", len(entry.Controls))
	}
	return plan, nil
}
