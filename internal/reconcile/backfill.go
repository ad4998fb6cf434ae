// Package reconcile keeps the graph projection honest against the system
// of record: full backfill re-derives the graph, prune removes stale
// subtrees, and drift detection reports divergence without correcting it.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/OmerRastgar/studio-sub002/internal/record"
	"github.com/OmerRastgar/studio-sub002/internal/store"
	"github.com/OmerRastgar/studio-sub002/internal/types"
)

// BackfillCounts reports how many entities each phase merged.
type BackfillCounts struct {
	Standards int `json:"standards"`
	Tags      int `json:"tags"`
	Controls  int `json:"controls"`
	Projects  int `json:"projects"`
	Evidence  int `json:"evidence"`
	Users     int `json:"users"`
}

// Backfiller re-derives the whole graph from the system of record using
// the same merge primitives as the live worker, so it is safe to run
// concurrently with it and acts as a self-healing resync.
type Backfiller struct {
	source   record.Source
	store    store.Store
	logger   *slog.Logger
	pageSize int

	// runID scopes ledger entries so a later resync re-executes the
	// merges instead of short-circuiting on a previous run's ledger rows.
	runID string
}

// NewBackfiller creates a backfiller reading pageSize rows at a time.
func NewBackfiller(source record.Source, st store.Store, logger *slog.Logger, pageSize int) *Backfiller {
	return &Backfiller{
		source:   source,
		store:    st,
		logger:   logger,
		pageSize: pageSize,
		runID:    uuid.NewString(),
	}
}

func (b *Backfiller) eventID(entity, id string) string {
	return fmt.Sprintf("backfill:%s:%s:%s", b.runID, entity, id)
}

// apply runs one entity's merges; a ledger hit from a retried page is
// treated as success.
func (b *Backfiller) apply(ctx context.Context, eventID string, fn func(ctx context.Context, tx store.Tx) error) error {
	err := b.store.Apply(ctx, eventID, fn)
	if err != nil && err != store.ErrAlreadyApplied {
		return types.WrapError(types.BACKFILL_FAILED, "backfill apply failed for "+eventID, err)
	}
	return nil
}

// Run executes the full backfill in strict dependency order: standards,
// tags, controls with their links, projects, evidence with its links,
// then users.
func (b *Backfiller) Run(ctx context.Context) (BackfillCounts, error) {
	var counts BackfillCounts

	if err := b.standards(ctx, &counts); err != nil {
		return counts, err
	}
	if err := b.tags(ctx, &counts); err != nil {
		return counts, err
	}
	if err := b.controls(ctx, &counts); err != nil {
		return counts, err
	}
	if err := b.projects(ctx, &counts); err != nil {
		return counts, err
	}
	if err := b.evidence(ctx, &counts); err != nil {
		return counts, err
	}
	if err := b.users(ctx, &counts); err != nil {
		return counts, err
	}

	b.logger.Info("backfill complete",
		"standards", counts.Standards,
		"tags", counts.Tags,
		"controls", counts.Controls,
		"projects", counts.Projects,
		"evidence", counts.Evidence,
		"users", counts.Users)
	return counts, nil
}

func (b *Backfiller) standards(ctx context.Context, counts *BackfillCounts) error {
	frameworks, err := b.source.Frameworks(ctx)
	if err != nil {
		return err
	}
	for _, fw := range frameworks {
		err := b.apply(ctx, b.eventID("standard", fw.ID), func(ctx context.Context, tx store.Tx) error {
			return tx.MergeNode(ctx, store.LabelStandard, fw.ID, map[string]any{
				"name":        fw.Name,
				"description": fw.Description,
			})
		})
		if err != nil {
			return err
		}
		counts.Standards++
	}
	return nil
}

func (b *Backfiller) tags(ctx context.Context, counts *BackfillCounts) error {
	for offset := 0; ; offset += b.pageSize {
		page, err := b.source.TagsPage(ctx, offset, b.pageSize)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}
		for _, tag := range page {
			err := b.apply(ctx, b.eventID("tag", tag.ID), func(ctx context.Context, tx store.Tx) error {
				return tx.MergeNode(ctx, store.LabelTag, tag.ID, map[string]any{"name": tag.Name})
			})
			if err != nil {
				return err
			}
			counts.Tags++
		}
	}
}

func (b *Backfiller) controls(ctx context.Context, counts *BackfillCounts) error {
	for offset := 0; ; offset += b.pageSize {
		page, err := b.source.ControlsPage(ctx, offset, b.pageSize)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}
		for _, control := range page {
			err := b.apply(ctx, b.eventID("control", control.ID), func(ctx context.Context, tx store.Tx) error {
				if err := tx.MergeNode(ctx, store.LabelControl, control.ID, map[string]any{
					"name":        control.Name,
					"description": control.Description,
				}); err != nil {
					return err
				}
				if err := tx.MergeRelationship(ctx, store.RelBelongsTo,
					store.NodeRef{Label: store.LabelControl, ID: control.ID},
					store.NodeRef{Label: store.LabelStandard, ID: control.FrameworkID}, nil, nil); err != nil {
					return err
				}
				for _, tag := range control.Tags {
					if err := tx.MergeRelationship(ctx, store.RelHasTag,
						store.NodeRef{Label: store.LabelControl, ID: control.ID},
						store.NodeRef{Label: store.LabelTag, ID: tag.ID}, nil, nil); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				return err
			}
			counts.Controls++
		}
	}
}

func (b *Backfiller) projects(ctx context.Context, counts *BackfillCounts) error {
	for offset := 0; ; offset += b.pageSize {
		page, err := b.source.ProjectsPage(ctx, offset, b.pageSize)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}
		for _, project := range page {
			err := b.apply(ctx, b.eventID("project", project.ID), func(ctx context.Context, tx store.Tx) error {
				return tx.MergeNode(ctx, store.LabelProject, project.ID, map[string]any{
					"name":   project.Name,
					"status": project.Status,
				})
			})
			if err != nil {
				return err
			}
			counts.Projects++
		}
	}
}

func (b *Backfiller) evidence(ctx context.Context, counts *BackfillCounts) error {
	for offset := 0; ; offset += b.pageSize {
		page, err := b.source.EvidencePage(ctx, offset, b.pageSize)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}
		for _, ev := range page {
			err := b.apply(ctx, b.eventID("evidence", ev.ID), func(ctx context.Context, tx store.Tx) error {
				if err := tx.MergeNode(ctx, store.LabelEvidence, ev.ID, map[string]any{
					"name": ev.Name,
				}); err != nil {
					return err
				}
				if err := tx.MergeRelationship(ctx, store.RelBelongsTo,
					store.NodeRef{Label: store.LabelEvidence, ID: ev.ID},
					store.NodeRef{Label: store.LabelProject, ID: ev.ProjectID}, nil, nil); err != nil {
					return err
				}
				for _, tag := range ev.Tags {
					if err := tx.MergeRelationship(ctx, store.RelHasTag,
						store.NodeRef{Label: store.LabelEvidence, ID: ev.ID},
						store.NodeRef{Label: store.LabelTag, ID: tag.ID}, nil, nil); err != nil {
						return err
					}
				}
				if ev.UploaderID != "" {
					if err := tx.MergeRelationship(ctx, store.RelUploaded,
						store.NodeRef{Label: store.LabelUser, ID: ev.UploaderID},
						store.NodeRef{Label: store.LabelEvidence, ID: ev.ID}, nil, nil); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				return err
			}
			counts.Evidence++
		}
	}
}

func (b *Backfiller) users(ctx context.Context, counts *BackfillCounts) error {
	for offset := 0; ; offset += b.pageSize {
		page, err := b.source.UsersPage(ctx, offset, b.pageSize)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}
		for _, user := range page {
			err := b.apply(ctx, b.eventID("user", user.ID), func(ctx context.Context, tx store.Tx) error {
				return tx.MergeNode(ctx, store.LabelUser, user.ID, map[string]any{
					"name":  user.Name,
					"email": user.Email,
					"role":  user.Role,
				})
			})
			if err != nil {
				return err
			}
			counts.Users++
		}
	}
}
