package reconcile

import (
	"context"

	"github.com/OmerRastgar/studio-sub002/internal/record"
	"github.com/OmerRastgar/studio-sub002/internal/store"
	"github.com/OmerRastgar/studio-sub002/internal/types"
)

// DriftReport compares a user's uploaded-evidence fan-out in the graph
// against the system of record. Diagnostic only: nothing is corrected.
type DriftReport struct {
	UserID      string `json:"userId"`
	GraphCount  int    `json:"graphCount"`
	SourceCount int    `json:"sourceCount"`
	Divergent   bool   `json:"divergent"`
}

// DetectDrift builds the report for one user.
func DetectDrift(ctx context.Context, source record.Source, reader store.Reader, userID string) (DriftReport, error) {
	report := DriftReport{UserID: userID}

	graphCount, err := reader.RelationshipCount(ctx, store.LabelUser, userID, store.RelUploaded)
	if err != nil {
		return report, types.WrapError(types.DRIFT_FAILED, "failed to count graph uploads", err)
	}
	sourceCount, err := source.EvidenceCountByUploader(ctx, userID)
	if err != nil {
		return report, types.WrapError(types.DRIFT_FAILED, "failed to count source uploads", err)
	}

	report.GraphCount = graphCount
	report.SourceCount = sourceCount
	report.Divergent = graphCount != sourceCount
	return report, nil
}
