package sync

import (
	"context"
	"log/slog"

	"github.com/OmerRastgar/studio-sub002/internal/events"
	"github.com/OmerRastgar/studio-sub002/internal/store"
	"github.com/OmerRastgar/studio-sub002/internal/types"
)

// EventTypes lists every event type the catalogue handles. The worker
// validates the registry against this list at startup.
var EventTypes = []string{
	EventAssignAuditor,
	EventAssignManager,
	EventAssignReviewer,
	EventLinkEvidenceToControl,
	EventLinkEvidenceUploader,
	EventLinkControlToStandard,
	EventLinkSimilarControls,
	EventCreateAuditRequest,
	EventReportIssue,
	EventLinkComplianceToCustomer,
	EventLinkControlToTag,
	EventLinkEvidenceToTag,
	EventLinkControlsViaTag,
	EventLinkEvidenceAcrossStandards,
	EventLinkEvidenceToProject,
	EventUserCreated,
	EventUserUpdated,
	EventUserDeleted,
	EventUpdateNodeProperty,
}

const (
	EventAssignAuditor               = "assign_auditor"
	EventAssignManager               = "assign_manager"
	EventAssignReviewer              = "assign_reviewer"
	EventLinkEvidenceToControl       = "link_evidence_to_control"
	EventLinkEvidenceUploader        = "link_evidence_uploader"
	EventLinkControlToStandard       = "link_control_to_standard"
	EventLinkSimilarControls         = "link_similar_controls"
	EventCreateAuditRequest          = "create_audit_request"
	EventReportIssue                 = "report_issue"
	EventLinkComplianceToCustomer    = "link_compliance_to_customer"
	EventLinkControlToTag            = "link_control_to_tag"
	EventLinkEvidenceToTag           = "link_evidence_to_tag"
	EventLinkControlsViaTag          = "link_controls_via_tag"
	EventLinkEvidenceAcrossStandards = "link_evidence_across_standards"
	EventLinkEvidenceToProject       = "link_evidence_to_project"
	EventUserCreated                 = "user_created"
	EventUserUpdated                 = "user_updated"
	EventUserDeleted                 = "user_deleted"
	EventUpdateNodeProperty          = "update_node_property"
)

// catalogue holds handler state shared across event types.
type catalogue struct {
	logger *slog.Logger

	// replaceAssignments switches assign_* handlers from append-only to
	// replace semantics: previous same-type edges on the subject are
	// detached before the new one is merged.
	replaceAssignments bool
}

// NewCatalogueRegistry builds a registry with the full handler catalogue
// installed.
func NewCatalogueRegistry(logger *slog.Logger, replaceAssignments bool) (*Registry, error) {
	c := &catalogue{logger: logger, replaceAssignments: replaceAssignments}
	r := NewRegistry()

	bindings := map[string]Handler{
		EventAssignAuditor:               c.assignAuditor,
		EventAssignManager:               c.assignManager,
		EventAssignReviewer:              c.assignReviewer,
		EventLinkEvidenceToControl:       c.linkEvidenceToControl,
		EventLinkEvidenceUploader:        c.linkEvidenceUploader,
		EventLinkControlToStandard:       c.linkControlToStandard,
		EventLinkSimilarControls:         c.linkSimilarControls,
		EventCreateAuditRequest:          c.createAuditRequest,
		EventReportIssue:                 c.reportIssue,
		EventLinkComplianceToCustomer:    c.linkComplianceToCustomer,
		EventLinkControlToTag:            c.linkControlToTag,
		EventLinkEvidenceToTag:           c.linkEvidenceToTag,
		EventLinkControlsViaTag:          c.linkControlsViaTag,
		EventLinkEvidenceAcrossStandards: c.linkEvidenceAcrossStandards,
		EventLinkEvidenceToProject:       c.linkEvidenceToProject,
		EventUserCreated:                 c.userUpsert,
		EventUserUpdated:                 c.userUpsert,
		EventUserDeleted:                 c.userDeleted,
		EventUpdateNodeProperty:          c.updateNodeProperty,
	}
	for eventType, h := range bindings {
		if err := r.Register(eventType, h); err != nil {
			return nil, err
		}
	}
	if err := r.Validate(EventTypes); err != nil {
		return nil, err
	}
	return r, nil
}

// assignment merges an assignment edge, optionally detaching the previous
// same-type edges at the subject end first.
func (c *catalogue) assignment(ctx context.Context, tx store.Tx, relType string, from, to store.NodeRef, replaceAt *store.NodeRef, incoming bool) error {
	if c.replaceAssignments && replaceAt != nil {
		var err error
		if incoming {
			err = tx.DeleteRelationshipsTo(ctx, relType, *replaceAt)
		} else {
			err = tx.DeleteRelationships(ctx, relType, *replaceAt)
		}
		if err != nil {
			return err
		}
	}
	return tx.MergeRelationship(ctx, relType, from, to, nil, nil)
}

// assign_auditor: {userId, projectId}. The project is the subject: under
// replace semantics its previous auditors are detached.
func (c *catalogue) assignAuditor(ctx context.Context, tx store.Tx, event events.Event) error {
	userID, err := event.Payload.String("userId")
	if err != nil {
		return err
	}
	projectID, err := event.Payload.String("projectId")
	if err != nil {
		return err
	}
	project := store.NodeRef{Label: store.LabelProject, ID: projectID}
	return c.assignment(ctx, tx, store.RelAuditedBy,
		store.NodeRef{Label: store.LabelUser, ID: userID}, project, &project, true)
}

// assign_manager: {userId, managerId}. The managed user is the subject.
func (c *catalogue) assignManager(ctx context.Context, tx store.Tx, event events.Event) error {
	userID, err := event.Payload.String("userId")
	if err != nil {
		return err
	}
	managerID, err := event.Payload.String("managerId")
	if err != nil {
		return err
	}
	user := store.NodeRef{Label: store.LabelUser, ID: userID}
	return c.assignment(ctx, tx, store.RelManagedBy,
		user, store.NodeRef{Label: store.LabelUser, ID: managerID}, &user, false)
}

// assign_reviewer: {userId, projectId}.
func (c *catalogue) assignReviewer(ctx context.Context, tx store.Tx, event events.Event) error {
	userID, err := event.Payload.String("userId")
	if err != nil {
		return err
	}
	projectID, err := event.Payload.String("projectId")
	if err != nil {
		return err
	}
	project := store.NodeRef{Label: store.LabelProject, ID: projectID}
	return c.assignment(ctx, tx, store.RelReviews,
		store.NodeRef{Label: store.LabelUser, ID: userID}, project, &project, true)
}

// link_evidence_to_control: {evidenceId, controlId}.
func (c *catalogue) linkEvidenceToControl(ctx context.Context, tx store.Tx, event events.Event) error {
	evidenceID, err := event.Payload.String("evidenceId")
	if err != nil {
		return err
	}
	controlID, err := event.Payload.String("controlId")
	if err != nil {
		return err
	}
	return tx.MergeRelationship(ctx, store.RelProves,
		store.NodeRef{Label: store.LabelEvidence, ID: evidenceID},
		store.NodeRef{Label: store.LabelControl, ID: controlID}, nil, nil)
}

// link_evidence_uploader: {userId, evidenceId, role?}.
func (c *catalogue) linkEvidenceUploader(ctx context.Context, tx store.Tx, event events.Event) error {
	userID, err := event.Payload.String("userId")
	if err != nil {
		return err
	}
	evidenceID, err := event.Payload.String("evidenceId")
	if err != nil {
		return err
	}
	var props map[string]any
	if role := event.Payload.OptionalString("role"); role != "" {
		props = map[string]any{"role": role}
	}
	return tx.MergeRelationship(ctx, store.RelUploaded,
		store.NodeRef{Label: store.LabelUser, ID: userID},
		store.NodeRef{Label: store.LabelEvidence, ID: evidenceID}, props, nil)
}

// link_control_to_standard: {controlId, standardId}.
func (c *catalogue) linkControlToStandard(ctx context.Context, tx store.Tx, event events.Event) error {
	controlID, err := event.Payload.String("controlId")
	if err != nil {
		return err
	}
	standardID, err := event.Payload.String("standardId")
	if err != nil {
		return err
	}
	return tx.MergeRelationship(ctx, store.RelBelongsTo,
		store.NodeRef{Label: store.LabelControl, ID: controlID},
		store.NodeRef{Label: store.LabelStandard, ID: standardID}, nil, nil)
}

// link_similar_controls: {controlId, similarControlId}.
func (c *catalogue) linkSimilarControls(ctx context.Context, tx store.Tx, event events.Event) error {
	controlID, err := event.Payload.String("controlId")
	if err != nil {
		return err
	}
	similarID, err := event.Payload.String("similarControlId")
	if err != nil {
		return err
	}
	return tx.MergeRelationship(ctx, store.RelSimilarTo,
		store.NodeRef{Label: store.LabelControl, ID: controlID},
		store.NodeRef{Label: store.LabelControl, ID: similarID}, nil, nil)
}

// create_audit_request: {userId, projectId, status?}.
func (c *catalogue) createAuditRequest(ctx context.Context, tx store.Tx, event events.Event) error {
	userID, err := event.Payload.String("userId")
	if err != nil {
		return err
	}
	projectID, err := event.Payload.String("projectId")
	if err != nil {
		return err
	}
	var props map[string]any
	if status := event.Payload.OptionalString("status"); status != "" {
		props = map[string]any{"status": status}
	}
	return tx.MergeRelationship(ctx, store.RelRequested,
		store.NodeRef{Label: store.LabelUser, ID: userID},
		store.NodeRef{Label: store.LabelProject, ID: projectID}, props, nil)
}

// report_issue: {userId, targetUserId, details?}.
func (c *catalogue) reportIssue(ctx context.Context, tx store.Tx, event events.Event) error {
	userID, err := event.Payload.String("userId")
	if err != nil {
		return err
	}
	targetID, err := event.Payload.String("targetUserId")
	if err != nil {
		return err
	}
	var props map[string]any
	if details := event.Payload.OptionalString("details"); details != "" {
		props = map[string]any{"details": details}
	}
	return tx.MergeRelationship(ctx, store.RelHasIssue,
		store.NodeRef{Label: store.LabelUser, ID: userID},
		store.NodeRef{Label: store.LabelUser, ID: targetID}, props, nil)
}

// link_compliance_to_customer: {complianceId, customerId}.
func (c *catalogue) linkComplianceToCustomer(ctx context.Context, tx store.Tx, event events.Event) error {
	complianceID, err := event.Payload.String("complianceId")
	if err != nil {
		return err
	}
	customerID, err := event.Payload.String("customerId")
	if err != nil {
		return err
	}
	return tx.MergeRelationship(ctx, store.RelOversees,
		store.NodeRef{Label: store.LabelUser, ID: complianceID},
		store.NodeRef{Label: store.LabelUser, ID: customerID}, nil, nil)
}

// mergeTag enriches the tag node with its display name when the producer
// sends one; the shell id alone suffices for matching otherwise.
func mergeTag(ctx context.Context, tx store.Tx, event events.Event, tagID string) error {
	if name := event.Payload.OptionalString("tagName"); name != "" {
		return tx.MergeNode(ctx, store.LabelTag, tagID, map[string]any{"name": name})
	}
	return nil
}

// link_control_to_tag: {controlId, tagId, tagName?}.
func (c *catalogue) linkControlToTag(ctx context.Context, tx store.Tx, event events.Event) error {
	controlID, err := event.Payload.String("controlId")
	if err != nil {
		return err
	}
	tagID, err := event.Payload.String("tagId")
	if err != nil {
		return err
	}
	if err := mergeTag(ctx, tx, event, tagID); err != nil {
		return err
	}
	return tx.MergeRelationship(ctx, store.RelHasTag,
		store.NodeRef{Label: store.LabelControl, ID: controlID},
		store.NodeRef{Label: store.LabelTag, ID: tagID}, nil, nil)
}

// link_evidence_to_tag: {evidenceId, tagId, tagName?}.
func (c *catalogue) linkEvidenceToTag(ctx context.Context, tx store.Tx, event events.Event) error {
	evidenceID, err := event.Payload.String("evidenceId")
	if err != nil {
		return err
	}
	tagID, err := event.Payload.String("tagId")
	if err != nil {
		return err
	}
	if err := mergeTag(ctx, tx, event, tagID); err != nil {
		return err
	}
	return tx.MergeRelationship(ctx, store.RelHasTag,
		store.NodeRef{Label: store.LabelEvidence, ID: evidenceID},
		store.NodeRef{Label: store.LabelTag, ID: tagID}, nil, nil)
}

// link_controls_via_tag: {controlId, relatedControlId, tagId}. One edge
// per tag id between the same control pair.
func (c *catalogue) linkControlsViaTag(ctx context.Context, tx store.Tx, event events.Event) error {
	controlID, err := event.Payload.String("controlId")
	if err != nil {
		return err
	}
	relatedID, err := event.Payload.String("relatedControlId")
	if err != nil {
		return err
	}
	tagID, err := event.Payload.String("tagId")
	if err != nil {
		return err
	}
	return tx.MergeRelationship(ctx, store.RelRelatedVia,
		store.NodeRef{Label: store.LabelControl, ID: controlID},
		store.NodeRef{Label: store.LabelControl, ID: relatedID},
		nil, &store.Qualifier{Key: "tagId", Value: tagID})
}

// link_evidence_across_standards: {evidenceId, relatedEvidenceId,
// standardId}. One edge per standard id between the same evidence pair.
func (c *catalogue) linkEvidenceAcrossStandards(ctx context.Context, tx store.Tx, event events.Event) error {
	evidenceID, err := event.Payload.String("evidenceId")
	if err != nil {
		return err
	}
	relatedID, err := event.Payload.String("relatedEvidenceId")
	if err != nil {
		return err
	}
	standardID, err := event.Payload.String("standardId")
	if err != nil {
		return err
	}
	return tx.MergeRelationship(ctx, store.RelRelatesTo,
		store.NodeRef{Label: store.LabelEvidence, ID: evidenceID},
		store.NodeRef{Label: store.LabelEvidence, ID: relatedID},
		nil, &store.Qualifier{Key: "standardId", Value: standardID})
}

// link_evidence_to_project: {evidenceId, projectId}.
func (c *catalogue) linkEvidenceToProject(ctx context.Context, tx store.Tx, event events.Event) error {
	evidenceID, err := event.Payload.String("evidenceId")
	if err != nil {
		return err
	}
	projectID, err := event.Payload.String("projectId")
	if err != nil {
		return err
	}
	return tx.MergeRelationship(ctx, store.RelBelongsTo,
		store.NodeRef{Label: store.LabelEvidence, ID: evidenceID},
		store.NodeRef{Label: store.LabelProject, ID: projectID}, nil, nil)
}

// user_created / user_updated: {userId, properties?}. Merged with the
// event timestamp so a stale update arriving after a newer one (or after
// a delete's tombstone window) loses.
func (c *catalogue) userUpsert(ctx context.Context, tx store.Tx, event events.Event) error {
	userID, err := event.Payload.String("userId")
	if err != nil {
		return err
	}
	props := event.Payload.Properties("properties")
	return tx.MergeNodeAt(ctx, store.LabelUser, userID, props, event.Timestamp)
}

// user_deleted: {userId}. Tombstoned rather than hard-deleted: the
// deletedAt marker carries the event timestamp, so a stale user_created
// arriving afterwards with an older timestamp cannot resurrect the user.
func (c *catalogue) userDeleted(ctx context.Context, tx store.Tx, event events.Event) error {
	userID, err := event.Payload.String("userId")
	if err != nil {
		return err
	}
	return tx.TombstoneNodeAt(ctx, store.LabelUser, userID, event.Timestamp)
}

// update_node_property: {label, id, property, value}. The property name
// is validated against the declared allow-list; a disallowed name is
// rejected loudly in the logs but the event still counts as processed so
// it cannot poison the queue.
func (c *catalogue) updateNodeProperty(ctx context.Context, tx store.Tx, event events.Event) error {
	label, err := event.Payload.String("label")
	if err != nil {
		return err
	}
	nodeID, err := event.Payload.String("id")
	if err != nil {
		return err
	}
	property, err := event.Payload.String("property")
	if err != nil {
		return err
	}
	value, err := event.Payload.Value("value")
	if err != nil {
		return err
	}

	if !store.ValidNodeLabel(label) {
		return types.NewError(types.EVENT_PAYLOAD_INVALID, "unknown node label: "+label)
	}
	if !PropertyAllowed(property) {
		c.logger.Warn("rejected property update outside allow-list",
			"event_id", event.ID,
			"label", label,
			"node_id", nodeID,
			"property", property)
		return nil
	}
	return tx.SetNodeProperty(ctx, label, nodeID, property, value)
}
