// Package store exposes the property-graph projection used by the sync
// worker, the crosswalk query, and the reconciliation tools. All mutations
// go through merge primitives that are idempotent by construction, so the
// live worker and offline backfill can write concurrently without
// coordination.
package store

import (
	"context"
	"regexp"
	"time"

	"github.com/OmerRastgar/studio-sub002/internal/types"
)

// Node labels of the compliance projection. Node identity is always the
// stable primary key from the system of record, held in the id property.
const (
	LabelStandard = "Standard"
	LabelControl  = "Control"
	LabelTag      = "Tag"
	LabelEvidence = "Evidence"
	LabelProject  = "Project"
	LabelUser     = "User"
	// LabelEvent marks ledger entries for already-applied events.
	LabelEvent = "Event"
)

// Relationship types.
const (
	RelBelongsTo  = "BELONGS_TO"
	RelHasTag     = "HAS_TAG"
	RelUploaded   = "UPLOADED"
	RelProves     = "PROVES"
	RelAuditedBy  = "AUDITED_BY"
	RelManagedBy  = "MANAGED_BY"
	RelReviews    = "REVIEWS"
	RelRequested  = "REQUESTED"
	RelOversees   = "OVERSEES"
	RelHasIssue   = "HAS_ISSUE"
	RelSimilarTo  = "SIMILAR_TO"
	RelRelatedVia = "RELATED_VIA"
	RelRelatesTo  = "RELATES_TO"
)

// ErrAlreadyApplied is returned by Apply when the event ledger already
// contains the event id. Callers treat it as success without side effects.
var ErrAlreadyApplied = types.NewError(types.GRAPH_ALREADY_APPLIED, "event already applied")

// NodeRef identifies a node by label and stable id.
type NodeRef struct {
	Label string
	ID    string
}

// Qualifier disambiguates relationships that may occur more than once
// between the same endpoint pair (RELATED_VIA by tag id, RELATES_TO by
// standard id). Key is the property name, Value the qualifying id.
type Qualifier struct {
	Key   string
	Value string
}

// Tx exposes the merge primitives available inside one Apply transaction.
// Every relationship written through a Tx is stamped with createdAt,
// updatedAt, and the eventId of the Apply call that last touched it.
type Tx interface {
	// MergeNode creates the node if absent, else updates it. Passing empty
	// props produces a shell node that later events enrich.
	MergeNode(ctx context.Context, label, id string, props map[string]any) error

	// MergeNodeAt is MergeNode with a last-write-wins guard: props are only
	// applied when eventAt is not older than the node's recorded
	// lastEventAt, so a stale out-of-order update cannot clobber newer
	// state. The node itself is still merged either way. A write that
	// passes the guard also clears any deletedAt tombstone, reviving a
	// previously deleted node.
	MergeNodeAt(ctx context.Context, label, id string, props map[string]any, eventAt time.Time) error

	// MergeRelationship creates the relationship if absent, else updates
	// its properties. With a non-nil qualifier, a distinct edge exists per
	// qualifier value between the same endpoints. Endpoint nodes are merged
	// as shells if missing.
	MergeRelationship(ctx context.Context, relType string, from, to NodeRef, props map[string]any, qualifier *Qualifier) error

	// DeleteRelationships removes all outgoing relationships of relType
	// from the given node. Used by replace-assignment semantics.
	DeleteRelationships(ctx context.Context, relType string, from NodeRef) error

	// DeleteRelationshipsTo removes all incoming relationships of relType
	// at the given node, e.g. detaching a project's previous auditors.
	DeleteRelationshipsTo(ctx context.Context, relType string, to NodeRef) error

	// DetachDeleteNode deletes the node and all its relationships.
	DetachDeleteNode(ctx context.Context, label, id string) error

	// TombstoneNodeAt removes the node's relationships and replaces its
	// properties with a deletedAt marker stamped with eventAt. The marker
	// keeps the lastEventAt guard in place, so a stale write with an older
	// timestamp cannot resurrect the entity; a tombstone older than the
	// node's recorded lastEventAt is itself skipped. The node is created
	// as a tombstone when absent, covering a delete that outruns its
	// entity's creation event.
	TombstoneNodeAt(ctx context.Context, label, id string, eventAt time.Time) error

	// SetNodeProperty patches a single property on an existing node and
	// bumps updatedAt. The property name must be pre-validated by the
	// caller against the handler allow-list; this layer only enforces that
	// label and property are syntactically safe identifiers.
	SetNodeProperty(ctx context.Context, label, id, property string, value any) error
}

// StandardRef is a standard node reference returned by projection reads.
type StandardRef struct {
	ID   string
	Name string
}

// ControlTags is a control with its normalized-as-stored tag names.
type ControlTags struct {
	ID   string
	Tags []string
}

// EvidenceTags is an evidence item with its effective tag set: tags
// attached directly plus tags inherited from controls it proves.
type EvidenceTags struct {
	ID   string
	Tags []string
}

// Reader provides the read-only projection queries used by the crosswalk
// algorithm and the reconciliation tools.
type Reader interface {
	// ProjectEvidence returns every evidence item linked to the project via
	// BELONGS_TO together with its effective tags.
	ProjectEvidence(ctx context.Context, projectID string) ([]EvidenceTags, error)

	// Standards lists all standard nodes.
	Standards(ctx context.Context) ([]StandardRef, error)

	// ControlsOfStandard lists the controls that BELONG_TO the standard,
	// each with its tags.
	ControlsOfStandard(ctx context.Context, standardID string) ([]ControlTags, error)

	// NodeIDs returns the ids of all nodes with the given label.
	NodeIDs(ctx context.Context, label string) ([]string, error)

	// ControlParents returns the standard ids a control BELONGS_TO.
	ControlParents(ctx context.Context, controlID string) ([]string, error)

	// RelationshipCount counts outgoing relationships of relType from the
	// node identified by label and id.
	RelationshipCount(ctx context.Context, label, id, relType string) (int, error)

	// GetNode fetches a node's properties; found is false when absent.
	GetNode(ctx context.Context, label, id string) (props map[string]any, found bool, err error)

	// CountNodes counts nodes with the given label.
	CountNodes(ctx context.Context, label string) (int, error)

	// CountRelationships counts all relationships in the projection.
	CountRelationships(ctx context.Context) (int, error)
}

// Store is the projection store: transactional event application plus the
// read-only queries. Implementations must be safe for concurrent use.
type Store interface {
	Reader

	// EnsureSchema creates the uniqueness constraints the idempotency
	// protocol depends on: Event.eventId plus id uniqueness per node label.
	EnsureSchema(ctx context.Context) error

	// Apply runs fn and the ledger write for eventID in one transaction.
	// If the ledger already holds eventID, Apply returns ErrAlreadyApplied
	// without side effects. Two concurrent deliveries of the same event
	// cannot both commit; the loser fails on the ledger uniqueness
	// constraint and degrades to a retry that observes ErrAlreadyApplied.
	Apply(ctx context.Context, eventID string, fn func(ctx context.Context, tx Tx) error) error

	// IsApplied reports whether eventID is present in the event ledger.
	IsApplied(ctx context.Context, eventID string) (bool, error)

	// Health reports the health of the underlying graph connection.
	Health(ctx context.Context) types.HealthStatus

	// Close releases the underlying connection.
	Close(ctx context.Context) error
}

// identPattern matches the only label, relationship type, and property
// identifiers this store will interpolate into a query. Cypher cannot
// parameterize these positions, so anything else is rejected outright.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var nodeLabels = map[string]bool{
	LabelStandard: true,
	LabelControl:  true,
	LabelTag:      true,
	LabelEvidence: true,
	LabelProject:  true,
	LabelUser:     true,
}

// ValidNodeLabel reports whether label names one of the projection's node
// kinds. The ledger label is deliberately excluded: events never target it.
func ValidNodeLabel(label string) bool {
	return nodeLabels[label]
}

func checkIdent(kind, s string) error {
	if !identPattern.MatchString(s) {
		return types.NewError(types.GRAPH_QUERY_FAILED, "unsafe "+kind+" identifier: "+s)
	}
	return nil
}

// checkQualifier validates a relationship qualifier: the key must be a safe
// identifier and the value non-empty, since an empty qualifier would merge
// every qualified edge between two endpoints into one.
func checkQualifier(q *Qualifier) error {
	if q == nil {
		return nil
	}
	if q.Value == "" {
		return types.NewError(types.GRAPH_QUALIFIER_REQUIRED, "empty value for qualifier "+q.Key)
	}
	return checkIdent("qualifier property", q.Key)
}

func checkLabel(label string) error {
	if !ValidNodeLabel(label) {
		return types.NewError(types.GRAPH_NODE_NOT_FOUND, "unknown node label: "+label)
	}
	return nil
}

// epochMillis converts t to the integer timestamp representation stored on
// nodes and relationships.
func epochMillis(t time.Time) int64 {
	return t.UnixMilli()
}
