package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/OmerRastgar/studio-sub002/internal/types"
)

// MemoryStore is an in-memory Store implementation with the same merge
// semantics as the Neo4j-backed store. It backs the test suites and doubles
// as an embedded projection for local development without a graph server.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
	now   func() time.Time
}

type memState struct {
	nodes  map[string]*memNode
	rels   map[string]*memRel
	ledger map[string]int64
}

type memNode struct {
	label string
	id    string
	props map[string]any
}

type memRel struct {
	relType   string
	from      string
	to        string
	qualKey   string
	qualValue string
	props     map[string]any
}

// NewMemoryStore creates an empty in-memory projection store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: newMemState(),
		now:   time.Now,
	}
}

func newMemState() *memState {
	return &memState{
		nodes:  make(map[string]*memNode),
		rels:   make(map[string]*memRel),
		ledger: make(map[string]int64),
	}
}

func nodeKey(label, id string) string {
	return label + "\x00" + id
}

func relKey(relType, from, to, qualKey, qualValue string) string {
	return strings.Join([]string{relType, from, to, qualKey, qualValue}, "\x00")
}

func (s *memState) clone() *memState {
	next := newMemState()
	for k, n := range s.nodes {
		props := make(map[string]any, len(n.props))
		for pk, pv := range n.props {
			props[pk] = pv
		}
		next.nodes[k] = &memNode{label: n.label, id: n.id, props: props}
	}
	for k, r := range s.rels {
		props := make(map[string]any, len(r.props))
		for pk, pv := range r.props {
			props[pk] = pv
		}
		clone := *r
		clone.props = props
		next.rels[k] = &clone
	}
	for k, v := range s.ledger {
		next.ledger[k] = v
	}
	return next
}

// EnsureSchema is a no-op: map keys already enforce id uniqueness.
func (s *MemoryStore) EnsureSchema(ctx context.Context) error {
	return nil
}

// Apply runs fn against a clone of the current state and swaps the clone in
// only when fn succeeds, mirroring the transactional all-or-nothing
// behavior of the Neo4j store.
func (s *MemoryStore) Apply(ctx context.Context, eventID string, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, applied := s.state.ledger[eventID]; applied {
		return ErrAlreadyApplied
	}

	next := s.state.clone()
	tx := &memTx{state: next, eventID: eventID, now: s.now}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	next.ledger[eventID] = epochMillis(s.now())
	s.state = next
	return nil
}

// IsApplied reports whether eventID is present in the event ledger.
func (s *MemoryStore) IsApplied(ctx context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, applied := s.state.ledger[eventID]
	return applied, nil
}

// Health always reports healthy; there is no connection to lose.
func (s *MemoryStore) Health(ctx context.Context) types.HealthStatus {
	return types.Healthy("in-memory store")
}

// Close is a no-op.
func (s *MemoryStore) Close(ctx context.Context) error {
	return nil
}

// SetNow overrides the store clock. Test helper.
func (s *MemoryStore) SetNow(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// memTx implements Tx against a cloned state.
type memTx struct {
	state   *memState
	eventID string
	now     func() time.Time
}

func (t *memTx) mergeNode(label, id string, props map[string]any) (*memNode, error) {
	if err := checkLabel(label); err != nil {
		return nil, err
	}
	key := nodeKey(label, id)
	node, ok := t.state.nodes[key]
	if !ok {
		node = &memNode{
			label: label,
			id:    id,
			props: map[string]any{"createdAt": epochMillis(t.now())},
		}
		t.state.nodes[key] = node
	}
	node.props["updatedAt"] = epochMillis(t.now())
	for k, v := range props {
		node.props[k] = v
	}
	return node, nil
}

func (t *memTx) MergeNode(ctx context.Context, label, id string, props map[string]any) error {
	_, err := t.mergeNode(label, id, props)
	return err
}

func (t *memTx) MergeNodeAt(ctx context.Context, label, id string, props map[string]any, eventAt time.Time) error {
	node, err := t.mergeNode(label, id, nil)
	if err != nil {
		return err
	}

	at := epochMillis(eventAt)
	if last, ok := node.props["lastEventAt"].(int64); ok && last > at {
		// Stale out-of-order update; keep the newer state.
		return nil
	}
	for k, v := range props {
		node.props[k] = v
	}
	node.props["lastEventAt"] = at
	// A write that passes the guard revives a tombstoned node.
	delete(node.props, "deletedAt")
	return nil
}

func (t *memTx) TombstoneNodeAt(ctx context.Context, label, id string, eventAt time.Time) error {
	node, err := t.mergeNode(label, id, nil)
	if err != nil {
		return err
	}

	at := epochMillis(eventAt)
	if last, ok := node.props["lastEventAt"].(int64); ok && last > at {
		// The delete is the stale write; keep the newer state.
		return nil
	}

	key := nodeKey(label, id)
	for relK, rel := range t.state.rels {
		if rel.from == key || rel.to == key {
			delete(t.state.rels, relK)
		}
	}
	node.props = map[string]any{
		"deletedAt":   at,
		"lastEventAt": at,
		"updatedAt":   epochMillis(t.now()),
	}
	return nil
}

func (t *memTx) MergeRelationship(ctx context.Context, relType string, from, to NodeRef, props map[string]any, qualifier *Qualifier) error {
	if err := checkIdent("relationship type", relType); err != nil {
		return err
	}
	if _, err := t.mergeNode(from.Label, from.ID, nil); err != nil {
		return err
	}
	if _, err := t.mergeNode(to.Label, to.ID, nil); err != nil {
		return err
	}

	qualKey, qualValue := "", ""
	if qualifier != nil {
		if err := checkQualifier(qualifier); err != nil {
			return err
		}
		qualKey, qualValue = qualifier.Key, qualifier.Value
	}

	fromKey := nodeKey(from.Label, from.ID)
	toKey := nodeKey(to.Label, to.ID)
	key := relKey(relType, fromKey, toKey, qualKey, qualValue)

	rel, ok := t.state.rels[key]
	if !ok {
		rel = &memRel{
			relType:   relType,
			from:      fromKey,
			to:        toKey,
			qualKey:   qualKey,
			qualValue: qualValue,
			props:     map[string]any{"createdAt": epochMillis(t.now())},
		}
		if qualifier != nil {
			rel.props[qualKey] = qualValue
		}
		t.state.rels[key] = rel
	}
	rel.props["updatedAt"] = epochMillis(t.now())
	rel.props["eventId"] = t.eventID
	for k, v := range props {
		rel.props[k] = v
	}
	return nil
}

func (t *memTx) DeleteRelationships(ctx context.Context, relType string, from NodeRef) error {
	fromKey := nodeKey(from.Label, from.ID)
	for key, rel := range t.state.rels {
		if rel.relType == relType && rel.from == fromKey {
			delete(t.state.rels, key)
		}
	}
	return nil
}

func (t *memTx) DeleteRelationshipsTo(ctx context.Context, relType string, to NodeRef) error {
	toKey := nodeKey(to.Label, to.ID)
	for key, rel := range t.state.rels {
		if rel.relType == relType && rel.to == toKey {
			delete(t.state.rels, key)
		}
	}
	return nil
}

func (t *memTx) DetachDeleteNode(ctx context.Context, label, id string) error {
	if err := checkLabel(label); err != nil {
		return err
	}
	key := nodeKey(label, id)
	delete(t.state.nodes, key)
	for relK, rel := range t.state.rels {
		if rel.from == key || rel.to == key {
			delete(t.state.rels, relK)
		}
	}
	return nil
}

func (t *memTx) SetNodeProperty(ctx context.Context, label, id, property string, value any) error {
	if err := checkLabel(label); err != nil {
		return err
	}
	if err := checkIdent("property", property); err != nil {
		return err
	}
	node, ok := t.state.nodes[nodeKey(label, id)]
	if !ok {
		// MATCH semantics: patching a missing node is a no-op.
		return nil
	}
	node.props[property] = value
	node.props["updatedAt"] = epochMillis(t.now())
	return nil
}

// --- projection reads ---

// tagValue returns the string a Tag node is matched on: its name when
// present, otherwise its id (shell tags carry identity only).
func (s *memState) tagValue(key string) string {
	node, ok := s.nodes[key]
	if !ok {
		return ""
	}
	if name, ok := node.props["name"].(string); ok && name != "" {
		return name
	}
	return node.id
}

func (s *MemoryStore) ProjectEvidence(ctx context.Context, projectID string) ([]EvidenceTags, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	projectKey := nodeKey(LabelProject, projectID)
	var out []EvidenceTags
	for _, node := range s.state.nodes {
		if node.label != LabelEvidence {
			continue
		}
		evidenceKey := nodeKey(LabelEvidence, node.id)
		if !s.state.hasRel(RelBelongsTo, evidenceKey, projectKey) {
			continue
		}

		seen := map[string]bool{}
		var tags []string
		for _, rel := range s.state.rels {
			if rel.relType == RelHasTag && rel.from == evidenceKey && !seen[rel.to] {
				seen[rel.to] = true
				if v := s.state.tagValue(rel.to); v != "" {
					tags = append(tags, v)
				}
			}
			if rel.relType == RelProves && rel.from == evidenceKey {
				for _, crel := range s.state.rels {
					if crel.relType == RelHasTag && crel.from == rel.to && !seen[crel.to] {
						seen[crel.to] = true
						if v := s.state.tagValue(crel.to); v != "" {
							tags = append(tags, v)
						}
					}
				}
			}
		}
		out = append(out, EvidenceTags{ID: node.id, Tags: tags})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memState) hasRel(relType, from, to string) bool {
	for _, rel := range s.rels {
		if rel.relType == relType && rel.from == from && rel.to == to {
			return true
		}
	}
	return false
}

func (s *MemoryStore) Standards(ctx context.Context) ([]StandardRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []StandardRef
	for _, node := range s.state.nodes {
		if node.label != LabelStandard {
			continue
		}
		name, _ := node.props["name"].(string)
		out = append(out, StandardRef{ID: node.id, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ControlsOfStandard(ctx context.Context, standardID string) ([]ControlTags, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	standardKey := nodeKey(LabelStandard, standardID)
	var out []ControlTags
	for _, node := range s.state.nodes {
		if node.label != LabelControl {
			continue
		}
		controlKey := nodeKey(LabelControl, node.id)
		if !s.state.hasRel(RelBelongsTo, controlKey, standardKey) {
			continue
		}

		var tags []string
		for _, rel := range s.state.rels {
			if rel.relType == RelHasTag && rel.from == controlKey {
				if v := s.state.tagValue(rel.to); v != "" {
					tags = append(tags, v)
				}
			}
		}
		out = append(out, ControlTags{ID: node.id, Tags: tags})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) NodeIDs(ctx context.Context, label string) ([]string, error) {
	if err := checkLabel(label); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for _, node := range s.state.nodes {
		if node.label == label {
			ids = append(ids, node.id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) ControlParents(ctx context.Context, controlID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	controlKey := nodeKey(LabelControl, controlID)
	var parents []string
	for _, rel := range s.state.rels {
		if rel.relType == RelBelongsTo && rel.from == controlKey {
			if node, ok := s.state.nodes[rel.to]; ok && node.label == LabelStandard {
				parents = append(parents, node.id)
			}
		}
	}
	sort.Strings(parents)
	return parents, nil
}

func (s *MemoryStore) RelationshipCount(ctx context.Context, label, id, relType string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fromKey := nodeKey(label, id)
	count := 0
	for _, rel := range s.state.rels {
		if rel.relType == relType && rel.from == fromKey {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) GetNode(ctx context.Context, label, id string) (map[string]any, bool, error) {
	if err := checkLabel(label); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.state.nodes[nodeKey(label, id)]
	if !ok {
		return nil, false, nil
	}
	props := make(map[string]any, len(node.props)+1)
	for k, v := range node.props {
		props[k] = v
	}
	props["id"] = node.id
	return props, true, nil
}

func (s *MemoryStore) CountNodes(ctx context.Context, label string) (int, error) {
	if err := checkLabel(label); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, node := range s.state.nodes {
		if node.label == label {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) CountRelationships(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.rels), nil
}

var _ Store = (*MemoryStore)(nil)
