package store

import (
	"context"
	"fmt"
	"time"

	"github.com/OmerRastgar/studio-sub002/internal/graph"
	"github.com/OmerRastgar/studio-sub002/internal/types"
)

// Neo4jStore implements Store on top of a connected graph.Client. Every
// mutation is expressed as a Cypher MERGE keyed on stable ids, so applying
// the same event twice produces identical state.
type Neo4jStore struct {
	client graph.Client
	now    func() time.Time
}

// NewNeo4jStore creates a projection store backed by the given client.
// The client must already be connected.
func NewNeo4jStore(client graph.Client) *Neo4jStore {
	return &Neo4jStore{
		client: client,
		now:    time.Now,
	}
}

// EnsureSchema creates the uniqueness constraints the idempotency protocol
// depends on. Safe to call on every startup.
func (s *Neo4jStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		"CREATE CONSTRAINT event_id_unique IF NOT EXISTS FOR (e:Event) REQUIRE e.eventId IS UNIQUE",
	}
	for label := range nodeLabels {
		statements = append(statements, fmt.Sprintf(
			"CREATE CONSTRAINT %s_id_unique IF NOT EXISTS FOR (n:%s) REQUIRE n.id IS UNIQUE",
			label, label))
	}

	for _, stmt := range statements {
		if _, err := s.client.ExecuteWrite(ctx, stmt, nil); err != nil {
			return types.WrapError(types.GRAPH_SCHEMA_FAILED, "failed to ensure constraint", err)
		}
	}
	return nil
}

// Apply runs fn and the ledger write for eventID in one write transaction.
func (s *Neo4jStore) Apply(ctx context.Context, eventID string, fn func(ctx context.Context, tx Tx) error) error {
	return s.client.ExecuteInTx(ctx, func(runner graph.TxRunner) error {
		result, err := runner.Run(ctx,
			"MATCH (e:Event {eventId: $eventId}) RETURN e.eventId",
			map[string]any{"eventId": eventID})
		if err != nil {
			return err
		}
		if len(result.Records) > 0 {
			return ErrAlreadyApplied
		}

		tx := &neo4jTx{runner: runner, eventID: eventID, now: s.now}
		if err := fn(ctx, tx); err != nil {
			return err
		}

		// The uniqueness constraint on eventId makes the slower of two
		// concurrent deliveries fail here and roll back everything.
		_, err = runner.Run(ctx,
			"CREATE (e:Event {eventId: $eventId, processedAt: $processedAt})",
			map[string]any{"eventId": eventID, "processedAt": epochMillis(s.now())})
		return err
	})
}

// IsApplied reports whether eventID is present in the event ledger.
func (s *Neo4jStore) IsApplied(ctx context.Context, eventID string) (bool, error) {
	result, err := s.client.ExecuteRead(ctx,
		"MATCH (e:Event {eventId: $eventId}) RETURN e.eventId",
		map[string]any{"eventId": eventID})
	if err != nil {
		return false, err
	}
	return len(result.Records) > 0, nil
}

// Health reports the health of the underlying graph connection.
func (s *Neo4jStore) Health(ctx context.Context) types.HealthStatus {
	return s.client.Health(ctx)
}

// Close releases the underlying connection.
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

// neo4jTx implements Tx over an open managed transaction. It stamps every
// relationship with the event id that produced it.
type neo4jTx struct {
	runner  graph.TxRunner
	eventID string
	now     func() time.Time
}

func (t *neo4jTx) MergeNode(ctx context.Context, label, id string, props map[string]any) error {
	if err := checkLabel(label); err != nil {
		return err
	}
	cypher := fmt.Sprintf(`
		MERGE (n:%s {id: $id})
		ON CREATE SET n.createdAt = $now
		SET n.updatedAt = $now
		SET n += $props
	`, label)
	_, err := t.runner.Run(ctx, cypher, map[string]any{
		"id":    id,
		"now":   epochMillis(t.now()),
		"props": nonNilProps(props),
	})
	return err
}

func (t *neo4jTx) MergeNodeAt(ctx context.Context, label, id string, props map[string]any, eventAt time.Time) error {
	if err := checkLabel(label); err != nil {
		return err
	}
	// The WHERE guard keeps a stale out-of-order update from clobbering a
	// newer one; the node merge above the guard still happens either way.
	cypher := fmt.Sprintf(`
		MERGE (n:%s {id: $id})
		ON CREATE SET n.createdAt = $now
		SET n.updatedAt = $now
		WITH n
		WHERE n.lastEventAt IS NULL OR n.lastEventAt <= $eventAt
		SET n += $props, n.lastEventAt = $eventAt
		REMOVE n.deletedAt
	`, label)
	_, err := t.runner.Run(ctx, cypher, map[string]any{
		"id":      id,
		"now":     epochMillis(t.now()),
		"eventAt": epochMillis(eventAt),
		"props":   nonNilProps(props),
	})
	return err
}

func (t *neo4jTx) MergeRelationship(ctx context.Context, relType string, from, to NodeRef, props map[string]any, qualifier *Qualifier) error {
	if err := checkIdent("relationship type", relType); err != nil {
		return err
	}
	if err := checkLabel(from.Label); err != nil {
		return err
	}
	if err := checkLabel(to.Label); err != nil {
		return err
	}

	relPattern := fmt.Sprintf("[r:%s]", relType)
	params := map[string]any{
		"fromId":  from.ID,
		"toId":    to.ID,
		"now":     epochMillis(t.now()),
		"eventId": t.eventID,
		"props":   nonNilProps(props),
	}
	if qualifier != nil {
		if err := checkQualifier(qualifier); err != nil {
			return err
		}
		relPattern = fmt.Sprintf("[r:%s {%s: $qualifier}]", relType, qualifier.Key)
		params["qualifier"] = qualifier.Value
	}

	// Endpoints are merged as shells first: relationship events may arrive
	// before the entities' own creation events.
	cypher := fmt.Sprintf(`
		MERGE (a:%s {id: $fromId})
		ON CREATE SET a.createdAt = $now
		MERGE (b:%s {id: $toId})
		ON CREATE SET b.createdAt = $now
		MERGE (a)-%s->(b)
		ON CREATE SET r.createdAt = $now
		SET r.updatedAt = $now, r.eventId = $eventId
		SET r += $props
	`, from.Label, to.Label, relPattern)

	_, err := t.runner.Run(ctx, cypher, params)
	return err
}

func (t *neo4jTx) DeleteRelationships(ctx context.Context, relType string, from NodeRef) error {
	if err := checkIdent("relationship type", relType); err != nil {
		return err
	}
	if err := checkLabel(from.Label); err != nil {
		return err
	}
	cypher := fmt.Sprintf("MATCH (a:%s {id: $id})-[r:%s]->() DELETE r", from.Label, relType)
	_, err := t.runner.Run(ctx, cypher, map[string]any{"id": from.ID})
	return err
}

func (t *neo4jTx) DeleteRelationshipsTo(ctx context.Context, relType string, to NodeRef) error {
	if err := checkIdent("relationship type", relType); err != nil {
		return err
	}
	if err := checkLabel(to.Label); err != nil {
		return err
	}
	cypher := fmt.Sprintf("MATCH ()-[r:%s]->(b:%s {id: $id}) DELETE r", relType, to.Label)
	_, err := t.runner.Run(ctx, cypher, map[string]any{"id": to.ID})
	return err
}

func (t *neo4jTx) DetachDeleteNode(ctx context.Context, label, id string) error {
	if err := checkLabel(label); err != nil {
		return err
	}
	cypher := fmt.Sprintf("MATCH (n:%s {id: $id}) DETACH DELETE n", label)
	_, err := t.runner.Run(ctx, cypher, map[string]any{"id": id})
	return err
}

func (t *neo4jTx) TombstoneNodeAt(ctx context.Context, label, id string, eventAt time.Time) error {
	if err := checkLabel(label); err != nil {
		return err
	}
	// Same guard as MergeNodeAt: a delete older than the node's recorded
	// state is the stale write and loses.
	cypher := fmt.Sprintf(`
		MERGE (n:%s {id: $id})
		WITH n
		WHERE n.lastEventAt IS NULL OR n.lastEventAt <= $eventAt
		OPTIONAL MATCH (n)-[r]-()
		DELETE r
		SET n = {id: $id, deletedAt: $eventAt, lastEventAt: $eventAt, updatedAt: $now}
	`, label)
	_, err := t.runner.Run(ctx, cypher, map[string]any{
		"id":      id,
		"now":     epochMillis(t.now()),
		"eventAt": epochMillis(eventAt),
	})
	return err
}

func (t *neo4jTx) SetNodeProperty(ctx context.Context, label, id, property string, value any) error {
	if err := checkLabel(label); err != nil {
		return err
	}
	if err := checkIdent("property", property); err != nil {
		return err
	}
	cypher := fmt.Sprintf("MATCH (n:%s {id: $id}) SET n.%s = $value, n.updatedAt = $now", label, property)
	_, err := t.runner.Run(ctx, cypher, map[string]any{
		"id":    id,
		"value": value,
		"now":   epochMillis(t.now()),
	})
	return err
}

// --- projection reads ---

func (s *Neo4jStore) ProjectEvidence(ctx context.Context, projectID string) ([]EvidenceTags, error) {
	cypher := `
		MATCH (ev:Evidence)-[:BELONGS_TO]->(p:Project {id: $projectId})
		OPTIONAL MATCH (ev)-[:HAS_TAG]->(t:Tag)
		OPTIONAL MATCH (ev)-[:PROVES]->(:Control)-[:HAS_TAG]->(ct:Tag)
		RETURN ev.id AS id,
		       collect(DISTINCT coalesce(t.name, t.id)) AS directTags,
		       collect(DISTINCT coalesce(ct.name, ct.id)) AS inheritedTags
	`
	result, err := s.client.ExecuteRead(ctx, cypher, map[string]any{"projectId": projectID})
	if err != nil {
		return nil, err
	}

	evidence := make([]EvidenceTags, 0, len(result.Records))
	for _, record := range result.Records {
		tags := append(asStringList(record["directTags"]), asStringList(record["inheritedTags"])...)
		evidence = append(evidence, EvidenceTags{
			ID:   asString(record["id"]),
			Tags: tags,
		})
	}
	return evidence, nil
}

func (s *Neo4jStore) Standards(ctx context.Context) ([]StandardRef, error) {
	cypher := "MATCH (s:Standard) RETURN s.id AS id, coalesce(s.name, '') AS name ORDER BY s.id"
	result, err := s.client.ExecuteRead(ctx, cypher, nil)
	if err != nil {
		return nil, err
	}

	standards := make([]StandardRef, 0, len(result.Records))
	for _, record := range result.Records {
		standards = append(standards, StandardRef{
			ID:   asString(record["id"]),
			Name: asString(record["name"]),
		})
	}
	return standards, nil
}

func (s *Neo4jStore) ControlsOfStandard(ctx context.Context, standardID string) ([]ControlTags, error) {
	cypher := `
		MATCH (c:Control)-[:BELONGS_TO]->(s:Standard {id: $standardId})
		OPTIONAL MATCH (c)-[:HAS_TAG]->(t:Tag)
		RETURN c.id AS id, collect(DISTINCT coalesce(t.name, t.id)) AS tags
	`
	result, err := s.client.ExecuteRead(ctx, cypher, map[string]any{"standardId": standardID})
	if err != nil {
		return nil, err
	}

	controls := make([]ControlTags, 0, len(result.Records))
	for _, record := range result.Records {
		controls = append(controls, ControlTags{
			ID:   asString(record["id"]),
			Tags: asStringList(record["tags"]),
		})
	}
	return controls, nil
}

func (s *Neo4jStore) NodeIDs(ctx context.Context, label string) ([]string, error) {
	if err := checkLabel(label); err != nil {
		return nil, err
	}
	cypher := fmt.Sprintf("MATCH (n:%s) RETURN n.id AS id ORDER BY n.id", label)
	result, err := s.client.ExecuteRead(ctx, cypher, nil)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(result.Records))
	for _, record := range result.Records {
		ids = append(ids, asString(record["id"]))
	}
	return ids, nil
}

func (s *Neo4jStore) ControlParents(ctx context.Context, controlID string) ([]string, error) {
	cypher := `
		MATCH (c:Control {id: $controlId})-[:BELONGS_TO]->(s:Standard)
		RETURN s.id AS id
	`
	result, err := s.client.ExecuteRead(ctx, cypher, map[string]any{"controlId": controlID})
	if err != nil {
		return nil, err
	}

	parents := make([]string, 0, len(result.Records))
	for _, record := range result.Records {
		parents = append(parents, asString(record["id"]))
	}
	return parents, nil
}

func (s *Neo4jStore) RelationshipCount(ctx context.Context, label, id, relType string) (int, error) {
	if err := checkLabel(label); err != nil {
		return 0, err
	}
	if err := checkIdent("relationship type", relType); err != nil {
		return 0, err
	}
	cypher := fmt.Sprintf("MATCH (n:%s {id: $id})-[r:%s]->() RETURN count(r) AS c", label, relType)
	result, err := s.client.ExecuteRead(ctx, cypher, map[string]any{"id": id})
	if err != nil {
		return 0, err
	}
	if len(result.Records) == 0 {
		return 0, nil
	}
	return asInt(result.Records[0]["c"]), nil
}

func (s *Neo4jStore) GetNode(ctx context.Context, label, id string) (map[string]any, bool, error) {
	if err := checkLabel(label); err != nil {
		return nil, false, err
	}
	cypher := fmt.Sprintf("MATCH (n:%s {id: $id}) RETURN properties(n) AS props", label)
	result, err := s.client.ExecuteRead(ctx, cypher, map[string]any{"id": id})
	if err != nil {
		return nil, false, err
	}
	if len(result.Records) == 0 {
		return nil, false, nil
	}
	props, _ := result.Records[0]["props"].(map[string]any)
	return props, true, nil
}

func (s *Neo4jStore) CountNodes(ctx context.Context, label string) (int, error) {
	if err := checkLabel(label); err != nil {
		return 0, err
	}
	cypher := fmt.Sprintf("MATCH (n:%s) RETURN count(n) AS c", label)
	result, err := s.client.ExecuteRead(ctx, cypher, nil)
	if err != nil {
		return 0, err
	}
	if len(result.Records) == 0 {
		return 0, nil
	}
	return asInt(result.Records[0]["c"]), nil
}

func (s *Neo4jStore) CountRelationships(ctx context.Context) (int, error) {
	result, err := s.client.ExecuteRead(ctx, "MATCH ()-[r]->() RETURN count(r) AS c", nil)
	if err != nil {
		return 0, err
	}
	if len(result.Records) == 0 {
		return 0, nil
	}
	return asInt(result.Records[0]["c"]), nil
}

func nonNilProps(props map[string]any) map[string]any {
	if props == nil {
		return map[string]any{}
	}
	return props
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asStringList(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func asInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}

var _ Store = (*Neo4jStore)(nil)
