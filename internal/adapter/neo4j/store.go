package neo4j

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"weft/internal/graph"
)

// Store implements graph.Store on a Neo4j database.
type Store struct {
	driver neo4j.DriverWithContext
}

func NewStore(ctx context.Context, uri, user, password string) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	return &Store{driver: driver}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// UpsertNode merges on id. An unchanged content hash leaves the node
// untouched, which is what makes re-ingestion idempotent.
func (s *Store) UpsertNode(ctx context.Context, node graph.Node) error {
	if len(node.Labels) == 0 {
		return fmt.Errorf("node %s has no labels", node.ID)
	}

	props := map[string]any{
		"id":              node.ID,
		"integration_id":  node.IntegrationID,
		"parent_group_id": node.ParentGroupID,
		"source":          node.Source,
		"content":         node.Content,
		"display_name":    node.DisplayName,
		"url":             node.URL,
		"ts":              node.TS,
		"content_hash":    node.ContentHash,
	}

	// Labels come from a closed enum, so inlining them is safe.
	query := fmt.Sprintf(`MERGE (n:%s {id: $id})
		ON CREATE SET n += $props
		ON MATCH SET n += CASE WHEN n.content_hash = $hash THEN {} ELSE $props END`,
		labelString(node.Labels))

	_, err := neo4j.ExecuteQuery(ctx, s.driver, query,
		map[string]any{"id": node.ID, "props": props, "hash": node.ContentHash},
		neo4j.EagerResultTransformer)
	if err != nil {
		return fmt.Errorf("upsert node %s: %w", node.ID, err)
	}
	return nil
}

// UpsertEdge merges a typed relationship between two existing nodes.
// MERGE dedupes by (from, to, type); a missing endpoint is a no-op.
func (s *Store) UpsertEdge(ctx context.Context, edge graph.Edge) error {
	query := fmt.Sprintf(`MATCH (a {id: $fromId}), (b {id: $toId})
		MERGE (a)-[r:%s]->(b)`, edge.Type)

	_, err := neo4j.ExecuteQuery(ctx, s.driver, query,
		map[string]any{"fromId": edge.FromID, "toId": edge.ToID},
		neo4j.EagerResultTransformer)
	if err != nil {
		return fmt.Errorf("upsert edge %s-[%s]->%s: %w", edge.FromID, edge.Type, edge.ToID, err)
	}
	return nil
}

func (s *Store) Neighbors(ctx context.Context, seedIDs []string, depth int, edgeTypes []graph.EdgeType) ([]graph.Neighborhood, error) {
	if len(seedIDs) == 0 {
		return nil, nil
	}
	if depth < 1 {
		depth = 1
	}

	relFilter := ""
	if len(edgeTypes) > 0 {
		names := make([]string, len(edgeTypes))
		for i, t := range edgeTypes {
			names[i] = string(t)
		}
		relFilter = ":" + strings.Join(names, "|")
	}

	// Depth cannot be parameterized in a variable-length pattern.
	query := fmt.Sprintf(`MATCH (n) WHERE n.id IN $ids
		OPTIONAL MATCH (n)-[%s*1..%d]-(m)
		RETURN n, labels(n) AS n_labels, collect(DISTINCT m) AS related`,
		relFilter, depth)

	result, err := neo4j.ExecuteQuery(ctx, s.driver, query,
		map[string]any{"ids": seedIDs}, neo4j.EagerResultTransformer)
	if err != nil {
		return nil, fmt.Errorf("neighbors query: %w", err)
	}

	byID := make(map[string]graph.Neighborhood, len(result.Records))
	for _, record := range result.Records {
		rawSeed, _ := record.Get("n")
		seedNode, ok := rawSeed.(neo4j.Node)
		if !ok {
			continue
		}
		seed := fromNeo4jNode(seedNode)

		hood := graph.Neighborhood{Seed: seed}
		rawRelated, _ := record.Get("related")
		if relatedList, ok := rawRelated.([]any); ok {
			for _, item := range relatedList {
				if n, ok := item.(neo4j.Node); ok {
					hood.Related = append(hood.Related, fromNeo4jNode(n))
				}
			}
		}
		byID[seed.ID] = hood
	}

	// Preserve caller's seed order; a seed can be missing when it was never
	// ingested on the graph side.
	out := make([]graph.Neighborhood, 0, len(byID))
	for _, id := range seedIDs {
		if hood, ok := byID[id]; ok {
			out = append(out, hood)
		}
	}
	return out, nil
}

func (s *Store) FindPerson(ctx context.Context, nameOrLogin string) (string, error) {
	query := `MATCH (p:Person)
		WHERE p.display_name = $name OR p.content = $name
		RETURN p.id AS id LIMIT 1`
	result, err := neo4j.ExecuteQuery(ctx, s.driver, query,
		map[string]any{"name": nameOrLogin}, neo4j.EagerResultTransformer)
	if err != nil {
		return "", fmt.Errorf("find person %q: %w", nameOrLogin, err)
	}
	if len(result.Records) == 0 {
		return "", nil
	}
	id, _ := result.Records[0].Get("id")
	str, _ := id.(string)
	return str, nil
}

func (s *Store) NodeExists(ctx context.Context, id string) (bool, error) {
	result, err := neo4j.ExecuteQuery(ctx, s.driver,
		`MATCH (n {id: $id}) RETURN n.id LIMIT 1`,
		map[string]any{"id": id}, neo4j.EagerResultTransformer)
	if err != nil {
		return false, fmt.Errorf("node exists %s: %w", id, err)
	}
	return len(result.Records) > 0, nil
}

func (s *Store) NodeCount(ctx context.Context, parentGroupID string) (int, error) {
	return s.count(ctx,
		`MATCH (n {parent_group_id: $pg}) RETURN count(n) AS c`, parentGroupID)
}

func (s *Store) EdgeCount(ctx context.Context, parentGroupID string) (int, error) {
	return s.count(ctx,
		`MATCH (a {parent_group_id: $pg})-[r]->() RETURN count(r) AS c`, parentGroupID)
}

func (s *Store) count(ctx context.Context, query, parentGroupID string) (int, error) {
	result, err := neo4j.ExecuteQuery(ctx, s.driver, query,
		map[string]any{"pg": parentGroupID}, neo4j.EagerResultTransformer)
	if err != nil {
		return 0, err
	}
	if len(result.Records) == 0 {
		return 0, nil
	}
	raw, _ := result.Records[0].Get("c")
	c, _ := raw.(int64)
	return int(c), nil
}

func (s *Store) DeleteIntegration(ctx context.Context, integrationID string) error {
	_, err := neo4j.ExecuteQuery(ctx, s.driver,
		`MATCH (n {integration_id: $id}) DETACH DELETE n`,
		map[string]any{"id": integrationID}, neo4j.EagerResultTransformer)
	if err != nil {
		return fmt.Errorf("delete integration %s from graph: %w", integrationID, err)
	}
	return nil
}

func labelString(labels []graph.Label) string {
	names := make([]string, len(labels))
	for i, l := range labels {
		names[i] = string(l)
	}
	return strings.Join(names, ":")
}

func fromNeo4jNode(n neo4j.Node) graph.Node {
	node := graph.Node{
		ID:            stringProp(n.Props, "id"),
		IntegrationID: stringProp(n.Props, "integration_id"),
		ParentGroupID: stringProp(n.Props, "parent_group_id"),
		Source:        stringProp(n.Props, "source"),
		Content:       stringProp(n.Props, "content"),
		DisplayName:   stringProp(n.Props, "display_name"),
		URL:           stringProp(n.Props, "url"),
		TS:            stringProp(n.Props, "ts"),
		ContentHash:   stringProp(n.Props, "content_hash"),
	}
	for _, l := range n.Labels {
		node.Labels = append(node.Labels, graph.Label(l))
	}
	return node
}

func stringProp(props map[string]any, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}
