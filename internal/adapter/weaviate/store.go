package weaviate

import (
	"context"
	"fmt"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"weft/internal/retrieval"
	"weft/internal/vector"
	"weft/internal/worker"
)

type Store struct {
	client *weaviate.Client
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client}
}

// objectID derives a stable Weaviate UUID from the graph node id, so
// re-ingesting the same record overwrites its object instead of duplicating it.
func objectID(nodeID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("weft/content/"+nodeID)).String()
}

func (s *Store) UpsertEntry(ctx context.Context, entry worker.VectorEntry) error {
	obj := &models.Object{
		ID:    strfmt.UUID(objectID(entry.NodeID)),
		Class: vector.ClassName,
		Properties: map[string]interface{}{
			"nodeId":        entry.NodeID,
			"integrationId": entry.IntegrationID,
			"parentGroupId": entry.ParentGroupID,
			"source":        entry.Source,
			"content":       entry.Content,
			"title":         entry.Title,
			"url":           entry.URL,
			"author":        entry.Author,
			"createdAt":     entry.CreatedAt,
			"contentHash":   entry.ContentHash,
		},
		Vector: entry.Vector,
	}

	// Batch writes upsert by ID, unlike the single-object creator.
	res, err := s.client.Batch().ObjectsBatcher().WithObjects(obj).Do(ctx)
	if err != nil {
		return err
	}
	for _, r := range res {
		if r.Result != nil && r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
			return fmt.Errorf("batch upsert: %s", r.Result.Errors.Error[0].Message)
		}
	}
	return nil
}

// Search runs a near-vector query scoped to the given integrations. An empty
// integrationIDs slice searches the whole index: the caller passes no scope
// when the user hasn't restricted the chat to specific integrations.
func (s *Store) Search(ctx context.Context, vec []float32, integrationIDs []string, limit int) ([]retrieval.SearchResult, error) {
	near := s.client.GraphQL().NearVectorArgBuilder().WithVector(vec)

	fields := []graphql.Field{
		{Name: "nodeId"},
		{Name: "content"},
		{Name: "source"},
		{Name: "title"},
		{Name: "url"},
		{Name: "author"},
		{Name: "createdAt"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "certainty"}}},
	}

	q := s.client.GraphQL().Get().
		WithClassName(vector.ClassName).
		WithNearVector(near).
		WithLimit(limit).
		WithFields(fields...)

	// No scope, no where-filter: the query covers every integration.
	if len(integrationIDs) > 0 {
		q = q.WithWhere(filters.Where().
			WithPath([]string{"integrationId"}).
			WithOperator(filters.ContainsAny).
			WithValueString(integrationIDs...))
	}

	res, err := q.Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors)
	}

	var results []retrieval.SearchResult
	if data, ok := res.Data["Get"].(map[string]interface{}); ok {
		if hits, ok := data[vector.ClassName].([]interface{}); ok {
			for _, h := range hits {
				props, ok := h.(map[string]interface{})
				if !ok {
					continue
				}
				var r retrieval.SearchResult
				if v, ok := props["nodeId"].(string); ok {
					r.NodeID = v
				}
				if v, ok := props["content"].(string); ok {
					r.Content = v
				}
				if v, ok := props["source"].(string); ok {
					r.Source = v
				}
				if v, ok := props["title"].(string); ok {
					r.Title = v
				}
				if v, ok := props["url"].(string); ok {
					r.URL = v
				}
				if v, ok := props["author"].(string); ok {
					r.Author = v
				}
				if v, ok := props["createdAt"].(string); ok {
					r.CreatedAt = v
				}
				if additional, ok := props["_additional"].(map[string]interface{}); ok {
					if c, ok := additional["certainty"].(float64); ok {
						r.Score = float32(c)
					} else if c, ok := additional["certainty"].(string); ok {
						var f float64
						fmt.Sscanf(c, "%f", &f)
						r.Score = float32(f)
					}
				}
				results = append(results, r)
			}
		}
	}
	return results, nil
}

// DeleteByIntegration removes every indexed object belonging to an
// integration, used when the integration itself is deleted.
func (s *Store) DeleteByIntegration(ctx context.Context, integrationID string) error {
	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(vector.ClassName).
		WithOutput("minimal").
		WithWhere(filters.Where().
			WithPath([]string{"integrationId"}).
			WithOperator(filters.Equal).
			WithValueString(integrationID)).
		Do(ctx)
	return err
}
