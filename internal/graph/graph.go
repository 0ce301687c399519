// Package graph defines the node/edge model shared by the sync pipeline,
// the entity resolver and the hybrid retriever.
package graph

import "context"

// Label classifies a node. A content unit is Text, an author identity is
// Person, an attachment is File.
type Label string

const (
	LabelText   Label = "Text"
	LabelPerson Label = "Person"
	LabelFile   Label = "File"
)

// EdgeType is the relationship carried by an edge.
type EdgeType string

const (
	// EdgeCreated links a Person to content they authored.
	EdgeCreated EdgeType = "CREATED"
	// EdgeHas links content to a reply, thread child or attachment.
	EdgeHas EdgeType = "HAS"
	// EdgeLinkedTo links content to content it structurally references.
	EdgeLinkedTo EdgeType = "LINKED_TO"
	// EdgeMentions is the cross-source edge derived by the entity resolver.
	EdgeMentions EdgeType = "MENTIONS"
)

// Node is one graph vertex. IDs are content/source derived and globally
// unique, so concurrent writers across parent groups never collide.
type Node struct {
	ID            string
	Labels        []Label
	IntegrationID string
	ParentGroupID string
	Source        string
	Content       string
	DisplayName   string
	URL           string
	TS            string
	ContentHash   string
}

// Edge is a typed relationship. Edges are additive only; an edge with the
// same (from, to, type) as an existing one is a no-op.
type Edge struct {
	FromID string
	ToID   string
	Type   EdgeType
}

// Store is the graph capability the pipeline is written against.
type Store interface {
	UpsertNode(ctx context.Context, node Node) error
	UpsertEdge(ctx context.Context, edge Edge) error
	// Neighbors expands outward from the seed ids up to depth hops and
	// returns the seeds plus every related node, grouped by seed.
	Neighbors(ctx context.Context, seedIDs []string, depth int, edgeTypes []EdgeType) ([]Neighborhood, error)
	// FindPerson resolves an author login/name to a Person node id.
	FindPerson(ctx context.Context, nameOrLogin string) (string, error)
	// NodeExists reports whether a node id is already in the graph.
	NodeExists(ctx context.Context, id string) (bool, error)
	NodeCount(ctx context.Context, parentGroupID string) (int, error)
	EdgeCount(ctx context.Context, parentGroupID string) (int, error)
	DeleteIntegration(ctx context.Context, integrationID string) error
}

// Neighborhood is the expansion of one seed node: the seed itself plus the
// nodes reachable within the traversal depth.
type Neighborhood struct {
	Seed    Node
	Related []Node
}
