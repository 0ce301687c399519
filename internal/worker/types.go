package worker

import (
	"context"

	"weft/features/integration"
	"weft/internal/fetcher"
	"weft/internal/graph"
)

// VectorEntry is one embedded content unit headed for the vector index,
// keyed by the graph node it belongs to.
type VectorEntry struct {
	NodeID        string
	IntegrationID string
	ParentGroupID string
	Source        string
	Content       string
	Title         string
	URL           string
	Author        string
	CreatedAt     string
	ContentHash   string
	Vector        []float32
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type VectorStore interface {
	UpsertEntry(ctx context.Context, entry VectorEntry) error
}

// Resolver derives cross-source mentions edges from a freshly ingested node.
type Resolver interface {
	Resolve(ctx context.Context, node graph.Node) error
}

// SyncRepo is the slice of the integration repository the worker pool needs.
type SyncRepo interface {
	Get(ctx context.Context, id string) (*integration.Integration, error)
	GetParentGroup(ctx context.Context, id string) (*integration.ParentGroup, error)
	ClaimRunning(ctx context.Context, parentGroupID string) (bool, error)
	UpdateCursor(ctx context.Context, parentGroupID, cursor string) error
	FinishSync(ctx context.Context, parentGroupID string, status integration.Status, syncErr string, recordCount, nodeCount, edgeCount int) error
}

// FetcherRegistry resolves the fetcher adapter for an integration.
type FetcherRegistry interface {
	For(in *integration.Integration) (fetcher.Fetcher, error)
}

// GraphStats is the read side of the graph store used after a sync completes.
type GraphStats interface {
	NodeCount(ctx context.Context, parentGroupID string) (int, error)
	EdgeCount(ctx context.Context, parentGroupID string) (int, error)
}
