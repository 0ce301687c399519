package retrieval

import (
	"context"
	"errors"

	"weft/internal/graph"
)

// ErrUnavailable means neither index could be reached; callers should
// surface a retrieval-down error instead of answering from nothing.
var ErrUnavailable = errors.New("retrieval backends unavailable")

// SearchResult is one vector hit mapped back to its graph node.
type SearchResult struct {
	NodeID    string
	Content   string
	Source    string
	Title     string
	URL       string
	Author    string
	CreatedAt string
	Score     float32
}

// VectorSearcher runs a filtered nearest-neighbor query over the content
// index. Empty integrationIDs means unscoped: the search covers the whole
// index rather than matching nothing.
type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, integrationIDs []string, limit int) ([]SearchResult, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// GraphExpander pulls the multi-hop neighborhood around the vector hits.
type GraphExpander interface {
	Neighbors(ctx context.Context, seedIDs []string, depth int, edgeTypes []graph.EdgeType) ([]graph.Neighborhood, error)
}

// Rewriter condenses chat history plus the new question into one
// standalone retrieval query.
type Rewriter interface {
	Rewrite(ctx context.Context, history []Turn, question string) (string, error)
}

// Turn is one prior exchange in a chat, oldest first.
type Turn struct {
	Role    string
	Content string
}
