package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"weft/internal/graph"
)

type Options struct {
	TopK     int
	HopDepth int
}

// Source is one numbered citation target handed to the answer stream.
type Source struct {
	Number    int    `json:"number"`
	NodeID    string `json:"node_id"`
	Source    string `json:"source"`
	Title     string `json:"title,omitempty"`
	URL       string `json:"url,omitempty"`
	Author    string `json:"author,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// Result is the assembled retrieval context: the rewritten query, the prompt
// block the model answers from, and the citation sources in numbering order.
type Result struct {
	Query   string
	Prompt  string
	Sources []Source
}

// Service runs the hybrid pipeline: rewrite, embed, vector search, graph
// expansion, merge. Vector hits come first in relevance order; graph context
// follows grouped under the hit that pulled it in.
type Service struct {
	rewriter Rewriter
	embedder Embedder
	store    VectorSearcher
	graph    GraphExpander
	opts     Options
}

func NewService(rewriter Rewriter, embedder Embedder, store VectorSearcher, g GraphExpander, opts Options) *Service {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.HopDepth <= 0 {
		opts.HopDepth = 2
	}
	return &Service{rewriter: rewriter, embedder: embedder, store: store, graph: g, opts: opts}
}

func (s *Service) Retrieve(ctx context.Context, history []Turn, question string, integrationIDs []string) (*Result, error) {
	query := question
	if len(history) > 0 && s.rewriter != nil {
		rewritten, err := s.rewriter.Rewrite(ctx, history, question)
		if err != nil {
			// Degrade to the raw question rather than failing the chat.
			slog.WarnContext(ctx, "query rewrite failed, using raw question", "error", err)
		} else if rewritten != "" {
			query = rewritten
		}
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := s.store.Search(ctx, vec, integrationIDs, s.opts.TopK)
	if err != nil {
		// No seeds means no graph expansion either, so the whole layer is down.
		return nil, fmt.Errorf("%w: vector search: %s", ErrUnavailable, err)
	}

	seedIDs := make([]string, 0, len(hits))
	for _, h := range hits {
		if h.NodeID != "" {
			seedIDs = append(seedIDs, h.NodeID)
		}
	}

	var neighborhoods []graph.Neighborhood
	if len(seedIDs) > 0 {
		neighborhoods, err = s.graph.Neighbors(ctx, seedIDs, s.opts.HopDepth, nil)
		if err != nil {
			// Vector hits alone still make an answerable context.
			slog.WarnContext(ctx, "graph expansion failed, answering from vector hits", "error", err)
			neighborhoods = nil
		}
	}

	result := assemble(query, hits, neighborhoods)
	return result, nil
}

// assemble merges hits and expansions into a numbered context block. Content
// nodes get a citation number at first appearance; Person nodes become
// unnumbered people lines.
func assemble(query string, hits []SearchResult, neighborhoods []graph.Neighborhood) *Result {
	related := make(map[string][]graph.Node, len(neighborhoods))
	for _, nb := range neighborhoods {
		related[nb.Seed.ID] = nb.Related
	}

	var (
		b          strings.Builder
		sources    []Source
		seen       = make(map[string]bool)
		people     []string
		peopleSeen = make(map[string]bool)
	)

	addPerson := func(name string) {
		if name != "" && !peopleSeen[name] {
			peopleSeen[name] = true
			people = append(people, name)
		}
	}

	cite := func(src Source, content string) {
		if src.NodeID == "" || seen[src.NodeID] || content == "" {
			return
		}
		seen[src.NodeID] = true
		src.Number = len(sources) + 1
		sources = append(sources, src)

		fmt.Fprintf(&b, "[%d] source=%s", src.Number, src.Source)
		if src.Title != "" {
			fmt.Fprintf(&b, " group=%s", src.Title)
		}
		if src.Author != "" {
			fmt.Fprintf(&b, " author=%s", src.Author)
		}
		if src.CreatedAt != "" {
			fmt.Fprintf(&b, " date=%s", src.CreatedAt)
		}
		b.WriteString("\n")
		b.WriteString(content)
		b.WriteString("\n\n")
	}

	// Vector hits first, in relevance order, so their citation numbers
	// reflect ranking. Graph expansions follow, grouped by the seed that
	// pulled them in; anything already cited as a hit stays a hit.
	b.WriteString("Context:\n")
	for _, h := range hits {
		cite(Source{
			NodeID:    h.NodeID,
			Source:    h.Source,
			Title:     h.Title,
			URL:       h.URL,
			Author:    h.Author,
			CreatedAt: h.CreatedAt,
		}, h.Content)
		addPerson(h.Author)
	}
	for _, h := range hits {
		for _, n := range related[h.NodeID] {
			if hasLabel(n, graph.LabelPerson) {
				addPerson(n.DisplayName)
				continue
			}
			cite(Source{
				NodeID:    n.ID,
				Source:    n.Source,
				URL:       n.URL,
				Author:    n.DisplayName,
				CreatedAt: n.TS,
			}, n.Content)
		}
	}

	if len(people) > 0 {
		b.WriteString("People involved: ")
		b.WriteString(strings.Join(people, ", "))
		b.WriteString("\n")
	}

	return &Result{Query: query, Prompt: b.String(), Sources: sources}
}

func hasLabel(n graph.Node, l graph.Label) bool {
	for _, have := range n.Labels {
		if have == l {
			return true
		}
	}
	return false
}
