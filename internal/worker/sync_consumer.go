package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nsqio/go-nsq"

	"weft/features/integration"
	"weft/internal/chunker"
	"weft/internal/fetcher"
	"weft/internal/graph"
	"weft/internal/middleware"
)

type Options struct {
	ChunkSize     int
	RetryAttempts uint64
	RetryBase     time.Duration
	CallTimeout   time.Duration
}

// SyncConsumer drives one parent-group sync per NSQ message:
// claim -> fetch pages -> chunk -> embed+index -> graph -> resolve -> cursor.
// Concurrency comes from NSQ's concurrent handlers; the only shared state
// between handlers is the parent group's status row.
type SyncConsumer struct {
	repo     SyncRepo
	fetchers FetcherRegistry
	embedder Embedder
	vectors  VectorStore
	graph    graph.Store
	resolver Resolver
	stats    GraphStats
	opts     Options
}

func NewSyncConsumer(repo SyncRepo, fetchers FetcherRegistry, embedder Embedder, vectors VectorStore, gs graph.Store, resolver Resolver, opts Options) *SyncConsumer {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 100
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 60 * time.Second
	}
	return &SyncConsumer{
		repo:     repo,
		fetchers: fetchers,
		embedder: embedder,
		vectors:  vectors,
		graph:    gs,
		resolver: resolver,
		stats:    gs,
		opts:     opts,
	}
}

func (c *SyncConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var job integration.SyncJob
	if err := json.Unmarshal(m.Body, &job); err != nil {
		// Poison pill: invalid JSON, don't retry.
		slog.Error("poison pill: invalid sync job json", "error", err)
		return nil
	}

	ctx := context.Background()
	if job.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, job.CorrelationID)
	}

	claimed, err := c.repo.ClaimRunning(ctx, job.ParentGroupID)
	if err != nil {
		slog.ErrorContext(ctx, "claim failed", "error", err, "parent_group_id", job.ParentGroupID)
		return err // Requeue: the claim itself error'd, nobody owns the job.
	}
	if !claimed {
		// Lost the CAS: another worker owns this group, or a stale enqueue.
		slog.InfoContext(ctx, "sync already claimed, dropping job", "parent_group_id", job.ParentGroupID)
		return nil
	}

	recordCount, err := c.syncGroup(ctx, job.ParentGroupID)
	if err != nil {
		slog.ErrorContext(ctx, "sync failed", "error", err, "parent_group_id", job.ParentGroupID)
		if ferr := c.repo.FinishSync(ctx, job.ParentGroupID, integration.StatusFailed, err.Error(), recordCount, 0, 0); ferr != nil {
			slog.ErrorContext(ctx, "failed to record sync failure", "error", ferr, "parent_group_id", job.ParentGroupID)
		}
		// Consumed either way: the next scheduler tick is the retry.
		return nil
	}

	nodeCount, edgeCount := c.groupCounts(ctx, job.ParentGroupID)
	if err := c.repo.FinishSync(ctx, job.ParentGroupID, integration.StatusSuccess, "", recordCount, nodeCount, edgeCount); err != nil {
		slog.ErrorContext(ctx, "failed to record sync success", "error", err, "parent_group_id", job.ParentGroupID)
		return nil
	}

	slog.InfoContext(ctx, "sync completed", "parent_group_id", job.ParentGroupID, "records", recordCount, "nodes", nodeCount, "edges", edgeCount)
	return nil
}

// syncGroup pages through the source from the last committed cursor. It
// returns how many records it processed, whether or not it ultimately fails.
func (c *SyncConsumer) syncGroup(ctx context.Context, parentGroupID string) (int, error) {
	group, err := c.repo.GetParentGroup(ctx, parentGroupID)
	if err != nil {
		return 0, fmt.Errorf("load parent group: %w", err)
	}
	in, err := c.repo.Get(ctx, group.IntegrationID)
	if err != nil {
		return 0, fmt.Errorf("load integration: %w", err)
	}
	f, err := c.fetchers.For(in)
	if err != nil {
		return 0, err
	}

	cursor := group.Cursor
	recordCount := 0
	for {
		var page fetcher.Page
		err := c.retry(ctx, func(callCtx context.Context) error {
			var ferr error
			page, ferr = f.ListRecords(callCtx, group.ExternalID, cursor)
			return ferr
		})
		if err != nil {
			return recordCount, fmt.Errorf("list records: %w", err)
		}

		chunks := chunker.Split(page.Records, c.opts.ChunkSize)
		for i, chunk := range chunks {
			if err := c.retry(ctx, func(callCtx context.Context) error {
				return c.processChunk(callCtx, in, group, chunk)
			}); err != nil {
				return recordCount, fmt.Errorf("process chunk: %w", err)
			}
			recordCount += len(chunk)

			// The chunk fully committed; advance the watermark. The last
			// chunk of a page carries the page cursor so pagination state
			// survives too.
			next := chunk[len(chunk)-1].Cursor
			if i == len(chunks)-1 && page.NextCursor != "" {
				next = page.NextCursor
			}
			if next != "" && next != cursor {
				if err := c.repo.UpdateCursor(ctx, parentGroupID, next); err != nil {
					return recordCount, fmt.Errorf("persist cursor: %w", err)
				}
				cursor = next
			}
		}

		if len(chunks) == 0 && page.NextCursor != "" && page.NextCursor != cursor {
			if err := c.repo.UpdateCursor(ctx, parentGroupID, page.NextCursor); err != nil {
				return recordCount, fmt.Errorf("persist cursor: %w", err)
			}
			cursor = page.NextCursor
		}

		if !page.HasMore {
			return recordCount, nil
		}
	}
}

// processChunk is all-or-nothing from the cursor's point of view: a failure
// anywhere replays the whole chunk, which is safe because every write is
// idempotent under the record's content hash.
func (c *SyncConsumer) processChunk(ctx context.Context, in *integration.Integration, group *integration.ParentGroup, records []fetcher.Record) error {
	for _, rec := range records {
		nodes, edges := BuildGraph(in, group, rec)

		textNode := nodes[0]
		embedText := contextualText(in, group, rec)

		vec, err := c.embedder.Embed(ctx, embedText)
		if err != nil {
			return fmt.Errorf("embed %s: %w", rec.ExternalID, err)
		}

		entry := VectorEntry{
			NodeID:        textNode.ID,
			IntegrationID: in.ID,
			ParentGroupID: group.ID,
			Source:        string(in.Type),
			Content:       rec.Text,
			Title:         group.Name,
			URL:           rec.URL,
			Author:        rec.AuthorName,
			CreatedAt:     textNode.TS,
			ContentHash:   textNode.ContentHash,
			Vector:        vec,
		}
		if err := c.vectors.UpsertEntry(ctx, entry); err != nil {
			return fmt.Errorf("upsert vector %s: %w", rec.ExternalID, err)
		}

		for _, node := range nodes {
			if err := c.graph.UpsertNode(ctx, node); err != nil {
				return fmt.Errorf("upsert node %s: %w", node.ID, err)
			}
		}
		for _, edge := range edges {
			if err := c.graph.UpsertEdge(ctx, edge); err != nil {
				return fmt.Errorf("upsert edge %s->%s: %w", edge.FromID, edge.ToID, err)
			}
		}

		if err := c.resolver.Resolve(ctx, textNode); err != nil {
			return fmt.Errorf("resolve %s: %w", textNode.ID, err)
		}
	}
	return nil
}

// BuildGraph maps one record to its graph shape. The first returned node is
// always the Text node the record embeds under.
func BuildGraph(in *integration.Integration, group *integration.ParentGroup, rec fetcher.Record) ([]graph.Node, []graph.Edge) {
	ts := ""
	if !rec.Timestamp.IsZero() {
		ts = rec.Timestamp.UTC().Format(time.RFC3339)
	}

	text := graph.Node{
		ID:            rec.ExternalID,
		Labels:        []graph.Label{graph.LabelText},
		IntegrationID: in.ID,
		ParentGroupID: group.ID,
		Source:        string(in.Type),
		Content:       rec.Text,
		DisplayName:   rec.AuthorName,
		URL:           rec.URL,
		TS:            ts,
		ContentHash:   fetcher.ContentHash(string(in.Type), rec.ExternalID, rec.Text),
	}
	nodes := []graph.Node{text}
	var edges []graph.Edge

	if rec.AuthorID != "" {
		person := graph.Node{
			ID:            "person:" + string(in.Type) + ":" + rec.AuthorID,
			Labels:        []graph.Label{graph.LabelPerson},
			IntegrationID: in.ID,
			ParentGroupID: group.ID,
			Source:        string(in.Type),
			Content:       rec.AuthorName,
			DisplayName:   rec.AuthorName,
			ContentHash:   fetcher.ContentHash(string(in.Type), rec.AuthorID, rec.AuthorName),
		}
		nodes = append(nodes, person)
		edges = append(edges, graph.Edge{FromID: person.ID, ToID: text.ID, Type: graph.EdgeCreated})
	}

	if rec.ReplyToID != "" {
		// The thread parent may not be ingested yet; the edge merge is a
		// no-op until it is, and the parent's own sync recreates it.
		edges = append(edges, graph.Edge{FromID: rec.ReplyToID, ToID: text.ID, Type: graph.EdgeHas})
	}

	for _, att := range rec.Attachments {
		file := graph.Node{
			ID:            att.URL,
			Labels:        []graph.Label{graph.LabelFile},
			IntegrationID: in.ID,
			ParentGroupID: group.ID,
			Source:        string(in.Type),
			Content:       att.Name,
			DisplayName:   att.Name,
			URL:           att.URL,
			ContentHash:   fetcher.ContentHash(string(in.Type), att.URL, att.Name),
		}
		nodes = append(nodes, file)
		edges = append(edges, graph.Edge{FromID: text.ID, ToID: file.ID, Type: graph.EdgeHas})
	}

	return nodes, edges
}

func contextualText(in *integration.Integration, group *integration.ParentGroup, rec fetcher.Record) string {
	header := fmt.Sprintf("Source: %s\nGroup: %s\nType: %s", in.Type, group.Name, rec.Kind)
	if rec.AuthorName != "" {
		header += fmt.Sprintf("\nAuthor: %s", rec.AuthorName)
	}
	if !rec.Timestamp.IsZero() {
		header += fmt.Sprintf("\nCreated: %s", rec.Timestamp.UTC().Format(time.RFC3339))
	}
	return header + "\n---\n" + rec.Text
}

// retry runs op with capped exponential backoff. Auth failures are
// permanent: a revoked credential never recovers on retry.
func (c *SyncConsumer) retry(ctx context.Context, op func(context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	if c.opts.RetryBase > 0 {
		b.InitialInterval = c.opts.RetryBase
	}
	attempts := c.opts.RetryAttempts
	if attempts == 0 {
		attempts = 5
	}

	return backoff.Retry(func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
		defer cancel()

		err := op(callCtx)
		if errors.Is(err, fetcher.ErrAuth) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, attempts), ctx))
}

func (c *SyncConsumer) groupCounts(ctx context.Context, parentGroupID string) (int, int) {
	nodeCount, err := c.stats.NodeCount(ctx, parentGroupID)
	if err != nil {
		slog.ErrorContext(ctx, "node count failed", "error", err, "parent_group_id", parentGroupID)
	}
	edgeCount, err := c.stats.EdgeCount(ctx, parentGroupID)
	if err != nil {
		slog.ErrorContext(ctx, "edge count failed", "error", err, "parent_group_id", parentGroupID)
	}
	return nodeCount, edgeCount
}
