package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"weft/internal/graph"
)

var (
	// https://github.com/owner/repo/issues/42 and .../pull/42
	issueURLRe = regexp.MustCompile(`https://github\.com/([\w.-]+/[\w.-]+)/(?:issues|pull)/(\d+)`)
	// owner/repo#42 shorthand
	issueRefRe = regexp.MustCompile(`\b([\w.-]+/[\w.-]+)#(\d+)\b`)
	// @login mentions; GitHub logins allow hyphens but not leading/trailing ones
	mentionRe = regexp.MustCompile(`@([A-Za-z0-9](?:[A-Za-z0-9-]*[A-Za-z0-9])?)`)
)

// GraphLinker is the slice of the graph store the resolver writes through.
type GraphLinker interface {
	NodeExists(ctx context.Context, id string) (bool, error)
	FindPerson(ctx context.Context, nameOrLogin string) (string, error)
	UpsertEdge(ctx context.Context, edge graph.Edge) error
}

// Resolver links freshly ingested Text nodes to entities they reference in
// other sources: issue and pull request mentions become LINKED_TO edges,
// person mentions become MENTIONS edges. Targets that are not in the graph
// yet are skipped; a later sync of their source closes the gap because the
// referencing node gets re-resolved whenever its content changes.
type Resolver struct {
	store GraphLinker
}

func New(store GraphLinker) *Resolver {
	return &Resolver{store: store}
}

func (r *Resolver) Resolve(ctx context.Context, node graph.Node) error {
	for _, target := range IssueTargets(node.Content) {
		if target == node.ID {
			continue
		}
		exists, err := r.store.NodeExists(ctx, target)
		if err != nil {
			return fmt.Errorf("check reference target: %w", err)
		}
		if !exists {
			slog.DebugContext(ctx, "reference target not ingested yet", "node_id", node.ID, "target", target)
			continue
		}
		edge := graph.Edge{FromID: node.ID, ToID: target, Type: graph.EdgeLinkedTo}
		if err := r.store.UpsertEdge(ctx, edge); err != nil {
			return fmt.Errorf("link reference: %w", err)
		}
	}

	for _, login := range MentionedLogins(node.Content) {
		personID, err := r.store.FindPerson(ctx, login)
		if err != nil {
			return fmt.Errorf("find person: %w", err)
		}
		if personID == "" {
			slog.DebugContext(ctx, "mentioned person unknown", "node_id", node.ID, "login", login)
			continue
		}
		edge := graph.Edge{FromID: node.ID, ToID: personID, Type: graph.EdgeMentions}
		if err := r.store.UpsertEdge(ctx, edge); err != nil {
			return fmt.Errorf("link mention: %w", err)
		}
	}

	return nil
}

// IssueTargets extracts the graph node ids of issues and pull requests the
// text refers to, by URL or by owner/repo#n shorthand, deduplicated in order
// of first appearance.
func IssueTargets(text string) []string {
	seen := make(map[string]bool)
	var targets []string
	add := func(repo, number string) {
		id := repo + "#" + number
		if !seen[id] {
			seen[id] = true
			targets = append(targets, id)
		}
	}
	for _, m := range issueURLRe.FindAllStringSubmatch(text, -1) {
		add(m[1], m[2])
	}
	for _, m := range issueRefRe.FindAllStringSubmatch(text, -1) {
		add(m[1], m[2])
	}
	return targets
}

// MentionedLogins extracts @mentions, deduplicated in order of first
// appearance.
func MentionedLogins(text string) []string {
	seen := make(map[string]bool)
	var logins []string
	for _, m := range mentionRe.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			logins = append(logins, m[1])
		}
	}
	return logins
}
