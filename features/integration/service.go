package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"weft/internal/config"
	"weft/internal/middleware"
)

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

// VectorPurger removes every vector an integration contributed to the index.
type VectorPurger interface {
	DeleteByIntegration(ctx context.Context, integrationID string) error
}

// GraphPurger removes every graph node an integration contributed.
type GraphPurger interface {
	DeleteIntegration(ctx context.Context, integrationID string) error
}

type Service struct {
	repo   Repository
	pub    EventPublisher
	vector VectorPurger
	graph  GraphPurger
}

func NewService(repo Repository, pub EventPublisher, vector VectorPurger, graph GraphPurger) *Service {
	return &Service{repo: repo, pub: pub, vector: vector, graph: graph}
}

func (s *Service) List(ctx context.Context) ([]Integration, error) {
	return s.repo.ListActive(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (*Integration, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) Update(ctx context.Context, id, schedule string, isActive bool) error {
	return s.repo.Update(ctx, id, schedule, isActive)
}

func (s *Service) ListParentGroups(ctx context.Context, integrationID string) ([]ParentGroup, error) {
	return s.repo.ListParentGroups(ctx, integrationID)
}

// Enqueue flips a parent group to queued and publishes its sync job.
// Returns false when the group is already queued or running.
func (s *Service) Enqueue(ctx context.Context, group *ParentGroup) (bool, error) {
	ok, err := s.repo.TryEnqueue(ctx, group.ID)
	if err != nil {
		return false, fmt.Errorf("enqueue %s: %w", group.ID, err)
	}
	if !ok {
		return false, nil
	}

	job := SyncJob{
		ParentGroupID:  group.ID,
		IntegrationID:  group.IntegrationID,
		EnqueuedAt:     time.Now().UTC(),
		CursorSnapshot: group.Cursor,
		CorrelationID:  middleware.GetCorrelationID(ctx),
	}
	body, err := json.Marshal(job)
	if err != nil {
		return false, err
	}
	if err := s.pub.Publish(config.TopicSyncTask, body); err != nil {
		// The status flip already happened but no worker will ever see this
		// job. Flip the group to failed so the next tick can re-enqueue it.
		if ferr := s.repo.FinishSync(ctx, group.ID, StatusFailed, err.Error(), group.RecordCount, group.NodeCount, group.EdgeCount); ferr != nil {
			slog.ErrorContext(ctx, "failed to reset group after publish failure", "error", ferr, "parent_group_id", group.ID)
		}
		return false, fmt.Errorf("publish sync job for %s: %w", group.ID, err)
	}
	return true, nil
}

// Resync force-queues a single parent group outside its cron schedule.
func (s *Service) Resync(ctx context.Context, parentGroupID string) error {
	group, err := s.repo.GetParentGroup(ctx, parentGroupID)
	if err != nil {
		return err
	}
	ok, err := s.Enqueue(ctx, group)
	if err != nil {
		return err
	}
	if !ok {
		slog.InfoContext(ctx, "resync skipped, sync already in flight", "parent_group_id", parentGroupID)
	}
	return nil
}

// Delete removes the integration row along with its vectors and graph nodes.
// Store cleanup runs first so a crash leaves the row (and a retry path) in place.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	if err := s.vector.DeleteByIntegration(ctx, id); err != nil {
		return fmt.Errorf("purge vectors for %s: %w", id, err)
	}
	if err := s.graph.DeleteIntegration(ctx, id); err != nil {
		return fmt.Errorf("purge graph for %s: %w", id, err)
	}
	return s.repo.Delete(ctx, id)
}
