package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"weft/features/integration"
	"weft/internal/fetcher"
)

// Repo is the slice of the integration repository the scheduler reads and
// advances.
type Repo interface {
	ListActive(ctx context.Context) ([]integration.Integration, error)
	MarkScheduled(ctx context.Context, id string, status integration.Status, at time.Time) error
	UpsertParentGroup(ctx context.Context, g *integration.ParentGroup) error
	ListParentGroups(ctx context.Context, integrationID string) ([]integration.ParentGroup, error)
	ReclaimStale(ctx context.Context, olderThan time.Time) (int, error)
}

// Enqueuer flips parent groups to queued and publishes their sync jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, group *integration.ParentGroup) (bool, error)
}

type FetcherRegistry interface {
	For(in *integration.Integration) (fetcher.Fetcher, error)
}

// Scheduler walks active integrations on a fixed tick, discovers their
// parent groups from the source, and enqueues the due ones. Enqueueing is
// idempotent through the status machine, so overlapping ticks and restarts
// never double-queue a group.
type Scheduler struct {
	repo     Repo
	enqueuer Enqueuer
	fetchers FetcherRegistry
	tick     time.Duration
	lease    time.Duration
	now      func() time.Time
}

func New(repo Repo, enqueuer Enqueuer, fetchers FetcherRegistry, tick, lease time.Duration) *Scheduler {
	if tick <= 0 {
		tick = time.Minute
	}
	if lease <= 0 {
		lease = 30 * time.Minute
	}
	return &Scheduler{
		repo:     repo,
		enqueuer: enqueuer,
		fetchers: fetchers,
		tick:     tick,
		lease:    lease,
		now:      time.Now,
	}
}

// Run ticks until the context is cancelled. The first tick fires immediately
// so a restart does not wait out a full interval.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick evaluates every active integration once. A failure in one integration
// never blocks the others.
func (s *Scheduler) Tick(ctx context.Context) {
	// First free any group a dead worker left in running: once its lease
	// expires it flips to failed and re-enters the enqueue path below.
	reclaimed, err := s.repo.ReclaimStale(ctx, s.now().UTC().Add(-s.lease))
	if err != nil {
		slog.ErrorContext(ctx, "scheduler: stale claim sweep failed", "error", err)
	} else if reclaimed > 0 {
		slog.WarnContext(ctx, "scheduler: reclaimed stale running groups", "count", reclaimed)
	}

	integrations, err := s.repo.ListActive(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "scheduler: list integrations failed", "error", err)
		return
	}

	now := s.now().UTC()
	for i := range integrations {
		in := &integrations[i]
		due, err := s.isDue(in, now)
		if err != nil {
			slog.ErrorContext(ctx, "scheduler: bad schedule", "error", err, "integration_id", in.ID, "schedule", in.Schedule)
			continue
		}
		if !due {
			continue
		}
		if err := s.runIntegration(ctx, in, now); err != nil {
			slog.ErrorContext(ctx, "scheduler: integration tick failed", "error", err, "integration_id", in.ID)
		}
	}
}

// isDue parses the integration's cron expression and reports whether a run
// should have fired since the last one. A never-run integration is always due.
func (s *Scheduler) isDue(in *integration.Integration, now time.Time) (bool, error) {
	if in.LastRun == nil {
		return true, nil
	}
	sched, err := cron.ParseStandard(in.Schedule)
	if err != nil {
		return false, err
	}
	return !sched.Next(*in.LastRun).After(now), nil
}

func (s *Scheduler) runIntegration(ctx context.Context, in *integration.Integration, now time.Time) error {
	f, err := s.fetchers.For(in)
	if err != nil {
		return err
	}

	// Discovery first: new groups at the source become rows before anything
	// is enqueued, so they get picked up on this same tick.
	remote, err := f.ListParentGroups(ctx)
	if err != nil {
		return err
	}
	for _, rg := range remote {
		g := &integration.ParentGroup{
			ID:            uuid.NewString(),
			IntegrationID: in.ID,
			ExternalID:    rg.ExternalID,
			Name:          rg.Name,
		}
		if err := s.repo.UpsertParentGroup(ctx, g); err != nil {
			return err
		}
	}

	groups, err := s.repo.ListParentGroups(ctx, in.ID)
	if err != nil {
		return err
	}

	enqueued := 0
	for i := range groups {
		ok, err := s.enqueuer.Enqueue(ctx, &groups[i])
		if err != nil {
			slog.ErrorContext(ctx, "scheduler: enqueue failed", "error", err, "parent_group_id", groups[i].ID)
			continue
		}
		if ok {
			enqueued++
		}
	}

	slog.InfoContext(ctx, "scheduler: integration tick", "integration_id", in.ID, "groups", len(groups), "enqueued", enqueued)
	return s.repo.MarkScheduled(ctx, in.ID, integration.StatusQueued, now)
}
