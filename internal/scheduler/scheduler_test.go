package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"weft/features/integration"
	"weft/internal/fetcher"
)

// --- Mocks ---

type MockRepo struct {
	mock.Mock
}

func (m *MockRepo) ListActive(ctx context.Context) ([]integration.Integration, error) {
	args := m.Called(ctx)
	return args.Get(0).([]integration.Integration), args.Error(1)
}

func (m *MockRepo) MarkScheduled(ctx context.Context, id string, status integration.Status, at time.Time) error {
	args := m.Called(ctx, id, status, at)
	return args.Error(0)
}

func (m *MockRepo) UpsertParentGroup(ctx context.Context, g *integration.ParentGroup) error {
	args := m.Called(ctx, g)
	return args.Error(0)
}

func (m *MockRepo) ListParentGroups(ctx context.Context, integrationID string) ([]integration.ParentGroup, error) {
	args := m.Called(ctx, integrationID)
	return args.Get(0).([]integration.ParentGroup), args.Error(1)
}

func (m *MockRepo) ReclaimStale(ctx context.Context, olderThan time.Time) (int, error) {
	args := m.Called(ctx, olderThan)
	return args.Int(0), args.Error(1)
}

type MockEnqueuer struct {
	mock.Mock
}

func (m *MockEnqueuer) Enqueue(ctx context.Context, group *integration.ParentGroup) (bool, error) {
	args := m.Called(ctx, group)
	return args.Bool(0), args.Error(1)
}

type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) ListParentGroups(ctx context.Context) ([]fetcher.RemoteGroup, error) {
	args := m.Called(ctx)
	return args.Get(0).([]fetcher.RemoteGroup), args.Error(1)
}

func (m *MockFetcher) ListRecords(ctx context.Context, groupExternalID, cursor string) (fetcher.Page, error) {
	args := m.Called(ctx, groupExternalID, cursor)
	return args.Get(0).(fetcher.Page), args.Error(1)
}

type MockRegistry struct {
	mock.Mock
}

func (m *MockRegistry) For(in *integration.Integration) (fetcher.Fetcher, error) {
	args := m.Called(in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(fetcher.Fetcher), args.Error(1)
}

// --- Tests ---

func TestScheduler_IsDue(t *testing.T) {
	s := New(nil, nil, nil, time.Minute, 30*time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC)

	t.Run("NeverRunIsDue", func(t *testing.T) {
		due, err := s.isDue(&integration.Integration{Schedule: "*/15 * * * *"}, now)
		assert.NoError(t, err)
		assert.True(t, due)
	})

	t.Run("DueAfterInterval", func(t *testing.T) {
		last := now.Add(-20 * time.Minute)
		due, err := s.isDue(&integration.Integration{Schedule: "*/15 * * * *", LastRun: &last}, now)
		assert.NoError(t, err)
		assert.True(t, due)
	})

	t.Run("NotDueYet", func(t *testing.T) {
		last := now.Add(-90 * time.Second)
		due, err := s.isDue(&integration.Integration{Schedule: "0 * * * *", LastRun: &last}, now)
		assert.NoError(t, err)
		assert.False(t, due)
	})

	t.Run("BadExpression", func(t *testing.T) {
		last := now
		_, err := s.isDue(&integration.Integration{Schedule: "not a cron", LastRun: &last}, now)
		assert.Error(t, err)
	})
}

func TestScheduler_TickDiscoversAndEnqueues(t *testing.T) {
	repo := new(MockRepo)
	enq := new(MockEnqueuer)
	reg := new(MockRegistry)
	f := new(MockFetcher)

	s := New(repo, enq, reg, time.Minute, 30*time.Minute)
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	in := integration.Integration{ID: "in-1", Type: integration.TypeSlack, Schedule: "*/15 * * * *"}
	repo.On("ReclaimStale", mock.Anything, mock.Anything).Return(0, nil)
	repo.On("ListActive", mock.Anything).Return([]integration.Integration{in}, nil)
	reg.On("For", mock.Anything).Return(f, nil)

	f.On("ListParentGroups", mock.Anything).Return([]fetcher.RemoteGroup{
		{ExternalID: "C024", Name: "#general"},
	}, nil)

	repo.On("UpsertParentGroup", mock.Anything, mock.MatchedBy(func(g *integration.ParentGroup) bool {
		return g.IntegrationID == "in-1" && g.ExternalID == "C024" && g.ID != ""
	})).Return(nil)

	groups := []integration.ParentGroup{{ID: "pg-1", IntegrationID: "in-1", ExternalID: "C024"}}
	repo.On("ListParentGroups", mock.Anything, "in-1").Return(groups, nil)
	enq.On("Enqueue", mock.Anything, mock.Anything).Return(true, nil)
	repo.On("MarkScheduled", mock.Anything, "in-1", integration.StatusQueued, mock.Anything).Return(nil)

	s.Tick(context.Background())

	repo.AssertExpectations(t)
	enq.AssertNumberOfCalls(t, "Enqueue", 1)
}

func TestScheduler_RepeatTickIsIdempotent(t *testing.T) {
	repo := new(MockRepo)
	enq := new(MockEnqueuer)
	reg := new(MockRegistry)
	f := new(MockFetcher)

	s := New(repo, enq, reg, time.Minute, 30*time.Minute)

	in := integration.Integration{ID: "in-1", Type: integration.TypeSlack, Schedule: "*/15 * * * *"}
	repo.On("ReclaimStale", mock.Anything, mock.Anything).Return(0, nil)
	repo.On("ListActive", mock.Anything).Return([]integration.Integration{in}, nil)
	reg.On("For", mock.Anything).Return(f, nil)
	f.On("ListParentGroups", mock.Anything).Return([]fetcher.RemoteGroup{}, nil)
	repo.On("ListParentGroups", mock.Anything, "in-1").
		Return([]integration.ParentGroup{{ID: "pg-1", IntegrationID: "in-1"}}, nil)
	repo.On("MarkScheduled", mock.Anything, "in-1", integration.StatusQueued, mock.Anything).Return(nil)

	// The group is already queued, so the second tick's enqueue loses the CAS.
	enq.On("Enqueue", mock.Anything, mock.Anything).Return(true, nil).Once()
	enq.On("Enqueue", mock.Anything, mock.Anything).Return(false, nil).Once()

	s.Tick(context.Background())
	s.Tick(context.Background())

	enq.AssertNumberOfCalls(t, "Enqueue", 2)
}

func TestScheduler_IntegrationFailureIsIsolated(t *testing.T) {
	repo := new(MockRepo)
	enq := new(MockEnqueuer)
	reg := new(MockRegistry)
	good := new(MockFetcher)

	s := New(repo, enq, reg, time.Minute, 30*time.Minute)

	broken := integration.Integration{ID: "in-broken", Type: integration.TypeSlack, Schedule: "*/15 * * * *"}
	healthy := integration.Integration{ID: "in-ok", Type: integration.TypeGithub, Schedule: "*/15 * * * *"}
	repo.On("ReclaimStale", mock.Anything, mock.Anything).Return(0, nil)
	repo.On("ListActive", mock.Anything).Return([]integration.Integration{broken, healthy}, nil)

	reg.On("For", &broken).Return(nil, errors.New("no credential"))
	reg.On("For", &healthy).Return(good, nil)
	good.On("ListParentGroups", mock.Anything).Return([]fetcher.RemoteGroup{}, nil)
	repo.On("ListParentGroups", mock.Anything, "in-ok").Return([]integration.ParentGroup{}, nil)
	repo.On("MarkScheduled", mock.Anything, "in-ok", integration.StatusQueued, mock.Anything).Return(nil)

	s.Tick(context.Background())

	// The healthy integration still completed its tick.
	repo.AssertCalled(t, "MarkScheduled", mock.Anything, "in-ok", integration.StatusQueued, mock.Anything)
}

func TestScheduler_TickReclaimsExpiredClaims(t *testing.T) {
	repo := new(MockRepo)
	enq := new(MockEnqueuer)
	reg := new(MockRegistry)

	s := New(repo, enq, reg, time.Minute, 30*time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	// A group a dead worker left in running gets swept with the cutoff
	// one lease behind now, before any scheduling happens.
	repo.On("ReclaimStale", mock.Anything, now.Add(-30*time.Minute)).Return(1, nil)
	repo.On("ListActive", mock.Anything).Return([]integration.Integration{}, nil)

	s.Tick(context.Background())

	repo.AssertExpectations(t)
}
