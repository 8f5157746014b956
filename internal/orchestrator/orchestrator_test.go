// File: internal/orchestrator/orchestrator_test.go
package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/barrier-cli/api/schemas"
	"github.com/xkilldash9x/barrier-cli/internal/config"
	"github.com/xkilldash9x/barrier-cli/internal/mocks"
)

type mockScheduler struct {
	mock.Mock
}

func (m *mockScheduler) Schedule(ctx context.Context, ids []string, runAt string) ([]schemas.ScheduleOutcome, error) {
	args := m.Called(ctx, ids, runAt)
	out, _ := args.Get(0).([]schemas.ScheduleOutcome)
	return out, args.Error(1)
}

func (m *mockScheduler) Sweep(ctx context.Context) (schemas.SweepReport, error) {
	args := m.Called(ctx)
	return args.Get(0).(schemas.SweepReport), args.Error(1)
}

type staticCatalog []schemas.DeviceProfile

func (c staticCatalog) List(context.Context) ([]schemas.DeviceProfile, error) { return c, nil }

type fixture struct {
	store     *mocks.MockStore
	factory   *mocks.MockSessionFactory
	session   *mocks.MockSession
	crawler   *mocks.MockCrawler
	batch     *mocks.MockBatchEngine
	scheduler *mockScheduler
	orch      *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:     new(mocks.MockStore),
		factory:   new(mocks.MockSessionFactory),
		session:   new(mocks.MockSession),
		crawler:   new(mocks.MockCrawler),
		batch:     new(mocks.MockBatchEngine),
		scheduler: new(mockScheduler),
	}
	orch, err := New(Deps{
		Config:    config.NewDefaultConfig(),
		Logger:    zaptest.NewLogger(t),
		Store:     f.store,
		Sessions:  f.factory,
		Crawler:   f.crawler,
		Batch:     f.batch,
		Scheduler: f.scheduler,
		Devices:   staticCatalog{schemas.DefaultDeviceProfile},
	})
	require.NoError(t, err)
	f.orch = orch
	return f
}

func TestNew_RejectsNilDependencies(t *testing.T) {
	_, err := New(Deps{Config: config.NewDefaultConfig()})
	assert.EqualError(t, err, "cannot initialize orchestrator with nil dependencies")
}

func TestCreateScan(t *testing.T) {
	ctx := context.Background()

	t.Run("discovers and persists a pending request", func(t *testing.T) {
		f := newFixture(t)
		f.factory.On("Open", ctx).Return(f.session, nil).Once()
		f.session.On("Close", mock.Anything).Return(nil).Once()
		f.crawler.On("Discover", ctx, f.session, "https://example.com/start", 1).
			Return([]string{"https://example.com", "https://example.com/a"}, nil).Once()
		f.store.On("CreateScanRequest", ctx, mock.MatchedBy(func(r *schemas.ScanRequest) bool {
			return r.Device == "Desktop" && len(r.URLs) == 2 && r.Username == "alice"
		})).Run(func(args mock.Arguments) {
			args.Get(1).(*schemas.ScanRequest).ID = "scan-1"
		}).Return("scan-1", nil).Once()

		req, err := f.orch.CreateScan(ctx, schemas.CreateScanInput{
			URL:      "https://example.com/start",
			Guidance: []string{"wcag2aa"},
			Depth:    1,
			Name:     "Homepage",
			Username: "alice",
		})
		require.NoError(t, err)
		assert.Equal(t, "scan-1", req.ID)
		assert.Equal(t, []string{"https://example.com", "https://example.com/a"}, req.URLs)
		f.factory.AssertExpectations(t)
		f.session.AssertExpectations(t)
		f.crawler.AssertExpectations(t)
		f.store.AssertExpectations(t)
	})

	t.Run("validation happens before any session is opened", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.orch.CreateScan(ctx, schemas.CreateScanInput{URL: "https://example.com"})
		assert.ErrorIs(t, err, schemas.ErrValidation)
		f.factory.AssertNotCalled(t, "Open", mock.Anything)
	})

	t.Run("discovery failure closes the session and persists nothing", func(t *testing.T) {
		f := newFixture(t)
		f.factory.On("Open", ctx).Return(f.session, nil).Once()
		f.session.On("Close", mock.Anything).Return(nil).Once()
		f.crawler.On("Discover", ctx, f.session, "https://example.com", 0).Return(nil, context.DeadlineExceeded).Once()

		_, err := f.orch.CreateScan(ctx, schemas.CreateScanInput{URL: "https://example.com", Guidance: []string{"wcag2a"}, Depth: -3})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		f.session.AssertExpectations(t)
		f.store.AssertNotCalled(t, "CreateScanRequest", mock.Anything, mock.Anything)
	})
}

func TestRunAndSchedule(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	outcomes := []schemas.RunOutcome{{ScanRequestID: "a", Status: schemas.RunCompleted}}
	f.batch.On("RunBatch", ctx, []string{"a"}, []string(nil), "").Return(outcomes).Once()
	got, err := f.orch.RunScans(ctx, []string{" a ", ""}, nil, "")
	require.NoError(t, err)
	assert.Equal(t, outcomes, got)

	_, err = f.orch.RunScans(ctx, []string{" "}, nil, "")
	assert.ErrorIs(t, err, schemas.ErrValidation)

	f.scheduler.On("Schedule", ctx, []string{"a", "b"}, "2025-07-01T09:00:00Z").
		Return([]schemas.ScheduleOutcome{{ScanRequestID: "a"}, {ScanRequestID: "b"}}, nil).Once()
	scheduled, err := f.orch.ScheduleScans(ctx, []string{"a", "b"}, "2025-07-01T09:00:00Z")
	require.NoError(t, err)
	assert.Len(t, scheduled, 2)

	f.scheduler.On("Sweep", ctx).Return(schemas.SweepReport{Due: 1, Completed: 1}, nil).Once()
	report, err := f.orch.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Completed)
}

func TestEditAndDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.orch.DeleteScans(ctx, nil)
	assert.ErrorIs(t, err, schemas.ErrValidation)

	f.store.On("DeleteScanRequests", ctx, []string{"a", "b"}).Return(int64(2), nil).Once()
	n, err := f.orch.DeleteScans(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	assert.ErrorIs(t, f.orch.EditScan(ctx, schemas.EditScanInput{}), schemas.ErrValidation)

	in := schemas.EditScanInput{ID: "a", Name: "renamed"}
	f.store.On("EditScanRequest", ctx, in).Return(int64(0), schemas.ErrNotFound).Once()
	assert.ErrorIs(t, f.orch.EditScan(ctx, in), schemas.ErrNotFound)
}

func TestReadOperations(t *testing.T) {
	ctx := context.Background()

	t.Run("score aggregates stored results", func(t *testing.T) {
		f := newFixture(t)
		f.store.On("GetScanRequest", ctx, "a").Return(&schemas.ScanRequest{ID: "a"}, nil)
		f.store.On("GetResults", ctx, "a").Return([]schemas.PerUrlResult{
			{Passes: make([]schemas.Finding, 3), Violations: make([]schemas.Finding, 1)},
			{Passes: make([]schemas.Finding, 1), Violations: make([]schemas.Finding, 3)},
		}, nil)

		s, err := f.orch.Score(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, 50.0, s)

		report, err := f.orch.Report(ctx, "a")
		require.NoError(t, err)
		assert.Len(t, report.Results, 2)
	})

	t.Run("score of an unknown request", func(t *testing.T) {
		f := newFixture(t)
		f.store.On("GetScanRequest", ctx, "missing").Return(nil, schemas.ErrNotFound)
		_, err := f.orch.Score(ctx, "missing")
		assert.ErrorIs(t, err, schemas.ErrNotFound)
	})

	t.Run("report without results has an empty list", func(t *testing.T) {
		f := newFixture(t)
		f.store.On("GetScanRequest", ctx, "a").Return(&schemas.ScanRequest{ID: "a"}, nil)
		f.store.On("GetResults", ctx, "a").Return(nil, nil)
		report, err := f.orch.Report(ctx, "a")
		require.NoError(t, err)
		assert.NotNil(t, report.Results)
	})

	t.Run("guidance falls back to configured defaults", func(t *testing.T) {
		f := newFixture(t)
		f.store.On("ListGuidanceLevels", ctx).Return(nil, nil).Once()
		levels, err := f.orch.Guidance(ctx)
		require.NoError(t, err)
		assert.Contains(t, levels, "wcag2aa")

		f.store.On("ListGuidanceLevels", ctx).Return([]string{"wcag22aa"}, nil).Once()
		levels, err = f.orch.Guidance(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"wcag22aa"}, levels)

		f.store.On("ListGuidanceLevels", ctx).Return(nil, errors.New("relation does not exist")).Once()
		_, err = f.orch.Guidance(ctx)
		assert.Error(t, err)
	})

	t.Run("devices and lists pass through", func(t *testing.T) {
		f := newFixture(t)
		devices, err := f.orch.Devices(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Desktop", devices[0].Name)

		filter := schemas.ScanFilter{Username: "alice"}
		f.store.On("ListScanRequests", ctx, filter).Return([]schemas.ScanRequest{{ID: "a"}}, nil)
		list, err := f.orch.ListScans(ctx, filter)
		require.NoError(t, err)
		assert.Len(t, list, 1)

		f.store.On("GetURLs", ctx, "a").Return([]string{"https://example.com"}, nil)
		urls, err := f.orch.URLs(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, []string{"https://example.com"}, urls)
	})
}
