// internal/executor/executor_test.go
package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/barrier-cli/api/schemas"
	"github.com/xkilldash9x/barrier-cli/internal/config"
	"github.com/xkilldash9x/barrier-cli/internal/mocks"
)

type stubDevices struct {
	profiles map[string]schemas.DeviceProfile
}

func (s stubDevices) Resolve(_ context.Context, name string) (schemas.DeviceProfile, error) {
	if p, ok := s.profiles[name]; ok {
		return p, nil
	}
	return schemas.DeviceProfile{}, schemas.ErrNotFound
}

var (
	desktop = schemas.DefaultDeviceProfile
	phone   = schemas.DeviceProfile{Name: "iPhone X", Width: 375, Height: 812, Mobile: true}
	fixedAt = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
)

func finding(id string) schemas.Finding { return schemas.Finding{ID: id} }

func analysis(passes, violations int) *schemas.AnalysisResult {
	res := &schemas.AnalysisResult{
		TestEngine: schemas.TestEngine{Name: "axe-core", Version: "4.10.2"},
		Timestamp:  fixedAt,
	}
	for i := 0; i < passes; i++ {
		res.Passes = append(res.Passes, finding("pass"))
	}
	for i := 0; i < violations; i++ {
		res.Violations = append(res.Violations, finding("violation"))
	}
	return res
}

type fixture struct {
	store    *mocks.MockStore
	factory  *mocks.MockSessionFactory
	session  *mocks.MockSession
	runner   *mocks.MockStepRunner
	executor *Executor
}

func newFixture(t *testing.T, logger *zap.Logger) *fixture {
	t.Helper()
	f := &fixture{
		store:   new(mocks.MockStore),
		factory: new(mocks.MockSessionFactory),
		session: new(mocks.MockSession),
		runner:  new(mocks.MockStepRunner),
	}
	if logger == nil {
		logger = zaptest.NewLogger(t)
	}
	devices := stubDevices{profiles: map[string]schemas.DeviceProfile{"Desktop": desktop, "iPhone X": phone}}
	f.executor = New(f.store, f.factory, f.runner, devices, config.ExecutorConfig{SettleTimeout: time.Second}, logger)
	f.executor.now = func() time.Time { return fixedAt }

	f.factory.On("Open", mock.Anything).Return(f.session, nil)
	f.session.On("ID").Return("session-1")
	f.session.On("Close", mock.Anything).Return(nil).Once()
	return f
}

func (f *fixture) assertAll(t *testing.T) {
	f.store.AssertExpectations(t)
	f.factory.AssertExpectations(t)
	f.session.AssertExpectations(t)
	f.runner.AssertExpectations(t)
}

func request() *schemas.ScanRequest {
	return &schemas.ScanRequest{
		ID:       "scan-1",
		URL:      "https://example.com",
		Guidance: []string{"wcag2aa"},
		Device:   "Desktop",
		URLs:     []string{"https://example.com", "https://example.com/a"},
		Status:   schemas.StatusPending,
	}
}

func TestExecutor_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("all urls analysed and the request completed once", func(t *testing.T) {
		f := newFixture(t, nil)
		f.store.On("GetScanRequest", ctx, "scan-1").Return(request(), nil)
		f.session.On("Emulate", ctx, desktop).Return(nil).Twice()
		f.session.On("Navigate", ctx, mock.Anything, schemas.WaitDOMContentLoaded).Return(nil).Twice()
		f.session.On("WaitForNavigation", mock.Anything, schemas.WaitNetworkIdle).Return(nil).Twice()
		f.session.On("RunAnalysis", ctx, []string{"wcag2aa"}).Return(analysis(3, 1), nil).Once()
		f.session.On("RunAnalysis", ctx, []string{"wcag2aa"}).Return(analysis(1, 1), nil).Once()

		var saved []*schemas.PerUrlResult
		f.store.On("SaveResult", ctx, mock.AnythingOfType("*schemas.PerUrlResult")).
			Run(func(args mock.Arguments) { saved = append(saved, args.Get(1).(*schemas.PerUrlResult)) }).
			Return("result-id", nil).Twice()
		f.store.On("CompleteScanRequest", ctx, "scan-1", 66.67, fixedAt).Return(nil).Once()

		outcome, err := f.executor.Run(ctx, "scan-1", nil, "")
		require.NoError(t, err)

		assert.Equal(t, schemas.RunCompleted, outcome.Status)
		assert.Equal(t, "Scan request with ID scan-1 completed successfully.", outcome.Message)
		require.NotNil(t, outcome.Score)
		assert.Equal(t, 66.67, *outcome.Score)
		assert.Equal(t, 2, outcome.Processed)
		assert.Zero(t, outcome.Skipped)

		require.Len(t, saved, 2)
		assert.Equal(t, "https://example.com", saved[0].URL)
		assert.Equal(t, 75.0, saved[0].Score)
		assert.Equal(t, "https://example.com/a", saved[1].URL)
		assert.Equal(t, 50.0, saved[1].Score)
		assert.Equal(t, "Desktop", saved[1].TestEnvironment.Device)
		assert.Equal(t, "scan-1", saved[1].ScanRequestID)
		f.runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything)
		f.assertAll(t)
	})

	t.Run("overrides replace the stored url set and device", func(t *testing.T) {
		f := newFixture(t, nil)
		f.store.On("GetScanRequest", ctx, "scan-1").Return(request(), nil)
		f.session.On("Emulate", ctx, phone).Return(nil).Once()
		f.session.On("Navigate", ctx, "https://example.com/only", schemas.WaitDOMContentLoaded).Return(nil).Once()
		f.session.On("WaitForNavigation", mock.Anything, schemas.WaitNetworkIdle).Return(nil).Once()
		f.session.On("RunAnalysis", ctx, []string{"wcag2aa"}).Return(analysis(0, 0), nil).Once()
		f.store.On("SaveResult", ctx, mock.Anything).Return("result-id", nil).Once()
		f.store.On("CompleteScanRequest", ctx, "scan-1", 100.0, fixedAt).Return(nil).Once()

		outcome, err := f.executor.Run(ctx, "scan-1", []string{"https://example.com/only"}, "iPhone X")
		require.NoError(t, err)
		assert.Equal(t, 1, outcome.Processed)
		f.assertAll(t)
	})

	t.Run("steps failure leaves the request pending and persists nothing", func(t *testing.T) {
		f := newFixture(t, nil)
		req := request()
		req.Steps = []schemas.Step{{URL: "https://example.com", Action: schemas.ActionClick, FindBy: schemas.SelectorID, FindValue: "go", IsActive: true}}
		f.store.On("GetScanRequest", ctx, "scan-1").Return(req, nil)
		f.session.On("Emulate", ctx, desktop).Return(nil).Once()
		f.session.On("Navigate", ctx, "https://example.com", schemas.WaitDOMContentLoaded).Return(nil).Once()
		f.runner.On("Run", ctx, f.session, req.Steps).Return(errors.New("timeout waiting for selector #go")).Once()

		outcome, err := f.executor.Run(ctx, "scan-1", nil, "")
		require.NoError(t, err)
		assert.Equal(t, schemas.RunStepsFailed, outcome.Status)
		assert.Equal(t, "Scan Steps issue with Scan request with ID scan-1. timeout waiting for selector #go", outcome.Message)
		assert.Nil(t, outcome.Score)

		f.store.AssertNotCalled(t, "SaveResult", mock.Anything, mock.Anything)
		f.store.AssertNotCalled(t, "CompleteScanRequest", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		f.session.AssertNotCalled(t, "RunAnalysis", mock.Anything, mock.Anything)
		f.assertAll(t)
	})

	t.Run("settle timeout is soft and navigation failure skips", func(t *testing.T) {
		core, logs := observer.New(zap.InfoLevel)
		f := newFixture(t, zap.New(core))
		f.store.On("GetScanRequest", ctx, "scan-1").Return(request(), nil)
		f.session.On("Emulate", ctx, desktop).Return(nil).Twice()
		f.session.On("Navigate", ctx, "https://example.com", schemas.WaitDOMContentLoaded).Return(errors.New("net::ERR_CONNECTION_REFUSED")).Once()
		f.session.On("Navigate", ctx, "https://example.com/a", schemas.WaitDOMContentLoaded).Return(nil).Once()
		f.session.On("WaitForNavigation", mock.Anything, schemas.WaitNetworkIdle).Return(context.DeadlineExceeded).Once()
		f.session.On("RunAnalysis", ctx, []string{"wcag2aa"}).Return(analysis(1, 0), nil).Once()
		f.store.On("SaveResult", ctx, mock.Anything).Return("result-id", nil).Once()
		f.store.On("CompleteScanRequest", ctx, "scan-1", 100.0, fixedAt).Return(nil).Once()

		outcome, err := f.executor.Run(ctx, "scan-1", nil, "")
		require.NoError(t, err)
		assert.Equal(t, schemas.RunCompleted, outcome.Status)
		assert.Equal(t, 1, outcome.Processed)
		assert.Equal(t, 1, outcome.Skipped)
		assert.Equal(t, 1, logs.FilterMessage("Page did not settle, analysing anyway").Len())
		assert.Equal(t, 1, logs.FilterMessage("Navigation failed, skipping URL").Len())
		f.assertAll(t)
	})

	t.Run("analysis failure is fatal and earlier results stay saved", func(t *testing.T) {
		f := newFixture(t, nil)
		f.store.On("GetScanRequest", ctx, "scan-1").Return(request(), nil)
		f.session.On("Emulate", ctx, desktop).Return(nil).Twice()
		f.session.On("Navigate", ctx, mock.Anything, schemas.WaitDOMContentLoaded).Return(nil).Twice()
		f.session.On("WaitForNavigation", mock.Anything, schemas.WaitNetworkIdle).Return(nil).Twice()
		f.session.On("RunAnalysis", ctx, []string{"wcag2aa"}).Return(analysis(2, 0), nil).Once()
		f.session.On("RunAnalysis", ctx, []string{"wcag2aa"}).Return(nil, errors.New("axe is not defined")).Once()
		f.store.On("SaveResult", ctx, mock.Anything).Return("result-id", nil).Once()

		outcome, err := f.executor.Run(ctx, "scan-1", nil, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "axe is not defined")
		assert.Equal(t, schemas.RunFailed, outcome.Status)
		f.store.AssertNotCalled(t, "CompleteScanRequest", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		f.assertAll(t)
	})

	t.Run("unknown request never opens a session", func(t *testing.T) {
		store := new(mocks.MockStore)
		factory := new(mocks.MockSessionFactory)
		store.On("GetScanRequest", ctx, "missing").Return(nil, schemas.ErrNotFound)
		exec := New(store, factory, new(mocks.MockStepRunner), stubDevices{}, config.ExecutorConfig{}, zaptest.NewLogger(t))

		outcome, err := exec.Run(ctx, "missing", nil, "")
		assert.ErrorIs(t, err, schemas.ErrNotFound)
		assert.Equal(t, schemas.RunFailed, outcome.Status)
		factory.AssertNotCalled(t, "Open", mock.Anything)
	})

	t.Run("canceled run still closes the session", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		f := newFixture(t, nil)
		f.store.On("GetScanRequest", cctx, "scan-1").Return(request(), nil)
		f.session.On("Emulate", cctx, desktop).Return(nil).Once()
		f.session.On("Navigate", cctx, "https://example.com", schemas.WaitDOMContentLoaded).
			Run(func(mock.Arguments) { cancel() }).
			Return(context.Canceled).Once()

		outcome, err := f.executor.Run(cctx, "scan-1", nil, "")
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, schemas.RunFailed, outcome.Status)
		f.session.AssertCalled(t, "Close", mock.Anything)
	})
}
