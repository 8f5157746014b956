// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/barrier-cli/api/schemas"
)

// -- Store Mock --

// MockStore mocks schemas.Store.
type MockStore struct {
	mock.Mock
}

var _ schemas.Store = (*MockStore)(nil)

func (m *MockStore) CreateScanRequest(ctx context.Context, req *schemas.ScanRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockStore) GetScanRequest(ctx context.Context, id string) (*schemas.ScanRequest, error) {
	args := m.Called(ctx, id)
	req, _ := args.Get(0).(*schemas.ScanRequest)
	return req, args.Error(1)
}

func (m *MockStore) ListScanRequests(ctx context.Context, filter schemas.ScanFilter) ([]schemas.ScanRequest, error) {
	args := m.Called(ctx, filter)
	reqs, _ := args.Get(0).([]schemas.ScanRequest)
	return reqs, args.Error(1)
}

func (m *MockStore) EditScanRequest(ctx context.Context, in schemas.EditScanInput) (int64, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) DeleteScanRequests(ctx context.Context, ids []string) (int64, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) GetURLs(ctx context.Context, id string) ([]string, error) {
	args := m.Called(ctx, id)
	urls, _ := args.Get(0).([]string)
	return urls, args.Error(1)
}

func (m *MockStore) SaveResult(ctx context.Context, res *schemas.PerUrlResult) (string, error) {
	args := m.Called(ctx, res)
	return args.String(0), args.Error(1)
}

func (m *MockStore) GetResults(ctx context.Context, scanRequestID string) ([]schemas.PerUrlResult, error) {
	args := m.Called(ctx, scanRequestID)
	results, _ := args.Get(0).([]schemas.PerUrlResult)
	return results, args.Error(1)
}

func (m *MockStore) CompleteScanRequest(ctx context.Context, id string, score float64, ranAt time.Time) error {
	args := m.Called(ctx, id, score, ranAt)
	return args.Error(0)
}

func (m *MockStore) UpsertSchedule(ctx context.Context, entry schemas.ScheduleEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockStore) DueSchedules(ctx context.Context, now time.Time) ([]schemas.DueScan, error) {
	args := m.Called(ctx, now)
	due, _ := args.Get(0).([]schemas.DueScan)
	return due, args.Error(1)
}

func (m *MockStore) DetachSchedule(ctx context.Context, scanRequestID string) error {
	args := m.Called(ctx, scanRequestID)
	return args.Error(0)
}

func (m *MockStore) GetDeviceProfile(ctx context.Context, name string) (*schemas.DeviceProfile, error) {
	args := m.Called(ctx, name)
	profile, _ := args.Get(0).(*schemas.DeviceProfile)
	return profile, args.Error(1)
}

func (m *MockStore) ListDeviceProfiles(ctx context.Context) ([]schemas.DeviceProfile, error) {
	args := m.Called(ctx)
	profiles, _ := args.Get(0).([]schemas.DeviceProfile)
	return profiles, args.Error(1)
}

func (m *MockStore) ListGuidanceLevels(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	levels, _ := args.Get(0).([]string)
	return levels, args.Error(1)
}

// -- Browsing Session Mocks --

// MockElementHandle is a resolved element that only remembers its query.
type MockElementHandle struct {
	Q schemas.Query
}

func (h *MockElementHandle) Query() schemas.Query { return h.Q }

// MockSession mocks schemas.BrowsingSession. The default timeout is tracked as
// real state so save and restore sequences can be asserted without stubbing.
type MockSession struct {
	mock.Mock
	timeout time.Duration
}

var _ schemas.BrowsingSession = (*MockSession)(nil)

func (m *MockSession) ID() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockSession) Navigate(ctx context.Context, url string, wait schemas.WaitPolicy) error {
	args := m.Called(ctx, url, wait)
	return args.Error(0)
}

func (m *MockSession) WaitForNavigation(ctx context.Context, wait schemas.WaitPolicy) error {
	args := m.Called(ctx, wait)
	return args.Error(0)
}

func (m *MockSession) Emulate(ctx context.Context, device schemas.DeviceProfile) error {
	args := m.Called(ctx, device)
	return args.Error(0)
}

func (m *MockSession) CurrentURL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockSession) Content(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockSession) Resolve(ctx context.Context, q schemas.Query, timeout time.Duration) (schemas.ElementHandle, error) {
	args := m.Called(ctx, q, timeout)
	el, _ := args.Get(0).(schemas.ElementHandle)
	return el, args.Error(1)
}

func (m *MockSession) Click(ctx context.Context, el schemas.ElementHandle) error {
	args := m.Called(ctx, el)
	return args.Error(0)
}

func (m *MockSession) Type(ctx context.Context, el schemas.ElementHandle, text string) error {
	args := m.Called(ctx, el, text)
	return args.Error(0)
}

func (m *MockSession) Select(ctx context.Context, el schemas.ElementHandle, value string) error {
	args := m.Called(ctx, el, value)
	return args.Error(0)
}

func (m *MockSession) SetDefaultTimeout(d time.Duration) {
	m.timeout = d
}

func (m *MockSession) DefaultTimeout() time.Duration {
	return m.timeout
}

func (m *MockSession) RunAnalysis(ctx context.Context, tags []string) (*schemas.AnalysisResult, error) {
	args := m.Called(ctx, tags)
	res, _ := args.Get(0).(*schemas.AnalysisResult)
	return res, args.Error(1)
}

func (m *MockSession) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockSessionFactory mocks schemas.SessionFactory.
type MockSessionFactory struct {
	mock.Mock
}

func (m *MockSessionFactory) Open(ctx context.Context) (schemas.BrowsingSession, error) {
	args := m.Called(ctx)
	session, _ := args.Get(0).(schemas.BrowsingSession)
	return session, args.Error(1)
}

// -- Engine Mocks --

// MockCrawler mocks schemas.Crawler.
type MockCrawler struct {
	mock.Mock
}

func (m *MockCrawler) Discover(ctx context.Context, session schemas.BrowsingSession, seed string, maxDepth int) ([]string, error) {
	args := m.Called(ctx, session, seed, maxDepth)
	urls, _ := args.Get(0).([]string)
	return urls, args.Error(1)
}

// MockStepRunner mocks schemas.StepRunner.
type MockStepRunner struct {
	mock.Mock
}

func (m *MockStepRunner) Run(ctx context.Context, session schemas.BrowsingSession, steps []schemas.Step) error {
	args := m.Called(ctx, session, steps)
	return args.Error(0)
}

// MockScanExecutor mocks schemas.ScanExecutor.
type MockScanExecutor struct {
	mock.Mock
}

func (m *MockScanExecutor) Run(ctx context.Context, scanRequestID string, urls []string, device string) (schemas.RunOutcome, error) {
	args := m.Called(ctx, scanRequestID, urls, device)
	return args.Get(0).(schemas.RunOutcome), args.Error(1)
}

// MockBatchEngine mocks schemas.BatchEngine.
type MockBatchEngine struct {
	mock.Mock
}

func (m *MockBatchEngine) RunBatch(ctx context.Context, ids []string, urls []string, device string) []schemas.RunOutcome {
	args := m.Called(ctx, ids, urls, device)
	outcomes, _ := args.Get(0).([]schemas.RunOutcome)
	return outcomes
}

// -- Orchestrator Mock --

// MockOrchestrator mocks the orchestrator surface shared by the API and the commands.
type MockOrchestrator struct {
	mock.Mock
}

func (m *MockOrchestrator) CreateScan(ctx context.Context, in schemas.CreateScanInput) (*schemas.ScanRequest, error) {
	args := m.Called(ctx, in)
	req, _ := args.Get(0).(*schemas.ScanRequest)
	return req, args.Error(1)
}

func (m *MockOrchestrator) RunScans(ctx context.Context, ids []string, urls []string, device string) ([]schemas.RunOutcome, error) {
	args := m.Called(ctx, ids, urls, device)
	out, _ := args.Get(0).([]schemas.RunOutcome)
	return out, args.Error(1)
}

func (m *MockOrchestrator) ScheduleScans(ctx context.Context, ids []string, runAt string) ([]schemas.ScheduleOutcome, error) {
	args := m.Called(ctx, ids, runAt)
	out, _ := args.Get(0).([]schemas.ScheduleOutcome)
	return out, args.Error(1)
}

func (m *MockOrchestrator) Sweep(ctx context.Context) (schemas.SweepReport, error) {
	args := m.Called(ctx)
	return args.Get(0).(schemas.SweepReport), args.Error(1)
}

func (m *MockOrchestrator) EditScan(ctx context.Context, in schemas.EditScanInput) error {
	return m.Called(ctx, in).Error(0)
}

func (m *MockOrchestrator) DeleteScans(ctx context.Context, ids []string) (int64, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockOrchestrator) ListScans(ctx context.Context, filter schemas.ScanFilter) ([]schemas.ScanRequest, error) {
	args := m.Called(ctx, filter)
	out, _ := args.Get(0).([]schemas.ScanRequest)
	return out, args.Error(1)
}

func (m *MockOrchestrator) GetScan(ctx context.Context, id string) (*schemas.ScanRequest, error) {
	args := m.Called(ctx, id)
	req, _ := args.Get(0).(*schemas.ScanRequest)
	return req, args.Error(1)
}

func (m *MockOrchestrator) URLs(ctx context.Context, id string) ([]string, error) {
	args := m.Called(ctx, id)
	out, _ := args.Get(0).([]string)
	return out, args.Error(1)
}

func (m *MockOrchestrator) Score(ctx context.Context, id string) (float64, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockOrchestrator) Report(ctx context.Context, id string) (*schemas.ScanReport, error) {
	args := m.Called(ctx, id)
	out, _ := args.Get(0).(*schemas.ScanReport)
	return out, args.Error(1)
}

func (m *MockOrchestrator) Devices(ctx context.Context) ([]schemas.DeviceProfile, error) {
	args := m.Called(ctx)
	out, _ := args.Get(0).([]schemas.DeviceProfile)
	return out, args.Error(1)
}

func (m *MockOrchestrator) Guidance(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	out, _ := args.Get(0).([]string)
	return out, args.Error(1)
}
